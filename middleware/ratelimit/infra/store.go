package infra

import (
	"context"
	"sync"
	"time"

	"crpt-gateway/middleware/ratelimit/domain"
)

// Store mantém um FixedWindow por chave (cliente lógico), criado sob demanda,
// com limpeza periódica de chaves inativas.
type Store struct {
	mu           sync.Mutex
	entries      map[string]*storeEntry
	window       time.Duration
	maxPermits   int
	idleTTL      time.Duration
	cleanupEvery time.Duration
	closed       bool
}

type storeEntry struct {
	lim      *FixedWindow
	lastSeen time.Time
	// active conta chamadas Acquire em andamento; entradas ativas nunca são removidas.
	active int
}

var _ domain.LimiterStore = (*Store)(nil)

type StoreOption func(*Store)

func WithIdleTTL(d time.Duration) StoreOption {
	return func(s *Store) { s.idleTTL = d }
}

func WithCleanupEvery(d time.Duration) StoreOption {
	return func(s *Store) { s.cleanupEvery = d }
}

// NewStore valida a configuração da janela uma única vez; todas as chaves compartilham a mesma.
func NewStore(window time.Duration, maxPermits int, opts ...StoreOption) (*Store, error) {
	cfg := domain.WindowConfig{Window: window, MaxPermits: maxPermits}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Store{
		entries:      make(map[string]*storeEntry),
		window:       window,
		maxPermits:   maxPermits,
		idleTTL:      15 * time.Minute,
		cleanupEvery: 2 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	// uma chave só pode sair do cache depois de uma janela inteira sem uso;
	// antes disso o limiter novo entregaria uma cota cheia dentro da mesma janela
	if s.idleTTL < s.window {
		s.idleTTL = s.window
	}
	return s, nil
}

func (s *Store) Window() time.Duration       { return s.window }
func (s *Store) MaxPermits() int             { return s.maxPermits }
func (s *Store) IdleTTL() time.Duration      { return s.idleTTL }
func (s *Store) CleanupEvery() time.Duration { return s.cleanupEvery }

// Len retorna quantas chaves estão em cache.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Acquire implementa domain.LimiterStore.
func (s *Store) Acquire(ctx context.Context, key domain.Key) error {
	ent, err := s.checkout(string(key))
	if err != nil {
		return err
	}
	defer s.checkin(ent)

	return ent.lim.Acquire(ctx)
}

// get retorna o limiter da chave, criando se necessário.
func (s *Store) get(key domain.Key) (*FixedWindow, error) {
	ent, err := s.checkout(string(key))
	if err != nil {
		return nil, err
	}
	s.checkin(ent)
	return ent.lim, nil
}

func (s *Store) checkout(key string) (*storeEntry, error) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, domain.ErrCancelled
	}

	ent, ok := s.entries[key]
	if !ok {
		lim, err := NewFixedWindow(s.window, s.maxPermits)
		if err != nil {
			return nil, err
		}
		ent = &storeEntry{lim: lim}
		s.entries[key] = ent
	}
	ent.lastSeen = now
	ent.active++
	return ent, nil
}

func (s *Store) checkin(ent *storeEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ent.active--
	ent.lastSeen = time.Now()
}

// Cleanup fecha e remove limiters sem uso há mais de idleTTL.
func (s *Store) Cleanup() {
	cutoff := time.Now().Add(-s.idleTTL)

	s.mu.Lock()
	var idle []*FixedWindow
	for k, ent := range s.entries {
		if ent.active == 0 && ent.lastSeen.Before(cutoff) {
			idle = append(idle, ent.lim)
			delete(s.entries, k)
		}
	}
	s.mu.Unlock()

	for _, lim := range idle {
		lim.Close()
	}
}

// Close fecha todos os limiters; chamadores bloqueados recebem domain.ErrCancelled.
func (s *Store) Close() {
	s.mu.Lock()
	s.closed = true
	lims := make([]*FixedWindow, 0, len(s.entries))
	for k, ent := range s.entries {
		lims = append(lims, ent.lim)
		delete(s.entries, k)
	}
	s.mu.Unlock()

	for _, lim := range lims {
		lim.Close()
	}
}

// StartJanitor inicia uma goroutine que limpa chaves inativas periodicamente.
// Pare cancelando o contexto.
func (s *Store) StartJanitor(ctx context.Context) {
	if s.cleanupEvery <= 0 {
		return
	}

	t := time.NewTicker(s.cleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Cleanup()
			}
		}
	}()
}
