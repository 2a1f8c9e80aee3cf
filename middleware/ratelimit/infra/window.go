package infra

import (
	"context"
	"sync"
	"time"

	"crpt-gateway/middleware/ratelimit/domain"
)

// FixedWindow é um limiter de janela fixa: no máximo maxPermits aquisições por janela.
//
// Uma goroutine de reset zera o contador a cada janela (a primeira já em t=0) e acorda
// todos os chamadores bloqueados de uma vez (broadcast). Os acordados disputam as
// permissões de novo; não há ordem FIFO entre eles.
type FixedWindow struct {
	window     time.Duration
	maxPermits int

	mu   sync.Mutex
	used int
	// wake é fechado (e trocado) a cada reset; fechar um channel acorda todos os leitores.
	wake   chan struct{}
	closed bool

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

var _ domain.Acquirer = (*FixedWindow)(nil)

// NewFixedWindow valida a configuração e inicia o ticker de reset.
func NewFixedWindow(window time.Duration, maxPermits int) (*FixedWindow, error) {
	cfg := domain.WindowConfig{Window: window, MaxPermits: maxPermits}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	w := &FixedWindow{
		window:     window,
		maxPermits: maxPermits,
		wake:       make(chan struct{}),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	w.reset()
	go w.resetCycle()
	return w, nil
}

func (w *FixedWindow) Window() time.Duration { return w.window }
func (w *FixedWindow) MaxPermits() int       { return w.maxPermits }

// Used retorna quantas permissões já foram consumidas na janela corrente.
func (w *FixedWindow) Used() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.used
}

// Acquire bloqueia até conseguir uma permissão na janela corrente.
// Se o ctx encerrar antes, retorna domain.ErrInterrupted sem consumir nada.
// Após Close, retorna domain.ErrCancelled.
func (w *FixedWindow) Acquire(ctx context.Context) error {
	for {
		w.mu.Lock()
		if w.closed {
			w.mu.Unlock()
			return domain.ErrCancelled
		}
		if w.used < w.maxPermits {
			w.used++
			w.mu.Unlock()
			return nil
		}
		wake := w.wake
		w.mu.Unlock()

		select {
		case <-wake:
			// reset ou Close: volta a checar
		case <-ctx.Done():
			return domain.Interrupted(ctx.Err())
		}
	}
}

// Close para o ticker e libera todos os chamadores bloqueados com domain.ErrCancelled.
// Pode ser chamado mais de uma vez.
func (w *FixedWindow) Close() {
	w.closeOnce.Do(func() {
		w.mu.Lock()
		w.closed = true
		close(w.wake)
		w.mu.Unlock()

		close(w.stop)
		<-w.done
	})
}

func (w *FixedWindow) reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.used = 0
	close(w.wake)
	w.wake = make(chan struct{})
}

// resetCycle zera o contador a cada janela até Close.
func (w *FixedWindow) resetCycle() {
	defer close(w.done)

	t := time.NewTicker(w.window)
	defer t.Stop()
	for {
		select {
		case <-w.stop:
			return
		case <-t.C:
			w.reset()
		}
	}
}
