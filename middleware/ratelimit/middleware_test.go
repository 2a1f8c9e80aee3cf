package ratelimit

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"crpt-gateway/middleware/ratelimit/domain"
	"crpt-gateway/middleware/ratelimit/infra"
)

func newTestStore(t *testing.T, window time.Duration, maxPermits int) *infra.Store {
	t.Helper()
	store, err := infra.NewStore(window, maxPermits)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(store.Close)
	return store
}

func okHandler(calls *atomic.Int64) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "ok")
	})
}

func serve(h http.Handler, remoteAddr string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(http.MethodPost, "http://example/api/v3/lk/documents/create", nil)
	r.RemoteAddr = remoteAddr
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestMiddleware_AdmitsThenRejectsAfterTimeout(t *testing.T) {
	store := newTestStore(t, 90*time.Second, 1)
	stats := infra.NewMemoryStatsStore()

	var calls atomic.Int64
	h := Middleware(Options{
		Store:               store,
		Stats:               stats,
		AcquireTimeout:      20 * time.Millisecond,
		AddRateLimitHeaders: true,
	})(okHandler(&calls))

	// 1) primeira passa
	w1 := serve(h, "10.0.0.1:1234")
	if w1.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w1.Code)
	}
	if got := w1.Header().Get("X-RateLimit-Key"); got != "10.0.0.1" {
		t.Fatalf("expected X-RateLimit-Key=10.0.0.1, got %q", got)
	}
	if got := w1.Header().Get("X-RateLimit-Limit"); got != "1" {
		t.Fatalf("expected X-RateLimit-Limit=1, got %q", got)
	}
	if got := w1.Header().Get("X-RateLimit-Window"); got != "90" {
		t.Fatalf("expected X-RateLimit-Window=90, got %q", got)
	}

	// 2) segunda espera a janela e estoura o timeout
	w2 := serve(h, "10.0.0.1:1234")
	if w2.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w2.Code)
	}
	if got := w2.Header().Get("Retry-After"); got != "90" {
		t.Fatalf("expected Retry-After to default to the window, got %q", got)
	}

	if calls.Load() != 1 {
		t.Fatalf("expected next handler to be called once, got %d", calls.Load())
	}
	total := stats.Total()
	if total.Granted != 1 || total.Interrupted != 1 {
		t.Fatalf("expected 1 granted and 1 interrupted, got %+v", total)
	}
}

func TestMiddleware_WaitsForNextWindow(t *testing.T) {
	store := newTestStore(t, 100*time.Millisecond, 1)

	var calls atomic.Int64
	h := Middleware(Options{Store: store})(okHandler(&calls))

	start := time.Now()
	for i := 0; i < 2; i++ {
		if w := serve(h, "10.0.0.1:1234"); w.Code != http.StatusOK {
			t.Fatalf("expected 200 for request %d, got %d", i+1, w.Code)
		}
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Fatalf("expected second request to wait for the window reset, took %s", elapsed)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected next handler to be called twice, got %d", calls.Load())
	}
}

func TestMiddleware_KeyByHeader(t *testing.T) {
	store := newTestStore(t, time.Hour, 1)

	var calls atomic.Int64
	h := Middleware(Options{
		Store:          store,
		KeyHeader:      "X-Api-Key",
		AcquireTimeout: 20 * time.Millisecond,
	})(okHandler(&calls))

	// duas chaves diferentes => ambas devem passar (cada chave tem sua própria janela)
	for _, key := range []string{"k1", "k2"} {
		r := httptest.NewRequest(http.MethodPost, "http://example/", nil)
		r.Header.Set("X-Api-Key", key)
		r.RemoteAddr = "10.0.0.1:1234"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200 for key %s, got %d", key, w.Code)
		}
	}
}

func TestMiddleware_RetryAfterRoundsUp(t *testing.T) {
	store := newTestStore(t, time.Hour, 1)

	var calls atomic.Int64
	h := Middleware(Options{
		Store:          store,
		AcquireTimeout: 10 * time.Millisecond,
		RetryAfter:     2500 * time.Millisecond,
	})(okHandler(&calls))

	_ = serve(h, "10.0.0.1:1234")
	w := serve(h, "10.0.0.1:1234")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	if got := w.Header().Get("Retry-After"); got != "3" {
		t.Fatalf("expected Retry-After=3, got %q", got)
	}
}

func TestMiddleware_ShutdownReleasesWaitersWith503(t *testing.T) {
	store, err := infra.NewStore(time.Hour, 1)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	var calls atomic.Int64
	h := Middleware(Options{Store: store})(okHandler(&calls))

	_ = serve(h, "10.0.0.1:1234")

	done := make(chan *httptest.ResponseRecorder, 1)
	go func() { done <- serve(h, "10.0.0.1:1234") }()
	time.Sleep(20 * time.Millisecond)

	store.Close()

	select {
	case w := <-done:
		if w.Code != http.StatusServiceUnavailable {
			t.Fatalf("expected 503 after shutdown, got %d", w.Code)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected waiting request to be released by Close")
	}
	if calls.Load() != 1 {
		t.Fatalf("expected next handler to be called once, got %d", calls.Load())
	}
}

func TestMiddleware_ClientGoneWritesNothing(t *testing.T) {
	store := newTestStore(t, time.Hour, 1)
	stats := infra.NewMemoryStatsStore()

	var calls atomic.Int64
	h := Middleware(Options{Store: store, Stats: stats})(okHandler(&calls))
	_ = serve(h, "10.0.0.1:1234")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	r := httptest.NewRequest(http.MethodPost, "http://example/", nil).WithContext(ctx)
	r.RemoteAddr = "10.0.0.1:1234"
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	if w.Body.Len() != 0 {
		t.Fatalf("expected empty body, got %q", w.Body.String())
	}
	if got := stats.Total(); got.Interrupted != 1 {
		t.Fatalf("expected interrupted admission to be recorded, got %+v", got)
	}
}

// ctxCheckingStats recusa contextos cancelados, como faria um pipeline do Redis.
type ctxCheckingStats struct {
	recorded []domain.Outcome
}

func (s *ctxCheckingStats) Record(ctx context.Context, ev domain.StatsEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.recorded = append(s.recorded, ev.Outcome)
	return nil
}

func TestMiddleware_RecordsStatsAfterClientGone(t *testing.T) {
	store := newTestStore(t, time.Hour, 1)
	stats := &ctxCheckingStats{}

	var calls atomic.Int64
	h := Middleware(Options{Store: store, Stats: stats})(okHandler(&calls))
	_ = serve(h, "10.0.0.1:1234")

	ctx, cancel := context.WithCancel(context.Background())
	r := httptest.NewRequest(http.MethodPost, "http://example/", nil).WithContext(ctx)
	r.RemoteAddr = "10.0.0.1:1234"
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	h.ServeHTTP(httptest.NewRecorder(), r)

	want := []domain.Outcome{domain.OutcomeGranted, domain.OutcomeInterrupted}
	if len(stats.recorded) != len(want) || stats.recorded[0] != want[0] || stats.recorded[1] != want[1] {
		t.Fatalf("expected outcomes %v, got %v", want, stats.recorded)
	}
}

func TestMiddleware_NilStoreAdmitsEverything(t *testing.T) {
	var calls atomic.Int64
	h := Middleware(Options{})(okHandler(&calls))

	for i := 0; i < 3; i++ {
		if w := serve(h, "10.0.0.1:1234"); w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
	}
}
