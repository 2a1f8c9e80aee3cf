package ratelimit

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"crpt-gateway/middleware/ratelimit/application"
	"crpt-gateway/middleware/ratelimit/domain"
)

type KeyFunc func(r *http.Request) string

type Options struct {
	Store              domain.LimiterStore
	Stats              domain.StatsStore
	KeyFn              KeyFunc
	KeyHeader          string
	TrustXForwardedFor bool
	// RejectStatus é usado quando a espera estoura AcquireTimeout (padrão 429).
	RejectStatus int
	// AcquireTimeout <= 0 espera indefinidamente (até o cliente desistir).
	AcquireTimeout time.Duration
	// RetryAfter padrão: a janela do Store, se ele a expuser; senão 1s.
	RetryAfter          time.Duration
	AddRateLimitHeaders bool
}

type windowInfo interface {
	Window() time.Duration
	MaxPermits() int
}

func DefaultKeyFunc(keyHeader string, trustXFF bool) KeyFunc {
	return func(r *http.Request) string {
		if keyHeader != "" {
			if v := strings.TrimSpace(r.Header.Get(keyHeader)); v != "" {
				return v
			}
		}

		if trustXFF {
			// pega o primeiro IP do X-Forwarded-For (cliente original)
			if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				first, _, _ := strings.Cut(xff, ",")
				if ip := strings.TrimSpace(first); ip != "" {
					return ip
				}
			}
			if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
				return ip
			}
		}

		// fallback: RemoteAddr
		host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
		if err == nil && host != "" {
			return host
		}
		if r.RemoteAddr != "" {
			return r.RemoteAddr
		}
		return "unknown"
	}
}

// Middleware segura cada request até a janela da chave liberar uma permissão.
// Uma permissão por request encaminhada; requests rejeitadas não consomem nada.
func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusTooManyRequests
	}
	wi, hasWindow := opts.Store.(windowInfo)
	if opts.RetryAfter == 0 {
		opts.RetryAfter = 1 * time.Second
		if hasWindow {
			opts.RetryAfter = wi.Window()
		}
	}
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc(opts.KeyHeader, opts.TrustXForwardedFor)
	}

	svc := application.AdmissionService{
		Store:          opts.Store,
		AcquireTimeout: opts.AcquireTimeout,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := opts.KeyFn(r)

			if opts.AddRateLimitHeaders {
				w.Header().Set("X-RateLimit-Key", key)
				if hasWindow {
					w.Header().Set("X-RateLimit-Limit", formatInt(wi.MaxPermits()))
					w.Header().Set("X-RateLimit-Window", formatSeconds(wi.Window()))
				}
			}

			adm, err := svc.Admit(r.Context(), domain.Key(key))
			if opts.Stats != nil {
				// o cliente pode já ter desistido; a estatística ainda deve ser gravada
				_ = opts.Stats.Record(context.WithoutCancel(r.Context()), domain.StatsEvent{
					Key:     domain.Key(key),
					Outcome: adm.Outcome,
					Waited:  adm.Waited,
					Method:  r.Method,
					Path:    r.URL.Path,
					At:      time.Now(),
				})
			}

			switch {
			case err == nil:
				next.ServeHTTP(w, r)
			case r.Context().Err() != nil:
				// cliente desistiu; não há para quem responder
			case domain.IsCancelled(err):
				http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
			default:
				w.Header().Set("Retry-After", formatSeconds(opts.RetryAfter))
				http.Error(w, http.StatusText(opts.RejectStatus), opts.RejectStatus)
			}
		})
	}
}
