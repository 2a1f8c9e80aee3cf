package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os/signal"
	"syscall"
	"time"

	"crpt-gateway/internal/config"
	"crpt-gateway/middleware/ratelimit"
	"crpt-gateway/middleware/ratelimit/domain"
	"crpt-gateway/middleware/ratelimit/infra"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("config error: %v", err)
	}
	log := cfg.Log.NewLogger()

	target, err := url.Parse(cfg.UpstreamURL)
	if err != nil {
		log.Fatalf("invalid UPSTREAM_URL: %v", err)
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		log.WithError(err).WithField("path", r.URL.Path).Error("proxy error")
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}

	store, err := infra.NewStore(
		cfg.Rate.Window,
		cfg.Rate.MaxPermits,
		infra.WithIdleTTL(cfg.Rate.IdleTTL),
		infra.WithCleanupEvery(cfg.Rate.CleanupEvery),
	)
	if err != nil {
		log.Fatalf("rate limiter error: %v", err)
	}

	var statsStore domain.StatsStore
	if cfg.Stats.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Stats.RedisAddr,
			Password: cfg.Stats.RedisPassword,
			DB:       cfg.Stats.RedisDB,
		})
		defer func() { _ = rdb.Close() }()

		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_, err := rdb.Ping(pingCtx).Result()
		cancel()
		if err != nil {
			log.Fatalf("redis stats ping error: %v", err)
		}

		statsStore = infra.NewRedisStatsStore(
			rdb,
			infra.WithStatsPrefix(cfg.Stats.Prefix),
			infra.WithStatsTTL(cfg.Stats.TTL),
			infra.WithStatsBucket(cfg.Stats.Bucket),
			infra.WithStatsTrackKeys(cfg.Stats.TrackKeys),
		)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	store.StartJanitor(ctx)

	r := chi.NewRouter()
	if cfg.Rate.Enabled {
		r.Use(ratelimit.Middleware(ratelimit.Options{
			Store:               store,
			Stats:               statsStore,
			KeyHeader:           cfg.Rate.KeyHeader,
			TrustXForwardedFor:  cfg.Rate.TrustXFF,
			RejectStatus:        http.StatusTooManyRequests,
			AcquireTimeout:      cfg.Rate.AcquireTimeout,
			RetryAfter:          cfg.Rate.RetryAfter,
			AddRateLimitHeaders: cfg.Rate.AddHeaders,
		}))
	}
	r.Handle("/*", proxy)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// sem WriteTimeout: a request pode ficar segurada uma janela inteira antes de seguir
		IdleTimeout: 90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		// fecha as janelas primeiro: quem está esperando recebe 503 em vez de travar o Shutdown
		store.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.WithFields(logrus.Fields{"addr": cfg.ListenAddr, "upstream": target.String()}).Info("gateway listening")
	log.WithFields(logrus.Fields{
		"enabled":        cfg.Rate.Enabled,
		"window":         cfg.Rate.Window,
		"maxPermits":     cfg.Rate.MaxPermits,
		"keyHeader":      cfg.Rate.KeyHeader,
		"trustXFF":       cfg.Rate.TrustXFF,
		"acquireTimeout": cfg.Rate.AcquireTimeout,
		"idleTTL":        store.IdleTTL(),
		"cleanupEvery":   store.CleanupEvery(),
	}).Info("rate")
	log.WithFields(logrus.Fields{
		"enabled":   cfg.Stats.Enabled,
		"redisAddr": cfg.Stats.RedisAddr,
		"bucket":    cfg.Stats.Bucket,
		"ttl":       cfg.Stats.TTL,
		"trackKeys": cfg.Stats.TrackKeys,
	}).Info("rate-stats")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server error: %v", err)
	}
}
