// Package config centraliza o carregamento de configurações dos binários.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type Config struct {
	ListenAddr  string
	UpstreamURL string
	Rate        RateConfig
	Stats       StatsConfig
	Log         LogConfig
}

type RateConfig struct {
	Enabled        bool
	Window         time.Duration
	MaxPermits     int
	KeyHeader      string
	TrustXFF       bool
	AcquireTimeout time.Duration
	RetryAfter     time.Duration
	AddHeaders     bool
	IdleTTL        time.Duration
	CleanupEvery   time.Duration
}

type StatsConfig struct {
	Enabled       bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Prefix        string
	TTL           time.Duration
	Bucket        string
	TrackKeys     bool
}

type LogConfig struct {
	Level  logrus.Level
	Format string
}

// Load lê o .env (se existir) e depois as variáveis de ambiente.
func Load() (Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

func FromEnv() (Config, error) {
	var (
		cfg Config
		err error
	)
	cfg.ListenAddr = getenvDefault("LISTEN_ADDR", ":8080")
	cfg.UpstreamURL = getenvDefault("UPSTREAM_URL", "https://ismp.crpt.ru")

	if cfg.Rate, err = readRateConfig(); err != nil {
		return Config{}, err
	}
	if cfg.Stats, err = readStatsConfig(); err != nil {
		return Config{}, err
	}
	if cfg.Log, err = readLogConfig(); err != nil {
		return Config{}, err
	}

	if strings.TrimSpace(cfg.UpstreamURL) == "" {
		return Config{}, errors.New("UPSTREAM_URL is required")
	}
	return cfg, nil
}

func readRateConfig() (RateConfig, error) {
	var (
		rc  RateConfig
		err error
	)
	if rc.Enabled, err = getenvBool("RATE_ENABLED", true); err != nil {
		return RateConfig{}, err
	}
	if rc.Window, err = getenvDuration("RATE_WINDOW", time.Minute); err != nil {
		return RateConfig{}, err
	}
	if rc.MaxPermits, err = getenvInt("RATE_MAX_PERMITS", 10); err != nil {
		return RateConfig{}, err
	}
	rc.KeyHeader = os.Getenv("RATE_KEY_HEADER")
	if rc.TrustXFF, err = getenvBool("TRUST_XFF", false); err != nil {
		return RateConfig{}, err
	}
	if rc.AcquireTimeout, err = getenvDuration("ACQUIRE_TIMEOUT", 0); err != nil {
		return RateConfig{}, err
	}
	if rc.RetryAfter, err = getenvDuration("RETRY_AFTER", 0); err != nil {
		return RateConfig{}, err
	}
	if rc.AddHeaders, err = getenvBool("ADD_RATELIMIT_HEADERS", false); err != nil {
		return RateConfig{}, err
	}
	if rc.IdleTTL, err = getenvDuration("RATE_IDLE_TTL", 15*time.Minute); err != nil {
		return RateConfig{}, err
	}
	if rc.CleanupEvery, err = getenvDuration("RATE_CLEANUP_EVERY", 2*time.Minute); err != nil {
		return RateConfig{}, err
	}

	if rc.Window <= 0 {
		return RateConfig{}, errors.New("RATE_WINDOW must be > 0")
	}
	if rc.MaxPermits <= 0 {
		return RateConfig{}, errors.New("RATE_MAX_PERMITS must be > 0")
	}
	if rc.AcquireTimeout < 0 {
		return RateConfig{}, errors.New("ACQUIRE_TIMEOUT must be >= 0")
	}
	return rc, nil
}

func readStatsConfig() (StatsConfig, error) {
	var (
		sc  StatsConfig
		err error
	)
	if sc.Enabled, err = getenvBool("RATE_STATS_ENABLED", false); err != nil {
		return StatsConfig{}, err
	}
	sc.RedisAddr = getenvDefault("RATE_STATS_REDIS_ADDR", "")
	sc.RedisPassword = os.Getenv("RATE_STATS_REDIS_PASSWORD")
	if sc.RedisDB, err = getenvInt("RATE_STATS_REDIS_DB", 0); err != nil {
		return StatsConfig{}, err
	}
	sc.Prefix = getenvDefault("RATE_STATS_PREFIX", "admission:stats")
	if sc.TTL, err = getenvDuration("RATE_STATS_TTL", 24*time.Hour); err != nil {
		return StatsConfig{}, err
	}
	sc.Bucket = getenvDefault("RATE_STATS_BUCKET", "minute")
	if sc.TrackKeys, err = getenvBool("RATE_STATS_TRACK_KEYS", false); err != nil {
		return StatsConfig{}, err
	}

	if sc.Enabled && strings.TrimSpace(sc.RedisAddr) == "" {
		return StatsConfig{}, errors.New("RATE_STATS_REDIS_ADDR is required when RATE_STATS_ENABLED=true")
	}
	return sc, nil
}

func readLogConfig() (LogConfig, error) {
	level, err := logrus.ParseLevel(getenvDefault("LOG_LEVEL", "info"))
	if err != nil {
		return LogConfig{}, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	format := strings.ToLower(getenvDefault("LOG_FORMAT", "text"))
	if format != "text" && format != "json" {
		return LogConfig{}, fmt.Errorf("invalid LOG_FORMAT: %q", format)
	}
	return LogConfig{Level: level, Format: format}, nil
}

// NewLogger monta o logger do processo conforme LOG_LEVEL/LOG_FORMAT.
func (lc LogConfig) NewLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(lc.Level)
	if lc.Format == "json" {
		l.SetFormatter(&logrus.JSONFormatter{})
	}
	return l
}

func getenvDefault(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getenvInt(k string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", k, err)
	}
	return i, nil
}

func getenvBool(k string, def bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", k, err)
	}
	return b, nil
}

func getenvDuration(k string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", k, err)
	}
	return d, nil
}
