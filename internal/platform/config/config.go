package config

import (
	"os"
	"time"
)

// Config captures everything main needs to wire the registry.
type Config struct {
	Addr        string
	PostgresDSN string
	Redis       RedisConfig

	// ValidityPeriod is how long after production end a certificate stays
	// redeemable before the expiry sweep collects it.
	ValidityPeriod time.Duration

	ProjectorPollInterval time.Duration
	ExpirySweepInterval   time.Duration
}

// RedisConfig captures Redis connection settings. An empty URL disables Redis
// and the registry falls back to the in-process read view.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// FromEnv builds the registry config from environment variables so main
// stays lean. An empty GC_REGISTRY_POSTGRES_DSN selects the in-memory stores.
func FromEnv() Config {
	addr := os.Getenv("GC_REGISTRY_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	return Config{
		Addr:        addr,
		PostgresDSN: os.Getenv("GC_REGISTRY_POSTGRES_DSN"),
		Redis: RedisConfig{
			URL:          os.Getenv("GC_REGISTRY_REDIS_URL"),
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		ValidityPeriod:        durationFromEnv("GC_REGISTRY_VALIDITY_PERIOD", 365*24*time.Hour),
		ProjectorPollInterval: durationFromEnv("GC_REGISTRY_PROJECTOR_POLL_INTERVAL", time.Second),
		ExpirySweepInterval:   durationFromEnv("GC_REGISTRY_EXPIRY_SWEEP_INTERVAL", time.Hour),
	}
}

func durationFromEnv(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
