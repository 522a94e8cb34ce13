package config

import (
	"context"
	"time"
)

type contextKey struct{}

// WithContext returns a new context carrying the given Config.
func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, contextKey{}, cfg)
}

// FromContext retrieves the Config from the context.
func FromContext(ctx context.Context) *Config {
	cfg, _ := ctx.Value(contextKey{}).(*Config)
	return cfg
}

// ListenerConfig holds the network settings for the HTTP listener.
type ListenerConfig struct {
	Port              int
	ReadHeaderTimeout time.Duration
}

// Config holds all configuration for the booking service.
type Config struct {
	// Database
	DBURL string

	// Datastore backend type: "mongo", "postgres", or "memory".
	DatastoreType string

	// Run datastore migrations on startup.
	DatastoreMigrateAtStart bool

	// DB pool
	DBMaxOpenConns int
	DBMaxIdleConns int

	// Cache backend type: "ristretto", "redis", or "none".
	CacheType string

	// Redis
	RedisURL string

	// Entity cache TTL (redis) / cost budget (ristretto).
	CacheTTL        time.Duration
	CacheMaxEntries int64

	// Number of documents fetched per page by batch jobs and SearchAll.
	BatchPageSize int

	// Optimistic write retry attempts before surfacing ConflictError.
	ConflictRetries int

	// MetricsLabels is a comma-separated list of key=value pairs added as
	// constant labels to all Prometheus metrics.
	MetricsLabels string

	// Server
	Listener  ListenerConfig
	AccessLog bool

	// Graceful shutdown drain timeout (seconds)
	DrainTimeout int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		DatastoreType:           "mongo",
		DatastoreMigrateAtStart: true,
		DBMaxOpenConns:          25,
		DBMaxIdleConns:          5,
		CacheType:               "none",
		CacheTTL:                10 * time.Minute,
		CacheMaxEntries:         100_000,
		BatchPageSize:           500,
		ConflictRetries:         5,
		Listener: ListenerConfig{
			Port:              8080,
			ReadHeaderTimeout: 5 * time.Second,
		},
		AccessLog:    true,
		DrainTimeout: 30,
	}
}
