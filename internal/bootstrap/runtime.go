// Package bootstrap wires the process-level dependencies shared by the commands.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"postpilot/internal/cache"
	"postpilot/internal/config"
	"postpilot/internal/database"
	"postpilot/internal/middleware"
	"postpilot/internal/observability"
	"postpilot/internal/seed"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const serviceName = "postpilot"

// Options control runtime initialization behavior.
type Options struct {
	SeedDevData bool
}

// InitRuntime connects to DB and Redis and optionally seeds development data.
// A nil Redis client is returned when Redis is unreachable.
func InitRuntime(cfg *config.Config, opts Options) (*gorm.DB, *redis.Client, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("database connection failed: %w", err)
	}

	cache.InitRedis(cfg.RedisURL)
	r := cache.GetClient()

	if opts.SeedDevData {
		if cfg.IsProduction() {
			return nil, nil, fmt.Errorf("refusing to seed development data in %s", cfg.Env)
		}
		if _, err := seed.Run(context.Background(), db, seed.Options{}); err != nil {
			return nil, nil, fmt.Errorf("failed to seed development data: %w", err)
		}
	}

	return db, r, nil
}

// InitTracing starts the OpenTelemetry provider described by cfg.
// The returned shutdown func is always safe to call.
func InitTracing(cfg *config.Config, version string) func(context.Context) error {
	shutdown, err := observability.InitTracing(observability.TracingConfig{
		ServiceName:    serviceName,
		ServiceVersion: version,
		Environment:    cfg.Env,
		Enabled:        cfg.TracingEnabled,
		Exporter:       cfg.TracingExporter,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SamplerRatio:   cfg.TracingSampleRatio,
	})
	if err != nil {
		middleware.Logger.Warn("tracing disabled", slog.String("error", err.Error()))
		return func(context.Context) error { return nil }
	}
	return shutdown
}
