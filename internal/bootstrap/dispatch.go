package bootstrap

import (
	"postpilot/internal/config"
	"postpilot/internal/dispatch"
	"postpilot/internal/featureflags"
	"postpilot/internal/gateway"
	"postpilot/internal/middleware"
	"postpilot/internal/notifications"
	"postpilot/internal/repository"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Deps are the collaborators NewDispatcher builds on. Nil fields get defaults.
type Deps struct {
	Poster   gateway.Poster
	Notifier *notifications.Notifier
	Flags    *featureflags.Manager
}

// NewDispatcher builds the dispatcher the HTTP service, the worker and cmd/sweep share.
func NewDispatcher(cfg *config.Config, db *gorm.DB, rdb *redis.Client, deps Deps) *dispatch.Dispatcher {
	poster := deps.Poster
	if poster == nil {
		poster = gateway.NewClient(cfg.AyrshareBaseURL, cfg.AyrshareAPIKey, cfg.GatewayTimeout)
	}
	flags := deps.Flags
	if flags == nil {
		flags = featureflags.NewManager(cfg.FeatureFlags)
	}

	opts := []dispatch.Option{
		dispatch.WithBatchSize(cfg.DispatchBatchSize),
		dispatch.WithCeiling(cfg.DispatchMaxRetries),
		dispatch.WithPacer(dispatch.FixedPacer{Delay: cfg.DispatchDelay}),
		dispatch.WithLocker(dispatch.NewLocker(rdb, cfg.DispatchLockTTL)),
		dispatch.WithFlags(flags),
		dispatch.WithLogger(middleware.Logger),
	}
	if deps.Notifier != nil {
		opts = append(opts, dispatch.WithNotifier(deps.Notifier))
	}

	return dispatch.NewDispatcher(
		repository.NewPostRepository(db),
		repository.NewAccountRepository(db),
		repository.NewAttemptRepository(db),
		poster,
		opts...,
	)
}
