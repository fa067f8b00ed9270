package ratelimit

import (
	"github.com/lumenfoto/fotoaccess/config"
	"github.com/lumenfoto/fotoaccess/services/audit"
	"github.com/lumenfoto/fotoaccess/services/logging"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Options(
	fx.Provide(ProvideStore),
	fx.Provide(ProvideTracker),
	fx.Provide(ProvideLimiter),
)

func ProvideStore(cfg *config.Config, logger *logging.Service) Store {
	switch cfg.RateLimit.Store {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})

		logger.Info("using redis rate-limit store", zap.String("addr", cfg.Redis.Addr))
		return NewRedisStore(client, cfg.RateLimit.IdleEviction*2)
	case "memory":
		fallthrough
	default:
		return NewMemoryStoreWithOptions(cfg.RateLimit.SweepInterval, cfg.RateLimit.IdleEviction)
	}
}

func ProvideTracker() *Tracker {
	return NewTracker()
}

func ProvideLimiter(cfg *config.Config, store Store, tracker *Tracker, auditSvc *audit.Service, logger *logging.Service) (*Limiter, error) {
	profiles, err := LoadProfiles(cfg.RateLimit.ProfilesFile)
	if err != nil {
		return nil, err
	}

	return NewLimiterWithProfiles(store, tracker, auditSvc, logger, profiles), nil
}
