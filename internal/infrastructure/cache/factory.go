package cache

import (
	"fmt"

	"github.com/coccinelle/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

// LockerFactory creates lockers based on configuration
type LockerFactory struct {
	redisConfig           config.RedisConfig
	logger                *zap.Logger
	allowInMemoryFallback bool
}

// LockerFactoryOption is a functional option for configuring the factory
type LockerFactoryOption func(*LockerFactory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) LockerFactoryOption {
	return func(f *LockerFactory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether to fall back to an in-process lock when Redis is unavailable.
// Default is true.
func WithInMemoryFallback(allow bool) LockerFactoryOption {
	return func(f *LockerFactory) {
		f.allowInMemoryFallback = allow
	}
}

// NewLockerFactory creates a new factory
func NewLockerFactory(cfg config.RedisConfig, opts ...LockerFactoryOption) *LockerFactory {
	f := &LockerFactory{
		redisConfig:           cfg,
		logger:                zap.NewNop(),
		allowInMemoryFallback: true,
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// CreateLocker returns a RedisLocker when Redis is enabled and reachable,
// and a LocalLocker otherwise (if fallback is allowed).
func (f *LockerFactory) CreateLocker() (Locker, error) {
	if !f.redisConfig.Enabled {
		f.logger.Info("Redis disabled, using in-process leader lock")
		return NewLocalLocker(), nil
	}

	locker, err := NewRedisLocker(RedisConfig{
		Host:     f.redisConfig.Host,
		Port:     f.redisConfig.Port,
		Password: f.redisConfig.Password,
		DB:       f.redisConfig.DB,
	})
	if err == nil {
		f.logger.Info("using Redis leader lock", zap.String("addr", f.redisConfig.Addr()))
		return locker, nil
	}

	if !f.allowInMemoryFallback {
		return nil, fmt.Errorf("Redis required for leader lock but unavailable: %w", err)
	}

	f.logger.Warn("Redis unavailable, falling back to in-process leader lock. "+
		"Sweeps on different instances will not be serialized.",
		zap.Error(err),
	)
	return NewLocalLocker(), nil
}
