package cache

import (
	"fmt"

	"go.uber.org/zap"
)

// Backend names accepted by NewStore
const (
	BackendNone   = "none"
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// FactoryOption configures NewStore
type FactoryOption func(*factory)

type factory struct {
	logger                *zap.Logger
	allowInMemoryFallback bool
}

// WithLogger sets the logger used to report the chosen backend
func WithLogger(logger *zap.Logger) FactoryOption {
	return func(f *factory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether an unreachable Redis falls back to
// memory. Default is true.
func WithInMemoryFallback(allow bool) FactoryOption {
	return func(f *factory) {
		f.allowInMemoryFallback = allow
	}
}

// NewStore creates the store for backend
func NewStore(backend string, redisCfg RedisConfig, opts ...FactoryOption) (Store, error) {
	f := &factory{logger: zap.NewNop(), allowInMemoryFallback: true}
	for _, opt := range opts {
		opt(f)
	}

	switch backend {
	case BackendNone:
		f.logger.Info("Preview cache disabled")
		return NopStore{}, nil
	case BackendMemory, "":
		f.logger.Info("Using in-memory preview cache")
		return NewInMemoryStore(), nil
	case BackendRedis:
		store, err := NewRedisStore(redisCfg)
		if err == nil {
			f.logger.Info("Using Redis preview cache", zap.String("addr", redisCfg.Addr))
			return store, nil
		}
		if !f.allowInMemoryFallback {
			return nil, fmt.Errorf("redis cache unavailable: %w", err)
		}
		f.logger.Warn("Redis unavailable, falling back to in-memory cache", zap.Error(err))
		return NewInMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", backend)
	}
}
