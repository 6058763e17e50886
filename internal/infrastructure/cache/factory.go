package cache

import (
	"fmt"
	"sync"

	"github.com/erp/salesrecon/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Factory builds the caches selected by cache.driver and owns the shared Redis client
type Factory struct {
	cacheCfg              config.CacheConfig
	redisCfg              config.RedisConfig
	reportCfg             config.ReportConfig
	logger                *zap.Logger
	allowInMemoryFallback bool

	mu     sync.Mutex
	client *redis.Client
}

// FactoryOption configures a Factory
type FactoryOption func(*Factory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) FactoryOption {
	return func(f *Factory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether an unreachable Redis degrades to
// in-memory caches. Default is true.
func WithInMemoryFallback(allow bool) FactoryOption {
	return func(f *Factory) {
		f.allowInMemoryFallback = allow
	}
}

// NewFactory creates a Factory from configuration
func NewFactory(cfg *config.Config, opts ...FactoryOption) *Factory {
	f := &Factory{
		cacheCfg:              cfg.Cache,
		redisCfg:              cfg.Redis,
		reportCfg:             cfg.Report,
		logger:                zap.NewNop(),
		allowInMemoryFallback: true,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// redis returns the shared client, nil when the memory driver is selected
// or Redis is down and fallback is allowed
func (f *Factory) redis() (*redis.Client, error) {
	if f.cacheCfg.Driver != "redis" {
		return nil, nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.client != nil {
		return f.client, nil
	}

	client, err := NewRedisClient(f.redisCfg)
	if err != nil {
		if !f.allowInMemoryFallback {
			return nil, fmt.Errorf("redis required for cache.driver=redis but unavailable: %w", err)
		}
		f.logger.Warn("Redis unavailable, falling back to in-memory caches. "+
			"Close sessions will not be shared between instances.",
			zap.Error(err),
		)
		return nil, nil
	}
	f.client = client
	return client, nil
}

// WatchDetailCache returns the watch-detail cache for the configured driver
func (f *Factory) WatchDetailCache() (WatchDetailCache, error) {
	client, err := f.redis()
	if err != nil {
		return nil, err
	}
	if client != nil {
		f.logger.Info("using Redis watch detail cache")
		return NewRedisWatchDetailCacheWithClient(client, f.redisCfg.KeyPrefix, f.reportCfg.WatchCacheTTL), nil
	}
	return NewInMemoryWatchDetailCache(f.reportCfg.WatchCacheTTL), nil
}

// SessionStore returns the close-session store for the configured driver
func (f *Factory) SessionStore() (SessionStore, error) {
	client, err := f.redis()
	if err != nil {
		return nil, err
	}
	if client != nil {
		f.logger.Info("using Redis close session store")
		return NewRedisSessionStoreWithClient(client, f.redisCfg.KeyPrefix, f.reportCfg.SessionTTL), nil
	}
	return NewInMemorySessionStore(f.reportCfg.SessionTTL), nil
}

// Close releases the shared Redis client
func (f *Factory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.client == nil {
		return nil
	}
	err := f.client.Close()
	f.client = nil
	return err
}
