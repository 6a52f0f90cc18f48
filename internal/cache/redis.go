package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"dai-trader/config"
	"dai-trader/internal/logging"
)

// Key layouts
const (
	PrefixSignal  = "%s:signal:%s:%s" // prefix, source, symbol
	PrefixContext = "%s:context:%s"   // prefix, kind
)

// SignalKey builds the cache key of one source's signal for a symbol.
func SignalKey(prefix, source, symbol string) string {
	return fmt.Sprintf(PrefixSignal, prefix, source, symbol)
}

// ContextKey builds the cache key of a global context record.
func ContextKey(prefix, kind string) string {
	return fmt.Sprintf(PrefixContext, prefix, kind)
}

// RedisCache is a Redis-backed Cache with graceful degradation. After
// maxFailures consecutive errors it stops calling Redis and reports misses
// until a background ping succeeds.
type RedisCache struct {
	client       *redis.Client
	config       config.RedisConfig
	logger       *logging.Logger
	mu           sync.RWMutex
	healthy      bool
	failureCount int
	lastCheck    time.Time

	maxFailures   int
	checkInterval time.Duration
}

// NewRedis connects to Redis. An unreachable server is not an error: the
// cache starts degraded and recovers on its own.
func NewRedis(cfg config.RedisConfig) (*RedisCache, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("redis is not enabled in configuration")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	rc := &RedisCache{
		client:        client,
		config:        cfg,
		logger:        logging.WithComponent("cache"),
		maxFailures:   3,
		checkInterval: 30 * time.Second,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		rc.logger.Warn("initial redis connection failed, running degraded", "address", cfg.Address, "error", err)
		return rc, nil
	}

	rc.healthy = true
	rc.lastCheck = time.Now()
	rc.logger.Info("redis connected", "address", cfg.Address)
	return rc, nil
}

// IsHealthy returns whether Redis is currently used.
func (rc *RedisCache) IsHealthy() bool {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return rc.healthy
}

func (rc *RedisCache) recordFailure(err error) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	rc.failureCount++
	if rc.failureCount >= rc.maxFailures {
		if rc.healthy {
			rc.logger.Warn("redis marked unhealthy", "failures", rc.failureCount, "error", err)
		}
		rc.healthy = false
	}
}

func (rc *RedisCache) recordSuccess() {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if !rc.healthy {
		rc.logger.Info("redis recovered")
	}
	rc.healthy = true
	rc.failureCount = 0
	rc.lastCheck = time.Now()
}

// checkHealth pings in the background once checkInterval has passed since
// the last success.
func (rc *RedisCache) checkHealth() {
	rc.mu.RLock()
	shouldCheck := !rc.healthy && time.Since(rc.lastCheck) >= rc.checkInterval
	rc.mu.RUnlock()

	if !shouldCheck {
		return
	}

	rc.mu.Lock()
	rc.lastCheck = time.Now()
	rc.mu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := rc.client.Ping(ctx).Err(); err == nil {
			rc.recordSuccess()
		}
	}()
}

// Get implements Cache.
func (rc *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	rc.checkHealth()
	if !rc.IsHealthy() {
		return nil, false
	}

	val, err := rc.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			rc.recordFailure(err)
		}
		return nil, false
	}
	rc.recordSuccess()
	return val, true
}

// Set implements Cache. Failures are counted and otherwise ignored.
func (rc *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	rc.checkHealth()
	if !rc.IsHealthy() {
		return
	}
	if err := rc.client.Set(ctx, key, value, ttl).Err(); err != nil {
		rc.recordFailure(err)
		return
	}
	rc.recordSuccess()
}

// Delete removes a key.
func (rc *RedisCache) Delete(ctx context.Context, key string) error {
	if err := rc.client.Del(ctx, key).Err(); err != nil {
		rc.recordFailure(err)
		return fmt.Errorf("redis delete failed: %w", err)
	}
	rc.recordSuccess()
	return nil
}

// Ping checks Redis connectivity.
func (rc *RedisCache) Ping(ctx context.Context) error {
	if err := rc.client.Ping(ctx).Err(); err != nil {
		rc.recordFailure(err)
		return err
	}
	rc.recordSuccess()
	return nil
}

// Client exposes the connection for the state store, which shares it.
func (rc *RedisCache) Client() *redis.Client {
	return rc.client
}

// Close closes the Redis connection.
func (rc *RedisCache) Close() error {
	if rc.client != nil {
		return rc.client.Close()
	}
	return nil
}

// Stats reports cache health for the status API.
type Stats struct {
	Healthy      bool   `json:"healthy"`
	FailureCount int    `json:"failure_count"`
	Address      string `json:"address"`
	PoolSize     int    `json:"pool_size"`
}

// Stats returns current cache statistics.
func (rc *RedisCache) Stats() Stats {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return Stats{
		Healthy:      rc.healthy,
		FailureCount: rc.failureCount,
		Address:      rc.config.Address,
		PoolSize:     rc.config.PoolSize,
	}
}
