// Package cache provides a Redis-backed market data cache with
// graceful degradation. When Redis is unavailable, reads pass straight
// through to the exchange.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"signal-trading-engine/internal/exchange"
	"signal-trading-engine/internal/logging"
)

// Key layout
const (
	keyLatestBar = "market:%s:%s:latest_bar" // symbol, timeframe
	keyPrice     = "market:%s:price"         // symbol
)

// Default TTLs
const (
	DefaultBarTTL   = 30 * time.Second
	DefaultPriceTTL = 5 * time.Second
)

// PriceSource serves live ticker prices behind the cache
type PriceSource interface {
	GetPrice(ctx context.Context, symbol string) (float64, error)
}

// Config holds Redis connection settings
type Config struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

// MarketCache decorates a market data source with a Redis read-through
// cache. A Redis outage flips the service into degraded mode where
// every read goes to the underlying source; a background ping brings
// it back.
type MarketCache struct {
	client *redis.Client
	source exchange.MarketDataSource
	prices PriceSource
	logger *logging.Logger

	mu           sync.RWMutex
	healthy      bool
	failureCount int
	lastCheck    time.Time

	maxFailures   int
	checkInterval time.Duration

	barTTL   time.Duration
	priceTTL time.Duration
}

// NewMarketCache creates a cache over the given source. prices may be
// nil when no ticker source is available. A failed initial connection
// is not an error; the cache starts degraded.
func NewMarketCache(cfg Config, source exchange.MarketDataSource, prices PriceSource, logger *logging.Logger) (*MarketCache, error) {
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

	mc := &MarketCache{
		client:        client,
		source:        source,
		prices:        prices,
		logger:        logger,
		maxFailures:   3,
		checkInterval: 30 * time.Second,
		barTTL:        DefaultBarTTL,
		priceTTL:      DefaultPriceTTL,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("initial Redis connection failed, starting degraded", "error", err)
		return mc, nil
	}

	mc.healthy = true
	mc.lastCheck = time.Now()
	logger.Info("Redis market cache connected", "address", cfg.Address)

	return mc, nil
}

// IsHealthy reports whether Redis is currently usable
func (mc *MarketCache) IsHealthy() bool {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return mc.healthy
}

func (mc *MarketCache) recordFailure() {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.failureCount++
	if mc.failureCount >= mc.maxFailures {
		if mc.healthy {
			mc.logger.Warn("Redis marked unhealthy, passing reads through",
				"failures", mc.failureCount)
		}
		mc.healthy = false
	}
}

func (mc *MarketCache) recordSuccess() {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if !mc.healthy {
		mc.logger.Info("Redis recovered, cache re-enabled")
	}
	mc.healthy = true
	mc.failureCount = 0
	mc.lastCheck = time.Now()
}

// checkHealth schedules a background ping when degraded long enough
func (mc *MarketCache) checkHealth() {
	mc.mu.RLock()
	shouldCheck := !mc.healthy && time.Since(mc.lastCheck) >= mc.checkInterval
	mc.mu.RUnlock()

	if !shouldCheck {
		return
	}

	mc.mu.Lock()
	mc.lastCheck = time.Now()
	mc.mu.Unlock()

	go func() {
		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		if err := mc.client.Ping(pingCtx).Err(); err == nil {
			mc.recordSuccess()
		}
	}()
}

// GetLatestBar serves the cached bar when fresh, otherwise reads the
// source and caches the result.
func (mc *MarketCache) GetLatestBar(ctx context.Context, symbol, timeframe string) (*exchange.Bar, error) {
	mc.checkHealth()
	key := fmt.Sprintf(keyLatestBar, symbol, timeframe)

	if mc.IsHealthy() {
		data, err := mc.client.Get(ctx, key).Result()
		if err == nil {
			var bar exchange.Bar
			if jsonErr := json.Unmarshal([]byte(data), &bar); jsonErr == nil {
				mc.recordSuccess()
				return &bar, nil
			}
		} else if err != redis.Nil {
			mc.recordFailure()
		}
	}

	bar, err := mc.source.GetLatestBar(ctx, symbol, timeframe)
	if err != nil || bar == nil {
		return bar, err
	}

	if mc.IsHealthy() {
		if data, jsonErr := json.Marshal(bar); jsonErr == nil {
			if err := mc.client.Set(ctx, key, data, mc.barTTL).Err(); err != nil {
				mc.recordFailure()
			}
		}
	}

	return bar, nil
}

// GetKlines always reads the source; historical windows are cheap to
// fetch and expensive to keep coherent.
func (mc *MarketCache) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]exchange.Bar, error) {
	return mc.source.GetKlines(ctx, symbol, interval, limit)
}

// CachePrice stores a ticker price with a short TTL
func (mc *MarketCache) CachePrice(ctx context.Context, symbol string, price float64) {
	if !mc.IsHealthy() {
		return
	}
	key := fmt.Sprintf(keyPrice, symbol)
	if err := mc.client.Set(ctx, key, price, mc.priceTTL).Err(); err != nil {
		mc.recordFailure()
	}
}

// GetCachedPrice reads a ticker price; redis.Nil means a miss
func (mc *MarketCache) GetCachedPrice(ctx context.Context, symbol string) (float64, error) {
	if !mc.IsHealthy() {
		return 0, fmt.Errorf("redis unavailable")
	}
	key := fmt.Sprintf(keyPrice, symbol)
	price, err := mc.client.Get(ctx, key).Float64()
	if err != nil {
		if err != redis.Nil {
			mc.recordFailure()
		}
		return 0, err
	}
	mc.recordSuccess()
	return price, nil
}

// GetPrice serves a recent ticker price, reading through to the
// underlying price source on a miss.
func (mc *MarketCache) GetPrice(ctx context.Context, symbol string) (float64, error) {
	mc.checkHealth()

	if price, err := mc.GetCachedPrice(ctx, symbol); err == nil {
		return price, nil
	}

	if mc.prices == nil {
		return 0, fmt.Errorf("no price source for %s", symbol)
	}

	price, err := mc.prices.GetPrice(ctx, symbol)
	if err != nil {
		return 0, err
	}
	mc.CachePrice(ctx, symbol, price)
	return price, nil
}

// Close releases the Redis connection
func (mc *MarketCache) Close() error {
	return mc.client.Close()
}
