package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"signal-trading-engine/internal/exchange"
	"signal-trading-engine/internal/logging"
)

func quietLogger() *logging.Logger {
	return logging.New(&logging.Config{Level: "FATAL", Output: "stderr"})
}

// degradedCache builds a cache already in degraded mode so tests run
// without a Redis server.
func degradedCache(source exchange.MarketDataSource, prices PriceSource) *MarketCache {
	return &MarketCache{
		client:        redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"}),
		source:        source,
		prices:        prices,
		logger:        quietLogger(),
		healthy:       false,
		lastCheck:     time.Now(),
		maxFailures:   3,
		checkInterval: time.Hour,
		barTTL:        DefaultBarTTL,
		priceTTL:      DefaultPriceTTL,
	}
}

func TestDegradedCachePassesThrough(t *testing.T) {
	source := exchange.NewMockClient()
	source.SetBars("BTCUSDT", []exchange.Bar{{Close: 123.45, Timestamp: time.Now()}})
	mc := degradedCache(source, nil)

	bar, err := mc.GetLatestBar(context.Background(), "BTCUSDT", "5m")
	if err != nil {
		t.Fatalf("pass-through read failed: %v", err)
	}
	if bar == nil || bar.Close != 123.45 {
		t.Errorf("bar = %+v, want source bar", bar)
	}
}

func TestDegradedCacheAbsentSymbol(t *testing.T) {
	source := exchange.NewMockClient()
	source.NoMarketData = true
	mc := degradedCache(source, nil)

	bar, err := mc.GetLatestBar(context.Background(), "ETHUSDT", "5m")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bar != nil {
		t.Errorf("bar = %+v, want nil for absent symbol", bar)
	}
}

func TestRecordFailureOpensAfterThreshold(t *testing.T) {
	mc := degradedCache(exchange.NewMockClient(), nil)
	mc.healthy = true

	mc.recordFailure()
	mc.recordFailure()
	if !mc.IsHealthy() {
		t.Fatal("should stay healthy below the threshold")
	}
	mc.recordFailure()
	if mc.IsHealthy() {
		t.Error("should degrade at the failure threshold")
	}

	mc.recordSuccess()
	if !mc.IsHealthy() {
		t.Error("a success must restore healthy state")
	}
}

func TestDisabledConfigIsAnError(t *testing.T) {
	mock := exchange.NewMockClient()
	_, err := NewMarketCache(Config{Enabled: false}, mock, mock, quietLogger())
	if err == nil {
		t.Error("disabled Redis config must be rejected")
	}
}

func TestDegradedGetPriceReadsThrough(t *testing.T) {
	mock := exchange.NewMockClient()
	mock.SetBars("BTCUSDT", []exchange.Bar{{Close: 64250.5, Timestamp: time.Now()}})
	mc := degradedCache(mock, mock)

	price, err := mc.GetPrice(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("pass-through price failed: %v", err)
	}
	if price <= 0 {
		t.Errorf("price = %v, want positive", price)
	}
}

func TestDegradedGetPriceWithoutSource(t *testing.T) {
	mc := degradedCache(exchange.NewMockClient(), nil)

	if _, err := mc.GetPrice(context.Background(), "BTCUSDT"); err == nil {
		t.Error("no price source and no cache must be an error")
	}
}
