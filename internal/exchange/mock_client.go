package exchange

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// MockClient is an in-memory Client for dry-run mode and tests. Prices
// come from a pluggable provider; behavior knobs inject failures.
type MockClient struct {
	mu            sync.Mutex
	priceProvider func(symbol string) float64
	bars          map[string][]Bar
	orders        []OrderResult
	nextOrderID   int64
	leverage      map[string]int

	// Failure injection
	PlaceOrderErr error
	RejectOrders  bool
	RejectReason  string
	NoMarketData  bool
}

// NewMockClient creates a mock exchange with a flat default price
func NewMockClient() *MockClient {
	return &MockClient{
		priceProvider: func(string) float64 { return 100.0 },
		bars:          make(map[string][]Bar),
		leverage:      make(map[string]int),
	}
}

// SetPriceProvider plugs in a custom price source
func (m *MockClient) SetPriceProvider(fn func(symbol string) float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.priceProvider = fn
}

// SetBars seeds candles for a symbol
func (m *MockClient) SetBars(symbol string, bars []Bar) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bars[symbol] = bars
}

// GetLatestBar returns the last seeded bar, or a synthetic one from
// the price provider when none are seeded.
func (m *MockClient) GetLatestBar(ctx context.Context, symbol, timeframe string) (*Bar, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.NoMarketData {
		return nil, nil
	}
	if bars, ok := m.bars[symbol]; ok && len(bars) > 0 {
		b := bars[len(bars)-1]
		return &b, nil
	}
	price := m.priceProvider(symbol)
	return &Bar{
		Open: price, High: price, Low: price, Close: price,
		Volume:    1000,
		Timestamp: time.Now().UTC(),
	}, nil
}

// GetKlines returns seeded candles, trimmed to limit
func (m *MockClient) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]Bar, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.NoMarketData {
		return nil, nil
	}
	bars := m.bars[symbol]
	if limit > 0 && len(bars) > limit {
		bars = bars[len(bars)-limit:]
	}
	out := make([]Bar, len(bars))
	copy(out, bars)
	return out, nil
}

// GetPrice returns the provider's price
func (m *MockClient) GetPrice(ctx context.Context, symbol string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.priceProvider(symbol), nil
}

// SetLeverage records the requested leverage
func (m *MockClient) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leverage[symbol] = leverage
	return nil
}

// PlaceOrder simulates an immediate fill at the provider price, or a
// rejection/error per the injection knobs.
func (m *MockClient) PlaceOrder(ctx context.Context, params OrderParams) (*OrderResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.PlaceOrderErr != nil {
		return nil, m.PlaceOrderErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.RejectOrders {
		reason := m.RejectReason
		if reason == "" {
			reason = "insufficient margin"
		}
		result := OrderResult{
			ClientOrderID: params.ClientOrderID,
			Symbol:        params.Symbol,
			Side:          params.Side,
			Status:        OrderStatusRejected,
			Quantity:      params.Quantity,
			Timestamp:     time.Now().UTC(),
			Error:         reason,
		}
		m.orders = append(m.orders, result)
		return &result, nil
	}

	price := m.priceProvider(params.Symbol)
	if params.Type == OrderTypeLimit && params.Price > 0 {
		price = params.Price
	}
	if price <= 0 || math.IsNaN(price) {
		return nil, fmt.Errorf("mock price unavailable for %s", params.Symbol)
	}

	result := OrderResult{
		OrderID:       atomic.AddInt64(&m.nextOrderID, 1),
		ClientOrderID: params.ClientOrderID,
		Symbol:        params.Symbol,
		Side:          params.Side,
		Status:        OrderStatusFilled,
		Quantity:      params.Quantity,
		Price:         price,
		Timestamp:     time.Now().UTC(),
	}
	m.orders = append(m.orders, result)
	return &result, nil
}

// Orders returns all orders seen by the mock
func (m *MockClient) Orders() []OrderResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]OrderResult, len(m.orders))
	copy(out, m.orders)
	return out
}

// Leverage returns the last leverage set for a symbol
func (m *MockClient) Leverage(symbol string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.leverage[symbol]
}
