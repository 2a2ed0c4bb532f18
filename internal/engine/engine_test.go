package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"signal-trading-engine/internal/circuit"
	"signal-trading-engine/internal/exchange"
	"signal-trading-engine/internal/logging"
	"signal-trading-engine/internal/risk"
	"signal-trading-engine/internal/scoring"
)

// fakeExchange counts every call so tests can assert the engine never
// touched the exchange on early exits.
type fakeExchange struct {
	barCalls      int
	klineCalls    int
	leverageCalls int
	placeCalls    int

	bar       *exchange.Bar
	barErr    error
	placeErr  error
	reject    bool
	rejectMsg string

	lastParams exchange.OrderParams
}

func (f *fakeExchange) GetLatestBar(ctx context.Context, symbol, timeframe string) (*exchange.Bar, error) {
	f.barCalls++
	return f.bar, f.barErr
}

func (f *fakeExchange) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]exchange.Bar, error) {
	f.klineCalls++
	return nil, nil
}

func (f *fakeExchange) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	f.leverageCalls++
	return nil
}

func (f *fakeExchange) PlaceOrder(ctx context.Context, params exchange.OrderParams) (*exchange.OrderResult, error) {
	f.placeCalls++
	f.lastParams = params
	if f.placeErr != nil {
		return nil, f.placeErr
	}
	if f.reject {
		return &exchange.OrderResult{
			Symbol: params.Symbol, Side: params.Side,
			Status: exchange.OrderStatusRejected,
			Error:  f.rejectMsg,
		}, nil
	}
	return &exchange.OrderResult{
		OrderID: 42, Symbol: params.Symbol, Side: params.Side,
		Status: exchange.OrderStatusFilled,
		Quantity: params.Quantity, Price: 100.0,
		Timestamp: time.Now(),
	}, nil
}

func (f *fakeExchange) totalCalls() int {
	return f.barCalls + f.klineCalls + f.leverageCalls + f.placeCalls
}

type fakeStore struct {
	saved []*exchange.OrderResult
	err   error
}

func (s *fakeStore) SaveOrder(ctx context.Context, order *exchange.OrderResult) error {
	if s.err != nil {
		return s.err
	}
	s.saved = append(s.saved, order)
	return nil
}

func quietLogger() *logging.Logger {
	return logging.New(&logging.Config{Level: "FATAL", Output: "stderr"})
}

func newTestEngine(ex *fakeExchange, store OrderStore, riskCfg risk.Config) *Engine {
	guard := risk.NewGuard(riskCfg, quietLogger())
	return New(ex, ex, guard, store, nil, quietLogger(), Config{Timeframe: "5m", TradeSizeUSDT: 100})
}

func buySignal() Signal {
	return Signal{
		Source: SourceManual, Symbol: "BTCUSDT",
		Action: scoring.ActionBuy, Confidence: 0.8, Score: 0.7,
		Timestamp: time.Now(),
	}
}

func TestExecuteSignalHoldNeverTouchesExchange(t *testing.T) {
	ex := &fakeExchange{}
	e := newTestEngine(ex, nil, risk.Config{})

	sig := buySignal()
	sig.Action = scoring.ActionHold
	res := e.ExecuteSignal(context.Background(), sig, 0)

	if res.Executed {
		t.Error("hold signal must not execute")
	}
	if res.Reason != "Signal action is HOLD" {
		t.Errorf("reason = %q", res.Reason)
	}
	if ex.totalCalls() != 0 {
		t.Errorf("exchange touched %d times on a HOLD signal", ex.totalCalls())
	}
}

func TestExecuteSignalRiskDeniedNeverTouchesExchange(t *testing.T) {
	ex := &fakeExchange{}
	e := newTestEngine(ex, nil, risk.Config{DeniedSymbols: []string{"BTCUSDT"}})

	res := e.ExecuteSignal(context.Background(), buySignal(), 0)

	if res.Executed {
		t.Error("denied signal must not execute")
	}
	if !strings.HasPrefix(res.Reason, "blocked-by-risk-guard: ") {
		t.Errorf("reason = %q", res.Reason)
	}
	if !strings.Contains(res.Reason, "symbol-denylisted: BTCUSDT") {
		t.Errorf("reason should carry the guard's reason, got %q", res.Reason)
	}
	if ex.totalCalls() != 0 {
		t.Errorf("exchange touched %d times on a denied signal", ex.totalCalls())
	}
}

func TestExecuteSignalNoMarketData(t *testing.T) {
	ex := &fakeExchange{bar: nil}
	e := newTestEngine(ex, nil, risk.Config{})

	res := e.ExecuteSignal(context.Background(), buySignal(), 0)

	if res.Executed {
		t.Error("must not execute without market data")
	}
	if res.Reason != "Market data unavailable for symbol" {
		t.Errorf("reason = %q", res.Reason)
	}
	if ex.placeCalls != 0 {
		t.Error("no order may be placed without a price")
	}
}

func TestExecuteSignalPlacementFailure(t *testing.T) {
	ex := &fakeExchange{
		bar:      &exchange.Bar{Close: 100.0},
		placeErr: errors.New("connection reset"),
	}
	e := newTestEngine(ex, nil, risk.Config{})

	res := e.ExecuteSignal(context.Background(), buySignal(), 0)

	if res.Executed {
		t.Error("transport failure must not count as executed")
	}
	if res.Reason != "Order placement failed: connection reset" {
		t.Errorf("reason = %q", res.Reason)
	}
	if res.Order != nil {
		t.Error("no order result exists on a transport failure")
	}
}

func TestExecuteSignalRejectedPreservesOrder(t *testing.T) {
	ex := &fakeExchange{
		bar:       &exchange.Bar{Close: 100.0},
		reject:    true,
		rejectMsg: "code -2019: Margin is insufficient",
	}
	e := newTestEngine(ex, nil, risk.Config{})

	res := e.ExecuteSignal(context.Background(), buySignal(), 0)

	if res.Executed {
		t.Error("rejected order must not count as executed")
	}
	if res.Reason != "Order rejected: code -2019: Margin is insufficient" {
		t.Errorf("reason = %q", res.Reason)
	}
	if res.Order == nil || res.Order.Status != exchange.OrderStatusRejected {
		t.Error("rejected order result must be preserved for diagnosis")
	}
}

func TestExecuteSignalConfirmedFill(t *testing.T) {
	ex := &fakeExchange{bar: &exchange.Bar{Close: 100.0}}
	store := &fakeStore{}
	e := newTestEngine(ex, store, risk.Config{})

	res := e.ExecuteSignal(context.Background(), buySignal(), 0)

	if !res.Executed {
		t.Fatalf("expected execution, reason = %q", res.Reason)
	}
	if res.Order == nil || res.Order.OrderID != 42 {
		t.Error("confirmed order must be returned")
	}
	// 100 USDT at 100.0 is one unit.
	if res.Order.Quantity != 1.0 {
		t.Errorf("quantity = %v, want 1.0", res.Order.Quantity)
	}
	if len(store.saved) != 1 {
		t.Errorf("saved %d orders, want 1", len(store.saved))
	}
	if e.guard.TotalExposure() != 100.0 {
		t.Errorf("exposure = %v, want 100", e.guard.TotalExposure())
	}
}

func TestExecuteSignalPersistenceFailureKeepsHonesty(t *testing.T) {
	ex := &fakeExchange{bar: &exchange.Bar{Close: 100.0}}
	store := &fakeStore{err: errors.New("db down")}
	e := newTestEngine(ex, store, risk.Config{})

	res := e.ExecuteSignal(context.Background(), buySignal(), 0)

	// The exchange confirmed, so the result says executed even though
	// local persistence failed.
	if !res.Executed {
		t.Errorf("persistence failure must not flip the outcome, reason = %q", res.Reason)
	}
}

func TestExecuteSignalFailuresTripBreaker(t *testing.T) {
	ex := &fakeExchange{
		bar:      &exchange.Bar{Close: 100.0},
		placeErr: errors.New("timeout"),
	}
	e := newTestEngine(ex, nil, risk.Config{
		Breaker: circuit.BreakerConfig{Enabled: true, MaxConsecutiveFailures: 2, CooldownMinutes: 15},
	})

	for i := 0; i < 2; i++ {
		e.ExecuteSignal(context.Background(), buySignal(), 0)
	}

	res := e.ExecuteSignal(context.Background(), buySignal(), 0)
	if !strings.Contains(res.Reason, "circuit-breaker-open") {
		t.Errorf("expected breaker to block after repeated failures, got %q", res.Reason)
	}
}

func TestExecuteSignalPerCallQuantityOverride(t *testing.T) {
	ex := &fakeExchange{bar: &exchange.Bar{Close: 100.0}}
	e := newTestEngine(ex, nil, risk.Config{})

	res := e.ExecuteSignal(context.Background(), buySignal(), 50)

	if !res.Executed {
		t.Fatalf("expected execution, reason = %q", res.Reason)
	}
	// 50 USDT at 100.0 is half a unit, overriding the configured 100.
	if res.Order.Quantity != 0.5 {
		t.Errorf("quantity = %v, want 0.5", res.Order.Quantity)
	}
	if e.guard.TotalExposure() != 50.0 {
		t.Errorf("exposure = %v, want 50", e.guard.TotalExposure())
	}
}

func TestExecuteSignalPerCallQuantityRiskDenied(t *testing.T) {
	ex := &fakeExchange{}
	e := newTestEngine(ex, nil, risk.Config{MaxPositionUSDT: 500})

	res := e.ExecuteSignal(context.Background(), buySignal(), 10000)

	if res.Executed {
		t.Error("oversized per-call quantity must be denied")
	}
	if !strings.Contains(res.Reason, "per-trade-cap-exceeded") {
		t.Errorf("reason = %q", res.Reason)
	}
	if ex.totalCalls() != 0 {
		t.Errorf("exchange touched %d times on a denied signal", ex.totalCalls())
	}
}

func TestExecuteSignalSetsClientOrderID(t *testing.T) {
	ex := &fakeExchange{bar: &exchange.Bar{Close: 100.0}}
	e := newTestEngine(ex, nil, risk.Config{})

	e.ExecuteSignal(context.Background(), buySignal(), 0)

	if ex.lastParams.ClientOrderID == "" {
		t.Fatal("client order ID must be set on placement")
	}
	if len(ex.lastParams.ClientOrderID) != 36 {
		t.Errorf("client order ID = %q, want a UUID", ex.lastParams.ClientOrderID)
	}
}

func TestExecuteSignalSellSide(t *testing.T) {
	ex := &fakeExchange{bar: &exchange.Bar{Close: 50.0}}
	e := newTestEngine(ex, nil, risk.Config{})

	sig := buySignal()
	sig.Action = scoring.ActionSell
	res := e.ExecuteSignal(context.Background(), sig, 0)

	if !res.Executed {
		t.Fatalf("expected execution, reason = %q", res.Reason)
	}
	if res.Order.Side != exchange.SideSell {
		t.Errorf("side = %v, want SELL", res.Order.Side)
	}
}
