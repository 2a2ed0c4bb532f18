package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"signal-trading-engine/internal/combiner"
	"signal-trading-engine/internal/detectors"
	"signal-trading-engine/internal/engine"
	"signal-trading-engine/internal/events"
	"signal-trading-engine/internal/exchange"
	"signal-trading-engine/internal/logging"
	"signal-trading-engine/internal/risk"
	"signal-trading-engine/internal/scoring"
	"signal-trading-engine/internal/weights"
)

func quietLogger() *logging.Logger {
	return logging.New(&logging.Config{Level: "FATAL", Output: "stderr"})
}

func trendingMarket(symbol string, step float64) *exchange.MockClient {
	m := exchange.NewMockClient()
	bars := make([]exchange.Bar, 100)
	ts := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	price := 100.0
	for i := range bars {
		price += step
		bars[i] = exchange.Bar{
			Open: price - step, High: price + 1, Low: price - 1, Close: price,
			Volume:    1000,
			Timestamp: ts.Add(time.Duration(i) * time.Minute),
		}
	}
	m.SetBars(symbol, bars)
	return m
}

func newTestPipeline(mock *exchange.MockClient, cfg Config) (*Pipeline, *detectors.Runner) {
	logger := quietLogger()
	runner := detectors.NewRunner(mock, time.Second, logger)
	parliament := weights.NewParliament(zerolog.Nop(), nil)
	comb := combiner.New(combiner.DefaultConfig())
	guard := risk.NewGuard(risk.Config{}, logger)
	eng := engine.New(mock, mock, guard, nil, nil, logger,
		engine.Config{Timeframe: cfg.Timeframe, TradeSizeUSDT: 100})
	return New(cfg, runner, parliament, comb, eng, events.NewEventBus(), logger), runner
}

func TestRunRoundPublishesDecision(t *testing.T) {
	mock := trendingMarket("BTCUSDT", 0.5)
	p, _ := newTestPipeline(mock, Config{
		Symbols: []string{"BTCUSDT"}, Timeframe: "5m",
		Interval: time.Minute, MinConfidence: 0.99,
	})

	decisions := make(chan events.Event, 1)
	p.bus.Subscribe(events.EventDecisionMade, func(e events.Event) {
		select {
		case decisions <- e:
		default:
		}
	})

	p.runRound(context.Background(), "BTCUSDT")

	select {
	case e := <-decisions:
		if e.Data["symbol"] != "BTCUSDT" {
			t.Errorf("decision symbol = %v", e.Data["symbol"])
		}
	case <-time.After(time.Second):
		t.Fatal("no decision event published")
	}

	// Confidence gate at 0.99 keeps the round from trading.
	if got := len(mock.Orders()); got != 0 {
		t.Errorf("placed %d orders under an unreachable confidence gate", got)
	}
}

func TestRunRoundExecutesConfidentDecision(t *testing.T) {
	// Short history keeps the technical detectors out so the single
	// strongly bullish adapter carries the whole decision.
	mock := exchange.NewMockClient()
	mock.SetBars("BTCUSDT", []exchange.Bar{{Close: 100.0, Volume: 1000, Timestamp: time.Now()}})

	p, runner := newTestPipeline(mock, Config{
		Symbols: []string{"BTCUSDT"}, Timeframe: "5m",
		Interval: time.Minute, MinConfidence: 0.5,
	})
	runner.Register(detectors.SlotML, detectors.AdapterFunc{
		Name: "ml-predictor",
		Fn: func(ctx context.Context, symbol, timeframe string) (scoring.ProviderScore, error) {
			return scoring.ProviderScore{Kind: scoring.KindNormalized, Value: 0.95}, nil
		},
	})

	p.runRound(context.Background(), "BTCUSDT")

	orders := mock.Orders()
	if len(orders) != 1 {
		t.Fatalf("placed %d orders, want 1", len(orders))
	}
	if orders[0].Side != exchange.SideBuy {
		t.Errorf("side = %v, want BUY", orders[0].Side)
	}
}

func TestStartStopDoesNotLeak(t *testing.T) {
	mock := trendingMarket("BTCUSDT", 0.5)
	p, _ := newTestPipeline(mock, Config{
		Symbols: []string{"BTCUSDT"}, Timeframe: "5m",
		Interval: 10 * time.Millisecond, MinConfidence: 0.99,
	})

	p.Start(context.Background())
	time.Sleep(50 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		p.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
}

func TestCanceledContextSkipsRound(t *testing.T) {
	mock := trendingMarket("BTCUSDT", 0.5)
	p, _ := newTestPipeline(mock, Config{
		Symbols: []string{"BTCUSDT"}, Timeframe: "5m",
		Interval: time.Minute, MinConfidence: 0.01,
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p.runRound(ctx, "BTCUSDT")

	if got := len(mock.Orders()); got != 0 {
		t.Errorf("placed %d orders on a canceled context", got)
	}
}
