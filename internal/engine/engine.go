package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"signal-trading-engine/internal/events"
	"signal-trading-engine/internal/exchange"
	"signal-trading-engine/internal/logging"
	"signal-trading-engine/internal/risk"
	"signal-trading-engine/internal/scoring"
)

// Signal sources accepted by the engine
const (
	SourcePipeline = "strategy-pipeline"
	SourceLive     = "live-scoring"
	SourceManual   = "manual"
)

// Signal is an actionable trading instruction handed to the engine
type Signal struct {
	Source     string         `json:"source"`
	Symbol     string         `json:"symbol"`
	Action     scoring.Action `json:"action"`
	Confidence float64        `json:"confidence"`
	Score      float64        `json:"score"`
	Timestamp  time.Time      `json:"timestamp"`
}

// ExecutionResult reports what happened to a signal. Executed is true
// if and only if the exchange confirmed a non-rejected order; every
// other path sets Executed false and says why in Reason.
type ExecutionResult struct {
	Executed bool                  `json:"executed"`
	Reason   string                `json:"reason"`
	Order    *exchange.OrderResult `json:"order,omitempty"`
}

// OrderStore persists confirmed orders
type OrderStore interface {
	SaveOrder(ctx context.Context, order *exchange.OrderResult) error
}

// Config holds the engine's execution parameters
type Config struct {
	Timeframe     string  `json:"timeframe"`
	TradeSizeUSDT float64 `json:"trade_size_usdt"`
}

// DefaultConfig returns the engine defaults
func DefaultConfig() Config {
	return Config{
		Timeframe:     "5m",
		TradeSizeUSDT: 100,
	}
}

// Engine turns approved signals into exchange orders. It never
// fabricates a fill: persistence or notification failures after the
// exchange confirms do not flip the outcome.
type Engine struct {
	market exchange.MarketDataSource
	orders exchange.OrderPlacer
	guard  *risk.Guard
	store  OrderStore
	bus    *events.EventBus
	logger *logging.Logger
	config Config
}

// New creates a trade engine. store and bus may be nil; the engine
// degrades to execution without persistence or events.
func New(market exchange.MarketDataSource, orders exchange.OrderPlacer, guard *risk.Guard,
	store OrderStore, bus *events.EventBus, logger *logging.Logger, config Config) *Engine {
	if config.Timeframe == "" {
		config.Timeframe = DefaultConfig().Timeframe
	}
	if config.TradeSizeUSDT <= 0 {
		config.TradeSizeUSDT = DefaultConfig().TradeSizeUSDT
	}
	return &Engine{
		market: market,
		orders: orders,
		guard:  guard,
		store:  store,
		bus:    bus,
		logger: logger,
		config: config,
	}
}

// ExecuteSignal runs a signal through validation, risk, sizing, and
// placement. HOLD and risk-denied signals never touch the exchange.
// quantityUSDT overrides the configured trade size when positive.
func (e *Engine) ExecuteSignal(ctx context.Context, sig Signal, quantityUSDT float64) ExecutionResult {
	symbol := strings.ToUpper(sig.Symbol)
	side := sideFor(sig.Action)

	notional := quantityUSDT
	if notional <= 0 {
		notional = e.config.TradeSizeUSDT
	}

	log := logging.SignalContext(e.logger, sig.Source, symbol, string(sig.Action))

	if sig.Action == scoring.ActionHold {
		log.Debug("hold signal, nothing to execute")
		return ExecutionResult{Executed: false, Reason: "Signal action is HOLD"}
	}

	check := e.guard.CheckTradeRisk(symbol, string(side), notional)
	if !check.Allowed {
		log.Warn("trade blocked by risk guard", "reason", check.Reason)
		if e.bus != nil {
			e.bus.PublishRiskDenied(symbol, string(side), check.Reason)
		}
		return ExecutionResult{Executed: false, Reason: fmt.Sprintf("blocked-by-risk-guard: %s", check.Reason)}
	}

	bar, err := e.market.GetLatestBar(ctx, symbol, e.config.Timeframe)
	if err != nil || bar == nil {
		log.Warn("no market data for sizing", "error", err)
		return ExecutionResult{Executed: false, Reason: "Market data unavailable for symbol"}
	}

	quantity := notional / bar.Close
	leverage := e.guard.Leverage()

	// Leverage is best-effort: the exchange keeps the last setting.
	if err := e.orders.SetLeverage(ctx, symbol, leverage); err != nil {
		log.Warn("leverage update failed, keeping exchange setting",
			"leverage", leverage, "error", err)
	}

	params := exchange.OrderParams{
		Symbol:        symbol,
		Side:          side,
		Type:          exchange.OrderTypeMarket,
		Quantity:      quantity,
		Leverage:      leverage,
		ClientOrderID: uuid.NewString(),
	}

	order, err := e.orders.PlaceOrder(ctx, params)
	if err != nil {
		log.Error("order placement failed", "error", err)
		e.guard.RecordExecutionFailure(symbol, err)
		if e.bus != nil {
			e.bus.PublishError("engine", "order placement failed", err)
		}
		return ExecutionResult{Executed: false, Reason: fmt.Sprintf("Order placement failed: %v", err)}
	}

	if order.Status == exchange.OrderStatusRejected {
		log.Warn("order rejected by exchange", "error", order.Error)
		e.guard.RecordExecutionFailure(symbol, fmt.Errorf("%s", order.Error))
		if e.bus != nil {
			e.bus.PublishOrderRejected(symbol, string(side), order.Error)
		}
		return ExecutionResult{
			Executed: false,
			Reason:   fmt.Sprintf("Order rejected: %s", order.Error),
			Order:    order,
		}
	}

	// Confirmed. Everything below is bookkeeping and must not change
	// the outcome.
	e.guard.RecordFill(symbol, notional)

	if e.store != nil {
		if err := e.store.SaveOrder(ctx, order); err != nil {
			log.Error("order persisted on exchange but not locally",
				"order_id", order.OrderID, "error", err)
		}
	}

	if e.bus != nil {
		e.bus.PublishOrderPlaced(order.OrderID, symbol, string(side), order.Price, order.Quantity)
		e.bus.Publish(events.Event{
			Type: events.EventTradeExecuted,
			Data: map[string]interface{}{
				"order_id":   order.OrderID,
				"symbol":     symbol,
				"side":       string(side),
				"quantity":   order.Quantity,
				"price":      order.Price,
				"source":     sig.Source,
				"confidence": sig.Confidence,
			},
		})
	}

	logging.OrderContext(e.logger, order.OrderID, symbol, string(side), string(exchange.OrderTypeMarket)).
		Info("order executed",
			"quantity", order.Quantity, "price", order.Price, "status", string(order.Status))

	return ExecutionResult{Executed: true, Reason: "executed", Order: order}
}

// Config returns the engine's execution parameters
func (e *Engine) Config() Config {
	return e.config
}

func sideFor(action scoring.Action) exchange.Side {
	if action == scoring.ActionSell {
		return exchange.SideSell
	}
	return exchange.SideBuy
}
