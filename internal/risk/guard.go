package risk

import (
	"fmt"
	"strings"
	"sync"

	"signal-trading-engine/internal/circuit"
	"signal-trading-engine/internal/logging"
)

// Config holds the risk constraints enforced by the guard. Mutable
// only through UpdateConfig.
type Config struct {
	MaxPositionUSDT      float64  `json:"max_position_usdt"`
	MaxTotalExposureUSDT float64  `json:"max_total_exposure_usdt"`
	MaxLeverage          int      `json:"max_leverage"`
	DefaultLeverage      int      `json:"default_leverage"`
	DeniedSymbols        []string `json:"denied_symbols"`

	Breaker circuit.BreakerConfig `json:"breaker"`
}

// DefaultConfig returns conservative risk defaults
func DefaultConfig() Config {
	return Config{
		MaxPositionUSDT:      500,
		MaxTotalExposureUSDT: 2000,
		MaxLeverage:          10,
		DefaultLeverage:      3,
		Breaker:              circuit.DefaultBreakerConfig(),
	}
}

// CheckResult is the outcome of a single risk evaluation
type CheckResult struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// Guard evaluates proposed trades against exposure, symbol, and
// breaker constraints. Checks are advisory per call: the guard does
// not reserve capacity, and exposure bookkeeping is only eventually
// consistent with settled trades.
type Guard struct {
	mu       sync.RWMutex
	config   Config
	denied   map[string]bool
	exposure map[string]float64 // symbol -> open notional USDT

	breaker *circuit.Breaker
	logger  *logging.Logger
}

// NewGuard creates a risk guard with the given constraints
func NewGuard(config Config, logger *logging.Logger) *Guard {
	if config.MaxPositionUSDT <= 0 {
		config.MaxPositionUSDT = DefaultConfig().MaxPositionUSDT
	}
	if config.MaxTotalExposureUSDT <= 0 {
		config.MaxTotalExposureUSDT = DefaultConfig().MaxTotalExposureUSDT
	}
	if config.DefaultLeverage <= 0 {
		config.DefaultLeverage = DefaultConfig().DefaultLeverage
	}
	if config.MaxLeverage <= 0 {
		config.MaxLeverage = DefaultConfig().MaxLeverage
	}
	if config.DefaultLeverage > config.MaxLeverage {
		config.DefaultLeverage = config.MaxLeverage
	}

	g := &Guard{
		config:   config,
		denied:   make(map[string]bool),
		exposure: make(map[string]float64),
		breaker:  circuit.NewBreaker(config.Breaker),
		logger:   logger,
	}
	for _, s := range config.DeniedSymbols {
		g.denied[strings.ToUpper(strings.TrimSpace(s))] = true
	}
	return g
}

// CheckTradeRisk evaluates a proposed trade. Every denial carries a
// machine-readable reason. No capacity is reserved by an approval.
func (g *Guard) CheckTradeRisk(symbol, side string, quantityUSDT float64) CheckResult {
	g.mu.RLock()
	defer g.mu.RUnlock()

	symbol = strings.ToUpper(symbol)

	if g.denied[symbol] {
		return CheckResult{Allowed: false, Reason: fmt.Sprintf("symbol-denylisted: %s", symbol)}
	}

	if quantityUSDT > g.config.MaxPositionUSDT {
		return CheckResult{Allowed: false, Reason: fmt.Sprintf(
			"per-trade-cap-exceeded: %.2f USDT > cap %.2f USDT", quantityUSDT, g.config.MaxPositionUSDT)}
	}

	total := quantityUSDT
	for _, n := range g.exposure {
		total += n
	}
	if total > g.config.MaxTotalExposureUSDT {
		return CheckResult{Allowed: false, Reason: fmt.Sprintf(
			"total-exposure-cap-exceeded: %.2f USDT would exceed cap %.2f USDT", total, g.config.MaxTotalExposureUSDT)}
	}

	if allowed, reason := g.breaker.Allow(symbol); !allowed {
		return CheckResult{Allowed: false, Reason: reason}
	}

	return CheckResult{Allowed: true}
}

// RecordFill books a settled fill into the exposure tally and clears
// the symbol's failure streak.
func (g *Guard) RecordFill(symbol string, notionalUSDT float64) {
	symbol = strings.ToUpper(symbol)

	g.mu.Lock()
	g.exposure[symbol] += notionalUSDT
	g.mu.Unlock()

	g.breaker.RecordSuccess(symbol)
}

// RecordClose releases exposure for a closed position
func (g *Guard) RecordClose(symbol string, notionalUSDT float64) {
	symbol = strings.ToUpper(symbol)

	g.mu.Lock()
	defer g.mu.Unlock()

	g.exposure[symbol] -= notionalUSDT
	if g.exposure[symbol] <= 0 {
		delete(g.exposure, symbol)
	}
}

// RecordExecutionFailure feeds the symbol's circuit breaker
func (g *Guard) RecordExecutionFailure(symbol string, err error) {
	g.breaker.RecordFailure(strings.ToUpper(symbol), err)
}

// Leverage returns the configured default leverage
func (g *Guard) Leverage() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.config.DefaultLeverage
}

// TotalExposure returns the current booked exposure in USDT
func (g *Guard) TotalExposure() float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()

	total := 0.0
	for _, n := range g.exposure {
		total += n
	}
	return total
}

// Breaker exposes the guard's circuit breaker for state inspection
// and manual resets.
func (g *Guard) Breaker() *circuit.Breaker {
	return g.breaker
}

// GetConfig returns a copy of the current constraints
func (g *Guard) GetConfig() Config {
	g.mu.RLock()
	defer g.mu.RUnlock()

	cfg := g.config
	cfg.DeniedSymbols = append([]string(nil), g.config.DeniedSymbols...)
	return cfg
}

// UpdateConfig applies new constraints. Zero-valued fields keep their
// current values; the deny-list is replaced wholesale when non-nil.
func (g *Guard) UpdateConfig(updates Config) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if updates.MaxPositionUSDT > 0 {
		g.config.MaxPositionUSDT = updates.MaxPositionUSDT
	}
	if updates.MaxTotalExposureUSDT > 0 {
		g.config.MaxTotalExposureUSDT = updates.MaxTotalExposureUSDT
	}
	if updates.MaxLeverage > 0 {
		g.config.MaxLeverage = updates.MaxLeverage
	}
	if updates.DefaultLeverage > 0 {
		g.config.DefaultLeverage = updates.DefaultLeverage
		if g.config.DefaultLeverage > g.config.MaxLeverage {
			g.config.DefaultLeverage = g.config.MaxLeverage
		}
	}
	if updates.DeniedSymbols != nil {
		g.config.DeniedSymbols = append([]string(nil), updates.DeniedSymbols...)
		g.denied = make(map[string]bool, len(updates.DeniedSymbols))
		for _, s := range updates.DeniedSymbols {
			g.denied[strings.ToUpper(strings.TrimSpace(s))] = true
		}
	}

	if g.logger != nil {
		g.logger.Info("risk configuration updated",
			"max_position_usdt", g.config.MaxPositionUSDT,
			"max_total_exposure_usdt", g.config.MaxTotalExposureUSDT,
			"default_leverage", g.config.DefaultLeverage,
			"denied_symbols", len(g.denied))
	}
}
