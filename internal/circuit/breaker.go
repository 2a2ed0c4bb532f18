package circuit

import (
	"fmt"
	"sync"
	"time"
)

// BreakerState represents the circuit breaker state
type BreakerState string

const (
	StateClosed   BreakerState = "closed"    // Normal operation
	StateOpen     BreakerState = "open"      // Executions halted
	StateHalfOpen BreakerState = "half_open" // Testing recovery
)

// BreakerConfig holds circuit breaker configuration
type BreakerConfig struct {
	Enabled                bool `json:"enabled"`
	MaxConsecutiveFailures int  `json:"max_consecutive_failures"`
	CooldownMinutes        int  `json:"cooldown_minutes"`
}

// DefaultBreakerConfig returns safe defaults
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Enabled:                true,
		MaxConsecutiveFailures: 3,
		CooldownMinutes:        15,
	}
}

// symbolState tracks one symbol's failure streak and breaker state
type symbolState struct {
	state               BreakerState
	consecutiveFailures int
	lastTripTime        time.Time
	tripReason          string
}

// Breaker trips per symbol after consecutive execution failures and
// clears on cooldown expiry plus an observed success.
type Breaker struct {
	mu      sync.RWMutex
	config  BreakerConfig
	symbols map[string]*symbolState

	onTrip  func(symbol, reason string)
	onReset func(symbol string)
}

// NewBreaker creates a per-symbol circuit breaker
func NewBreaker(config BreakerConfig) *Breaker {
	if config.MaxConsecutiveFailures <= 0 {
		config.MaxConsecutiveFailures = DefaultBreakerConfig().MaxConsecutiveFailures
	}
	if config.CooldownMinutes <= 0 {
		config.CooldownMinutes = DefaultBreakerConfig().CooldownMinutes
	}
	return &Breaker{
		config:  config,
		symbols: make(map[string]*symbolState),
	}
}

// OnTrip sets callback for when the breaker trips for a symbol
func (b *Breaker) OnTrip(handler func(symbol, reason string)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onTrip = handler
}

// OnReset sets callback for when a symbol's breaker closes again
func (b *Breaker) OnReset(handler func(symbol string)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onReset = handler
}

// Allow checks whether executions for the symbol may proceed. When the
// cooldown has elapsed the breaker moves to half-open and allows a
// single probe; the probe's outcome decides closed vs re-open.
func (b *Breaker) Allow(symbol string) (bool, string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.config.Enabled {
		return true, ""
	}

	st, ok := b.symbols[symbol]
	if !ok || st.state == StateClosed || st.state == StateHalfOpen {
		return true, ""
	}

	elapsed := time.Since(st.lastTripTime)
	cooldown := time.Duration(b.config.CooldownMinutes) * time.Minute
	if elapsed < cooldown {
		remaining := cooldown - elapsed
		return false, fmt.Sprintf("circuit-breaker-open: cooldown remaining %v (reason: %s)",
			remaining.Round(time.Second), st.tripReason)
	}

	st.state = StateHalfOpen
	return true, ""
}

// RecordFailure counts an execution failure for the symbol, tripping
// the breaker once the streak reaches the configured maximum. A
// half-open probe failure re-opens immediately.
func (b *Breaker) RecordFailure(symbol string, err error) {
	if !b.config.Enabled {
		return
	}

	b.mu.Lock()
	st := b.ensure(symbol)
	st.consecutiveFailures++

	var tripped bool
	var reason string
	if st.state == StateHalfOpen || st.consecutiveFailures >= b.config.MaxConsecutiveFailures {
		reason = fmt.Sprintf("%d consecutive execution failures", st.consecutiveFailures)
		if err != nil {
			reason = fmt.Sprintf("%s, last: %v", reason, err)
		}
		st.state = StateOpen
		st.lastTripTime = time.Now()
		st.tripReason = reason
		tripped = true
	}
	handler := b.onTrip
	b.mu.Unlock()

	if tripped && handler != nil {
		go handler(symbol, reason)
	}
}

// RecordSuccess clears the symbol's failure streak and closes the
// breaker if it was probing.
func (b *Breaker) RecordSuccess(symbol string) {
	if !b.config.Enabled {
		return
	}

	b.mu.Lock()
	st := b.ensure(symbol)
	st.consecutiveFailures = 0

	var recovered bool
	if st.state != StateClosed {
		st.state = StateClosed
		st.tripReason = ""
		recovered = true
	}
	handler := b.onReset
	b.mu.Unlock()

	if recovered && handler != nil {
		go handler(symbol)
	}
}

// ForceReset manually closes the breaker for a symbol
func (b *Breaker) ForceReset(symbol string) {
	b.mu.Lock()
	st := b.ensure(symbol)
	st.state = StateClosed
	st.consecutiveFailures = 0
	st.tripReason = ""
	handler := b.onReset
	b.mu.Unlock()

	if handler != nil {
		go handler(symbol)
	}
}

// State returns the breaker state for a symbol
func (b *Breaker) State(symbol string) BreakerState {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if st, ok := b.symbols[symbol]; ok {
		return st.state
	}
	return StateClosed
}

// Stats returns a snapshot of all tracked symbols
func (b *Breaker) Stats() map[string]map[string]interface{} {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make(map[string]map[string]interface{}, len(b.symbols))
	for sym, st := range b.symbols {
		out[sym] = map[string]interface{}{
			"state":                string(st.state),
			"consecutive_failures": st.consecutiveFailures,
			"trip_reason":          st.tripReason,
			"last_trip_time":       st.lastTripTime,
		}
	}
	return out
}

// SetEnabled enables or disables the breaker
func (b *Breaker) SetEnabled(enabled bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.config.Enabled = enabled
}

// ensure assumes the write lock is held.
func (b *Breaker) ensure(symbol string) *symbolState {
	st, ok := b.symbols[symbol]
	if !ok {
		st = &symbolState{state: StateClosed}
		b.symbols[symbol] = st
	}
	return st
}
