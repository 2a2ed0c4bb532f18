package detectors

import (
	"context"
	"sync"
	"time"

	"signal-trading-engine/internal/combiner"
	"signal-trading-engine/internal/exchange"
	"signal-trading-engine/internal/logging"
	"signal-trading-engine/internal/scoring"
)

// DefaultAdapterTimeout bounds each external adapter call
const DefaultAdapterTimeout = 3 * time.Second

// Runner fans out to the built-in technical detectors and all
// registered external adapters, assembling whatever reported in time
// into a component set. A slow or failing adapter makes its component
// absent; it never aborts the round.
type Runner struct {
	market   exchange.MarketDataSource
	timeout  time.Duration
	logger   *logging.Logger
	klineLen int

	mu       sync.RWMutex
	adapters map[Slot]Adapter
}

// NewRunner creates a detector runner over the given market source
func NewRunner(market exchange.MarketDataSource, timeout time.Duration, logger *logging.Logger) *Runner {
	if timeout <= 0 {
		timeout = DefaultAdapterTimeout
	}
	return &Runner{
		market:   market,
		timeout:  timeout,
		logger:   logger,
		klineLen: 100,
		adapters: make(map[Slot]Adapter),
	}
}

// Register attaches an external adapter to a component slot. A later
// registration for the same slot replaces the earlier one.
func (r *Runner) Register(slot Slot, adapter Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[slot] = adapter
}

// Collect runs one detection round for the symbol. Built-in detectors
// run off a shared kline fetch; external adapters run in parallel,
// each under its own timeout.
func (r *Runner) Collect(ctx context.Context, symbol, timeframe string) combiner.Components {
	var comps combiner.Components

	r.mu.RLock()
	adapters := make(map[Slot]Adapter, len(r.adapters))
	for slot, a := range r.adapters {
		adapters[slot] = a
	}
	r.mu.RUnlock()

	var wg sync.WaitGroup
	var mu sync.Mutex
	results := make(map[Slot]scoring.LayerScore)

	// Built-in technical detectors share one kline fetch.
	wg.Add(1)
	go func() {
		defer wg.Done()
		fetchCtx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()

		bars, err := r.market.GetKlines(fetchCtx, symbol, timeframe, r.klineLen)
		if err != nil {
			r.logger.Debug("kline fetch failed, technical detectors absent",
				"symbol", symbol, "error", err)
			return
		}

		core := CoreTechnical(symbol, bars)
		aux := AuxIndicators(symbol, bars)

		mu.Lock()
		comps.Core = core
		comps.Aux = aux
		mu.Unlock()
	}()

	for slot, adapter := range adapters {
		wg.Add(1)
		go func(slot Slot, adapter Adapter) {
			defer wg.Done()

			callCtx, cancel := context.WithTimeout(ctx, r.timeout)
			defer cancel()

			raw, err := r.score(callCtx, adapter, symbol, timeframe)
			if err != nil {
				r.logger.Debug("detector absent this round",
					"detector", adapter.Key(), "slot", string(slot),
					"symbol", symbol, "error", err)
				return
			}

			mu.Lock()
			results[slot] = scoring.Convert(raw)
			mu.Unlock()
		}(slot, adapter)
	}

	wg.Wait()

	assemble(&comps, results)
	return comps
}

// score wraps the adapter call so a timeout surfaces as an error even
// if the adapter ignores its context.
func (r *Runner) score(ctx context.Context, adapter Adapter, symbol, timeframe string) (scoring.ProviderScore, error) {
	type outcome struct {
		raw scoring.ProviderScore
		err error
	}
	ch := make(chan outcome, 1)

	go func() {
		raw, err := adapter.Score(ctx, symbol, timeframe)
		ch <- outcome{raw, err}
	}()

	select {
	case out := <-ch:
		return out.raw, out.err
	case <-ctx.Done():
		return scoring.ProviderScore{}, ctx.Err()
	}
}

// assemble maps converted slot results onto decision components.
// Groups renormalize over whichever siblings reported.
func assemble(comps *combiner.Components, results map[Slot]scoring.LayerScore) {
	if ls, ok := results[SlotSMC]; ok {
		comps.SMC = &ls
	}
	if ls, ok := results[SlotML]; ok {
		comps.ML = &ls
	}

	rev, hasRev := results[SlotReversal]
	cont, hasCont := results[SlotContinuation]
	if hasRev || hasCont {
		ps := scoring.NewPatternScoresFrom(optional(rev, hasRev), optional(cont, hasCont))
		comps.Patterns = &ps
	}

	social, hasSocial := results[SlotSocial]
	news, hasNews := results[SlotNews]
	whales, hasWhales := results[SlotWhales]
	if hasSocial || hasNews || hasWhales {
		ss := scoring.NewSentimentScoresFrom(
			optional(social, hasSocial), optional(news, hasNews), optional(whales, hasWhales))
		comps.Sentiment = &ss
	}
}

func optional(ls scoring.LayerScore, present bool) *scoring.LayerScore {
	if !present {
		return nil
	}
	return &ls
}
