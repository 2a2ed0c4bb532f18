// Package pipeline runs the periodic detect-weigh-combine-execute loop.
package pipeline

import (
	"context"
	"sync"
	"time"

	"signal-trading-engine/internal/combiner"
	"signal-trading-engine/internal/detectors"
	"signal-trading-engine/internal/engine"
	"signal-trading-engine/internal/events"
	"signal-trading-engine/internal/logging"
	"signal-trading-engine/internal/scoring"
	"signal-trading-engine/internal/weights"
)

// Config holds pipeline scheduling and gating parameters
type Config struct {
	Enabled       bool          `json:"enabled"`
	Symbols       []string      `json:"symbols"`
	Timeframe     string        `json:"timeframe"`
	Interval      time.Duration `json:"interval"`
	MinConfidence float64       `json:"min_confidence"`
}

// DefaultConfig returns the pipeline defaults
func DefaultConfig() Config {
	return Config{
		Symbols:       []string{"BTCUSDT"},
		Timeframe:     "5m",
		Interval:      time.Minute,
		MinConfidence: 0.6,
	}
}

// Pipeline drives rounds of detection, weighting, combination, and
// execution for each configured symbol.
type Pipeline struct {
	config     Config
	runner     *detectors.Runner
	parliament *weights.Parliament
	combiner   *combiner.Combiner
	engine     *engine.Engine
	bus        *events.EventBus
	logger     *logging.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a pipeline
func New(config Config, runner *detectors.Runner, parliament *weights.Parliament,
	comb *combiner.Combiner, eng *engine.Engine, bus *events.EventBus, logger *logging.Logger) *Pipeline {
	if config.Timeframe == "" {
		config.Timeframe = DefaultConfig().Timeframe
	}
	if config.Interval <= 0 {
		config.Interval = DefaultConfig().Interval
	}
	if config.MinConfidence <= 0 {
		config.MinConfidence = DefaultConfig().MinConfidence
	}
	return &Pipeline{
		config:     config,
		runner:     runner,
		parliament: parliament,
		combiner:   comb,
		engine:     eng,
		bus:        bus,
		logger:     logger.WithComponent("pipeline"),
	}
}

// Start launches one loop per symbol. Start is not idempotent; call
// Stop before restarting.
func (p *Pipeline) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)

	p.logger.Info("pipeline starting",
		"symbols", len(p.config.Symbols),
		"timeframe", p.config.Timeframe,
		"interval", p.config.Interval.String())

	for _, symbol := range p.config.Symbols {
		p.wg.Add(1)
		go p.loop(ctx, symbol)
	}
}

// Stop halts all symbol loops and waits for in-flight rounds
func (p *Pipeline) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	p.logger.Info("pipeline stopped")
}

func (p *Pipeline) loop(ctx context.Context, symbol string) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	// First round immediately; the ticker covers the rest.
	p.runRound(ctx, symbol)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.runRound(ctx, symbol)
		}
	}
}

// runRound executes one detect-weigh-combine-execute round
func (p *Pipeline) runRound(ctx context.Context, symbol string) {
	if ctx.Err() != nil {
		return
	}

	comps := p.runner.Collect(ctx, symbol, p.config.Timeframe)
	decision := p.combiner.Combine(comps, p.parliament.GetWeights())

	log := logging.DecisionContext(p.logger, symbol, p.config.Timeframe)
	log.Debug("decision round complete",
		"action", string(decision.Action),
		"score", decision.Score,
		"confidence", decision.Confidence)

	if p.bus != nil {
		p.bus.PublishDecision(symbol, string(decision.Action), decision.Score, decision.Confidence)
	}

	if decision.Action == scoring.ActionHold {
		return
	}
	if decision.Confidence < p.config.MinConfidence {
		log.Debug("decision below confidence gate",
			"confidence", decision.Confidence, "min", p.config.MinConfidence)
		return
	}

	sig := engine.Signal{
		Source:     engine.SourcePipeline,
		Symbol:     symbol,
		Action:     decision.Action,
		Confidence: decision.Confidence,
		Score:      decision.Score,
		Timestamp:  time.Now().UTC(),
	}
	if p.bus != nil {
		p.bus.PublishSignal(sig.Source, symbol, string(sig.Action), sig.Confidence, sig.Score)
	}

	result := p.engine.ExecuteSignal(ctx, sig, 0)
	if result.Executed {
		log.Info("pipeline trade executed",
			"action", string(sig.Action), "order_id", result.Order.OrderID)
	} else {
		log.Info("pipeline signal not executed", "reason", result.Reason)
	}
}
