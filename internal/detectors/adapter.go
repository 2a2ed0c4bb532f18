package detectors

import (
	"context"

	"signal-trading-engine/internal/scoring"
)

// Slot identifies which decision component an adapter feeds.
type Slot string

const (
	SlotSMC          Slot = "smc"
	SlotML           Slot = "ml_ai"
	SlotReversal     Slot = "reversal"
	SlotContinuation Slot = "continuation"
	SlotSocial       Slot = "social"
	SlotNews         Slot = "news"
	SlotWhales       Slot = "whales"
)

// Adapter is an external analytical detector. Its raw payload shape is
// adapter-specific and only ever consumed through the score converter.
type Adapter interface {
	Key() string
	Score(ctx context.Context, symbol, timeframe string) (scoring.ProviderScore, error)
}

// AdapterFunc adapts a function to the Adapter interface
type AdapterFunc struct {
	Name string
	Fn   func(ctx context.Context, symbol, timeframe string) (scoring.ProviderScore, error)
}

func (a AdapterFunc) Key() string { return a.Name }

func (a AdapterFunc) Score(ctx context.Context, symbol, timeframe string) (scoring.ProviderScore, error) {
	return a.Fn(ctx, symbol, timeframe)
}
