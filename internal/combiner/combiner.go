package combiner

import (
	"fmt"

	"signal-trading-engine/internal/scoring"
	"signal-trading-engine/internal/weights"
)

// Config holds the tunable consensus and decision thresholds.
type Config struct {
	// Epsilon is the max-min spread beyond which component sources are
	// considered to disagree.
	Epsilon float64
	// Dominance exempts the round from the disagreement penalty when
	// any single component is at least this decisive.
	Dominance float64
	// ConsensusPenalty multiplies confidence when disagreement applies.
	ConsensusPenalty float64
	// UpperThreshold / LowerThreshold map the raw score to an action.
	UpperThreshold float64
	LowerThreshold float64
}

// DefaultConfig returns the shipped consensus tuning.
func DefaultConfig() Config {
	return Config{
		Epsilon:          0.35,
		Dominance:        0.85,
		ConsensusPenalty: 0.60,
		UpperThreshold:   0.60,
		LowerThreshold:   0.40,
	}
}

// Components carries the detector outputs supplied for one combine
// round. A nil field means that component is absent this round.
type Components struct {
	Core      *scoring.CoreSignal
	SMC       *scoring.LayerScore
	Patterns  *scoring.PatternScores
	Sentiment *scoring.SentimentScores
	ML        *scoring.LayerScore
	Aux       *scoring.AuxScores
}

// ComponentResult is one component's contribution in the breakdown.
type ComponentResult struct {
	Present bool    `json:"present"`
	Score   float64 `json:"score"`
	Weight  float64 `json:"weight"` // normalized share of this round
}

// Breakdown is the per-component view of a decision. A fixed struct
// rather than a map keeps the output deterministic.
type Breakdown struct {
	Core      ComponentResult `json:"core"`
	SMC       ComponentResult `json:"smc"`
	Patterns  ComponentResult `json:"patterns"`
	Sentiment ComponentResult `json:"sentiment"`
	ML        ComponentResult `json:"ml"`
	Aux       ComponentResult `json:"aux"`
}

// FinalDecision is the combined directional decision. Created fresh on
// every combine call and never persisted by the combiner itself.
type FinalDecision struct {
	Action     scoring.Action `json:"action"`
	Score      float64        `json:"score"`
	Confidence float64        `json:"confidence"`
	Components Breakdown      `json:"components"`
	Reasons    []string       `json:"reasons,omitempty"`
}

// Combiner computes weighted epsilon-consensus decisions.
type Combiner struct {
	cfg Config
}

// New returns a combiner with the given tuning. Zero thresholds fall
// back to the defaults.
func New(cfg Config) *Combiner {
	def := DefaultConfig()
	if cfg.Epsilon <= 0 {
		cfg.Epsilon = def.Epsilon
	}
	if cfg.Dominance <= 0 {
		cfg.Dominance = def.Dominance
	}
	if cfg.ConsensusPenalty <= 0 {
		cfg.ConsensusPenalty = def.ConsensusPenalty
	}
	if cfg.UpperThreshold <= 0 {
		cfg.UpperThreshold = def.UpperThreshold
	}
	if cfg.LowerThreshold <= 0 {
		cfg.LowerThreshold = def.LowerThreshold
	}
	return &Combiner{cfg: cfg}
}

// componentInput is one supplied component flattened for weighting.
type componentInput struct {
	name    string
	score   float64
	weight  float64
	reasons []string
	slot    *ComponentResult
}

// Combine folds the supplied components into a FinalDecision under the
// given weight vector. Missing components simply drop out of the
// weighting; identical inputs always produce identical output.
func (c *Combiner) Combine(comps Components, w weights.Vector) FinalDecision {
	decision := FinalDecision{}

	inputs := gather(comps, w, &decision.Components)
	if len(inputs) == 0 {
		decision.Action = scoring.ActionHold
		decision.Score = 0.5
		decision.Confidence = 0
		decision.Reasons = []string{"no detectors reported this round"}
		return decision
	}

	// Weighted average, re-normalized over present components only.
	totalWeight := 0.0
	for _, in := range inputs {
		totalWeight += in.weight
	}
	raw := 0.0
	if totalWeight > 0 {
		for _, in := range inputs {
			raw += in.weight * in.score
		}
		raw /= totalWeight
		for _, in := range inputs {
			in.slot.Weight = in.weight / totalWeight
		}
	} else {
		// All applicable weights zero: unweighted simple average.
		for _, in := range inputs {
			raw += in.score
		}
		raw /= float64(len(inputs))
		for _, in := range inputs {
			in.slot.Weight = 1.0 / float64(len(inputs))
		}
	}

	penalty := 1.0
	if len(inputs) > 1 {
		min, max := inputs[0].score, inputs[0].score
		dominant := false
		for _, in := range inputs {
			if in.score < min {
				min = in.score
			}
			if in.score > max {
				max = in.score
			}
			if in.score >= c.cfg.Dominance || in.score <= 1-c.cfg.Dominance {
				dominant = true
			}
		}
		if max-min > c.cfg.Epsilon && !dominant {
			penalty = c.cfg.ConsensusPenalty
			decision.Reasons = append(decision.Reasons,
				fmt.Sprintf("sources disagree (spread %.2f > %.2f), confidence reduced", max-min, c.cfg.Epsilon))
		}
	}

	switch {
	case raw > c.cfg.UpperThreshold:
		decision.Action = scoring.ActionBuy
	case raw < c.cfg.LowerThreshold:
		decision.Action = scoring.ActionSell
	default:
		decision.Action = scoring.ActionHold
	}

	decision.Score = raw
	decision.Confidence = clamp01(abs(raw-0.5) * 2 * penalty)

	for _, in := range inputs {
		for _, r := range in.reasons {
			if len(decision.Reasons) >= scoring.MaxReasons {
				break
			}
			decision.Reasons = append(decision.Reasons, r)
		}
	}
	return decision
}

// gather flattens the supplied components into weight-bearing inputs
// and marks the breakdown slots. Component weight is the sum of the
// detector keys backing it.
func gather(comps Components, w weights.Vector, bd *Breakdown) []componentInput {
	var inputs []componentInput

	add := func(name string, score float64, reasons []string, slot *ComponentResult, keys ...string) {
		weight := 0.0
		for _, k := range keys {
			weight += w[k]
		}
		slot.Present = true
		slot.Score = score
		inputs = append(inputs, componentInput{
			name: name, score: score, weight: weight,
			reasons: reasons, slot: slot,
		})
	}

	if comps.Core != nil {
		add("core", comps.Core.Score, comps.Core.Reasons, &bd.Core,
			weights.KeyCore, weights.KeyRSI, weights.KeyMACD, weights.KeyMACross)
	}
	if comps.SMC != nil {
		add("smc", comps.SMC.Score, comps.SMC.Reasons, &bd.SMC,
			weights.KeyMarketStructure)
	}
	if comps.Patterns != nil {
		add("patterns", comps.Patterns.Combined.Score, comps.Patterns.Combined.Reasons, &bd.Patterns,
			weights.KeyReversal)
	}
	if comps.Sentiment != nil {
		add("sentiment", comps.Sentiment.Combined.Score, comps.Sentiment.Combined.Reasons, &bd.Sentiment,
			weights.KeySentiment, weights.KeyNews, weights.KeyWhales)
	}
	if comps.ML != nil {
		add("ml", comps.ML.Score, comps.ML.Reasons, &bd.ML,
			weights.KeyMLAI)
	}
	if comps.Aux != nil {
		add("aux", comps.Aux.Combined.Score, comps.Aux.Combined.Reasons, &bd.Aux,
			weights.KeyBollinger, weights.KeyVolume, weights.KeySupportResistance,
			weights.KeyADX, weights.KeyROC)
	}
	return inputs
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
