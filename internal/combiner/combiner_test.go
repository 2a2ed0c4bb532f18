package combiner

import (
	"math"
	"reflect"
	"strings"
	"testing"

	"signal-trading-engine/internal/scoring"
	"signal-trading-engine/internal/weights"
)

func layer(score float64, reasons ...string) *scoring.LayerScore {
	ls := scoring.NewLayerScore(score, reasons...)
	return &ls
}

func core(score float64) *scoring.CoreSignal {
	cs := scoring.NewCoreSignal(scoring.ActionBuy, 0.5, 0.5, score)
	return &cs
}

func TestCombineAllAbsent(t *testing.T) {
	c := New(DefaultConfig())

	d := c.Combine(Components{}, weights.DefaultVector())
	if d.Action != scoring.ActionHold {
		t.Errorf("action = %v, want HOLD", d.Action)
	}
	if d.Confidence != 0 {
		t.Errorf("confidence = %v, want 0", d.Confidence)
	}
	if d.Score != 0.5 {
		t.Errorf("score = %v, want 0.5", d.Score)
	}
	if len(d.Reasons) == 0 || !strings.Contains(d.Reasons[0], "no detectors") {
		t.Errorf("expected no-detectors reason, got %v", d.Reasons)
	}
}

func TestCombineIsDeterministic(t *testing.T) {
	c := New(DefaultConfig())
	comps := Components{
		Core: core(0.8),
		ML:   layer(0.7, "model bullish"),
		SMC:  layer(0.3),
	}
	w := weights.DefaultVector()

	a := c.Combine(comps, w)
	b := c.Combine(comps, w)
	if !reflect.DeepEqual(a, b) {
		t.Errorf("identical inputs produced different decisions:\n%+v\n%+v", a, b)
	}
}

func TestCombineSingleComponentNoPenalty(t *testing.T) {
	c := New(DefaultConfig())

	d := c.Combine(Components{ML: layer(0.8)}, weights.DefaultVector())
	if d.Action != scoring.ActionBuy {
		t.Errorf("action = %v, want BUY", d.Action)
	}
	wantConf := (0.8 - 0.5) * 2
	if math.Abs(d.Confidence-wantConf) > 1e-9 {
		t.Errorf("confidence = %v, want %v (no penalty with one source)", d.Confidence, wantConf)
	}
}

func TestCombineDisagreementPenalty(t *testing.T) {
	c := New(DefaultConfig())
	// Spread 0.75-0.2 = 0.55 > epsilon, neither component decisive.
	d := c.Combine(Components{
		ML:  layer(0.75),
		SMC: layer(0.20),
	}, weights.Vector{weights.KeyMLAI: 0.5, weights.KeyMarketStructure: 0.5})

	raw := (0.75 + 0.20) / 2
	wantConf := math.Abs(raw-0.5) * 2 * 0.60
	if math.Abs(d.Confidence-wantConf) > 1e-9 {
		t.Errorf("confidence = %v, want %v", d.Confidence, wantConf)
	}
	found := false
	for _, r := range d.Reasons {
		if strings.Contains(r, "disagree") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected disagreement reason, got %v", d.Reasons)
	}
}

func TestCombineDominanceExemptsPenalty(t *testing.T) {
	c := New(DefaultConfig())
	// Spread exceeds epsilon but one component is decisive (0.9 >= 0.85).
	d := c.Combine(Components{
		ML:  layer(0.90),
		SMC: layer(0.45),
	}, weights.Vector{weights.KeyMLAI: 0.5, weights.KeyMarketStructure: 0.5})

	raw := (0.90 + 0.45) / 2
	wantConf := math.Abs(raw-0.5) * 2
	if math.Abs(d.Confidence-wantConf) > 1e-9 {
		t.Errorf("confidence = %v, want %v (dominant source, no penalty)", d.Confidence, wantConf)
	}
}

func TestCombineActionThresholds(t *testing.T) {
	c := New(DefaultConfig())
	w := weights.Vector{weights.KeyMLAI: 1.0}

	cases := []struct {
		score float64
		want  scoring.Action
	}{
		{0.9, scoring.ActionBuy},
		{0.61, scoring.ActionBuy},
		{0.55, scoring.ActionHold},
		{0.5, scoring.ActionHold},
		{0.45, scoring.ActionHold},
		{0.39, scoring.ActionSell},
		{0.1, scoring.ActionSell},
	}
	for _, tc := range cases {
		d := c.Combine(Components{ML: layer(tc.score)}, w)
		if d.Action != tc.want {
			t.Errorf("score %v: action = %v, want %v", tc.score, d.Action, tc.want)
		}
	}
}

func TestCombineRenormalizesOverPresentComponents(t *testing.T) {
	c := New(DefaultConfig())
	// Only ML supplied; its normalized weight must be 1 regardless of
	// the rest of the vector.
	d := c.Combine(Components{ML: layer(0.7)}, weights.DefaultVector())
	if d.Components.ML.Weight != 1.0 {
		t.Errorf("ml normalized weight = %v, want 1.0", d.Components.ML.Weight)
	}
	if d.Score != 0.7 {
		t.Errorf("score = %v, want 0.7", d.Score)
	}
	if d.Components.Core.Present {
		t.Error("absent component marked present")
	}
}

func TestCombineZeroWeightsFallBackToAverage(t *testing.T) {
	c := New(DefaultConfig())
	w := weights.Vector{weights.KeyMLAI: 0, weights.KeyMarketStructure: 0}

	d := c.Combine(Components{ML: layer(0.6), SMC: layer(0.8)}, w)
	if math.Abs(d.Score-0.7) > 1e-9 {
		t.Errorf("score = %v, want unweighted average 0.7", d.Score)
	}
	if math.Abs(d.Components.ML.Weight-0.5) > 1e-9 {
		t.Errorf("fallback weight = %v, want 0.5", d.Components.ML.Weight)
	}
}

func TestCombineComponentWeightIsSumOfBackingKeys(t *testing.T) {
	c := New(DefaultConfig())
	w := weights.Vector{
		weights.KeySentiment: 0.10,
		weights.KeyNews:      0.05,
		weights.KeyWhales:    0.05,
		weights.KeyMLAI:      0.20,
	}
	sent := scoring.NewSentimentScores(
		scoring.NewLayerScore(0.8), scoring.NewLayerScore(0.8), scoring.NewLayerScore(0.8))

	d := c.Combine(Components{Sentiment: &sent, ML: layer(0.4)}, w)
	// sentiment weight 0.20 vs ml 0.20 → equal shares.
	if math.Abs(d.Components.Sentiment.Weight-0.5) > 1e-9 {
		t.Errorf("sentiment weight = %v, want 0.5", d.Components.Sentiment.Weight)
	}
	wantRaw := 0.5*0.8 + 0.5*0.4
	if math.Abs(d.Score-wantRaw) > 1e-9 {
		t.Errorf("score = %v, want %v", d.Score, wantRaw)
	}
}

func TestCombineGroupUsesCombinedScore(t *testing.T) {
	c := New(DefaultConfig())
	pat := scoring.NewPatternScores(scoring.NewLayerScore(1.0), scoring.NewLayerScore(0.0))

	d := c.Combine(Components{Patterns: &pat}, weights.Vector{weights.KeyReversal: 0.15})
	if d.Components.Patterns.Score != pat.Combined.Score {
		t.Errorf("breakdown score = %v, want group combined %v",
			d.Components.Patterns.Score, pat.Combined.Score)
	}
}
