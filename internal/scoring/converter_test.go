package scoring

import (
	"math"
	"strings"
	"testing"
)

func TestConvertProbability(t *testing.T) {
	ls := Convert(ProviderScore{Kind: KindProbability, Bull: 0.7, Bear: 0.2, Hold: 0.1})
	want := (0.7 + 0.5*0.1) / 1.0
	if math.Abs(ls.Score-want) > 1e-9 {
		t.Errorf("score = %v, want %v", ls.Score, want)
	}
}

func TestConvertProbabilityUnnormalizedTriple(t *testing.T) {
	// Raw counts instead of probabilities still convert by proportion.
	ls := Convert(ProviderScore{Kind: KindProbability, Bull: 7, Bear: 2, Hold: 1})
	want := (7 + 0.5*1) / 10.0
	if math.Abs(ls.Score-want) > 1e-9 {
		t.Errorf("score = %v, want %v", ls.Score, want)
	}
}

func TestConvertProbabilityInvalidFallsBackNeutral(t *testing.T) {
	cases := []ProviderScore{
		{Kind: KindProbability},                                  // zero total
		{Kind: KindProbability, Bull: -1, Bear: 0.5, Hold: 0.6},  // negative mass
	}
	for _, raw := range cases {
		ls := Convert(raw)
		if ls.Score != 0.5 {
			t.Errorf("score = %v, want 0.5", ls.Score)
		}
		if len(ls.Reasons) == 0 || !strings.Contains(ls.Reasons[0], "conversion fallback") {
			t.Errorf("expected fallback reason, got %v", ls.Reasons)
		}
	}
}

func TestConvertSigned(t *testing.T) {
	cases := []struct {
		value float64
		want  float64
	}{
		{-1.0, 0.0},
		{0.0, 0.5},
		{1.0, 1.0},
		{0.5, 0.75},
	}
	for _, tc := range cases {
		ls := Convert(ProviderScore{Kind: KindSigned, Value: tc.value})
		if math.Abs(ls.Score-tc.want) > 1e-9 {
			t.Errorf("Convert(signed %v) = %v, want %v", tc.value, ls.Score, tc.want)
		}
	}
}

func TestConvertSignedOutOfRangeFallsBackNeutral(t *testing.T) {
	ls := Convert(ProviderScore{Kind: KindSigned, Value: 2.5})
	if ls.Score != 0.5 {
		t.Errorf("score = %v, want 0.5", ls.Score)
	}
	if len(ls.Reasons) == 0 || !strings.Contains(ls.Reasons[0], "conversion fallback") {
		t.Errorf("expected fallback reason, got %v", ls.Reasons)
	}
}

func TestConvertCategorical(t *testing.T) {
	cases := []struct {
		label string
		want  float64
	}{
		{"positive", 0.8},
		{"Bullish", 0.8}, // case insensitive
		{"neutral", 0.5},
		{" bearish ", 0.2}, // trimmed
		{"very_negative", 0.0},
	}
	for _, tc := range cases {
		ls := Convert(ProviderScore{Kind: KindCategorical, Label: tc.label})
		if ls.Score != tc.want {
			t.Errorf("Convert(%q) = %v, want %v", tc.label, ls.Score, tc.want)
		}
	}
}

func TestConvertCategoricalUnknownLabel(t *testing.T) {
	ls := Convert(ProviderScore{Kind: KindCategorical, Label: "lunar_phase"})
	if ls.Score != 0.5 {
		t.Errorf("score = %v, want 0.5", ls.Score)
	}
	if len(ls.Reasons) == 0 || !strings.Contains(ls.Reasons[0], "lunar_phase") {
		t.Errorf("fallback reason should name the category, got %v", ls.Reasons)
	}
}

func TestConvertUnknownKindNeverPanics(t *testing.T) {
	ls := Convert(ProviderScore{Kind: "telepathy", Value: 99})
	if ls.Score != 0.5 {
		t.Errorf("score = %v, want 0.5", ls.Score)
	}
	if len(ls.Reasons) == 0 || !strings.Contains(ls.Reasons[0], "telepathy") {
		t.Errorf("fallback reason should name the kind, got %v", ls.Reasons)
	}
}

func TestConvertNormalizedPassesThrough(t *testing.T) {
	ls := Convert(ProviderScore{Kind: KindNormalized, Value: 0.83, Reasons: []string{"model v2"}})
	if ls.Score != 0.83 {
		t.Errorf("score = %v, want 0.83", ls.Score)
	}
	if len(ls.Reasons) != 1 || ls.Reasons[0] != "model v2" {
		t.Errorf("reasons = %v", ls.Reasons)
	}
}

func TestConvertNormalizedClampsOutOfRange(t *testing.T) {
	ls := Convert(ProviderScore{Kind: KindNormalized, Value: 1.4})
	if ls.Score != 1.0 {
		t.Errorf("score = %v, want 1.0", ls.Score)
	}
}
