package scoring

import (
	"fmt"
	"strings"
)

// ProviderKind tags the shape of a raw detector payload.
type ProviderKind string

const (
	// KindProbability is a {bull, bear, hold} probability triple.
	KindProbability ProviderKind = "probability"
	// KindSigned is a signed magnitude in [-1, 1].
	KindSigned ProviderKind = "signed"
	// KindCategorical is a sentiment-style label.
	KindCategorical ProviderKind = "categorical"
	// KindNormalized is already a [0,1] score.
	KindNormalized ProviderKind = "normalized"
)

// ProviderScore is the tagged variant a detector adapter emits. Only
// the fields for its Kind are meaningful; everything else is ignored.
type ProviderScore struct {
	Kind ProviderKind `json:"kind"`

	// KindProbability
	Bull float64 `json:"bull,omitempty"`
	Bear float64 `json:"bear,omitempty"`
	Hold float64 `json:"hold,omitempty"`

	// KindSigned and KindNormalized
	Value float64 `json:"value,omitempty"`

	// KindCategorical
	Label string `json:"label,omitempty"`

	// Optional reasons supplied by the detector, carried through.
	Reasons []string `json:"reasons,omitempty"`
}

// Categorical labels map to fixed scores. Unknown labels fall back to
// neutral with a flagging reason.
var categoricalScores = map[string]float64{
	"very_positive": 1.0,
	"positive":      0.8,
	"bullish":       0.8,
	"neutral":       0.5,
	"negative":      0.2,
	"bearish":       0.2,
	"very_negative": 0.0,
}

// Convert normalizes a raw detector payload into a LayerScore on
// [0,1]. It is pure and never fails: malformed or unknown input yields
// a neutral 0.5 score with a reason flagging the fallback, so a single
// bad detector cannot abort the pipeline.
func Convert(raw ProviderScore) LayerScore {
	switch raw.Kind {
	case KindProbability:
		return convertProbability(raw)
	case KindSigned:
		return convertSigned(raw)
	case KindCategorical:
		return convertCategorical(raw)
	case KindNormalized:
		return NewLayerScore(raw.Value, raw.Reasons...)
	default:
		return NewLayerScore(0.5, fmt.Sprintf("conversion fallback: unknown provider kind %q", raw.Kind))
	}
}

func convertProbability(raw ProviderScore) LayerScore {
	total := raw.Bull + raw.Bear + raw.Hold
	if total <= 0 || raw.Bull < 0 || raw.Bear < 0 || raw.Hold < 0 {
		return NewLayerScore(0.5, "conversion fallback: invalid probability triple")
	}
	// Hold mass pulls toward neutral; bull/bear split decides direction.
	score := (raw.Bull + 0.5*raw.Hold) / total
	reasons := append([]string{fmt.Sprintf("probability bull=%.2f bear=%.2f hold=%.2f", raw.Bull/total, raw.Bear/total, raw.Hold/total)}, raw.Reasons...)
	return NewLayerScore(score, reasons...)
}

func convertSigned(raw ProviderScore) LayerScore {
	v := raw.Value
	if v < -1 || v > 1 {
		return NewLayerScore(0.5, fmt.Sprintf("conversion fallback: signed value %.4f outside [-1,1]", v))
	}
	// Map [-1,1] onto [0,1].
	return NewLayerScore((v+1)/2, raw.Reasons...)
}

func convertCategorical(raw ProviderScore) LayerScore {
	label := strings.ToLower(strings.TrimSpace(raw.Label))
	score, ok := categoricalScores[label]
	if !ok {
		return NewLayerScore(0.5, fmt.Sprintf("conversion fallback: unknown category %q", raw.Label))
	}
	reasons := append([]string{fmt.Sprintf("sentiment label %s", label)}, raw.Reasons...)
	return NewLayerScore(score, reasons...)
}
