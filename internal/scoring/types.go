package scoring

// MaxReasons bounds the number of reasons carried by a LayerScore.
// Extra reasons are truncated, most salient first.
const MaxReasons = 5

// Action is the directional recommendation of a signal or decision
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// LayerScore is the common unit of detector output: a normalized score
// in [0,1] plus a bounded list of human-readable reasons.
type LayerScore struct {
	Score   float64  `json:"score"`
	Reasons []string `json:"reasons,omitempty"`
}

// NewLayerScore builds a LayerScore with the score clamped to [0,1]
// and reasons truncated to MaxReasons.
func NewLayerScore(score float64, reasons ...string) LayerScore {
	ls := LayerScore{Score: clamp01(score)}
	if len(reasons) > MaxReasons {
		reasons = reasons[:MaxReasons]
	}
	if len(reasons) > 0 {
		ls.Reasons = append([]string(nil), reasons...)
	}
	return ls
}

// CoreSignal is the output of the primary technical-analysis detector
// before layering.
type CoreSignal struct {
	Action     Action   `json:"action"`
	Strength   float64  `json:"strength"`   // [0.1, 1]
	Confidence float64  `json:"confidence"` // [0.1, 0.95]
	Score      float64  `json:"score"`      // [0, 1]
	Reasons    []string `json:"reasons,omitempty"`
}

// NewCoreSignal clamps all fields into their documented ranges.
func NewCoreSignal(action Action, strength, confidence, score float64, reasons ...string) CoreSignal {
	if len(reasons) > MaxReasons {
		reasons = reasons[:MaxReasons]
	}
	cs := CoreSignal{
		Action:     action,
		Strength:   clampRange(strength, 0.1, 1.0),
		Confidence: clampRange(confidence, 0.1, 0.95),
		Score:      clamp01(score),
	}
	if len(reasons) > 0 {
		cs.Reasons = append([]string(nil), reasons...)
	}
	return cs
}

// PatternScores groups the chart-pattern layer outputs. Combined is a
// function of only the sibling scores in this group.
type PatternScores struct {
	Reversal     LayerScore `json:"reversal"`
	Continuation LayerScore `json:"continuation"`
	Combined     LayerScore `json:"combined"`
}

// Pattern group sub-weights. Reversals carry more signal than
// continuations at decision time.
const (
	patternReversalWeight     = 0.6
	patternContinuationWeight = 0.4
)

// NewPatternScores computes the group's combined score from fixed
// internal sub-weights.
func NewPatternScores(reversal, continuation LayerScore) PatternScores {
	return NewPatternScoresFrom(&reversal, &continuation)
}

// NewPatternScoresFrom builds the group from whichever siblings are
// present; sub-weights renormalize over the present ones. All-nil
// input yields a neutral group.
func NewPatternScoresFrom(reversal, continuation *LayerScore) PatternScores {
	ps := PatternScores{
		Combined: combinePresent(
			weighted{patternReversalWeight, reversal},
			weighted{patternContinuationWeight, continuation},
		),
	}
	if reversal != nil {
		ps.Reversal = *reversal
	}
	if continuation != nil {
		ps.Continuation = *continuation
	}
	return ps
}

// SentimentScores groups the sentiment layer outputs.
type SentimentScores struct {
	Social   LayerScore `json:"social"`
	News     LayerScore `json:"news"`
	Whales   LayerScore `json:"whales"`
	Combined LayerScore `json:"combined"`
}

const (
	sentimentSocialWeight = 0.5
	sentimentNewsWeight   = 0.3
	sentimentWhalesWeight = 0.2
)

// NewSentimentScores computes the group's combined score from fixed
// internal sub-weights.
func NewSentimentScores(social, news, whales LayerScore) SentimentScores {
	return NewSentimentScoresFrom(&social, &news, &whales)
}

// NewSentimentScoresFrom builds the group from the present siblings,
// renormalizing the sub-weights over them.
func NewSentimentScoresFrom(social, news, whales *LayerScore) SentimentScores {
	ss := SentimentScores{
		Combined: combinePresent(
			weighted{sentimentSocialWeight, social},
			weighted{sentimentNewsWeight, news},
			weighted{sentimentWhalesWeight, whales},
		),
	}
	if social != nil {
		ss.Social = *social
	}
	if news != nil {
		ss.News = *news
	}
	if whales != nil {
		ss.Whales = *whales
	}
	return ss
}

// AuxScores groups the auxiliary indicator layer outputs.
type AuxScores struct {
	Bollinger         LayerScore `json:"bollinger"`
	Volume            LayerScore `json:"volume"`
	SupportResistance LayerScore `json:"support_resistance"`
	ADX               LayerScore `json:"adx"`
	ROC               LayerScore `json:"roc"`
	Combined          LayerScore `json:"combined"`
}

const (
	auxBollingerWeight = 0.25
	auxVolumeWeight    = 0.20
	auxSRWeight        = 0.25
	auxADXWeight       = 0.15
	auxROCWeight       = 0.15
)

// NewAuxScores computes the group's combined score from fixed internal
// sub-weights.
func NewAuxScores(bollinger, volume, sr, adx, roc LayerScore) AuxScores {
	as := AuxScores{
		Bollinger:         bollinger,
		Volume:            volume,
		SupportResistance: sr,
		ADX:               adx,
		ROC:               roc,
		Combined: combinePresent(
			weighted{auxBollingerWeight, &bollinger},
			weighted{auxVolumeWeight, &volume},
			weighted{auxSRWeight, &sr},
			weighted{auxADXWeight, &adx},
			weighted{auxROCWeight, &roc},
		),
	}
	return as
}

// weighted pairs a group sub-weight with an optional sibling score
type weighted struct {
	w float64
	s *LayerScore
}

// combinePresent computes the group combined score over only the
// siblings actually present, renormalizing their sub-weights.
func combinePresent(siblings ...weighted) LayerScore {
	total := 0.0
	sum := 0.0
	var reasonLists [][]string
	for _, sib := range siblings {
		if sib.s == nil {
			continue
		}
		total += sib.w
		sum += sib.w * sib.s.Score
		reasonLists = append(reasonLists, sib.s.Reasons)
	}
	if total == 0 {
		return NewLayerScore(0.5)
	}
	return NewLayerScore(sum/total, mergeReasons(reasonLists...)...)
}

// mergeReasons interleaves the first reason of each list before taking
// seconds, so every sibling contributes before any repeats.
func mergeReasons(lists ...[]string) []string {
	merged := make([]string, 0, MaxReasons)
	for i := 0; len(merged) < MaxReasons; i++ {
		advanced := false
		for _, list := range lists {
			if i < len(list) {
				merged = append(merged, list[i])
				advanced = true
				if len(merged) == MaxReasons {
					break
				}
			}
		}
		if !advanced {
			break
		}
	}
	return merged
}

func clamp01(v float64) float64 {
	return clampRange(v, 0, 1)
}

func clampRange(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
