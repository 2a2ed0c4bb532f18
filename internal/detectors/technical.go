package detectors

import (
	"fmt"

	"signal-trading-engine/internal/exchange"
	"signal-trading-engine/internal/indicators"
	"signal-trading-engine/internal/scoring"
)

// minBars is the history needed for the built-in technical detectors
const minBars = 50

// CoreTechnical derives the primary technical-analysis signal from
// EMA structure, RSI, and MACD. Returns nil when history is too short.
func CoreTechnical(symbol string, bars []exchange.Bar) *scoring.CoreSignal {
	if len(bars) < minBars {
		return nil
	}

	currentPrice := bars[len(bars)-1].Close
	ema20 := indicators.EMA(bars, 20)
	ema50 := indicators.EMA(bars, 50)
	rsi := indicators.RSI(bars, 14)
	macd := indicators.MACD(bars, 12, 26, 9)

	bullishScore := 0
	bearishScore := 0
	reasons := []string{}

	// EMA structure
	if currentPrice > ema20 && ema20 > ema50 {
		bullishScore += 2
		reasons = append(reasons, "Price > EMA20 > EMA50")
	} else if currentPrice < ema20 && ema20 < ema50 {
		bearishScore += 2
		reasons = append(reasons, "Price < EMA20 < EMA50")
	} else if currentPrice > ema20 {
		bullishScore++
		reasons = append(reasons, "Price > EMA20")
	} else if currentPrice < ema20 {
		bearishScore++
		reasons = append(reasons, "Price < EMA20")
	}

	// RSI zones
	if rsi < 30 {
		bullishScore += 2
		reasons = append(reasons, fmt.Sprintf("RSI oversold (%.1f)", rsi))
	} else if rsi > 70 {
		bearishScore += 2
		reasons = append(reasons, fmt.Sprintf("RSI overbought (%.1f)", rsi))
	} else if rsi < 45 {
		bullishScore++
		reasons = append(reasons, fmt.Sprintf("RSI bullish zone (%.1f)", rsi))
	} else if rsi > 55 {
		bearishScore++
		reasons = append(reasons, fmt.Sprintf("RSI bearish zone (%.1f)", rsi))
	}

	// MACD crossover
	if macd.Histogram > 0 && macd.MACD > macd.Signal {
		bullishScore++
		reasons = append(reasons, "MACD bullish crossover")
	} else if macd.Histogram < 0 && macd.MACD < macd.Signal {
		bearishScore++
		reasons = append(reasons, "MACD bearish crossover")
	}

	action := scoring.ActionHold
	confidence := 0.5
	totalScore := bullishScore + bearishScore
	if totalScore > 0 {
		if bullishScore > bearishScore {
			action = scoring.ActionBuy
			confidence = 0.5 + (float64(bullishScore-bearishScore) / float64(totalScore+2) * 0.4)
		} else if bearishScore > bullishScore {
			action = scoring.ActionSell
			confidence = 0.5 + (float64(bearishScore-bullishScore) / float64(totalScore+2) * 0.4)
		}
	}

	// Map the bull/bear balance onto [0,1]: all-bear 0, all-bull 1.
	score := 0.5
	if totalScore > 0 {
		score = float64(bullishScore) / float64(totalScore)
	}
	strength := 0.1
	if totalScore > 0 {
		strength = float64(maxInt(bullishScore, bearishScore)) / 5.0
	}

	cs := scoring.NewCoreSignal(action, strength, confidence, score, reasons...)
	return &cs
}

// AuxIndicators derives the auxiliary indicator group from Bollinger,
// volume, support/resistance, ADX, and ROC. Returns nil when history
// is too short.
func AuxIndicators(symbol string, bars []exchange.Bar) *scoring.AuxScores {
	if len(bars) < minBars {
		return nil
	}

	currentPrice := bars[len(bars)-1].Close

	bb := indicators.Bollinger(bars, 20, 2.0)
	bollinger := scoring.NewLayerScore(0.5)
	if bb.Upper > bb.Lower {
		// Position within the bands: near the lower band reads bullish.
		pos := (currentPrice - bb.Lower) / (bb.Upper - bb.Lower)
		bollinger = scoring.NewLayerScore(1-pos, fmt.Sprintf("price at %.0f%% of Bollinger range", pos*100))
	}

	volume := scoring.NewLayerScore(0.5)
	if indicators.IsVolumeSpike(bars, 20, 2.0) {
		// A spike confirms whichever way the last bar moved.
		last := bars[len(bars)-1]
		if last.Close >= last.Open {
			volume = scoring.NewLayerScore(0.75, "volume spike on up bar")
		} else {
			volume = scoring.NewLayerScore(0.25, "volume spike on down bar")
		}
	}

	sr := scoring.NewLayerScore(0.5)
	if support, resistance := indicators.FindSupportResistance(bars, minBars); resistance > support {
		pos := (currentPrice - support) / (resistance - support)
		sr = scoring.NewLayerScore(1-pos, fmt.Sprintf("price at %.0f%% of S/R range", pos*100))
	}

	adxVal := indicators.ADX(bars, 14)
	adx := scoring.NewLayerScore(0.5)
	if adxVal > 25 {
		// Strong trend: lean with the EMA direction.
		switch indicators.DetectTrend(bars, 20, 50) {
		case indicators.TrendUp:
			adx = scoring.NewLayerScore(0.7, fmt.Sprintf("ADX %.0f confirms uptrend", adxVal))
		case indicators.TrendDown:
			adx = scoring.NewLayerScore(0.3, fmt.Sprintf("ADX %.0f confirms downtrend", adxVal))
		}
	}

	rocVal := indicators.ROC(bars, 10)
	// Clamp ROC to ±10% before scaling onto [0,1].
	if rocVal > 10 {
		rocVal = 10
	} else if rocVal < -10 {
		rocVal = -10
	}
	roc := scoring.NewLayerScore(0.5+rocVal/20, fmt.Sprintf("ROC %.2f%%", rocVal))

	as := scoring.NewAuxScores(bollinger, volume, sr, adx, roc)
	return &as
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
