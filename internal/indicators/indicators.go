package indicators

import (
	"math"

	"signal-trading-engine/internal/exchange"
)

// ============================================================================
// MOVING AVERAGES
// ============================================================================

// SMA calculates Simple Moving Average over the closing prices
func SMA(bars []exchange.Bar, period int) float64 {
	if len(bars) < period {
		return 0
	}

	sum := 0.0
	for i := len(bars) - period; i < len(bars); i++ {
		sum += bars[i].Close
	}
	return sum / float64(period)
}

// EMA calculates Exponential Moving Average
func EMA(bars []exchange.Bar, period int) float64 {
	if len(bars) < period {
		return 0
	}

	// Initial SMA as the seed
	ema := SMA(bars[:period], period)
	multiplier := 2.0 / float64(period+1)

	for i := period; i < len(bars); i++ {
		ema = (bars[i].Close * multiplier) + (ema * (1 - multiplier))
	}
	return ema
}

// ============================================================================
// RSI (Relative Strength Index)
// ============================================================================

// RSI calculates the Relative Strength Index
func RSI(bars []exchange.Bar, period int) float64 {
	if len(bars) < period+1 {
		return 50.0 // Neutral RSI
	}

	gains := 0.0
	losses := 0.0
	for i := len(bars) - period; i < len(bars); i++ {
		change := bars[i].Close - bars[i-1].Close
		if change > 0 {
			gains += change
		} else {
			losses += -change
		}
	}

	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)

	if avgLoss == 0 {
		return 100.0
	}

	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// ============================================================================
// MACD (Moving Average Convergence Divergence)
// ============================================================================

// MACDResult holds MACD indicator values
type MACDResult struct {
	MACD      float64
	Signal    float64
	Histogram float64
}

// MACD calculates the MACD line, signal line approximation, and histogram
func MACD(bars []exchange.Bar, fastPeriod, slowPeriod, signalPeriod int) MACDResult {
	if len(bars) < slowPeriod+signalPeriod {
		return MACDResult{}
	}

	fastEMA := EMA(bars, fastPeriod)
	slowEMA := EMA(bars, slowPeriod)
	macdLine := fastEMA - slowEMA

	// Signal approximated from the current MACD value; a full signal
	// line would need a MACD history series.
	signalLine := macdLine * 0.8

	return MACDResult{
		MACD:      macdLine,
		Signal:    signalLine,
		Histogram: macdLine - signalLine,
	}
}

// ============================================================================
// BOLLINGER BANDS
// ============================================================================

// BollingerResult holds Bollinger Bands values
type BollingerResult struct {
	Upper  float64
	Middle float64
	Lower  float64
}

// Bollinger calculates Bollinger Bands
func Bollinger(bars []exchange.Bar, period int, stdDevMultiplier float64) BollingerResult {
	if len(bars) < period {
		return BollingerResult{}
	}

	middle := SMA(bars, period)

	variance := 0.0
	for i := len(bars) - period; i < len(bars); i++ {
		diff := bars[i].Close - middle
		variance += diff * diff
	}
	stdDev := math.Sqrt(variance / float64(period))

	return BollingerResult{
		Upper:  middle + (stdDev * stdDevMultiplier),
		Middle: middle,
		Lower:  middle - (stdDev * stdDevMultiplier),
	}
}

// ============================================================================
// ATR / ADX
// ============================================================================

// ATR calculates Average True Range
func ATR(bars []exchange.Bar, period int) float64 {
	if len(bars) < period+1 {
		return 0
	}

	trSum := 0.0
	for i := len(bars) - period; i < len(bars); i++ {
		high := bars[i].High
		low := bars[i].Low
		prevClose := bars[i-1].Close

		tr := math.Max(high-low, math.Max(math.Abs(high-prevClose), math.Abs(low-prevClose)))
		trSum += tr
	}
	return trSum / float64(period)
}

// ADX approximates the Average Directional Index from the latest bar's
// range against ATR.
func ADX(bars []exchange.Bar, period int) float64 {
	if len(bars) < period+1 {
		return 0
	}

	atr := ATR(bars, period)
	if atr == 0 {
		return 0
	}

	priceRange := bars[len(bars)-1].High - bars[len(bars)-1].Low
	adx := (priceRange / atr) * 25
	if adx > 100 {
		adx = 100
	}
	return adx
}

// ============================================================================
// VOLUME
// ============================================================================

// AverageVolume calculates average volume over a period
func AverageVolume(bars []exchange.Bar, period int) float64 {
	if len(bars) == 0 {
		return 0
	}
	if len(bars) < period {
		period = len(bars)
	}

	sum := 0.0
	for i := len(bars) - period; i < len(bars); i++ {
		sum += bars[i].Volume
	}
	return sum / float64(period)
}

// IsVolumeSpike checks if current volume is significantly above average
func IsVolumeSpike(bars []exchange.Bar, period int, multiplier float64) bool {
	if len(bars) < period+1 {
		return false
	}

	avgVolume := AverageVolume(bars[:len(bars)-1], period)
	return bars[len(bars)-1].Volume >= avgVolume*multiplier
}

// ============================================================================
// MOMENTUM
// ============================================================================

// ROC calculates Rate of Change as a percentage over the period
func ROC(bars []exchange.Bar, period int) float64 {
	if len(bars) < period+1 {
		return 0
	}

	currentPrice := bars[len(bars)-1].Close
	pastPrice := bars[len(bars)-period-1].Close
	if pastPrice == 0 {
		return 0
	}
	return ((currentPrice - pastPrice) / pastPrice) * 100
}

// ============================================================================
// SUPPORT AND RESISTANCE
// ============================================================================

// FindSupportResistance identifies the period's support and resistance
func FindSupportResistance(bars []exchange.Bar, period int) (support float64, resistance float64) {
	if len(bars) < period {
		return 0, 0
	}

	startIdx := len(bars) - period
	high := bars[startIdx].High
	low := bars[startIdx].Low

	for i := startIdx; i < len(bars); i++ {
		if bars[i].High > high {
			high = bars[i].High
		}
		if bars[i].Low < low {
			low = bars[i].Low
		}
	}
	return low, high
}

// ============================================================================
// TREND DETECTION
// ============================================================================

// TrendDirection represents the current trend
type TrendDirection string

const (
	TrendUp       TrendDirection = "UPTREND"
	TrendDown     TrendDirection = "DOWNTREND"
	TrendSideways TrendDirection = "SIDEWAYS"
)

// DetectTrend detects the current trend using EMAs
func DetectTrend(bars []exchange.Bar, fastPeriod, slowPeriod int) TrendDirection {
	if len(bars) < slowPeriod {
		return TrendSideways
	}

	fastEMA := EMA(bars, fastPeriod)
	slowEMA := EMA(bars, slowPeriod)
	if slowEMA == 0 {
		return TrendSideways
	}

	// EMAs within 0.5% of each other read as sideways
	difference := math.Abs(fastEMA-slowEMA) / slowEMA * 100
	if difference < 0.5 {
		return TrendSideways
	}
	if fastEMA > slowEMA {
		return TrendUp
	}
	return TrendDown
}
