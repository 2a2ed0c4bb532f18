package indicators

import (
	"math"
	"testing"
	"time"

	"signal-trading-engine/internal/exchange"
)

func barsFromCloses(closes ...float64) []exchange.Bar {
	bars := make([]exchange.Bar, len(closes))
	ts := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, c := range closes {
		bars[i] = exchange.Bar{
			Open: c, High: c * 1.01, Low: c * 0.99, Close: c,
			Volume:    1000,
			Timestamp: ts.Add(time.Duration(i) * time.Minute),
		}
	}
	return bars
}

func TestSMA(t *testing.T) {
	bars := barsFromCloses(1, 2, 3, 4, 5)
	if got := SMA(bars, 5); got != 3 {
		t.Errorf("SMA = %v, want 3", got)
	}
	if got := SMA(bars, 2); got != 4.5 {
		t.Errorf("SMA(2) = %v, want 4.5", got)
	}
	if got := SMA(bars, 10); got != 0 {
		t.Errorf("SMA with short input = %v, want 0", got)
	}
}

func TestEMAConvergesTowardRecentPrices(t *testing.T) {
	// Rising series: EMA must sit above the simple average.
	bars := barsFromCloses(10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20)
	ema := EMA(bars, 5)
	sma := SMA(bars, len(bars))
	if ema <= sma {
		t.Errorf("EMA %v should exceed full-series SMA %v in an uptrend", ema, sma)
	}
}

func TestRSIExtremes(t *testing.T) {
	up := barsFromCloses(1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15)
	if got := RSI(up, 14); got != 100 {
		t.Errorf("all-gains RSI = %v, want 100", got)
	}

	down := barsFromCloses(15, 14, 13, 12, 11, 10, 9, 8, 7, 6, 5, 4, 3, 2, 1)
	if got := RSI(down, 14); got != 0 {
		t.Errorf("all-losses RSI = %v, want 0", got)
	}

	if got := RSI(barsFromCloses(1, 2), 14); got != 50 {
		t.Errorf("short-input RSI = %v, want neutral 50", got)
	}
}

func TestBollingerBandsOrdering(t *testing.T) {
	bars := barsFromCloses(10, 12, 11, 13, 12, 14, 13, 15, 14, 16, 15, 17, 16, 18, 17, 19, 18, 20, 19, 21)
	bb := Bollinger(bars, 20, 2.0)
	if !(bb.Lower < bb.Middle && bb.Middle < bb.Upper) {
		t.Errorf("band ordering violated: %+v", bb)
	}
}

func TestROC(t *testing.T) {
	bars := barsFromCloses(100, 101, 102, 103, 104, 110)
	got := ROC(bars, 5)
	if math.Abs(got-10) > 1e-9 {
		t.Errorf("ROC = %v, want 10", got)
	}
}

func TestFindSupportResistance(t *testing.T) {
	bars := barsFromCloses(10, 20, 15, 18, 12)
	support, resistance := FindSupportResistance(bars, 5)
	if support != 10*0.99 {
		t.Errorf("support = %v, want %v", support, 10*0.99)
	}
	if resistance != 20*1.01 {
		t.Errorf("resistance = %v, want %v", resistance, 20*1.01)
	}
}

func TestDetectTrend(t *testing.T) {
	up := barsFromCloses(10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20, 21, 22, 23, 24, 25, 26, 27, 28, 29, 30,
		31, 32, 33, 34, 35, 36, 37, 38, 39, 40, 41, 42, 43, 44, 45, 46, 47, 48, 49, 50, 51, 52, 53, 54, 55, 56, 57, 58, 59, 60)
	if got := DetectTrend(up, 20, 50); got != TrendUp {
		t.Errorf("trend = %v, want UPTREND", got)
	}

	down := make([]exchange.Bar, 0, 51)
	for c := 60.0; c >= 10; c-- {
		down = append(down, barsFromCloses(c)[0])
	}
	if got := DetectTrend(down, 20, 50); got != TrendDown {
		t.Errorf("trend = %v, want DOWNTREND", got)
	}
}

func TestIsVolumeSpike(t *testing.T) {
	bars := barsFromCloses(10, 10, 10, 10, 10, 10)
	bars[len(bars)-1].Volume = 5000 // 5x the 1000 baseline
	if !IsVolumeSpike(bars, 5, 2.0) {
		t.Error("expected volume spike")
	}
	bars[len(bars)-1].Volume = 1100
	if IsVolumeSpike(bars, 5, 2.0) {
		t.Error("unexpected volume spike")
	}
}
