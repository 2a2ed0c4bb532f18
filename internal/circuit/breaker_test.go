package circuit

import (
	"errors"
	"testing"
	"time"
)

func testConfig() BreakerConfig {
	return BreakerConfig{
		Enabled:                true,
		MaxConsecutiveFailures: 3,
		CooldownMinutes:        15,
	}
}

func TestBreakerStartsClosed(t *testing.T) {
	b := NewBreaker(testConfig())
	if allowed, _ := b.Allow("BTCUSDT"); !allowed {
		t.Error("fresh breaker should allow")
	}
	if b.State("BTCUSDT") != StateClosed {
		t.Errorf("state = %v, want closed", b.State("BTCUSDT"))
	}
}

func TestBreakerTripsAfterConsecutiveFailures(t *testing.T) {
	b := NewBreaker(testConfig())

	b.RecordFailure("BTCUSDT", errors.New("placement failed"))
	b.RecordFailure("BTCUSDT", errors.New("placement failed"))
	if b.State("BTCUSDT") != StateClosed {
		t.Fatal("breaker tripped before threshold")
	}

	b.RecordFailure("BTCUSDT", errors.New("placement failed"))
	if b.State("BTCUSDT") != StateOpen {
		t.Fatal("breaker did not trip at threshold")
	}

	allowed, reason := b.Allow("BTCUSDT")
	if allowed {
		t.Error("open breaker should deny")
	}
	if reason == "" {
		t.Error("denial should carry a reason")
	}
}

func TestBreakerIsPerSymbol(t *testing.T) {
	b := NewBreaker(testConfig())
	for i := 0; i < 3; i++ {
		b.RecordFailure("BTCUSDT", errors.New("fail"))
	}

	if allowed, _ := b.Allow("ETHUSDT"); !allowed {
		t.Error("failures on one symbol must not trip another")
	}
	if allowed, _ := b.Allow("BTCUSDT"); allowed {
		t.Error("tripped symbol should deny")
	}
}

func TestBreakerSuccessClearsStreak(t *testing.T) {
	b := NewBreaker(testConfig())

	b.RecordFailure("BTCUSDT", errors.New("fail"))
	b.RecordFailure("BTCUSDT", errors.New("fail"))
	b.RecordSuccess("BTCUSDT")
	b.RecordFailure("BTCUSDT", errors.New("fail"))
	b.RecordFailure("BTCUSDT", errors.New("fail"))

	if b.State("BTCUSDT") != StateClosed {
		t.Error("success should have reset the failure streak")
	}
}

func TestBreakerHalfOpenAfterCooldown(t *testing.T) {
	b := NewBreaker(testConfig())
	for i := 0; i < 3; i++ {
		b.RecordFailure("BTCUSDT", errors.New("fail"))
	}

	// Rewind the trip time past the cooldown.
	b.mu.Lock()
	b.symbols["BTCUSDT"].lastTripTime = time.Now().Add(-20 * time.Minute)
	b.mu.Unlock()

	allowed, _ := b.Allow("BTCUSDT")
	if !allowed {
		t.Fatal("cooldown elapsed, probe should be allowed")
	}
	if b.State("BTCUSDT") != StateHalfOpen {
		t.Errorf("state = %v, want half_open", b.State("BTCUSDT"))
	}

	// Probe success closes the breaker.
	b.RecordSuccess("BTCUSDT")
	if b.State("BTCUSDT") != StateClosed {
		t.Error("probe success should close the breaker")
	}
}

func TestBreakerHalfOpenProbeFailureReopens(t *testing.T) {
	b := NewBreaker(testConfig())
	for i := 0; i < 3; i++ {
		b.RecordFailure("BTCUSDT", errors.New("fail"))
	}
	b.mu.Lock()
	b.symbols["BTCUSDT"].lastTripTime = time.Now().Add(-20 * time.Minute)
	b.mu.Unlock()
	b.Allow("BTCUSDT") // half-open

	b.RecordFailure("BTCUSDT", errors.New("still failing"))
	if b.State("BTCUSDT") != StateOpen {
		t.Error("probe failure should re-open immediately")
	}
	if allowed, _ := b.Allow("BTCUSDT"); allowed {
		t.Error("re-opened breaker should deny")
	}
}

func TestBreakerForceReset(t *testing.T) {
	b := NewBreaker(testConfig())
	for i := 0; i < 3; i++ {
		b.RecordFailure("BTCUSDT", errors.New("fail"))
	}

	b.ForceReset("BTCUSDT")
	if allowed, _ := b.Allow("BTCUSDT"); !allowed {
		t.Error("force reset should allow immediately")
	}
}

func TestBreakerDisabledAlwaysAllows(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false
	b := NewBreaker(cfg)

	for i := 0; i < 10; i++ {
		b.RecordFailure("BTCUSDT", errors.New("fail"))
	}
	if allowed, _ := b.Allow("BTCUSDT"); !allowed {
		t.Error("disabled breaker must not deny")
	}
}
