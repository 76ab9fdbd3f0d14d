package timeutil

import (
	"testing"
	"time"
)

func TestRealClock_Now(t *testing.T) {
	clock := RealClock{}
	before := time.Now()
	now := clock.Now()
	after := time.Now()

	if now.Before(before) || now.After(after) {
		t.Errorf("Now() = %v, expected between %v and %v", now, before, after)
	}
}

func TestRealClock_Since(t *testing.T) {
	clock := RealClock{}
	if d := clock.Since(time.Now().Add(-time.Second)); d < time.Second {
		t.Errorf("Since() returned %v, expected >= 1s", d)
	}
}

func TestRealClock_NewTicker(t *testing.T) {
	clock := RealClock{}
	ticker := clock.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	select {
	case <-ticker.C():
	case <-time.After(time.Second):
		t.Error("ticker did not fire")
	}
}

func TestMockClock_NowSetSince(t *testing.T) {
	start := time.Date(2025, 1, 1, 7, 0, 0, 0, time.UTC)
	clock := NewMockClock(start)

	if !clock.Now().Equal(start) {
		t.Errorf("Now() = %v, want %v", clock.Now(), start)
	}

	clock.Set(start.Add(90 * time.Second))
	if got := clock.Since(start); got != 90*time.Second {
		t.Errorf("Since() = %v, want 90s", got)
	}
}

func TestMockClock_AdvanceFiresTicker(t *testing.T) {
	start := time.Date(2025, 1, 1, 7, 0, 0, 0, time.UTC)
	clock := NewMockClock(start)
	ticker := clock.NewTicker(time.Second)

	clock.Advance(500 * time.Millisecond)
	select {
	case <-ticker.C():
		t.Fatal("ticker fired before its interval elapsed")
	default:
	}

	clock.Advance(500 * time.Millisecond)
	select {
	case got := <-ticker.C():
		if !got.Equal(start.Add(time.Second)) {
			t.Errorf("tick = %v, want %v", got, start.Add(time.Second))
		}
	default:
		t.Fatal("ticker did not fire after its interval")
	}
}

func TestMockTicker_StopAndTrigger(t *testing.T) {
	clock := NewMockClock(time.Unix(0, 0))
	ticker := clock.NewTicker(time.Second).(*MockTicker)

	now := time.Unix(5, 0)
	ticker.Trigger(now)
	if got := <-ticker.C(); !got.Equal(now) {
		t.Errorf("Trigger delivered %v, want %v", got, now)
	}

	ticker.Stop()
	ticker.Stop()
	if !ticker.Stopped() {
		t.Error("Stopped() = false after Stop")
	}

	ticker.Trigger(now)
	clock.Advance(10 * time.Second)
	select {
	case <-ticker.C():
		t.Error("stopped ticker delivered a tick")
	default:
	}

	if n := len(clock.Tickers()); n != 1 {
		t.Errorf("Tickers() returned %d tickers, want 1", n)
	}
}
