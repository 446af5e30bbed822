package client

import (
	"testing"
	"time"
)

func testAnimTimes() (time.Time, *Animator) {
	start := time.Unix(1000, 0)
	return start, NewAnimator(DefaultAnimConfig())
}

func TestAnimatorStartsWalkingOnRealMovement(t *testing.T) {
	start, a := testAnimTimes()

	a.Observe(start, 100, 100, false, true)
	a.Observe(start.Add(150*time.Millisecond), 104, 100, true, true)

	if got := a.State(start.Add(150 * time.Millisecond)); got != AnimWalking {
		t.Fatalf("expected walking, got %s", got)
	}
}

func TestAnimatorIgnoresNoiseBelowMinMove(t *testing.T) {
	start, a := testAnimTimes()

	a.Observe(start, 100, 100, false, true)
	a.Observe(start.Add(150*time.Millisecond), 100.3, 100, true, true)

	if got := a.State(start.Add(150 * time.Millisecond)); got != AnimIdle {
		t.Fatalf("expected idle for sub-threshold movement, got %s", got)
	}
}

func TestAnimatorHoldsWalkingForFullCycle(t *testing.T) {
	start, a := testAnimTimes()
	cfg := DefaultAnimConfig()

	a.Observe(start, 100, 100, false, true)
	walkAt := start.Add(100 * time.Millisecond)
	a.Observe(walkAt, 104, 100, true, true)
	if got := a.State(walkAt); got != AnimWalking {
		t.Fatalf("expected walking after movement, got %s", got)
	}

	// The flag drops mid-cycle; the animation must finish its stride.
	midCycle := walkAt.Add(cfg.Cycle / 2)
	a.Observe(midCycle, 104, 100, false, true)
	if got := a.State(midCycle); got != AnimWalking {
		t.Fatalf("expected walking held until cycle completes, got %s", got)
	}

	afterCycle := walkAt.Add(cfg.Cycle + 50*time.Millisecond)
	a.Observe(afterCycle, 104, 100, false, true)
	if got := a.State(afterCycle); got != AnimIdle {
		t.Fatalf("expected idle after cycle completed, got %s", got)
	}
}

func TestAnimatorLockSuppressesImmediateRetransition(t *testing.T) {
	start, a := testAnimTimes()
	cfg := DefaultAnimConfig()

	a.Observe(start, 100, 100, false, true)
	walkAt := start.Add(100 * time.Millisecond)
	a.Observe(walkAt, 104, 100, true, true)

	// Even a full-cycle-old walking state cannot flip while locked.
	if a.State(walkAt) != AnimWalking {
		t.Fatalf("expected walking")
	}
	locked := walkAt.Add(cfg.Lock / 2)
	a.Observe(locked, 104, 100, false, true)
	if got := a.State(locked); got != AnimWalking {
		t.Fatalf("expected lock to suppress transition, got %s", got)
	}
}

func TestAnimatorStaleWalkingFallsBackToIdle(t *testing.T) {
	start, a := testAnimTimes()
	cfg := DefaultAnimConfig()

	a.Observe(start, 100, 100, false, true)
	walkAt := start.Add(100 * time.Millisecond)
	a.Observe(walkAt, 104, 100, true, true)
	if a.State(walkAt) != AnimWalking {
		t.Fatalf("expected walking")
	}

	// No updates at all: the fallback fires even without a qualifying cycle path.
	if got := a.State(walkAt.Add(cfg.StaleTimeout)); got != AnimIdle {
		t.Fatalf("expected stale fallback to idle, got %s", got)
	}
}

func TestAnimatorStationaryOverride(t *testing.T) {
	start, a := testAnimTimes()
	cfg := DefaultAnimConfig()

	a.Observe(start, 100, 100, false, true)
	walkAt := start.Add(100 * time.Millisecond)
	a.Observe(walkAt, 104, 100, true, true)

	// The remote keeps claiming walking=true without moving.
	now := walkAt
	for i := 0; i < 6; i++ {
		now = now.Add(200 * time.Millisecond)
		a.Observe(now, 104, 100, true, true)
	}
	if now.Sub(walkAt) < cfg.StationaryWindow {
		t.Fatalf("test setup: window not exceeded")
	}
	if got := a.State(now); got != AnimIdle {
		t.Fatalf("expected stationary override to force idle, got %s", got)
	}
}

func TestAnimatorCyclePhaseAdvances(t *testing.T) {
	start, a := testAnimTimes()
	cfg := DefaultAnimConfig()

	a.Observe(start, 100, 100, false, true)
	walkAt := start.Add(100 * time.Millisecond)
	a.Observe(walkAt, 104, 100, true, true)

	early := a.CyclePhase(walkAt.Add(cfg.Cycle / 4))
	late := a.CyclePhase(walkAt.Add(cfg.Cycle / 2))
	if early <= 0 || late <= early || late >= 1 {
		t.Fatalf("expected monotonic phase in (0,1), got early=%v late=%v", early, late)
	}
}
