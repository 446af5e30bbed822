package client

import (
	"math"
	"time"
)

// AnimState is the rendered animation for a remote avatar.
type AnimState int

const (
	AnimIdle AnimState = iota
	AnimWalking
)

func (s AnimState) String() string {
	if s == AnimWalking {
		return "walking"
	}
	return "idle"
}

// AnimConfig tunes the walk-cycle state machine.
type AnimConfig struct {
	// MinMove is the reported delta required to start walking.
	MinMove float64
	// Debounce is the minimum time between state changes.
	Debounce time.Duration
	// Lock suppresses all transitions right after one happens.
	Lock time.Duration
	// Cycle is one full walk-animation repetition; walking never stops
	// before at least one cycle has played.
	Cycle time.Duration
	// StaleTimeout forces idle when no update arrives while walking.
	StaleTimeout time.Duration
	// StationaryWindow forces idle (after the cycle completes) when the
	// position stops moving even though walking keeps being reported.
	StationaryWindow time.Duration
	// Epsilon is the per-poll movement below which the avatar counts as
	// stationary.
	Epsilon float64
}

// DefaultAnimConfig returns the production tuning.
func DefaultAnimConfig() AnimConfig {
	return AnimConfig{
		MinMove:          0.75,
		Debounce:         50 * time.Millisecond,
		Lock:             200 * time.Millisecond,
		Cycle:            400 * time.Millisecond,
		StaleTimeout:     2 * time.Second,
		StationaryWindow: time.Second,
		Epsilon:          0.1,
	}
}

// Animator decides, for one remote avatar, when to render walking versus
// idle. All cycle bookkeeping lives in this one struct so the parallel maps
// it replaces cannot drift apart.
type Animator struct {
	cfg AnimConfig

	state       AnimState
	cycleStart  time.Time
	lastChange  time.Time
	lockedUntil time.Time

	lastUpdate time.Time
	lastMove   time.Time
	lastX      float64
	lastY      float64
	seeded     bool
}

// NewAnimator builds an animator with the given tuning.
func NewAnimator(cfg AnimConfig) *Animator {
	return &Animator{cfg: cfg}
}

// Observe feeds an authoritative sample into the machine. fresh marks samples
// that arrived since the last poll; stale polls only advance the clocks.
func (a *Animator) Observe(now time.Time, x, y float64, walking, fresh bool) {
	if !a.seeded {
		a.seeded = true
		a.lastX, a.lastY = x, y
		a.lastMove = now
		a.lastUpdate = now
		return
	}

	moved := math.Hypot(x-a.lastX, y-a.lastY)
	if moved > a.cfg.Epsilon {
		a.lastMove = now
	}
	a.lastX, a.lastY = x, y
	if fresh {
		a.lastUpdate = now
	}

	switch a.state {
	case AnimIdle:
		if !walking {
			return
		}
		if moved < a.cfg.MinMove {
			return
		}
		if now.Sub(a.lastChange) < a.cfg.Debounce {
			return
		}
		if now.Before(a.lockedUntil) {
			return
		}
		a.transition(AnimWalking, now)
	case AnimWalking:
		wantIdle := !walking || now.Sub(a.lastMove) >= a.cfg.StationaryWindow
		if !wantIdle {
			return
		}
		// Never stop mid-stride: the cycle must complete first.
		if now.Sub(a.cycleStart) < a.cfg.Cycle {
			return
		}
		if now.Before(a.lockedUntil) {
			return
		}
		a.transition(AnimIdle, now)
	}
}

// State returns the rendered animation, applying the stale-walking fallback:
// a remote user frozen mid-walk drops to idle after the timeout regardless of
// cycle completion.
func (a *Animator) State(now time.Time) AnimState {
	if a.state == AnimWalking && now.Sub(a.lastUpdate) >= a.cfg.StaleTimeout {
		a.transition(AnimIdle, now)
	}
	return a.state
}

// CyclePhase reports progress through the current walk cycle in [0, 1).
func (a *Animator) CyclePhase(now time.Time) float64 {
	if a.state != AnimWalking || a.cfg.Cycle <= 0 {
		return 0
	}
	elapsed := now.Sub(a.cycleStart)
	return float64(elapsed%a.cfg.Cycle) / float64(a.cfg.Cycle)
}

func (a *Animator) transition(next AnimState, now time.Time) {
	a.state = next
	a.lastChange = now
	a.lockedUntil = now.Add(a.cfg.Lock)
	if next == AnimWalking {
		a.cycleStart = now
	}
}
