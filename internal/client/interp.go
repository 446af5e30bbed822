package client

import (
	"time"

	"plaza/server/internal/proto"
)

// Interpolator eases a displayed remote position toward the newest
// authoritative sample instead of snapping, so sparse network updates render
// as continuous motion.
type Interpolator struct {
	// StationaryThreshold is the distance under which a delta is treated as
	// measurement noise: the position snaps and walking is suppressed.
	StationaryThreshold float64
	// BlendMin and BlendMax bound the per-step fraction of the remaining
	// distance covered. The factor grows with estimated speed.
	BlendMin float64
	BlendMax float64
	// SpeedForMaxBlend is the estimated speed (units/s) at which the blend
	// factor saturates at BlendMax.
	SpeedForMaxBlend float64
}

// DefaultInterpolator returns the production tuning.
func DefaultInterpolator() Interpolator {
	return Interpolator{
		StationaryThreshold: 1.0,
		BlendMin:            0.20,
		BlendMax:            0.40,
		SpeedForMaxBlend:    240,
	}
}

// Advance produces the next displayed state given the newest authoritative
// sample. dt is the elapsed time since the previous authoritative update for
// this user and feeds the velocity estimate.
func (ip Interpolator) Advance(displayed, target proto.PlayerState, dt time.Duration) proto.PlayerState {
	next := target
	dist := proto.Distance(displayed, target)

	if dist < ip.StationaryThreshold {
		// Sub-threshold deltas are noise, not motion.
		next.Walking = false
		return next
	}

	blend := ip.BlendMin
	if dt > 0 && ip.SpeedForMaxBlend > 0 {
		speed := dist / dt.Seconds()
		blend += (ip.BlendMax - ip.BlendMin) * (speed / ip.SpeedForMaxBlend)
	}
	if blend < ip.BlendMin {
		blend = ip.BlendMin
	}
	if blend > ip.BlendMax {
		blend = ip.BlendMax
	}

	next.X = displayed.X + (target.X-displayed.X)*blend
	next.Y = displayed.Y + (target.Y-displayed.Y)*blend
	return next
}
