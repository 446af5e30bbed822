package client

import (
	"math"
	"time"

	"plaza/server/internal/proto"
)

// SenderConfig tunes local movement and outbound throttling.
type SenderConfig struct {
	SurfaceWidth  float64
	SurfaceHeight float64
	SpriteWidth   float64
	SpriteHeight  float64

	// Speed is local movement in units per second.
	Speed float64
	// MoveThreshold mirrors the server-side significance distance.
	MoveThreshold float64
	// MinSendInterval bounds outbound bandwidth while continuously moving.
	// Facing and walking transitions bypass it.
	MinSendInterval time.Duration
}

// DefaultSenderConfig returns the production tuning.
func DefaultSenderConfig() SenderConfig {
	return SenderConfig{
		SurfaceWidth:    800,
		SurfaceHeight:   600,
		SpriteWidth:     32,
		SpriteHeight:    32,
		Speed:           160,
		MoveThreshold:   0.75,
		MinSendInterval: 150 * time.Millisecond,
	}
}

// Sender samples local movement input at render-loop cadence and decides what
// is worth transmitting, applying the same significance rule the server uses.
type Sender struct {
	cfg SenderConfig

	state      proto.PlayerState
	lastSent   proto.PlayerState
	lastSentAt time.Time
	hasSent    bool
}

// NewSender builds a sender for the local avatar.
func NewSender(cfg SenderConfig) *Sender {
	return &Sender{cfg: cfg, state: proto.PlayerState{Facing: proto.DefaultFacing}}
}

// Adopt replaces the local state with the server-assigned one from the join
// snapshot (identity, profile attributes, spawn position).
func (s *Sender) Adopt(st proto.PlayerState) {
	s.state = st
	if s.state.Facing == "" {
		s.state.Facing = proto.DefaultFacing
	}
}

// State returns the current local state.
func (s *Sender) State() proto.PlayerState { return s.state }

// Sample applies one frame of movement input and reports whether the
// resulting state should be transmitted now. dx/dy is the input direction,
// dt the frame duration in seconds.
func (s *Sender) Sample(now time.Time, dx, dy, dt float64) (proto.PlayerState, bool) {
	walking := dx != 0 || dy != 0
	if walking {
		if length := math.Hypot(dx, dy); length > 1 {
			dx /= length
			dy /= length
		}
		s.state.X += dx * s.cfg.Speed * dt
		s.state.Y += dy * s.cfg.Speed * dt
		s.state.X, s.state.Y = s.clamp(s.state.X, s.state.Y)
	}
	s.state.Facing = proto.DeriveFacing(dx, dy, s.state.Facing)
	s.state.Walking = walking

	if !s.hasSent {
		return s.markSent(now), true
	}

	walkChanged := s.state.Walking != s.lastSent.Walking
	faceChanged := s.state.Facing != s.lastSent.Facing
	if walkChanged || faceChanged {
		// Rare and latency-sensitive; skip the throttle.
		return s.markSent(now), true
	}

	if proto.Distance(s.lastSent, s.state) >= s.cfg.MoveThreshold &&
		now.Sub(s.lastSentAt) >= s.cfg.MinSendInterval {
		return s.markSent(now), true
	}

	return proto.PlayerState{}, false
}

// Republish returns the last known local state for retransmission after the
// transport reconnects, so stale remote copies are corrected promptly.
func (s *Sender) Republish(now time.Time) proto.PlayerState {
	return s.markSent(now)
}

func (s *Sender) markSent(now time.Time) proto.PlayerState {
	s.lastSent = s.state
	s.lastSentAt = now
	s.hasSent = true
	return s.state
}

func (s *Sender) clamp(x, y float64) (float64, float64) {
	maxX := s.cfg.SurfaceWidth - s.cfg.SpriteWidth
	maxY := s.cfg.SurfaceHeight - s.cfg.SpriteHeight
	if x < 0 {
		x = 0
	} else if x > maxX {
		x = maxX
	}
	if y < 0 {
		y = 0
	} else if y > maxY {
		y = maxY
	}
	return x, y
}
