package proto

import "math"

// Facing identifies the orientation of an avatar.
type Facing string

const (
	FacingUp    Facing = "up"
	FacingDown  Facing = "down"
	FacingLeft  Facing = "left"
	FacingRight Facing = "right"
)

// DefaultFacing is applied when a client never reported an orientation.
const DefaultFacing = FacingDown

// ParseFacing validates a client-supplied facing value.
func ParseFacing(value string) (Facing, bool) {
	switch Facing(value) {
	case FacingUp, FacingDown, FacingLeft, FacingRight:
		return Facing(value), true
	default:
		return "", false
	}
}

// DeriveFacing picks the orientation implied by a movement vector, keeping the
// fallback when the vector is (near) zero.
func DeriveFacing(dx, dy float64, fallback Facing) Facing {
	if fallback == "" {
		fallback = DefaultFacing
	}

	const epsilon = 1e-6
	if math.Abs(dx) < epsilon {
		dx = 0
	}
	if math.Abs(dy) < epsilon {
		dy = 0
	}
	if dx == 0 && dy == 0 {
		return fallback
	}

	if math.Abs(dy) >= math.Abs(dx) && dy != 0 {
		if dy > 0 {
			return FacingDown
		}
		return FacingUp
	}
	if dx > 0 {
		return FacingRight
	}
	return FacingLeft
}

// PlayerState is the authoritative per-user presence record exchanged on the
// wire. Name, Avatar, and Color are fixed at connect time; the rest changes
// with every accepted update.
type PlayerState struct {
	ID      string  `json:"id"`
	Name    string  `json:"name,omitempty"`
	Avatar  string  `json:"avatar,omitempty"`
	Color   string  `json:"color,omitempty"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Facing  Facing  `json:"facing"`
	Walking bool    `json:"walking"`
}

// Distance returns the Euclidean distance between two states' positions.
func Distance(a, b PlayerState) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}
