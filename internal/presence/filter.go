package presence

import "plaza/server/internal/proto"

// Significant reports whether a candidate state differs enough from the
// previously accepted one to justify broadcast cost. Sub-threshold positional
// jitter and repeated identical frames are filtered out; facing and walking
// transitions always pass.
func Significant(prev *proto.PlayerState, next proto.PlayerState, moveThreshold float64) bool {
	if prev == nil {
		return true
	}
	if prev.Facing != next.Facing {
		return true
	}
	if prev.Walking != next.Walking {
		return true
	}
	return proto.Distance(*prev, next) >= moveThreshold
}
