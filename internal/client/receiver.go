package client

import (
	"sort"
	"sync"
	"time"

	"plaza/server/internal/clock"
	"plaza/server/internal/proto"
)

// sampleBufferSize bounds the per-remote reorder buffer; interpolation always
// works from the newest sample so delayed duplicates cannot cause visible
// backtracking.
const sampleBufferSize = 3

// Sample is one authoritative state observation with its arrival time.
type Sample struct {
	State proto.PlayerState
	At    time.Time
}

type remoteState struct {
	samples      []Sample
	sampleGap    time.Duration // arrival spacing of the two newest samples
	displayed    proto.PlayerState
	hasDisplayed bool
	fresh        bool
	anim         *Animator
}

// RemoteAvatar is the smoothed render state for one remote user.
type RemoteAvatar struct {
	State proto.PlayerState
	Anim  AnimState
	Phase float64
}

// Receiver consumes the inbound event stream and maintains one smoothed,
// derived copy of every remote user's state.
type Receiver struct {
	mu      sync.Mutex
	clk     clock.Clock
	interp  Interpolator
	animCfg AnimConfig

	selfID  string
	remotes map[string]*remoteState
	roster  []string

	onlineCount int
	onlineIDs   []string
}

// NewReceiver builds a receiver with the given tuning.
func NewReceiver(clk clock.Clock, interp Interpolator, animCfg AnimConfig) *Receiver {
	if clk == nil {
		clk = clock.System()
	}
	return &Receiver{
		clk:     clk,
		interp:  interp,
		animCfg: animCfg,
		remotes: make(map[string]*remoteState),
	}
}

// SelfID returns the identity assigned by the server, empty before join.
func (r *Receiver) SelfID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.selfID
}

// Apply dispatches one decoded server message into the local model.
func (r *Receiver) Apply(env proto.ServerEnvelope) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clk.Now()
	switch env.Type {
	case proto.TypeJoin:
		r.selfID = env.ID
		// Broadcasts can precede the join frame on a fresh connection, so an
		// entry for the local player may exist from before the id was known.
		delete(r.remotes, env.ID)
		for _, st := range env.Players {
			r.ingestLocked(st, now)
		}
	case proto.TypeAllStates:
		for _, st := range env.Players {
			r.ingestLocked(st, now)
		}
	case proto.TypeStateUpdated:
		r.ingestLocked(env.Player, now)
	case proto.TypeUserOnline:
		// State arrives with the next snapshot; nothing to buffer yet.
	case proto.TypeUserOffline, proto.TypeUserLeft:
		delete(r.remotes, env.ID)
	case proto.TypeOnlineRoster:
		r.roster = append([]string(nil), env.IDs...)
	case proto.TypeOnlineCountReply:
		r.onlineCount = env.Count
		r.onlineIDs = append([]string(nil), env.IDs...)
	}
}

func (r *Receiver) ingestLocked(st proto.PlayerState, now time.Time) {
	if st.ID == "" || st.ID == r.selfID {
		return
	}
	rs, ok := r.remotes[st.ID]
	if !ok {
		rs = &remoteState{anim: NewAnimator(r.animCfg)}
		r.remotes[st.ID] = rs
	}
	if n := len(rs.samples); n > 0 {
		rs.sampleGap = now.Sub(rs.samples[n-1].At)
	}
	rs.samples = append(rs.samples, Sample{State: st, At: now})
	if len(rs.samples) > sampleBufferSize {
		rs.samples = rs.samples[len(rs.samples)-sampleBufferSize:]
	}
	rs.fresh = true
}

// Poll advances every remote's interpolation and animation one step and
// returns the render states sorted by user id. Call it once per frame.
func (r *Receiver) Poll(now time.Time) []RemoteAvatar {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]RemoteAvatar, 0, len(r.remotes))
	for _, rs := range r.remotes {
		n := len(rs.samples)
		if n == 0 {
			continue
		}
		newest := rs.samples[n-1]

		if !rs.hasDisplayed {
			rs.displayed = newest.State
			rs.hasDisplayed = true
		} else {
			rs.displayed = r.interp.Advance(rs.displayed, newest.State, rs.sampleGap)
		}

		rs.anim.Observe(now, newest.State.X, newest.State.Y, newest.State.Walking, rs.fresh)
		rs.fresh = false

		out = append(out, RemoteAvatar{
			State: rs.displayed,
			Anim:  rs.anim.State(now),
			Phase: rs.anim.CyclePhase(now),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].State.ID < out[j].State.ID })
	return out
}

// Roster returns the most recent identity-only presence list.
func (r *Receiver) Roster() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.roster...)
}

// OnlineCount returns the last diagnostic reply.
func (r *Receiver) OnlineCount() (int, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.onlineCount, append([]string(nil), r.onlineIDs...)
}
