package presence

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"plaza/server/internal/clock"
	"plaza/server/internal/proto"
	"plaza/server/logging"
)

type stubClock struct {
	mu  sync.Mutex
	now time.Time
}

func newStubClock(start time.Time) *stubClock {
	return &stubClock{now: start}
}

func (c *stubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stubClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingConn struct {
	mu        sync.Mutex
	frames    [][]byte
	failWrite bool
	closed    bool
}

func (c *recordingConn) Write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failWrite {
		return errors.New("write refused")
	}
	c.frames = append(c.frames, append([]byte(nil), data...))
	return nil
}

func (c *recordingConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *recordingConn) envelopes(t *testing.T) []proto.ServerEnvelope {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]proto.ServerEnvelope, 0, len(c.frames))
	for _, frame := range c.frames {
		var env proto.ServerEnvelope
		if err := json.Unmarshal(frame, &env); err != nil {
			t.Fatalf("failed to decode recorded frame: %v", err)
		}
		out = append(out, env)
	}
	return out
}

func (c *recordingConn) byType(t *testing.T, typ string) []proto.ServerEnvelope {
	t.Helper()
	var out []proto.ServerEnvelope
	for _, env := range c.envelopes(t) {
		if env.Type == typ {
			out = append(out, env)
		}
	}
	return out
}

func newTestHub(clk clock.Clock) *Hub {
	return NewHub(DefaultConfig(), clk, logging.Nop())
}

func TestJoinSnapshotComplete(t *testing.T) {
	clk := newStubClock(time.Unix(1000, 0))
	hub := newTestHub(clk)

	hub.Join("alice", Profile{Name: "Alice"}, &recordingConn{})
	hub.Join("bob", Profile{Name: "Bob"}, &recordingConn{})
	snapshot := hub.Join("carol", Profile{Name: "Carol"}, &recordingConn{})

	if len(snapshot) != 3 {
		t.Fatalf("expected 3 players in join snapshot, got %d", len(snapshot))
	}
	seen := make(map[string]int)
	for _, st := range snapshot {
		seen[st.ID]++
	}
	for _, id := range []string{"alice", "bob", "carol"} {
		if seen[id] != 1 {
			t.Fatalf("expected %s exactly once in snapshot, got %d", id, seen[id])
		}
	}
}

func TestJoinAnnouncesToOthersOnly(t *testing.T) {
	clk := newStubClock(time.Unix(1000, 0))
	hub := newTestHub(clk)

	aliceConn := &recordingConn{}
	hub.Join("alice", Profile{}, aliceConn)

	bobConn := &recordingConn{}
	hub.Join("bob", Profile{}, bobConn)

	online := aliceConn.byType(t, proto.TypeUserOnline)
	if len(online) != 1 || online[0].ID != "bob" {
		t.Fatalf("expected alice to see one userOnline for bob, got %v", online)
	}
	if got := bobConn.byType(t, proto.TypeUserOnline); len(got) != 0 {
		t.Fatalf("expected joiner not to receive its own userOnline, got %d", len(got))
	}
	// Everyone, the joiner included, converges via the immediate snapshot.
	if got := bobConn.byType(t, proto.TypeAllStates); len(got) != 1 {
		t.Fatalf("expected joiner to receive one allStates broadcast, got %d", len(got))
	}
}

func TestReconnectKeepsStateAndClosesOldConn(t *testing.T) {
	clk := newStubClock(time.Unix(1000, 0))
	hub := newTestHub(clk)

	first := &recordingConn{}
	hub.Join("alice", Profile{Name: "Alice"}, first)
	hub.UpdateState("alice", proto.PlayerState{X: 120, Y: 140, Facing: proto.FacingLeft, Walking: true})

	second := &recordingConn{}
	hub.Join("alice", Profile{Name: "Alice"}, second)

	if !first.closed {
		t.Fatalf("expected superseded connection to be closed")
	}
	st, ok := hub.registry.Get("alice")
	if !ok {
		t.Fatalf("expected alice to stay registered across reconnect")
	}
	if st.X != 120 || st.Y != 140 {
		t.Fatalf("expected retained position (120,140), got (%v,%v)", st.X, st.Y)
	}
}

func TestUpdateStateFansOutExceptOrigin(t *testing.T) {
	clk := newStubClock(time.Unix(1000, 0))
	hub := newTestHub(clk)

	aliceConn := &recordingConn{}
	bobConn := &recordingConn{}
	hub.Join("alice", Profile{}, aliceConn)
	hub.Join("bob", Profile{}, bobConn)

	if !hub.UpdateState("alice", proto.PlayerState{X: 200, Y: 200, Facing: proto.FacingUp, Walking: true}) {
		t.Fatalf("expected update to be accepted")
	}

	updates := bobConn.byType(t, proto.TypeStateUpdated)
	if len(updates) != 1 {
		t.Fatalf("expected bob to receive one stateUpdated, got %d", len(updates))
	}
	if updates[0].Player.ID != "alice" || updates[0].Player.X != 200 {
		t.Fatalf("unexpected update payload: %+v", updates[0].Player)
	}
	if got := aliceConn.byType(t, proto.TypeStateUpdated); len(got) != 0 {
		t.Fatalf("expected origin to be excluded from fan-out, got %d frames", len(got))
	}
}

func TestUpdateStateRepeatsAreFiltered(t *testing.T) {
	clk := newStubClock(time.Unix(1000, 0))
	hub := newTestHub(clk)

	bobConn := &recordingConn{}
	hub.Join("alice", Profile{}, &recordingConn{})
	hub.Join("bob", Profile{}, bobConn)

	update := proto.PlayerState{X: 300, Y: 220, Facing: proto.FacingRight, Walking: true}
	if !hub.UpdateState("alice", update) {
		t.Fatalf("expected first update to be accepted")
	}
	// The repeat has no movement behind its walking flag, so it is accepted
	// once as a downgrade to walking=false.
	if !hub.UpdateState("alice", update) {
		t.Fatalf("expected stationary repeat to be accepted as walking downgrade")
	}
	st, _ := hub.registry.Get("alice")
	if st.Walking {
		t.Fatalf("expected walking downgraded to false on stationary repeat")
	}
	// From here the state is settled and repeats are filtered.
	if hub.UpdateState("alice", update) {
		t.Fatalf("expected settled repeat update to be filtered")
	}

	if got := len(bobConn.byType(t, proto.TypeStateUpdated)); got != 2 {
		t.Fatalf("expected exactly two stateUpdated events, got %d", got)
	}
	if got := hub.Metrics().Snapshot().UpdatesFiltered; got != 1 {
		t.Fatalf("expected 1 filtered update, got %d", got)
	}
}

func TestUpdateStateClampsPosition(t *testing.T) {
	clk := newStubClock(time.Unix(1000, 0))
	hub := newTestHub(clk)
	cfg := hub.Config()

	hub.Join("alice", Profile{}, &recordingConn{})
	hub.UpdateState("alice", proto.PlayerState{X: -500, Y: 1e9, Walking: true})

	st, _ := hub.registry.Get("alice")
	if st.X != 0 {
		t.Fatalf("expected X clamped to 0, got %v", st.X)
	}
	if want := cfg.SurfaceHeight - cfg.SpriteHeight; st.Y != want {
		t.Fatalf("expected Y clamped to %v, got %v", want, st.Y)
	}
}

func TestUpdateStateSuppressesStationaryWalking(t *testing.T) {
	clk := newStubClock(time.Unix(1000, 0))
	hub := newTestHub(clk)

	hub.Join("alice", Profile{}, &recordingConn{})
	st, _ := hub.registry.Get("alice")

	// Walking reported with no positional delta must not be accepted as walking.
	hub.UpdateState("alice", proto.PlayerState{X: st.X, Y: st.Y, Facing: proto.FacingUp, Walking: true})

	got, _ := hub.registry.Get("alice")
	if got.Walking {
		t.Fatalf("expected walking to be suppressed without movement")
	}
	if got.Facing != proto.FacingUp {
		t.Fatalf("expected facing change to be accepted, got %s", got.Facing)
	}
}

func TestDisconnectAnnounces(t *testing.T) {
	clk := newStubClock(time.Unix(1000, 0))
	hub := newTestHub(clk)

	aliceConn := &recordingConn{}
	hub.Join("alice", Profile{}, aliceConn)
	hub.Join("bob", Profile{}, &recordingConn{})

	hub.Disconnect("bob", nil)

	if got := aliceConn.byType(t, proto.TypeUserOffline); len(got) != 1 || got[0].ID != "bob" {
		t.Fatalf("expected one userOffline for bob, got %v", got)
	}
	if got := aliceConn.byType(t, proto.TypeUserLeft); len(got) != 1 || got[0].ID != "bob" {
		t.Fatalf("expected one userLeft for bob, got %v", got)
	}
	rosters := aliceConn.byType(t, proto.TypeOnlineRoster)
	if len(rosters) == 0 {
		t.Fatalf("expected a roster broadcast after disconnect")
	}
	last := rosters[len(rosters)-1]
	if len(last.IDs) != 1 || last.IDs[0] != "alice" {
		t.Fatalf("expected roster [alice], got %v", last.IDs)
	}

	// Idempotent: a second disconnect announces nothing further.
	before := len(aliceConn.envelopes(t))
	hub.Disconnect("bob", nil)
	if after := len(aliceConn.envelopes(t)); after != before {
		t.Fatalf("expected repeated disconnect to be a no-op, frames %d -> %d", before, after)
	}
}

// The read loop of a superseded connection fails once its conn is closed and
// then runs its cleanup; that cleanup must not tear down the reconnect.
func TestStaleCleanupKeepsSupersedingConnection(t *testing.T) {
	clk := newStubClock(time.Unix(1000, 0))
	hub := newTestHub(clk)

	first := &recordingConn{}
	hub.Join("alice", Profile{Name: "Alice"}, first)
	hub.UpdateState("alice", proto.PlayerState{X: 120, Y: 140, Facing: proto.FacingLeft, Walking: true})

	second := &recordingConn{}
	hub.Join("alice", Profile{Name: "Alice"}, second)

	// The old handler cleans up with its own connection.
	hub.Disconnect("alice", first)

	if second.closed {
		t.Fatalf("expected superseding connection to stay open")
	}
	st, ok := hub.registry.Get("alice")
	if !ok {
		t.Fatalf("expected alice to stay registered after stale cleanup")
	}
	if st.X != 120 || st.Y != 140 {
		t.Fatalf("expected retained state (120,140), got (%v,%v)", st.X, st.Y)
	}

	// The live handler's cleanup still works.
	hub.Disconnect("alice", second)
	if !second.closed {
		t.Fatalf("expected live connection closed on its own cleanup")
	}
	if _, ok := hub.registry.Get("alice"); ok {
		t.Fatalf("expected alice unregistered after live cleanup")
	}
}

func TestBroadcastAllStatesReachesEveryone(t *testing.T) {
	clk := newStubClock(time.Unix(1000, 0))
	hub := newTestHub(clk)

	conns := map[string]*recordingConn{
		"alice": {},
		"bob":   {},
		"carol": {},
	}
	for id, conn := range conns {
		hub.Join(id, Profile{}, conn)
	}

	hub.BroadcastAllStates()

	for id, conn := range conns {
		frames := conn.byType(t, proto.TypeAllStates)
		if len(frames) == 0 {
			t.Fatalf("expected %s to receive allStates", id)
		}
		last := frames[len(frames)-1]
		if len(last.Players) != 3 {
			t.Fatalf("expected 3 players in snapshot for %s, got %d", id, len(last.Players))
		}
	}
}

func TestFanOutDropsUnwritableConnection(t *testing.T) {
	clk := newStubClock(time.Unix(1000, 0))
	hub := newTestHub(clk)

	hub.Join("alice", Profile{}, &recordingConn{})
	broken := &recordingConn{failWrite: true}
	hub.Join("bob", Profile{}, broken)

	hub.BroadcastRoster()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if hub.registry.Len() == 1 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := hub.registry.Len(); got != 1 {
		t.Fatalf("expected broken connection to be dropped, %d users remain", got)
	}
	if _, ok := hub.registry.Get("bob"); ok {
		t.Fatalf("expected bob to be unregistered after write failure")
	}
}
