package presence

import (
	"time"

	"go.uber.org/zap"

	"plaza/server/internal/clock"
	"plaza/server/internal/proto"
)

// Config tunes the surface geometry, change filtering, and broadcast cadence.
type Config struct {
	SurfaceWidth  float64
	SurfaceHeight float64
	SpriteWidth   float64
	SpriteHeight  float64

	// MoveThreshold is the minimum positional delta considered significant.
	MoveThreshold float64
	// WalkThreshold is the minimum accepted delta backing a walking=true flag.
	WalkThreshold float64

	// StatePeriod drives the full allStates broadcast (period A).
	StatePeriod time.Duration
	// RosterPeriod drives the identity-only roster broadcast (period B).
	RosterPeriod time.Duration
}

// DefaultConfig returns the production tuning.
func DefaultConfig() Config {
	return Config{
		SurfaceWidth:  800,
		SurfaceHeight: 600,
		SpriteWidth:   32,
		SpriteHeight:  32,
		MoveThreshold: 0.75,
		WalkThreshold: 0.75,
		StatePeriod:   2 * time.Second,
		RosterPeriod:  5 * time.Second,
	}
}

// Profile carries the display attributes resolved once at connect time.
type Profile struct {
	Name   string
	Avatar string
	Color  string
}

// Hub owns the connection registry and fans accepted state changes out to
// every other live connection. All methods are safe for concurrent use.
type Hub struct {
	cfg      Config
	clock    clock.Clock
	logger   *zap.SugaredLogger
	registry *Registry
	metrics  *Metrics
}

// NewHub constructs a hub around a fresh registry.
func NewHub(cfg Config, clk clock.Clock, logger *zap.SugaredLogger) *Hub {
	if clk == nil {
		clk = clock.System()
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Hub{
		cfg:      cfg,
		clock:    clk,
		logger:   logger,
		registry: NewRegistry(),
		metrics:  &Metrics{},
	}
}

// Config returns the hub tuning.
func (h *Hub) Config() Config { return h.cfg }

// Metrics exposes the hub counters.
func (h *Hub) Metrics() *Metrics { return h.metrics }

// clampPosition forces a position inside the renderable surface.
func (h *Hub) clampPosition(x, y float64) (float64, float64) {
	maxX := h.cfg.SurfaceWidth - h.cfg.SpriteWidth
	maxY := h.cfg.SurfaceHeight - h.cfg.SpriteHeight
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

// spawnState places a first-time joiner near the surface center with a
// deterministic per-user offset so stacked avatars stay distinguishable.
func (h *Hub) spawnState(userID string, profile Profile) proto.PlayerState {
	var hash uint32
	for _, c := range userID {
		hash = hash*31 + uint32(c)
	}
	offsetX := float64(hash%64) - 32
	offsetY := float64((hash/64)%64) - 32
	x, y := h.clampPosition(h.cfg.SurfaceWidth/2+offsetX, h.cfg.SurfaceHeight/2+offsetY)
	return proto.PlayerState{
		ID:     userID,
		Name:   profile.Name,
		Avatar: profile.Avatar,
		Color:  profile.Color,
		X:      x,
		Y:      y,
		Facing: proto.DefaultFacing,
	}
}

// Join registers a connection, announces the arrival, and returns the full
// snapshot owed to the joiner. A reconnecting user supersedes its previous
// connection and keeps its last accepted state.
func (h *Hub) Join(userID string, profile Profile, conn Conn) []proto.PlayerState {
	now := h.clock.Now()
	old, resumed := h.registry.Register(userID, conn, h.spawnState(userID, profile), now)
	if old != nil {
		old.Close()
	}

	if resumed {
		h.metrics.reconnects.Add(1)
		h.logger.Infow("user reconnected", "user", userID)
	} else {
		h.metrics.joins.Add(1)
		h.logger.Infow("user online", "user", userID)
	}

	if data, err := proto.EncodeRosterDelta(proto.TypeUserOnline, userID); err == nil {
		h.fanOut(data, userID)
	}
	// Everyone converges on the roster immediately rather than at the next tick.
	h.BroadcastAllStates()

	return h.registry.States()
}

// Disconnect removes a user and announces the departure. It is idempotent;
// a second call for the same id does nothing. Callers cleaning up after their
// own connection pass it so a reconnect that already superseded them is left
// alone; a nil conn removes unconditionally.
func (h *Hub) Disconnect(userID string, conn Conn) {
	current, ok := h.registry.Unregister(userID, conn)
	if !ok {
		return
	}
	if current != nil {
		current.Close()
	}

	h.metrics.disconnects.Add(1)
	h.logger.Infow("user offline", "user", userID)

	if data, err := proto.EncodeRosterDelta(proto.TypeUserOffline, userID); err == nil {
		h.fanOut(data, "")
	}
	if data, err := proto.EncodeRosterDelta(proto.TypeUserLeft, userID); err == nil {
		h.fanOut(data, "")
	}
	h.BroadcastRoster()
}

// UpdateState accepts a self-reported state, clamps it, filters insignificant
// changes, and fans the accepted state out to every other connection. The
// latest accepted update wins; no history is retained.
func (h *Hub) UpdateState(userID string, reported proto.PlayerState) bool {
	prev, ok := h.registry.Get(userID)
	if !ok {
		return false
	}

	next := prev
	next.X, next.Y = h.clampPosition(reported.X, reported.Y)
	if facing, valid := proto.ParseFacing(string(reported.Facing)); valid {
		next.Facing = facing
	}
	next.Walking = reported.Walking

	// Walking must be backed by real movement since the last accepted state.
	if next.Walking && proto.Distance(prev, next) < h.cfg.WalkThreshold {
		next.Walking = false
	}

	if !Significant(&prev, next, h.cfg.MoveThreshold) {
		h.metrics.updatesFiltered.Add(1)
		return false
	}

	now := h.clock.Now()
	if !h.registry.SetState(userID, next, now) {
		return false
	}
	h.metrics.updatesAccepted.Add(1)

	if data, err := proto.EncodeStateUpdated(next, now.UnixMilli()); err == nil {
		h.fanOut(data, userID)
	}
	return true
}

// OnlineCount answers the diagnostic query.
func (h *Hub) OnlineCount() (int, []string) {
	ids := h.registry.IDs()
	return len(ids), ids
}

// Liveness exposes per-user timing data for the diagnostics endpoint.
func (h *Hub) Liveness() []livenessEntry {
	return h.registry.Liveness()
}

// BroadcastAllStates pushes the complete state snapshot to every connection.
// Dropped point events are repaired here at the cost of one full payload.
func (h *Hub) BroadcastAllStates() {
	states := h.registry.States()
	data, err := proto.EncodeAllStates(states, h.clock.Now().UnixMilli())
	if err != nil {
		h.logger.Errorw("failed to marshal allStates", "error", err)
		return
	}
	h.fanOut(data, "")
}

// BroadcastRoster pushes the identity-only presence list to every connection.
func (h *Hub) BroadcastRoster() {
	data, err := proto.EncodeOnlineRoster(h.registry.IDs())
	if err != nil {
		h.logger.Errorw("failed to marshal roster", "error", err)
		return
	}
	h.fanOut(data, "")
}

// Run drives the two periodic broadcasts until the stop channel closes. The
// tick bodies are plain methods so tests exercise them without real timers.
func (h *Hub) Run(stop <-chan struct{}) {
	stateTicker := time.NewTicker(h.cfg.StatePeriod)
	rosterTicker := time.NewTicker(h.cfg.RosterPeriod)
	defer stateTicker.Stop()
	defer rosterTicker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-stateTicker.C:
			h.BroadcastAllStates()
		case <-rosterTicker.C:
			h.BroadcastRoster()
		}
	}
}

// fanOut writes a marshaled payload to every live connection except the
// origin. Writes are fire-and-forget: a failed connection is disconnected and
// announced, never retried.
func (h *Hub) fanOut(data []byte, exceptID string) {
	conns := h.registry.Conns()
	recipients := 0
	for id, conn := range conns {
		if id == exceptID || conn == nil {
			continue
		}
		if err := conn.Write(data); err != nil {
			h.metrics.sendErrors.Add(1)
			h.logger.Warnw("dropping unwritable connection", "user", id, "error", err)
			go h.Disconnect(id, conn)
			continue
		}
		recipients++
	}
	h.metrics.addBroadcast(recipients, len(data))
}
