package ws

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"plaza/server/internal/presence"
	"plaza/server/internal/proto"
)

const (
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// HandlerConfig wires the collaborators a websocket session needs.
type HandlerConfig struct {
	Identity IdentityResolver
	Profiles ProfileStore
	Logger   *zap.SugaredLogger
}

// Handler upgrades presence connections and runs their session loops.
type Handler struct {
	hub      *presence.Hub
	identity IdentityResolver
	profiles ProfileStore
	logger   *zap.SugaredLogger
	upgrader websocket.Upgrader
}

// NewHandler constructs a websocket handler bound to the given hub.
func NewHandler(hub *presence.Hub, cfg HandlerConfig) *Handler {
	identity := cfg.Identity
	if identity == nil {
		identity = TokenResolver{}
	}
	profiles := cfg.Profiles
	if profiles == nil {
		profiles = StaticProfiles{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Handler{
		hub:      hub,
		identity: identity,
		profiles: profiles,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the request and orchestrates the session until the
// connection drops. Join is implicit: identity is resolved from the request
// and the first outbound frame is the join response with a full snapshot.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, err := h.identity.Resolve(r)
	if err != nil {
		if !errors.Is(err, ErrNoIdentity) {
			h.logger.Warnw("identity resolution failed", "error", err)
		}
		userID = pseudoIdentity(r)
	}

	profile, err := h.profiles.Lookup(userID)
	if err != nil {
		h.logger.Warnw("profile lookup failed", "user", userID, "error", err)
		profile = presence.Profile{Name: userID}
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Errorw("websocket upgrade failed", "error", err)
		return
	}

	sub := newSubscriber(conn)
	snapshot := h.hub.Join(userID, profile, sub)

	data, err := proto.EncodeJoinResponse(proto.JoinResponse{
		ID:         userID,
		Players:    snapshot,
		ServerTime: time.Now().UnixMilli(),
	})
	if err != nil {
		h.logger.Errorw("failed to marshal join response", "user", userID, "error", err)
		h.hub.Disconnect(userID, sub)
		return
	}
	if err := sub.Write(data); err != nil {
		h.hub.Disconnect(userID, sub)
		return
	}

	stopPing := make(chan struct{})
	go h.pingLoop(sub, stopPing)
	defer close(stopPing)

	h.readLoop(userID, conn, sub)
	// Cleanup is scoped to this handler's own connection: if a reconnect has
	// already superseded it, the new registration stays.
	h.hub.Disconnect(userID, sub)
}

// readLoop consumes client frames until the connection errors out.
func (h *Handler) readLoop(userID string, conn *websocket.Conn, sub *subscriber) {
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debugw("read failed", "user", userID, "error", err)
			}
			return
		}

		msg, err := proto.DecodeClientMessage(payload)
		if err != nil {
			h.logger.Debugw("discarding malformed message", "user", userID, "error", err)
			continue
		}

		switch msg.Type {
		case proto.TypeUpdateState:
			h.hub.UpdateState(userID, proto.PlayerState{
				X:       msg.X,
				Y:       msg.Y,
				Facing:  msg.Facing,
				Walking: msg.Walking,
			})
		case proto.TypeOnlineCount:
			count, ids := h.hub.OnlineCount()
			data, err := proto.EncodeOnlineCountReply(count, ids)
			if err != nil {
				h.logger.Errorw("failed to marshal online count", "error", err)
				continue
			}
			if err := sub.Write(data); err != nil {
				return
			}
		default:
			h.logger.Debugw("unknown message type", "user", userID, "type", msg.Type)
		}
	}
}

func (h *Handler) pingLoop(sub *subscriber, stop <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := sub.ping(); err != nil {
				return
			}
		}
	}
}
