package client

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"plaza/server/internal/proto"
)

// Status is the tri-state connection indicator exposed for UI purposes.
type Status int32

const (
	StatusConnecting Status = iota
	StatusConnected
	StatusDisconnected
)

func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// SessionConfig wires a websocket session to the application.
type SessionConfig struct {
	// URL is the full websocket endpoint, e.g. ws://host:8080/ws?token=alice.
	URL    string
	Logger *zap.SugaredLogger

	// RetryInterval paces reconnect attempts while the user is active.
	RetryInterval time.Duration
	// IdleThreshold is the inactivity span after which reconnects slow to
	// IdleRetryInterval until local input resumes.
	IdleThreshold     time.Duration
	IdleRetryInterval time.Duration

	// OnStatus observes connection-status transitions.
	OnStatus func(Status)
	// OnMessage receives every decoded server frame.
	OnMessage func(proto.ServerEnvelope)
}

// Session maintains one persistent connection to the presence service,
// silently redialing on failure. Connection failures are never escalated:
// the only caller-visible signal is the Status transition.
type Session struct {
	cfg    SessionConfig
	logger *zap.SugaredLogger

	status       atomic.Int32
	lastActivity atomic.Int64

	mu   sync.Mutex
	conn *websocket.Conn

	stopOnce sync.Once
	stop     chan struct{}
}

// NewSession builds a session; call Run to start it.
func NewSession(cfg SessionConfig) *Session {
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = time.Second
	}
	if cfg.IdleThreshold <= 0 {
		cfg.IdleThreshold = 30 * time.Second
	}
	if cfg.IdleRetryInterval <= 0 {
		cfg.IdleRetryInterval = 5 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	s := &Session{cfg: cfg, logger: logger, stop: make(chan struct{})}
	s.status.Store(int32(StatusDisconnected))
	s.lastActivity.Store(time.Now().UnixMilli())
	return s
}

// Status returns the current connection status.
func (s *Session) Status() Status {
	return Status(s.status.Load())
}

// Run dials and reads until Close is called, redialing after every failure.
// It blocks; run it on its own goroutine.
func (s *Session) Run() {
	for {
		select {
		case <-s.stop:
			return
		default:
		}

		s.setStatus(StatusConnecting)
		conn, _, err := websocket.DefaultDialer.Dial(s.cfg.URL, nil)
		if err != nil {
			s.logger.Debugw("dial failed", "error", err)
			s.setStatus(StatusDisconnected)
			if !s.sleep(s.retryDelay()) {
				return
			}
			continue
		}

		s.mu.Lock()
		s.conn = conn
		s.mu.Unlock()
		s.setStatus(StatusConnected)

		s.readLoop(conn)

		s.mu.Lock()
		s.conn = nil
		s.mu.Unlock()
		conn.Close()
		s.setStatus(StatusDisconnected)

		if !s.sleep(s.retryDelay()) {
			return
		}
	}
}

func (s *Session) readLoop(conn *websocket.Conn) {
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			s.logger.Debugw("read failed", "error", err)
			return
		}
		env, err := proto.DecodeServerMessage(payload)
		if err != nil {
			s.logger.Debugw("discarding malformed server frame", "error", err)
			continue
		}
		if s.cfg.OnMessage != nil {
			s.cfg.OnMessage(env)
		}
	}
}

// SendState transmits the local state fire-and-forget; a send while
// disconnected is silently dropped and repaired by the reconnect republish.
func (s *Session) SendState(st proto.PlayerState) {
	s.touch()
	s.write(proto.ClientMessage{
		Type:    proto.TypeUpdateState,
		X:       st.X,
		Y:       st.Y,
		Facing:  st.Facing,
		Walking: st.Walking,
		SentAt:  time.Now().UnixMilli(),
	})
}

// QueryOnlineCount requests the diagnostic presence count.
func (s *Session) QueryOnlineCount() {
	s.write(proto.ClientMessage{Type: proto.TypeOnlineCount})
}

// Close stops the session permanently.
func (s *Session) Close() {
	s.stopOnce.Do(func() {
		close(s.stop)
		s.mu.Lock()
		if s.conn != nil {
			s.conn.Close()
		}
		s.mu.Unlock()
	})
}

func (s *Session) write(msg proto.ClientMessage) {
	msg.Ver = proto.Version
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return
	}
	s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := s.conn.WriteJSON(msg); err != nil {
		s.logger.Debugw("write failed", "error", err)
	}
}

func (s *Session) setStatus(next Status) {
	prev := Status(s.status.Swap(int32(next)))
	if prev != next && s.cfg.OnStatus != nil {
		s.cfg.OnStatus(next)
	}
}

func (s *Session) touch() {
	s.lastActivity.Store(time.Now().UnixMilli())
}

// retryDelay slows reconnect attempts once the local user has gone idle;
// the next input brings the pace back up immediately.
func (s *Session) retryDelay() time.Duration {
	idleFor := time.Since(time.UnixMilli(s.lastActivity.Load()))
	if idleFor >= s.cfg.IdleThreshold {
		return s.cfg.IdleRetryInterval
	}
	return s.cfg.RetryInterval
}

func (s *Session) sleep(d time.Duration) bool {
	select {
	case <-s.stop:
		return false
	case <-time.After(d):
		return true
	}
}
