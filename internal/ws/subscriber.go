package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// subscriber wraps a websocket connection with a write mutex so the hub can
// fan out from any goroutine without interleaving frames.
type subscriber struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func newSubscriber(conn *websocket.Conn) *subscriber {
	return &subscriber{conn: conn}
}

func (s *subscriber) Write(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *subscriber) ping() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(websocket.PingMessage, nil)
}

func (s *subscriber) Close() error {
	return s.conn.Close()
}
