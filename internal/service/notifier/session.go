package notifier

import (
	"sync"
	"time"

	applogger "SignalFeed/pkg/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

type SessionOption func(*WSSession)

func WithWriteTimeout(d time.Duration) SessionOption {
	return func(s *WSSession) {
		if d > 0 {
			s.writeTimeout = d
		}
	}
}

func WithPingInterval(d time.Duration) SessionOption {
	return func(s *WSSession) {
		if d > 0 {
			s.pingInterval = d
		}
	}
}

func WithSendBuffer(n int) SessionOption {
	return func(s *WSSession) {
		if n > 0 {
			s.send = make(chan []byte, n)
		}
	}
}

func WithSessionLogger(l *applogger.Logger) SessionOption {
	return func(s *WSSession) {
		if l != nil {
			s.log = l
		}
	}
}

// WSSession is a websocket viewer. Writes happen on a single pump goroutine.
type WSSession struct {
	id           string
	conn         *websocket.Conn
	send         chan []byte
	done         chan struct{}
	closeOnce    sync.Once
	writeTimeout time.Duration
	pingInterval time.Duration
	log          *applogger.Logger
}

func NewWSSession(conn *websocket.Conn, opts ...SessionOption) *WSSession {
	s := &WSSession{
		id:           uuid.NewString(),
		conn:         conn,
		send:         make(chan []byte, 8),
		done:         make(chan struct{}),
		writeTimeout: 5 * time.Second,
		pingInterval: 30 * time.Second,
		log:          applogger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *WSSession) ID() string { return s.id }

func (s *WSSession) Send(msg []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.send <- msg:
		return true
	default:
		// a viewer this far behind has missed hints already; drop it
		return false
	}
}

func (s *WSSession) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}

// Run serves the connection until the peer goes away or the session is
// closed, then calls onClose once.
func (s *WSSession) Run(onClose func()) {
	go s.writePump()
	s.readPump()
	s.Close()
	if onClose != nil {
		onClose()
	}
}

// readPump only watches for disconnects and pongs; viewers never send data.
func (s *WSSession) readPump() {
	wait := 2 * s.pingInterval
	_ = s.conn.SetReadDeadline(time.Now().Add(wait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(wait))
	})
	s.conn.SetReadLimit(512)
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debug("push session read ended", applogger.String("session", s.id), applogger.Error(err))
			}
			return
		}
	}
}

func (s *WSSession) writePump() {
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case msg := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				s.log.Debug("push session write failed", applogger.String("session", s.id), applogger.Error(err))
				s.Close()
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.Close()
				return
			}
		}
	}
}

var _ Session = (*WSSession)(nil)
