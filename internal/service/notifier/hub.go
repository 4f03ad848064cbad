package notifier

import (
	"context"
	"errors"
	"sync"

	domrepo "SignalFeed/internal/domain/repository"
	applogger "SignalFeed/pkg/logger"
)

// HintMessage is the only frame ever pushed to viewers.
const HintMessage = "newData"

var ErrHubClosed = errors.New("notifier: hub closed")

// Session is one connected viewer.
type Session interface {
	ID() string
	// Send queues msg without blocking. False means the session is gone.
	Send(msg []byte) bool
	Close()
}

// Hub is the set of live viewer sessions. It is safe for concurrent use.
type Hub struct {
	mu          sync.RWMutex
	sessions    map[string]Session
	subscribers []func()
	closed      bool

	metrics domrepo.Metrics
	log     *applogger.Logger
}

func NewHub(metrics domrepo.Metrics, log *applogger.Logger) *Hub {
	if log == nil {
		log = applogger.Nop()
	}
	return &Hub{
		sessions: make(map[string]Session),
		metrics:  metrics,
		log:      log,
	}
}

func (h *Hub) Join(s Session) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		s.Close()
		return ErrHubClosed
	}
	h.sessions[s.ID()] = s
	n := len(h.sessions)
	h.mu.Unlock()

	h.metrics.RecordSessions(n)
	h.log.Debug("push session joined", applogger.String("session", s.ID()), applogger.Int("sessions", n))
	return nil
}

// Leave removes and closes the session. Unknown ids are ignored.
func (h *Hub) Leave(id string) {
	h.mu.Lock()
	s, ok := h.sessions[id]
	if ok {
		delete(h.sessions, id)
	}
	n := len(h.sessions)
	h.mu.Unlock()

	if !ok {
		return
	}
	s.Close()
	h.metrics.RecordSessions(n)
	h.log.Debug("push session left", applogger.String("session", id), applogger.Int("sessions", n))
}

// Subscribe registers fn to run on every broadcast, before sessions are hinted.
func (h *Hub) Subscribe(fn func()) {
	h.mu.Lock()
	h.subscribers = append(h.subscribers, fn)
	h.mu.Unlock()
}

// Broadcast hints every connected session and returns how many accepted it.
// Sessions that cannot take the hint are dropped.
func (h *Hub) Broadcast(ctx context.Context) int {
	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return 0
	}
	subs := make([]func(), len(h.subscribers))
	copy(subs, h.subscribers)
	targets := make([]Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	for _, fn := range subs {
		fn()
	}

	msg := []byte(HintMessage)
	delivered := 0
	var dead []string
	for _, s := range targets {
		if ctx.Err() != nil {
			break
		}
		if s.Send(msg) {
			delivered++
			continue
		}
		dead = append(dead, s.ID())
	}
	for _, id := range dead {
		h.Leave(id)
	}

	h.metrics.RecordBroadcast(delivered)
	return delivered
}

// Notify implements repository.ChangeNotifier for a single instance.
func (h *Hub) Notify(ctx context.Context) error {
	h.Broadcast(ctx)
	return nil
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Close disconnects every session. Later joins are refused.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	sessions := h.sessions
	h.sessions = make(map[string]Session)
	h.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
	h.metrics.RecordSessions(0)
}

var _ domrepo.ChangeNotifier = (*Hub)(nil)
