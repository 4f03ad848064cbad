package usecase

import (
	"context"
	"errors"
	"sort"
	"sync"

	"SignalFeed/internal/domain/models"
	domrepo "SignalFeed/internal/domain/repository"
)

// memStore is an in-memory EventStore with the same ordering as the SQL store.
type memStore struct {
	mu       sync.Mutex
	rows     []models.SignalEvent
	nextID   int64
	appendFn func(*models.SignalEvent) error
	countErr error
	queries  int
}

func (s *memStore) Append(_ context.Context, e *models.SignalEvent) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendFn != nil {
		if err := s.appendFn(e); err != nil {
			return 0, err
		}
	}
	s.nextID++
	e.ID = s.nextID
	s.rows = append(s.rows, *e)
	return e.ID, nil
}

func (s *memStore) Count(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.countErr != nil {
		return 0, s.countErr
	}
	return int64(len(s.rows)), nil
}

func (s *memStore) QueryPage(_ context.Context, offset, limit int) ([]models.SignalEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries++
	if offset < 0 || limit <= 0 {
		return nil, domrepo.ErrValidation
	}
	sorted := append([]models.SignalEvent(nil), s.rows...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].Timestamp.Equal(sorted[j].Timestamp) {
			return sorted[i].Timestamp.After(sorted[j].Timestamp)
		}
		return sorted[i].ID > sorted[j].ID
	})
	if offset >= len(sorted) {
		return []models.SignalEvent{}, nil
	}
	end := min(offset+limit, len(sorted))
	return sorted[offset:end], nil
}

func (s *memStore) Health(context.Context) error { return nil }
func (s *memStore) Close() error                 { return nil }

type countingNotifier struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (n *countingNotifier) Notify(context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls++
	return n.err
}

func (n *countingNotifier) Calls() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls
}

type recordingPublisher struct {
	events []models.SignalEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e *models.SignalEvent) error {
	p.events = append(p.events, *e)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

type recordingMirror struct {
	batches [][]models.SignalEvent
	err     error
}

func (m *recordingMirror) Init(context.Context) error { return nil }

func (m *recordingMirror) StoreBatch(_ context.Context, events []models.SignalEvent) error {
	if m.err != nil {
		return m.err
	}
	m.batches = append(m.batches, events)
	return nil
}

func (m *recordingMirror) Health(context.Context) error { return nil }
func (m *recordingMirror) Close() error                 { return nil }

var errDown = errors.New("connection refused")
