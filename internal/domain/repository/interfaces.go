package repository

import (
	"context"

	"SignalFeed/internal/domain/models"
)

// EventStore is the durable, append-only log of signal events.
type EventStore interface {
	// Append stores e and returns its assigned id. e.ID is set on success.
	Append(ctx context.Context, e *models.SignalEvent) (int64, error)
	Count(ctx context.Context) (int64, error)
	// QueryPage returns up to limit events ordered by timestamp desc, id desc.
	QueryPage(ctx context.Context, offset, limit int) ([]models.SignalEvent, error)
	Health(ctx context.Context) error
	Close() error
}

// ChangeNotifier tells live viewers that the data set changed.
// The signal carries no payload.
type ChangeNotifier interface {
	Notify(ctx context.Context) error
}

// EventPublisher forwards stored events to downstream consumers.
type EventPublisher interface {
	Publish(ctx context.Context, e *models.SignalEvent) error
	Close() error
}

// MirrorStore receives a copy of every event for analytics.
type MirrorStore interface {
	Init(ctx context.Context) error
	StoreBatch(ctx context.Context, events []models.SignalEvent) error
	Health(ctx context.Context) error
	Close() error
}

// PageCache memoizes encoded page responses between changes.
// Get reports the generation it looked in; a body built after that lookup
// must be stored with the same generation so a change in between hides it.
type PageCache interface {
	Get(ctx context.Context, page, limit int) (body []byte, gen uint64, ok bool)
	Set(ctx context.Context, gen uint64, page, limit int, body []byte)
	Invalidate()
}

type Metrics interface {
	RecordIngest(result string)
	RecordBroadcast(delivered int)
	RecordSessions(n int)
	RecordPageServed(cacheHit bool)
	RecordStoreLatency(op string, seconds float64)
	RecordError(kind string)
}
