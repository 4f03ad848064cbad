package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"SignalFeed/internal/domain/models"
	domrepo "SignalFeed/internal/domain/repository"
	applogger "SignalFeed/pkg/logger"

	"github.com/shopspring/decimal"
)

// IngestCommand is one candidate event from a producer.
type IngestCommand struct {
	Symbol         string
	Price          *decimal.Decimal
	Signal         string
	Timestamp      *time.Time
	AdditionalInfo string
}

// Ingestor validates and appends events, then hints viewers.
type Ingestor struct {
	store          domrepo.EventStore
	notifier       domrepo.ChangeNotifier
	publisher      domrepo.EventPublisher
	metrics        domrepo.Metrics
	log            *applogger.Logger
	now            func() time.Time
	publishTimeout time.Duration
}

type IngestorOption func(*Ingestor)

// WithPublisher forwards every stored event downstream, best-effort.
func WithPublisher(p domrepo.EventPublisher) IngestorOption {
	return func(i *Ingestor) {
		i.publisher = p
	}
}

func WithClock(now func() time.Time) IngestorOption {
	return func(i *Ingestor) {
		i.now = now
	}
}

func NewIngestor(store domrepo.EventStore, notifier domrepo.ChangeNotifier, metrics domrepo.Metrics, log *applogger.Logger, opts ...IngestorOption) *Ingestor {
	i := &Ingestor{
		store:          store,
		notifier:       notifier,
		metrics:        metrics,
		log:            log,
		now:            time.Now,
		publishTimeout: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Ingest stores one event and broadcasts exactly one change hint for it.
// Notification and publishing failures are logged and never fail the call.
func (i *Ingestor) Ingest(ctx context.Context, cmd IngestCommand) (models.SignalEvent, error) {
	if missing := cmd.missingFields(); len(missing) > 0 {
		i.metrics.RecordIngest("rejected")
		return models.SignalEvent{}, fmt.Errorf("%w: missing %s", domrepo.ErrValidation, strings.Join(missing, ", "))
	}

	ev := models.SignalEvent{
		Symbol:         strings.TrimSpace(cmd.Symbol),
		Price:          *cmd.Price,
		Signal:         strings.TrimSpace(cmd.Signal),
		AdditionalInfo: cmd.AdditionalInfo,
	}
	if cmd.Timestamp != nil && !cmd.Timestamp.IsZero() {
		ev.Timestamp = cmd.Timestamp.UTC()
	} else {
		ev.Timestamp = i.now().UTC()
	}

	if _, err := i.store.Append(ctx, &ev); err != nil {
		i.metrics.RecordIngest("failed")
		i.metrics.RecordError("store_append")
		i.log.Error("append signal event", applogger.String("symbol", ev.Symbol), applogger.Error(err))
		return models.SignalEvent{}, err
	}
	i.metrics.RecordIngest("accepted")

	// the row is committed; a cancelled request must not suppress the hint
	bg := context.WithoutCancel(ctx)

	if i.notifier != nil {
		if err := i.notifier.Notify(bg); err != nil {
			i.metrics.RecordError("notify")
			i.log.Warn("change notification failed", applogger.Int64("id", ev.ID), applogger.Error(err))
		}
	}

	if i.publisher != nil {
		pctx, cancel := context.WithTimeout(bg, i.publishTimeout)
		if err := i.publisher.Publish(pctx, &ev); err != nil {
			i.metrics.RecordError("publish")
			i.log.Warn("event publish failed", applogger.Int64("id", ev.ID), applogger.Error(err))
		}
		cancel()
	}

	i.log.Debug("signal ingested",
		applogger.Int64("id", ev.ID),
		applogger.String("symbol", ev.Symbol),
		applogger.String("signal", ev.Signal),
	)
	return ev, nil
}

func (c IngestCommand) missingFields() []string {
	var missing []string
	if strings.TrimSpace(c.Symbol) == "" {
		missing = append(missing, "symbol")
	}
	if c.Price == nil {
		missing = append(missing, "price")
	}
	if strings.TrimSpace(c.Signal) == "" {
		missing = append(missing, "signal")
	}
	return missing
}
