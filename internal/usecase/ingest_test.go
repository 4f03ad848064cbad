package usecase

import (
	"context"
	"testing"
	"time"

	"SignalFeed/internal/domain/models"
	domrepo "SignalFeed/internal/domain/repository"
	"SignalFeed/pkg/logger"
	"SignalFeed/pkg/metrics"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func price(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func newIngestor(store *memStore, n *countingNotifier, opts ...IngestorOption) *Ingestor {
	return NewIngestor(store, n, metrics.Nop{}, logger.Nop(), opts...)
}

func TestIngest_StoresAndNotifiesOnce(t *testing.T) {
	store := &memStore{}
	n := &countingNotifier{}
	fixed := time.Date(2024, 3, 9, 10, 0, 0, 0, time.UTC)
	ing := newIngestor(store, n, WithClock(func() time.Time { return fixed }))

	ev, err := ing.Ingest(context.Background(), IngestCommand{
		Symbol: "BTC",
		Price:  price("50000"),
		Signal: "BUY",
	})
	require.NoError(t, err)

	assert.EqualValues(t, 1, ev.ID)
	assert.Equal(t, fixed, ev.Timestamp)
	assert.Equal(t, 1, n.Calls())
	require.Len(t, store.rows, 1)
	assert.True(t, store.rows[0].Price.Equal(decimal.NewFromInt(50000)))
}

func TestIngest_KeepsProvidedTimestampAndInfo(t *testing.T) {
	store := &memStore{}
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.FixedZone("X", 3600))

	ev, err := newIngestor(store, &countingNotifier{}).Ingest(context.Background(), IngestCommand{
		Symbol:         " ETH ",
		Price:          price("3000.5"),
		Signal:         "SELL",
		Timestamp:      &ts,
		AdditionalInfo: "rsi>70",
	})
	require.NoError(t, err)

	assert.Equal(t, "ETH", ev.Symbol)
	assert.Equal(t, ts.UTC(), ev.Timestamp)
	assert.Equal(t, time.UTC, ev.Timestamp.Location())
	assert.Equal(t, "rsi>70", ev.AdditionalInfo)
}

func TestIngest_MissingFieldsRejectedWithoutSideEffects(t *testing.T) {
	cases := map[string]IngestCommand{
		"no symbol":       {Price: price("1"), Signal: "BUY"},
		"blank symbol":    {Symbol: "   ", Price: price("1"), Signal: "BUY"},
		"no price":        {Symbol: "BTC", Signal: "BUY"},
		"no signal":       {Symbol: "BTC", Price: price("1")},
		"whitespace only": {Symbol: "BTC", Price: price("1"), Signal: "\t"},
	}
	for name, cmd := range cases {
		t.Run(name, func(t *testing.T) {
			store := &memStore{}
			n := &countingNotifier{}
			_, err := newIngestor(store, n).Ingest(context.Background(), cmd)

			assert.ErrorIs(t, err, domrepo.ErrValidation)
			assert.Empty(t, store.rows)
			assert.Zero(t, n.Calls())
		})
	}
}

func TestIngest_ZeroPriceAccepted(t *testing.T) {
	store := &memStore{}
	_, err := newIngestor(store, &countingNotifier{}).Ingest(context.Background(), IngestCommand{
		Symbol: "BTC", Price: price("0"), Signal: "BUY",
	})
	require.NoError(t, err)
	assert.Len(t, store.rows, 1)
}

func TestIngest_StoreFailureSkipsNotification(t *testing.T) {
	store := &memStore{appendFn: func(*models.SignalEvent) error { return domrepo.ErrStorageUnavailable }}
	n := &countingNotifier{}

	_, err := newIngestor(store, n).Ingest(context.Background(), IngestCommand{
		Symbol: "BTC", Price: price("1"), Signal: "BUY",
	})

	assert.ErrorIs(t, err, domrepo.ErrStorageUnavailable)
	assert.Zero(t, n.Calls())
}

func TestIngest_NotifyAndPublishFailuresAreNotFatal(t *testing.T) {
	store := &memStore{}
	n := &countingNotifier{err: errDown}
	pub := &recordingPublisher{err: errDown}

	ev, err := newIngestor(store, n, WithPublisher(pub)).Ingest(context.Background(), IngestCommand{
		Symbol: "BTC", Price: price("1"), Signal: "BUY",
	})

	require.NoError(t, err)
	assert.Equal(t, 1, n.Calls())
	require.Len(t, pub.events, 1)
	assert.Equal(t, ev.ID, pub.events[0].ID)
}

func TestIngest_CancelledRequestStillNotifies(t *testing.T) {
	store := &memStore{}
	n := &countingNotifier{}
	ctx, cancel := context.WithCancel(context.Background())
	store.appendFn = func(*models.SignalEvent) error {
		cancel()
		return nil
	}

	_, err := newIngestor(store, n).Ingest(ctx, IngestCommand{Symbol: "BTC", Price: price("1"), Signal: "BUY"})

	require.NoError(t, err)
	assert.Equal(t, 1, n.Calls())
}

func TestIngest_OneHintPerSuccess(t *testing.T) {
	store := &memStore{}
	n := &countingNotifier{}
	ing := newIngestor(store, n)

	for i := 0; i < 5; i++ {
		_, _ = ing.Ingest(context.Background(), IngestCommand{Symbol: "BTC", Price: price("1"), Signal: "BUY"})
		_, _ = ing.Ingest(context.Background(), IngestCommand{Symbol: "", Price: price("1"), Signal: "BUY"})
	}

	assert.Equal(t, 5, n.Calls())
	assert.Len(t, store.rows, 5)
}
