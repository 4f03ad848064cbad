package usecase

import (
	"context"
	"errors"
	"testing"

	pkgkafka "SignalFeed/pkg/kafka"
	"SignalFeed/pkg/logger"
	"SignalFeed/pkg/metrics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventMirrorHandler_StoresDecodedEvent(t *testing.T) {
	m := &recordingMirror{}
	h := NewEventMirrorHandler("signal-events", m, metrics.Nop{}, logger.Nop())

	err := h.Handle(context.Background(), []byte(`{"id":7,"symbol":"BTC","price":50000.5,"signal":"BUY","timestamp":"2024-05-01T10:00:00Z","additionalInfo":""}`))
	require.NoError(t, err)

	require.Len(t, m.batches, 1)
	assert.EqualValues(t, 7, m.batches[0][0].ID)
	assert.Equal(t, "50000.5", m.batches[0][0].Price.String())
	assert.Equal(t, "signal-events", h.Topic())
}

func TestEventMirrorHandler_BadPayloadIsPermanent(t *testing.T) {
	h := NewEventMirrorHandler("signal-events", &recordingMirror{}, metrics.Nop{}, logger.Nop())

	for _, payload := range []string{`not json`, `{"symbol":"BTC"}`} {
		err := h.Handle(context.Background(), []byte(payload))
		var hookErr *pkgkafka.HookError
		assert.ErrorAs(t, err, &hookErr, payload)
	}
}

func TestEventMirrorHandler_StoreErrorIsRetryable(t *testing.T) {
	h := NewEventMirrorHandler("signal-events", &recordingMirror{err: errDown}, metrics.Nop{}, logger.Nop())

	err := h.Handle(context.Background(), []byte(`{"id":1,"symbol":"BTC","price":1,"signal":"BUY","timestamp":"2024-05-01T10:00:00Z"}`))
	require.Error(t, err)
	var hookErr *pkgkafka.HookError
	assert.False(t, errors.As(err, &hookErr))
}
