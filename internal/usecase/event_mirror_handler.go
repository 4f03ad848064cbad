package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"SignalFeed/internal/domain/models"
	domrepo "SignalFeed/internal/domain/repository"
	pkgkafka "SignalFeed/pkg/kafka"
	applogger "SignalFeed/pkg/logger"
)

// EventMirrorHandler consumes the event stream and copies it into the analytics mirror.
type EventMirrorHandler struct {
	topic   string
	mirror  domrepo.MirrorStore
	metrics domrepo.Metrics
	log     *applogger.Logger
}

func NewEventMirrorHandler(topic string, mirror domrepo.MirrorStore, metrics domrepo.Metrics, log *applogger.Logger) *EventMirrorHandler {
	return &EventMirrorHandler{topic: topic, mirror: mirror, metrics: metrics, log: log}
}

func (h *EventMirrorHandler) Topic() string { return h.topic }

// Handle expects one JSON-encoded SignalEvent. Undecodable payloads are
// permanent failures and skip retries.
func (h *EventMirrorHandler) Handle(ctx context.Context, b []byte) error {
	var ev models.SignalEvent
	if err := json.Unmarshal(b, &ev); err != nil {
		h.metrics.RecordError("mirror_decode")
		return &pkgkafka.HookError{Code: "ERR_DECODE", Err: err}
	}
	if ev.ID <= 0 || ev.Symbol == "" {
		h.metrics.RecordError("mirror_decode")
		return &pkgkafka.HookError{Code: "ERR_INVALID", Err: fmt.Errorf("event without id or symbol")}
	}

	start := time.Now()
	err := h.mirror.StoreBatch(ctx, []models.SignalEvent{ev})
	h.metrics.RecordStoreLatency("mirror_insert", time.Since(start).Seconds())
	if err != nil {
		h.metrics.RecordError("mirror_store")
		return err
	}

	h.log.Debug("event mirrored", applogger.Int64("id", ev.ID), applogger.String("symbol", ev.Symbol))
	return nil
}

var _ pkgkafka.MessageHandler = (*EventMirrorHandler)(nil)
