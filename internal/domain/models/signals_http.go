package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"SignalFeed/pkg/util"

	"github.com/shopspring/decimal"
)

// PageRequest is the query of GET /api/data. A zero limit means "server default".
type PageRequest struct {
	Page  int `query:"page" json:"page" default:"0" validate:"gte=0"`
	Limit int `query:"limit" json:"limit" validate:"gte=0"`
}

// PageResponse is the body of GET /api/data.
type PageResponse struct {
	Success     bool          `json:"success"`
	Data        []SignalEvent `json:"data"`
	TotalPages  int           `json:"totalPages"`
	CurrentPage int           `json:"currentPage"`
	Message     string        `json:"message,omitempty"`
}

// WebhookRequest is the body of POST /api/webhook.
//
// Besides the documented camelCase fields it accepts the storage column
// names `signal_` and `additional_info`, a price given as number or numeric
// string, and a timestamp given as RFC3339 text or epoch seconds/milliseconds.
type WebhookRequest struct {
	Symbol         string           `json:"symbol" validate:"notblank"`
	Price          *decimal.Decimal `json:"price" validate:"required"`
	Signal         string           `json:"signal" validate:"notblank"`
	Timestamp      *time.Time       `json:"timestamp,omitempty"`
	AdditionalInfo string           `json:"additionalInfo"`
}

func (r *WebhookRequest) UnmarshalJSON(b []byte) error {
	var aux struct {
		Symbol               string          `json:"symbol"`
		Price                json.RawMessage `json:"price"`
		Signal               string          `json:"signal"`
		SignalLegacy         string          `json:"signal_"`
		Timestamp            json.RawMessage `json:"timestamp"`
		AdditionalInfo       *string         `json:"additionalInfo"`
		AdditionalInfoLegacy *string         `json:"additional_info"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}

	r.Symbol = strings.TrimSpace(aux.Symbol)
	r.Signal = strings.TrimSpace(aux.Signal)
	if r.Signal == "" {
		r.Signal = strings.TrimSpace(aux.SignalLegacy)
	}

	switch {
	case aux.AdditionalInfo != nil:
		r.AdditionalInfo = *aux.AdditionalInfo
	case aux.AdditionalInfoLegacy != nil:
		r.AdditionalInfo = *aux.AdditionalInfoLegacy
	}

	price, err := decodePrice(aux.Price)
	if err != nil {
		return err
	}
	r.Price = price

	ts, err := decodeTimestamp(aux.Timestamp)
	if err != nil {
		return err
	}
	r.Timestamp = ts
	return nil
}

func isAbsent(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null")) || bytes.Equal(raw, []byte(`""`))
}

func decodePrice(raw json.RawMessage) (*decimal.Decimal, error) {
	if isAbsent(raw) {
		return nil, nil
	}
	var d decimal.Decimal
	if err := d.UnmarshalJSON(bytes.TrimSpace(raw)); err != nil {
		return nil, fmt.Errorf("price: %w", err)
	}
	return &d, nil
}

func decodeTimestamp(raw json.RawMessage) (*time.Time, error) {
	if isAbsent(raw) {
		return nil, nil
	}

	var text string
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			return nil, fmt.Errorf("timestamp: %w", err)
		}
	} else {
		text = string(raw)
	}

	t, ok := util.ParseTime(text)
	if !ok {
		return nil, fmt.Errorf("timestamp: unrecognized value %q", text)
	}
	return &t, nil
}
