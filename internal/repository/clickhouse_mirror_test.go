package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"SignalFeed/internal/domain/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCHMirrorStore_RejectsBadIdentifiers(t *testing.T) {
	_, err := NewCHMirrorStore(nil, "signals", "x; DROP TABLE y", nil)
	assert.Error(t, err)
}

func TestCHMirrorStore_Init(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store, err := NewCHMirrorStore(db, "signalfeed", "signal_events", nil)
	require.NoError(t, err)

	mock.ExpectExec(regexp.QuoteMeta("CREATE DATABASE IF NOT EXISTS signalfeed")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS signalfeed.signal_events")).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.Init(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCHMirrorStore_StoreBatch(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store, err := NewCHMirrorStore(db, "signalfeed", "signal_events", nil)
	require.NoError(t, err)

	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	events := []models.SignalEvent{
		{ID: 1, Symbol: "BTC", Price: decimal.NewFromInt(50000), Signal: "BUY", Timestamp: ts},
		{ID: 2, Symbol: "ETH", Price: decimal.NewFromInt(3000), Signal: "SELL", Timestamp: ts.Add(time.Minute)},
	}

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(regexp.QuoteMeta("INSERT INTO signalfeed.signal_events"))
	prep.ExpectExec().WithArgs(int64(1), "BTC", sqlmock.AnyArg(), "BUY", ts, "").WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().WithArgs(int64(2), "ETH", sqlmock.AnyArg(), "SELL", ts.Add(time.Minute), "").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, store.StoreBatch(context.Background(), events))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCHMirrorStore_StoreBatchRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store, err := NewCHMirrorStore(db, "signalfeed", "signal_events", nil)
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectPrepare("INSERT INTO").ExpectExec().WillReturnError(errors.New("too many parts"))
	mock.ExpectRollback()

	err = store.StoreBatch(context.Background(), []models.SignalEvent{{ID: 1, Symbol: "BTC", Signal: "BUY"}})
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCHMirrorStore_EmptyBatchIsNoop(t *testing.T) {
	store, err := NewCHMirrorStore(nil, "signalfeed", "signal_events", nil)
	require.NoError(t, err)
	assert.NoError(t, store.StoreBatch(context.Background(), nil))
}
