package clickhouse

import (
	"context"
	"testing"
	"time"

	ch "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptions(t *testing.T) {
	cfg := &ClientConfig{Host: "ch", Port: 8123, Database: "signals", User: "u", Password: "p",
		DialTimeout: time.Second, UseHTTP: true, AsyncInsert: true}

	opt := options(cfg)

	assert.Equal(t, []string{"ch:8123"}, opt.Addr)
	assert.Equal(t, "signals", opt.Auth.Database)
	assert.Equal(t, ch.HTTP, opt.Protocol)
	assert.Equal(t, 1, opt.Settings["async_insert"])
}

func TestNewClient_RequiresHost(t *testing.T) {
	_, err := NewClient(context.Background())
	assert.Error(t, err)
}

func TestInitSchema_RunsInOrder(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE DATABASE").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE").WillReturnResult(sqlmock.NewResult(0, 0))

	c := NewClientFromDB(db)
	require.NoError(t, c.InitSchema(context.Background(), []string{
		"CREATE DATABASE IF NOT EXISTS x",
		"CREATE TABLE IF NOT EXISTS x.y (id Int64) ENGINE = Memory",
	}))
	assert.NoError(t, mock.ExpectationsWereMet())
}
