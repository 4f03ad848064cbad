package repository

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"

	"SignalFeed/internal/domain/models"
	applogger "SignalFeed/pkg/logger"
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// CHMirrorStore keeps an analytics copy of every signal event in ClickHouse.
// The table is a ReplacingMergeTree keyed by id, so redelivered Kafka messages
// collapse into one row.
type CHMirrorStore struct {
	db       *sql.DB
	database string
	table    string
	log      *applogger.Logger
}

func NewCHMirrorStore(db *sql.DB, database, table string, log *applogger.Logger) (*CHMirrorStore, error) {
	if !identRe.MatchString(database) || !identRe.MatchString(table) {
		return nil, fmt.Errorf("invalid clickhouse identifier %q.%q", database, table)
	}
	if log == nil {
		log = applogger.Nop()
	}
	return &CHMirrorStore{db: db, database: database, table: table, log: log}, nil
}

func (s *CHMirrorStore) qualified() string {
	return s.database + "." + s.table
}

// SchemaStatements returns the idempotent DDL for the mirror table.
func (s *CHMirrorStore) SchemaStatements() []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", s.database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    id              Int64,
    symbol          LowCardinality(String),
    price           Decimal(24, 8),
    signal          LowCardinality(String),
    ts              DateTime64(3, 'UTC'),
    additional_info String,
    mirrored_at     DateTime64(3, 'UTC') DEFAULT now64(3)
) ENGINE = ReplacingMergeTree(mirrored_at)
PARTITION BY toYYYYMM(ts)
ORDER BY id`, s.qualified()),
	}
}

func (s *CHMirrorStore) Init(ctx context.Context) error {
	for _, stmt := range s.SchemaStatements() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("clickhouse init mirror: %w", err)
		}
	}
	return nil
}

// StoreBatch inserts events in one batch (one block on the native protocol).
func (s *CHMirrorStore) StoreBatch(ctx context.Context, events []models.SignalEvent) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("clickhouse begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		"INSERT INTO %s (id, symbol, price, signal, ts, additional_info)", s.qualified()))
	if err != nil {
		return fmt.Errorf("clickhouse prepare: %w", err)
	}
	defer stmt.Close()

	for _, e := range events {
		if _, err := stmt.ExecContext(ctx, e.ID, e.Symbol, e.Price, e.Signal, e.Timestamp.UTC(), e.AdditionalInfo); err != nil {
			s.log.Error("clickhouse mirror append failed",
				applogger.Int64("id", e.ID),
				applogger.String("symbol", e.Symbol),
				applogger.Error(err),
			)
			return fmt.Errorf("clickhouse append: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("clickhouse commit: %w", err)
	}
	return nil
}

func (s *CHMirrorStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close is a no-op; the pool belongs to pkg/clickhouse.Client.
func (s *CHMirrorStore) Close() error {
	return nil
}
