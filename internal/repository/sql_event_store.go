package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"SignalFeed/internal/domain/models"
	"SignalFeed/internal/domain/repository"
	"SignalFeed/pkg/config"
	applogger "SignalFeed/pkg/logger"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// OpenDatabase connects gorm to postgres or sqlite and tunes the pool.
func OpenDatabase(cfg config.Database, log *applogger.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.ConnString())
	case "sqlite":
		dialector = sqlite.Open(cfg.ConnString())
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
		TranslateError:         true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", repository.ErrStorageUnavailable, cfg.Driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", repository.ErrStorageUnavailable, err)
	}
	if cfg.Driver == "sqlite" {
		// one writer; in-memory databases also vanish per connection otherwise
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	log.Info("database connected", applogger.String("driver", cfg.Driver))
	return db, nil
}

// SQLEventStore implements repository.EventStore on the trading_data table.
type SQLEventStore struct {
	db      *gorm.DB
	timeout time.Duration
	metrics repository.Metrics
}

type StoreOption func(*SQLEventStore)

// WithQueryTimeout bounds every store call.
func WithQueryTimeout(d time.Duration) StoreOption {
	return func(s *SQLEventStore) {
		s.timeout = d
	}
}

func WithStoreMetrics(m repository.Metrics) StoreOption {
	return func(s *SQLEventStore) {
		s.metrics = m
	}
}

func NewSQLEventStore(db *gorm.DB, opts ...StoreOption) *SQLEventStore {
	s := &SQLEventStore{db: db, timeout: 5 * time.Second}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Migrate creates the table and its (timestamp, id) index when missing.
func (s *SQLEventStore) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&models.SignalEvent{}); err != nil {
		return unavailable("migrate", err)
	}
	return nil
}

func (s *SQLEventStore) Append(ctx context.Context, e *models.SignalEvent) (int64, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	defer s.observe("append", time.Now())

	e.ID = 0
	e.Timestamp = e.Timestamp.UTC()
	if err := s.db.WithContext(ctx).Create(e).Error; err != nil {
		return 0, unavailable("append", err)
	}
	return e.ID, nil
}

func (s *SQLEventStore) Count(ctx context.Context) (int64, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	defer s.observe("count", time.Now())

	var n int64
	if err := s.db.WithContext(ctx).Model(&models.SignalEvent{}).Count(&n).Error; err != nil {
		return 0, unavailable("count", err)
	}
	return n, nil
}

var newestFirst = clause.OrderBy{Columns: []clause.OrderByColumn{
	{Column: clause.Column{Name: "timestamp"}, Desc: true},
	{Column: clause.Column{Name: "id"}, Desc: true},
}}

func (s *SQLEventStore) QueryPage(ctx context.Context, offset, limit int) ([]models.SignalEvent, error) {
	if offset < 0 || limit <= 0 {
		return nil, fmt.Errorf("%w: offset %d limit %d", repository.ErrValidation, offset, limit)
	}

	ctx, cancel := s.bound(ctx)
	defer cancel()
	defer s.observe("query_page", time.Now())

	rows := make([]models.SignalEvent, 0, limit)
	err := s.db.WithContext(ctx).
		Order(newestFirst).
		Offset(offset).
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, unavailable("query page", err)
	}
	return rows, nil
}

func (s *SQLEventStore) Health(ctx context.Context) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	sqlDB, err := s.db.DB()
	if err != nil {
		return unavailable("health", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return unavailable("health", err)
	}
	return nil
}

func (s *SQLEventStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *SQLEventStore) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *SQLEventStore) observe(op string, start time.Time) {
	if s.metrics != nil {
		s.metrics.RecordStoreLatency(op, time.Since(start).Seconds())
	}
}

func unavailable(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s timed out", repository.ErrStorageUnavailable, op)
	}
	return fmt.Errorf("%w: %s: %v", repository.ErrStorageUnavailable, op, err)
}
