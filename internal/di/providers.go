package di

import (
	"context"
	"fmt"
	"time"

	"SignalFeed/internal/domain/repository"
	"SignalFeed/internal/handler/api"
	internalrepo "SignalFeed/internal/repository"
	icache "SignalFeed/internal/service/cache"
	"SignalFeed/internal/service/notifier"
	"SignalFeed/internal/service/ratelimit"
	"SignalFeed/internal/usecase"
	pkgch "SignalFeed/pkg/clickhouse"
	"SignalFeed/pkg/config"
	xhttp "SignalFeed/pkg/http"
	pkgkafka "SignalFeed/pkg/kafka"
	applogger "SignalFeed/pkg/logger"
	"SignalFeed/pkg/metrics"
	"SignalFeed/pkg/server"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
)

// ProvideLogger builds the process logger from the logging section.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvideMetrics creates a Prometheus metrics recorder on the default registry,
// which is what /metrics serves.
func ProvideMetrics() repository.Metrics {
	return metrics.New(prometheus.DefaultRegisterer)
}

// ProvideEventStore opens the primary database and migrates it when configured.
func ProvideEventStore(cfg *config.Config, m repository.Metrics, log *applogger.Logger) (*internalrepo.SQLEventStore, func(), error) {
	db, err := internalrepo.OpenDatabase(cfg.Database, log)
	if err != nil {
		return nil, nil, fmt.Errorf("event store: %w", err)
	}
	store := internalrepo.NewSQLEventStore(db,
		internalrepo.WithQueryTimeout(cfg.Database.QueryTimeout),
		internalrepo.WithStoreMetrics(m),
	)
	cleanup := func() {
		if err := store.Close(); err != nil {
			log.Warn("event store close error", applogger.Error(err))
		}
	}

	if cfg.Database.AutoMigrate {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := store.Migrate(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("event store migrate: %w", err)
		}
	}
	return store, cleanup, nil
}

// ProvideRedisClient connects to redis when enabled; nil otherwise.
func ProvideRedisClient(cfg *config.Config) (*redis.Client, func(), error) {
	if !cfg.Redis.Enabled {
		return nil, func() {}, nil
	}
	cli := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := cli.Ping(ctx).Err(); err != nil {
		_ = cli.Close()
		return nil, nil, fmt.Errorf("redis ping %s: %w", cfg.Redis.Addr, err)
	}
	return cli, func() { _ = cli.Close() }, nil
}

func ProvideHub(m repository.Metrics, log *applogger.Logger) *notifier.Hub {
	return notifier.NewHub(m, log)
}

// ProvideRedisRelay is nil unless redis is enabled.
func ProvideRedisRelay(cfg *config.Config, cli *redis.Client, hub *notifier.Hub, log *applogger.Logger) *notifier.RedisRelay {
	if cli == nil {
		return nil
	}
	return notifier.NewRedisRelay(cli, cfg.Redis.Channel, hub, log)
}

// ProvideChangeNotifier fans hints out through redis when several instances
// share the feed, straight to the local hub otherwise.
func ProvideChangeNotifier(hub *notifier.Hub, relay *notifier.RedisRelay) repository.ChangeNotifier {
	if relay != nil {
		return relay
	}
	return hub
}

// ProvideKafkaProducer creates a Kafka producer when kafka is enabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.Linger),
		pkgkafka.WithWriteTimeout(cfg.Kafka.Producer.WriteTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideEventPublisher creates Kafka publisher repository.
func ProvideEventPublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.EventPublisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaEventPublisher(producer, cfg.Kafka.Topic)
}

// ProvideClickHouseClient connects to the analytics mirror when enabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, func(), error) {
	if !cfg.ClickHouse.Enabled {
		return nil, func() {}, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := pkgch.NewClient(ctx,
		pkgch.WithAddress(cfg.ClickHouse.Host, cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, func() { _ = client.Close() }, nil
}

// ProvideMirrorStore creates the ClickHouse mirror and its schema.
func ProvideMirrorStore(cfg *config.Config, client *pkgch.Client, log *applogger.Logger) (repository.MirrorStore, error) {
	if client == nil {
		return nil, nil
	}
	store, err := internalrepo.NewCHMirrorStore(client.DB(), cfg.ClickHouse.Database, cfg.ClickHouse.Table, log)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return store, nil
}

// ProvideKafkaConsumer creates the mirror consumer when both ends are configured.
func ProvideKafkaConsumer(cfg *config.Config, log *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled || !cfg.Kafka.Consumer.Enabled || !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(log,
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(pkgkafka.HookFuncs{
		Before: rejectEmpty,
	})
	return consumer, nil
}

func rejectEmpty(ctx context.Context, _ string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
	if len(data) == 0 {
		return ctx, km, data, &pkgkafka.HookError{Code: "ERR_EMPTY"}
	}
	return ctx, km, data, nil
}

// ProvideMirrorHandler consumes the event topic into the mirror.
func ProvideMirrorHandler(cfg *config.Config, mirror repository.MirrorStore, m repository.Metrics, log *applogger.Logger) *usecase.EventMirrorHandler {
	if mirror == nil {
		return nil
	}
	return usecase.NewEventMirrorHandler(cfg.Kafka.Topic, mirror, m, log)
}

func ProvideIngestor(
	store *internalrepo.SQLEventStore,
	changes repository.ChangeNotifier,
	publisher repository.EventPublisher,
	m repository.Metrics,
	log *applogger.Logger,
) *usecase.Ingestor {
	var opts []usecase.IngestorOption
	if publisher != nil {
		opts = append(opts, usecase.WithPublisher(publisher))
	}
	return usecase.NewIngestor(store, changes, m, log, opts...)
}

func ProvidePaginator(store *internalrepo.SQLEventStore, cfg *config.Config) *usecase.Paginator {
	return usecase.NewPaginator(store, cfg.Pagination.DefaultLimit, cfg.Pagination.MaxLimit)
}

// ProvidePageCache keeps page bodies in redis when available, in memory
// otherwise, and drops them on every change hint.
func ProvidePageCache(cfg *config.Config, cli *redis.Client, hub *notifier.Hub, log *applogger.Logger) *icache.PageCache {
	if !cfg.Cache.Enabled {
		return nil
	}
	var backend icache.BytesCache = icache.NewTTLCache(4096)
	if cli != nil {
		backend = icache.NewRedisCacheFromClient(cli)
	}
	pc := icache.NewPageCache(backend, cfg.Cache.TTL, log)
	hub.Subscribe(pc.Invalidate)
	return pc
}

func ProvideRateLimiter(cfg *config.Config) *ratelimit.Limiter {
	if !cfg.Webhook.RateLimit.Enabled {
		return nil
	}
	return ratelimit.New(float64(cfg.Webhook.RateLimit.Capacity), cfg.Webhook.RateLimit.Refill)
}

// ProvideHTTPHandler assembles every route the server exposes.
func ProvideHTTPHandler(
	cfg *config.Config,
	log *applogger.Logger,
	pages *usecase.Paginator,
	ingest *usecase.Ingestor,
	m repository.Metrics,
	store *internalrepo.SQLEventStore,
	pc *icache.PageCache,
	limiter *ratelimit.Limiter,
	cli *redis.Client,
	hub *notifier.Hub,
) xhttp.Handler {
	opts := []api.SignalsOption{api.WithHealthCheck("database", store)}
	if pc != nil {
		opts = append(opts, api.WithPageCache(pc))
	}
	if limiter != nil {
		opts = append(opts, api.WithWebhookLimiter(limiter))
	}
	if cli != nil {
		opts = append(opts, api.WithHealthCheck("redis", api.HealthFunc(func(ctx context.Context) error {
			return cli.Ping(ctx).Err()
		})))
	}

	return xhttp.Handlers{
		api.NewSignalsEchoHandler(log, pages, ingest, m, opts...),
		api.NewPushHandler(cfg.Push.Path, hub, cfg.Push.WriteTimeout, cfg.Push.PingInterval, cfg.Push.SendBuffer, log),
	}
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	log *applogger.Logger,
	handler xhttp.Handler,
	hub *notifier.Hub,
	relay *notifier.RedisRelay,
	consumer *pkgkafka.Consumer,
	mirror *usecase.EventMirrorHandler,
	producer *pkgkafka.Producer,
	limiter *ratelimit.Limiter,
) *server.App {
	if producer != nil && cfg.Logging.Collector.Topic != "" {
		log.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   cfg.Logging.Collector.Interval,
			CountThreshold: cfg.Logging.Collector.CountThreshold,
			Topic:          cfg.Logging.Collector.Topic,
			Publisher:      producer,
		})
	}

	opts := []server.Option{server.WithHub(hub)}
	if relay != nil {
		opts = append(opts, server.WithRelay(relay))
	}
	if consumer != nil && mirror != nil {
		opts = append(opts, server.WithConsumer(consumer, mirror))
	}
	if producer != nil {
		opts = append(opts, server.WithCloser("kafka producer", producer))
	}
	if limiter != nil {
		opts = append(opts, server.WithLimiterSweep(limiter))
	}
	return server.New(cfg, log, handler, opts...)
}
