package di

import (
	"fmt"
	"testing"

	"SignalFeed/pkg/config"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitializeApp_SQLiteOnly(t *testing.T) {
	cfg := config.Default()
	cfg.Logging.Level = "error"
	cfg.Database.Driver = "sqlite"
	cfg.Database.DSN = fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	cfg.Cache.Enabled = true
	cfg.Webhook.RateLimit.Enabled = true

	app, cleanup, err := InitializeApp(cfg)
	require.NoError(t, err)
	t.Cleanup(cleanup)
	assert.NotNil(t, app)
}

func TestOptionalProvidersStayNil(t *testing.T) {
	cfg := config.Default()

	cli, cleanup, err := ProvideRedisClient(cfg)
	require.NoError(t, err)
	cleanup()
	assert.Nil(t, cli)
	assert.Nil(t, ProvideRedisRelay(cfg, cli, nil, nil))

	producer, err := ProvideKafkaProducer(cfg)
	require.NoError(t, err)
	assert.Nil(t, producer)
	// a nil producer must not become a non-nil interface
	assert.Nil(t, ProvideEventPublisher(producer, cfg))

	consumer, err := ProvideKafkaConsumer(cfg, nil)
	require.NoError(t, err)
	assert.Nil(t, consumer)

	assert.Nil(t, ProvideRateLimiter(cfg))
	assert.Nil(t, ProvidePageCache(cfg, nil, nil, nil))
}
