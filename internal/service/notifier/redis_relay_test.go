package notifier

import (
	"context"
	"testing"
	"time"

	"SignalFeed/pkg/logger"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisRelay_FallsBackToLocalHubWhenRedisIsDown(t *testing.T) {
	cli := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer cli.Close()

	h := newHub()
	s := &fakeSession{id: "a"}
	require.NoError(t, h.Join(s))

	relay := NewRedisRelay(cli, "signalfeed:changes", h, logger.Nop())
	err := relay.Notify(context.Background())

	assert.Error(t, err)
	assert.Equal(t, []string{"newData"}, s.received())
}
