package server

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"SignalFeed/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHub struct{ closed atomic.Bool }

func (h *fakeHub) Count() int { return 0 }
func (h *fakeHub) Close()     { h.closed.Store(true) }

type fakeCloser struct{ closed atomic.Bool }

func (c *fakeCloser) Close() error {
	c.closed.Store(true)
	return nil
}

type fakeRelay struct{ ran chan struct{} }

func (r *fakeRelay) Run(ctx context.Context) error {
	close(r.ran)
	<-ctx.Done()
	return ctx.Err()
}

func TestRunContext_ShutsDownComponents(t *testing.T) {
	cfg := config.Default()
	cfg.Server.Port = 0
	cfg.Server.ShutdownTimeout = 2 * time.Second

	hub := &fakeHub{}
	closer := &fakeCloser{}
	relay := &fakeRelay{ran: make(chan struct{})}
	app := New(cfg, nil, nil,
		WithHub(hub),
		WithRelay(relay),
		WithCloser("producer", closer),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.RunContext(ctx) }()

	select {
	case <-relay.ran:
	case <-time.After(2 * time.Second):
		t.Fatal("relay never started")
	}
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("app did not stop")
	}
	assert.True(t, hub.closed.Load())
	assert.True(t, closer.closed.Load())
}
