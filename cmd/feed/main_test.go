package main

import (
	"context"
	"io"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"SignalFeed/internal/feed"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type emptyFetcher struct{ calls atomic.Int32 }

func (f *emptyFetcher) FetchPage(context.Context, int, int) (feed.PageResult, error) {
	f.calls.Add(1)
	return feed.PageResult{TotalPages: 0}, nil
}

func TestWSURLFor(t *testing.T) {
	assert.Equal(t, "ws://localhost:3000/ws", wsURLFor("http://localhost:3000/"))
	assert.Equal(t, "wss://feed.example.com/ws", wsURLFor("https://feed.example.com"))
}

func TestPageLimit(t *testing.T) {
	n, err := pageLimit(100)
	require.NoError(t, err)
	assert.Equal(t, 100, n)

	for _, bad := range []int{0, -3, 101, 150} {
		_, err := pageLimit(bad)
		assert.Error(t, err, bad)
	}
}

func TestCommandLoop(t *testing.T) {
	fetcher := &emptyFetcher{}
	renderer := feed.NewTextRenderer(io.Discard, time.UTC, false)
	session := feed.NewSession(fetcher, renderer)
	require.NoError(t, session.Start(context.Background()))

	var quit atomic.Bool
	in := strings.NewReader("reload\nbogus\nquit\nmore\n")
	err := commandLoop(context.Background(), in, session, renderer, func() { quit.Store(true) })

	require.NoError(t, err)
	assert.True(t, quit.Load())
	assert.EqualValues(t, 2, fetcher.calls.Load(), "start plus one reload; nothing after quit")
}
