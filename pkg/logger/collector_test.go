package logger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	mu      sync.Mutex
	batches [][]AggregatedLogEntry
}

func (p *capturePublisher) PublishMessage(_ context.Context, _ string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.batches = append(p.batches, payload.([]AggregatedLogEntry))
	return nil
}

func (p *capturePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.batches)
}

func TestCollector_FoldsRepeatsAndFlushesOnClose(t *testing.T) {
	pub := &capturePublisher{}
	c := NewLogCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 10, Topic: "logs", Publisher: pub})

	for i := 0; i < 5; i++ {
		c.AddLog("error", "store down", map[string]interface{}{"op": "count"}, "x.go:1")
	}
	c.AddLog("error", "store down", map[string]interface{}{"op": "append"}, "x.go:1")
	assert.Equal(t, 2, c.Pending())

	c.Close()
	require.Eventually(t, func() bool { return pub.count() == 1 }, time.Second, 5*time.Millisecond)

	total := 0
	for _, e := range pub.batches[0] {
		total += e.Count
	}
	assert.Equal(t, 6, total)
	assert.Len(t, pub.batches[0], 2)
}

func TestCollector_FlushesAtThreshold(t *testing.T) {
	pub := &capturePublisher{}
	c := NewLogCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 2, Topic: "logs", Publisher: pub})
	defer c.Close()

	c.AddLog("error", "a", nil, "")
	c.AddLog("error", "b", nil, "")

	assert.Equal(t, 0, c.Pending())
	require.Eventually(t, func() bool { return pub.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestLogger_ErrorsReachCollector(t *testing.T) {
	l, err := New(&Config{Level: "debug", Format: "json", Output: "stderr"})
	require.NoError(t, err)
	l.AddCollector(&CollectionConfig{TimeInterval: time.Hour, Topic: "logs"})
	defer l.RemoveCollector()

	l.Info("fine")
	l.Error("broken", String("component", "store"))

	assert.Equal(t, 1, l.collector.Pending())
}
