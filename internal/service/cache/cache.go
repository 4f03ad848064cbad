package cache

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	applogger "SignalFeed/pkg/logger"

	"github.com/google/uuid"
)

// BytesCache is a minimal cache API storing raw bytes with TTL.
type BytesCache interface {
	GetBytes(ctx context.Context, key string) (b []byte, ok bool, err error)
	SetBytes(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// PageCache keeps encoded GET /api/data bodies until the next change hint.
// Invalidate bumps a generation number that is part of every key, so stale
// entries are never read again and simply age out through the TTL.
type PageCache struct {
	backend   BytesCache
	ttl       time.Duration
	namespace string
	gen       atomic.Uint64
	log       *applogger.Logger
}

func NewPageCache(backend BytesCache, ttl time.Duration, log *applogger.Logger) *PageCache {
	if log == nil {
		log = applogger.Nop()
	}
	return &PageCache{
		backend: backend,
		ttl:     ttl,
		// generations are process-local; a shared backend must not mix them
		namespace: uuid.NewString()[:8],
		log:       log,
	}
}

func (c *PageCache) key(gen uint64, page, limit int) string {
	return fmt.Sprintf("signalfeed:page:%s:%d:%d:%d", c.namespace, gen, page, limit)
}

// Get looks up the body for the current generation and returns that generation.
func (c *PageCache) Get(ctx context.Context, page, limit int) ([]byte, uint64, bool) {
	gen := c.gen.Load()
	b, ok, err := c.backend.GetBytes(ctx, c.key(gen, page, limit))
	if err != nil {
		c.log.Warn("page cache read failed", applogger.Error(err))
		return nil, gen, false
	}
	return b, gen, ok
}

// Set stores body under gen, the generation returned by the Get that missed.
// A body read before an invalidation is dropped instead of being filed under
// the newer generation.
func (c *PageCache) Set(ctx context.Context, gen uint64, page, limit int, body []byte) {
	if gen != c.gen.Load() {
		return
	}
	if err := c.backend.SetBytes(ctx, c.key(gen, page, limit), body, c.ttl); err != nil {
		c.log.Warn("page cache write failed", applogger.Error(err))
	}
}

func (c *PageCache) Invalidate() {
	c.gen.Add(1)
}

// Generation is the current invalidation counter.
func (c *PageCache) Generation() uint64 {
	return c.gen.Load()
}
