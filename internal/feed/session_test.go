package feed

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"testing"
	"time"

	"SignalFeed/internal/domain/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeServer pages over an in-memory log with the server's ordering.
type fakeServer struct {
	mu     sync.Mutex
	events []models.SignalEvent
	nextID int64
	calls  []int
	err    error
	block  bool
	gate   chan struct{}

	// maxLimit clamps requested page sizes like the HTTP server does
	maxLimit int
}

func (f *fakeServer) add(symbol string, ts time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.events = append(f.events, models.SignalEvent{
		ID:        f.nextID,
		Symbol:    symbol,
		Price:     decimal.NewFromInt(f.nextID),
		Signal:    "BUY",
		Timestamp: ts,
	})
}

func (f *fakeServer) FetchPage(ctx context.Context, page, limit int) (PageResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, page)
	block, gate, ferr := f.block, f.gate, f.err
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return PageResult{}, ctx.Err()
		}
	}
	if block {
		<-ctx.Done()
		return PageResult{}, ctx.Err()
	}
	if ferr != nil {
		return PageResult{}, ferr
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.maxLimit > 0 && limit > f.maxLimit {
		limit = f.maxLimit
	}
	sorted := append([]models.SignalEvent(nil), f.events...)
	sort.Slice(sorted, func(i, j int) bool { return newer(sorted[i], sorted[j]) })
	total := len(sorted)
	res := PageResult{TotalPages: (total + limit - 1) / limit, CurrentPage: page, Items: []models.SignalEvent{}}
	off := page * limit
	if off < total {
		res.Items = sorted[off:min(off+limit, total)]
	}
	return res, nil
}

func (f *fakeServer) fetched() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.calls...)
}

type recordingRenderer struct {
	mu    sync.Mutex
	views []View
}

func (r *recordingRenderer) Render(v View) {
	r.mu.Lock()
	r.views = append(r.views, v)
	r.mu.Unlock()
}

var day = time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)

func seeded(n int) *fakeServer {
	f := &fakeServer{}
	for i := 0; i < n; i++ {
		f.add(fmt.Sprintf("S%d", i), day.Add(time.Duration(i)*time.Hour))
	}
	return f
}

func newSession(f PageFetcher, opts ...Option) *Session {
	opts = append([]Option{WithLocation(time.UTC), WithFetchTimeout(time.Second)}, opts...)
	return NewSession(f, &recordingRenderer{}, opts...)
}

// assertConsistent checks de-duplication and ordering of the rendered view.
func assertConsistent(t *testing.T, s *Session) {
	t.Helper()
	v := s.Snapshot()
	seen := map[int64]bool{}
	for gi, g := range v.Groups {
		if gi > 0 {
			assert.Greater(t, v.Groups[gi-1].Date, g.Date, "groups newest date first")
		}
		for i, e := range g.Entries {
			assert.False(t, seen[e.Event.ID], "id %d rendered twice", e.Event.ID)
			seen[e.Event.ID] = true
			assert.Equal(t, len(g.Entries)-i, e.Rank)
			if i > 0 {
				assert.True(t, newer(g.Entries[i-1].Event, e.Event), "entries newest first in %s", g.Date)
			}
		}
	}
	assert.Len(t, s.state.displayed, v.Len())
}

func TestStart_BuildsGroupedView(t *testing.T) {
	f := seeded(20) // S0..S19 hourly from day 09:00; page 0 straddles midnight
	s := newSession(f)

	require.NoError(t, s.Start(context.Background()))
	v := s.Snapshot()

	assert.Equal(t, PhaseReady, v.Phase)
	assert.True(t, v.InitialLoadComplete)
	assert.True(t, v.HasMoreData)
	assert.Equal(t, 2, v.TotalPages)
	assert.Equal(t, 10, v.Len())
	require.Len(t, v.Groups, 2)
	assert.Equal(t, "2024-05-11", v.Groups[0].Date)
	assert.Equal(t, "2024-05-10", v.Groups[1].Date)
	assert.Len(t, v.Groups[0].Entries, 5)
	assert.Equal(t, "S19", v.Groups[0].Entries[0].Event.Symbol)
	assert.Equal(t, 5, v.Groups[0].Entries[0].Rank)
	assert.False(t, v.Groups[0].Entries[0].New)
	assertConsistent(t, s)
}

func TestStart_SinglePageHasNoMore(t *testing.T) {
	s := newSession(seeded(4))
	require.NoError(t, s.Start(context.Background()))

	assert.False(t, s.Snapshot().HasMoreData)
	assert.ErrorIs(t, s.LoadMore(context.Background()), ErrNoMoreData)
}

func TestStart_EmptyFeed(t *testing.T) {
	s := newSession(&fakeServer{})
	require.NoError(t, s.Start(context.Background()))

	v := s.Snapshot()
	assert.Equal(t, PhaseReady, v.Phase)
	assert.False(t, v.HasMoreData)
	assert.Zero(t, v.Len())
}

func TestLoadMore_SkipsItemsShiftedByInserts(t *testing.T) {
	f := seeded(25)
	s := newSession(f)
	require.NoError(t, s.Start(context.Background()))

	// three newer rows push the tail of page 0 onto page 1
	for i := 0; i < 3; i++ {
		f.add(fmt.Sprintf("N%d", i), day.Add(48*time.Hour+time.Duration(i)*time.Minute))
	}

	require.NoError(t, s.LoadMore(context.Background()))
	v := s.Snapshot()

	assert.Equal(t, 1, v.CurrentPage)
	assert.Equal(t, 17, v.Len(), "10 from page 0 plus 7 novel from page 1")
	for _, g := range v.Groups {
		for _, e := range g.Entries {
			assert.NotContains(t, e.Event.Symbol, "N", "newer rows only arrive through reload")
		}
	}
	assertConsistent(t, s)
}

func TestLoadMore_StopsAtLastPage(t *testing.T) {
	f := seeded(25)
	s := newSession(f)
	require.NoError(t, s.Start(context.Background()))

	require.NoError(t, s.LoadMore(context.Background()))
	assert.True(t, s.Snapshot().HasMoreData)
	require.NoError(t, s.LoadMore(context.Background()))

	v := s.Snapshot()
	assert.False(t, v.HasMoreData)
	assert.Equal(t, 25, v.Len())
	assert.ErrorIs(t, s.LoadMore(context.Background()), ErrNoMoreData)
	assert.Equal(t, []int{0, 1, 2}, f.fetched())
}

func TestLoadMore_ServerClampedLimitKeepsPaging(t *testing.T) {
	f := seeded(250)
	f.maxLimit = 100
	s := newSession(f, WithLimit(150))
	require.NoError(t, s.Start(context.Background()))

	v := s.Snapshot()
	assert.Equal(t, 100, v.Len())
	assert.Equal(t, 3, v.TotalPages)
	assert.True(t, v.HasMoreData, "a clamped page is not a short page")

	require.NoError(t, s.LoadMore(context.Background()))
	require.NoError(t, s.LoadMore(context.Background()))

	v = s.Snapshot()
	assert.Equal(t, 250, v.Len())
	assert.False(t, v.HasMoreData)
	assertConsistent(t, s)
}

func TestLoadMore_RequiresReady(t *testing.T) {
	s := newSession(seeded(25))
	assert.ErrorIs(t, s.LoadMore(context.Background()), ErrNotReady)
}

func TestOnScroll_NearBottomOnly(t *testing.T) {
	f := seeded(40)
	s := newSession(f)
	require.NoError(t, s.Start(context.Background()))

	loaded, err := s.OnScroll(context.Background(), Viewport{ScrollTop: 0, ClientHeight: 500, ScrollHeight: 2000})
	require.NoError(t, err)
	assert.False(t, loaded)

	loaded, err = s.OnScroll(context.Background(), Viewport{ScrollTop: 1420, ClientHeight: 500, ScrollHeight: 2000})
	require.NoError(t, err)
	assert.True(t, loaded)
	assert.Equal(t, 20, s.Snapshot().Len())
}

func TestViewport_NearBottom(t *testing.T) {
	assert.True(t, Viewport{ScrollTop: 500, ClientHeight: 500, ScrollHeight: 1000}.NearBottom())
	assert.True(t, Viewport{ScrollTop: 400, ClientHeight: 500, ScrollHeight: 1000}.NearBottom())
	assert.False(t, Viewport{ScrollTop: 399, ClientHeight: 500, ScrollHeight: 1000}.NearBottom())
}

func TestOnHint_IgnoredBeforeInitialLoad(t *testing.T) {
	f := seeded(5)
	s := newSession(f)

	ran, err := s.OnHint(context.Background())
	require.NoError(t, err)
	assert.False(t, ran)
	assert.Empty(t, f.fetched())
}

func TestOnHint_IgnoredWhileInitialLoadRuns(t *testing.T) {
	f := seeded(5)
	f.gate = make(chan struct{})
	s := newSession(f)

	done := make(chan error, 1)
	go func() { done <- s.Start(context.Background()) }()
	require.Eventually(t, func() bool { return len(f.fetched()) == 1 }, time.Second, 5*time.Millisecond)

	ran, err := s.OnHint(context.Background())
	require.NoError(t, err)
	assert.False(t, ran)

	close(f.gate)
	require.NoError(t, <-done)
	assert.Equal(t, []int{0}, f.fetched(), "the dropped hint is not replayed")
}

func TestOnHint_MergesNewEntries(t *testing.T) {
	f := seeded(25)
	s := newSession(f)
	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.LoadMore(context.Background()))

	f.add("BTC", day.Add(72*time.Hour))
	ran, err := s.OnHint(context.Background())
	require.NoError(t, err)
	assert.True(t, ran)

	v := s.Snapshot()
	assert.Equal(t, 21, v.Len())
	assert.Equal(t, 1, v.CurrentPage, "scroll depth is kept")
	first := v.Groups[0].Entries[0]
	assert.Equal(t, "BTC", first.Event.Symbol)
	assert.True(t, first.New)
	assertConsistent(t, s)
}

func TestOnHint_CatchesUpAcrossPages(t *testing.T) {
	f := seeded(10)
	s := newSession(f)
	require.NoError(t, s.Start(context.Background()))

	for i := 0; i < 25; i++ {
		f.add(fmt.Sprintf("N%d", i), day.Add(96*time.Hour+time.Duration(i)*time.Minute))
	}
	_, err := s.OnHint(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 35, s.Snapshot().Len())
	assert.Equal(t, []int{0, 0, 1, 2}, f.fetched())
	assertConsistent(t, s)
}

func TestOnHint_ResetMode(t *testing.T) {
	f := seeded(25)
	s := newSession(f, WithReloadMode(ReloadReset))
	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.LoadMore(context.Background()))

	f.add("BTC", day.Add(72*time.Hour))
	_, err := s.OnHint(context.Background())
	require.NoError(t, err)

	v := s.Snapshot()
	assert.Equal(t, 10, v.Len())
	assert.Equal(t, 0, v.CurrentPage)
	assert.False(t, v.Groups[0].Entries[0].New)
	assert.True(t, v.HasMoreData)
}

func TestOnHint_ReplayedAfterRunningFetch(t *testing.T) {
	f := seeded(25)
	s := newSession(f)
	require.NoError(t, s.Start(context.Background()))

	f.mu.Lock()
	f.gate = make(chan struct{})
	f.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- s.LoadMore(context.Background()) }()
	require.Eventually(t, func() bool { return len(f.fetched()) == 2 }, time.Second, 5*time.Millisecond)

	f.add("BTC", day.Add(72*time.Hour))
	ran, err := s.OnHint(context.Background())
	require.NoError(t, err)
	assert.False(t, ran)

	f.mu.Lock()
	close(f.gate)
	f.gate = nil
	f.mu.Unlock()
	require.NoError(t, <-done)

	assert.Equal(t, []int{0, 1, 0}, f.fetched())
	assert.Equal(t, "BTC", s.Snapshot().Groups[0].Entries[0].Event.Symbol)
}

func TestFetchTimeout_ReleasesGuard(t *testing.T) {
	f := seeded(5)
	f.block = true
	s := newSession(f, WithFetchTimeout(30*time.Millisecond))

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")

	v := s.Snapshot()
	assert.Equal(t, PhaseError, v.Phase)
	assert.False(t, v.Loading)
	assert.True(t, v.InitialLoadComplete)

	f.mu.Lock()
	f.block = false
	f.mu.Unlock()
	require.NoError(t, s.Reload(context.Background()))
	assert.Equal(t, PhaseReady, s.Snapshot().Phase)
	assert.Equal(t, 5, s.Snapshot().Len())
}

func TestConcurrentLoadsAreRefused(t *testing.T) {
	f := seeded(40)
	s := newSession(f)
	require.NoError(t, s.Start(context.Background()))

	f.mu.Lock()
	f.gate = make(chan struct{})
	f.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- s.LoadMore(context.Background()) }()
	require.Eventually(t, func() bool { return s.Snapshot().Loading }, time.Second, 5*time.Millisecond)

	err := s.LoadMore(context.Background())
	assert.True(t, errors.Is(err, ErrBusy) || errors.Is(err, ErrNotReady), err)

	close(f.gate)
	require.NoError(t, <-done)
	assert.Equal(t, []int{0, 1}, f.fetched())
}

func TestLoadMore_FailureShowsError(t *testing.T) {
	f := seeded(25)
	s := newSession(f)
	require.NoError(t, s.Start(context.Background()))

	f.mu.Lock()
	f.err = errors.New("HTTP error! Status: 503")
	f.mu.Unlock()

	require.Error(t, s.LoadMore(context.Background()))
	v := s.Snapshot()
	assert.Equal(t, PhaseError, v.Phase)
	assert.False(t, v.Loading)
	assert.ErrorContains(t, v.Err, "503")
}

func TestRandomInterleaving_StaysConsistent(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	f := &fakeServer{}
	for i := 0; i < 30; i++ {
		f.add(fmt.Sprintf("S%d", i), day.Add(time.Duration(rng.Intn(96))*time.Hour))
	}
	s := newSession(f, WithLimit(7))
	require.NoError(t, s.Start(context.Background()))

	for step := 0; step < 60; step++ {
		switch rng.Intn(3) {
		case 0:
			f.add(fmt.Sprintf("R%d", step), day.Add(time.Duration(rng.Intn(120))*time.Hour))
		case 1:
			_ = s.LoadMore(context.Background())
		case 2:
			_, _ = s.OnHint(context.Background())
		}
		assertConsistent(t, s)
	}
}
