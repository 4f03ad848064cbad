package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"SignalFeed/internal/domain/models"
	applogger "SignalFeed/pkg/logger"
)

// PageResult is one fetched page window.
type PageResult struct {
	Items       []models.SignalEvent
	TotalPages  int
	CurrentPage int
}

// PageFetcher loads page windows from the server.
type PageFetcher interface {
	FetchPage(ctx context.Context, page, limit int) (PageResult, error)
}

// Renderer draws the view. It is called after every state change.
type Renderer interface {
	Render(v View)
}

// Viewport is the scroll geometry reported by the presenter.
type Viewport struct {
	ScrollTop    float64
	ClientHeight float64
	ScrollHeight float64
}

// nearBottomThreshold is how close to the end of the content a scroll must be
// to request the next page.
const nearBottomThreshold = 100

// NearBottom reports whether the viewport is within the load-more threshold.
func (v Viewport) NearBottom() bool {
	return v.ScrollTop+v.ClientHeight >= v.ScrollHeight-nearBottomThreshold
}

type Option func(*Session)

func WithLimit(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.limit = n
		}
	}
}

// WithFetchTimeout bounds every fetch. The loading guard is released when it fires.
func WithFetchTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithLocation sets the zone used to derive calendar dates.
func WithLocation(loc *time.Location) Option {
	return func(s *Session) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func WithReloadMode(m ReloadMode) Option {
	return func(s *Session) {
		s.mode = m
	}
}

// WithCatchUpPages caps how many extra pages a merge reload may fetch when
// page 0 has no overlap with the rendered view.
func WithCatchUpPages(n int) Option {
	return func(s *Session) {
		if n >= 0 {
			s.catchUp = n
		}
	}
}

func WithLogger(l *applogger.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.log = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		s.now = now
	}
}

// Session reconciles fetched pages and change hints into one de-duplicated,
// date-grouped view. At most one fetch is in flight at a time; triggers that
// arrive meanwhile are refused, except hints, which are replayed once the
// running fetch settles.
type Session struct {
	fetcher  PageFetcher
	renderer Renderer
	limit    int
	timeout  time.Duration
	loc      *time.Location
	mode     ReloadMode
	catchUp  int
	log      *applogger.Logger
	now      func() time.Time

	mu          sync.Mutex
	state       viewState
	loading     bool
	pendingHint bool
}

func NewSession(fetcher PageFetcher, renderer Renderer, opts ...Option) *Session {
	s := &Session{
		fetcher:  fetcher,
		renderer: renderer,
		limit:    10,
		timeout:  10 * time.Second,
		loc:      time.Local,
		mode:     ReloadMerge,
		catchUp:  3,
		log:      applogger.Nop(),
		now:      time.Now,
		state:    newViewState(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// acquire takes the loading guard. The returned release must run on every exit path.
func (s *Session) acquire() (release func(), ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loading {
		return nil, false
	}
	s.loading = true

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			s.loading = false
			s.mu.Unlock()
		})
	}, true
}

func (s *Session) fetch(ctx context.Context, page int) (PageResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res, err := s.fetcher.FetchPage(ctx, page, s.limit)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return PageResult{}, fmt.Errorf("page %d: timed out after %s", page, s.timeout)
		}
		return PageResult{}, fmt.Errorf("page %d: %w", page, err)
	}
	return res, nil
}

// Start performs the initial load.
func (s *Session) Start(ctx context.Context) error {
	return s.loadInitial(ctx)
}

func (s *Session) loadInitial(ctx context.Context) error {
	release, ok := s.acquire()
	if !ok {
		return ErrBusy
	}

	s.update(func(st *viewState) { st.phase = PhaseLoadingInitial })

	res, err := s.fetch(ctx, 0)

	s.mu.Lock()
	// a hint is only worth acting on once the first attempt has settled
	s.state.initialLoadComplete = true
	if err != nil {
		s.state.clear()
		s.state.phase = PhaseError
		s.state.err = err
	} else {
		s.state.clear()
		s.state.merge(res.Items, s.loc, false)
		s.state.totalPages = res.TotalPages
		s.state.currentPage = 0
		s.state.hasMoreData = s.more(0, res)
		s.state.phase = PhaseReady
	}
	s.state.updatedAt = s.now()
	s.mu.Unlock()

	release()
	s.render()
	if err != nil {
		s.log.Warn("feed initial load failed", applogger.Error(err))
	}
	s.replayHint(ctx)
	return err
}

// more decides hasMoreData after loading page. The server may clamp the
// requested limit, so only its page count says whether page was the last.
func (s *Session) more(page int, res PageResult) bool {
	switch {
	case len(res.Items) == 0:
		return false
	case page >= res.TotalPages-1:
		return false
	default:
		return true
	}
}

// LoadMore fetches the page after the last loaded one and merges its novel entries.
func (s *Session) LoadMore(ctx context.Context) error {
	s.mu.Lock()
	phase, hasMore, next := s.state.phase, s.state.hasMoreData, s.state.currentPage+1
	s.mu.Unlock()
	if phase != PhaseReady {
		return ErrNotReady
	}
	if !hasMore {
		return ErrNoMoreData
	}

	release, ok := s.acquire()
	if !ok {
		return ErrBusy
	}

	s.update(func(st *viewState) { st.phase = PhaseLoadingMore })

	res, err := s.fetch(ctx, next)

	s.mu.Lock()
	var added int
	if err != nil {
		s.state.phase = PhaseError
		s.state.err = err
	} else {
		added = s.state.merge(res.Items, s.loc, true)
		s.state.currentPage = next
		s.state.totalPages = res.TotalPages
		if !s.more(next, res) {
			s.state.hasMoreData = false
		}
		s.state.phase = PhaseReady
	}
	s.state.updatedAt = s.now()
	s.mu.Unlock()

	release()
	s.render()
	if err != nil {
		s.log.Warn("feed load more failed", applogger.Int("page", next), applogger.Error(err))
	} else {
		s.log.Debug("feed page merged", applogger.Int("page", next), applogger.Int("added", added))
	}
	s.replayHint(ctx)
	return err
}

// OnScroll loads the next page when the viewport is near the bottom and a load is allowed.
// It reports whether a load was attempted.
func (s *Session) OnScroll(ctx context.Context, vp Viewport) (bool, error) {
	if !vp.NearBottom() {
		return false, nil
	}
	s.mu.Lock()
	allowed := s.state.phase == PhaseReady && s.state.hasMoreData && !s.loading
	s.mu.Unlock()
	if !allowed {
		return false, nil
	}
	err := s.LoadMore(ctx)
	if errors.Is(err, ErrBusy) || errors.Is(err, ErrNoMoreData) || errors.Is(err, ErrNotReady) {
		return false, nil
	}
	return true, err
}

// OnHint handles a change hint. Hints before the initial load has settled
// are ignored; a hint during a running fetch is replayed after it.
// It reports whether a reload ran.
func (s *Session) OnHint(ctx context.Context) (bool, error) {
	s.mu.Lock()
	if !s.state.initialLoadComplete {
		s.mu.Unlock()
		return false, nil
	}
	if s.loading {
		s.pendingHint = true
		s.mu.Unlock()
		return false, nil
	}
	s.mu.Unlock()

	err := s.Reload(ctx)
	if errors.Is(err, ErrBusy) {
		s.mu.Lock()
		s.pendingHint = true
		s.mu.Unlock()
		return false, nil
	}
	return true, err
}

func (s *Session) replayHint(ctx context.Context) {
	s.mu.Lock()
	pending := s.pendingHint
	s.pendingHint = false
	s.mu.Unlock()
	if pending && ctx.Err() == nil {
		_, _ = s.OnHint(ctx)
	}
}

// Reload refreshes the view with the configured mode. A view that never
// loaded or is in error is always rebuilt from scratch.
func (s *Session) Reload(ctx context.Context) error {
	s.mu.Lock()
	phase := s.state.phase
	s.mu.Unlock()

	if s.mode == ReloadReset || phase == PhaseIdle || phase == PhaseError {
		return s.loadInitial(ctx)
	}
	return s.mergeLatest(ctx)
}

// mergeLatest folds page 0 into the view. When page 0 is entirely new the
// gap may be wider than one page, so further pages are fetched until one
// overlaps what is rendered or the catch-up budget runs out.
func (s *Session) mergeLatest(ctx context.Context) error {
	release, ok := s.acquire()
	if !ok {
		return ErrBusy
	}

	var (
		err   error
		added int
	)
	for page := 0; page <= s.catchUp; page++ {
		var res PageResult
		res, err = s.fetch(ctx, page)
		if err != nil {
			break
		}

		s.mu.Lock()
		n := s.state.merge(res.Items, s.loc, true)
		s.state.totalPages = res.TotalPages
		s.state.updatedAt = s.now()
		s.mu.Unlock()
		added += n

		if n < len(res.Items) || page >= res.TotalPages-1 {
			break
		}
	}

	if err != nil {
		s.mu.Lock()
		s.state.phase = PhaseError
		s.state.err = err
		s.state.updatedAt = s.now()
		s.mu.Unlock()
	}

	release()
	s.render()
	if err != nil {
		s.log.Warn("feed reload failed", applogger.Error(err))
	} else {
		s.log.Debug("feed reloaded", applogger.Int("added", added))
	}
	s.replayHint(ctx)
	return err
}

// Snapshot returns a copy of the current view.
func (s *Session) Snapshot() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.snapshot(s.loading)
}

// DisplayedIDs lists rendered ids in display order.
func (s *Session) DisplayedIDs() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.ids()
}

func (s *Session) update(fn func(st *viewState)) {
	s.mu.Lock()
	fn(&s.state)
	s.mu.Unlock()
	s.render()
}

func (s *Session) render() {
	if s.renderer == nil {
		return
	}
	s.renderer.Render(s.Snapshot())
}
