package feed

import (
	"errors"
	"time"

	"SignalFeed/internal/domain/models"
)

// Phase is where a Session is in its load cycle.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseLoadingInitial
	PhaseReady
	PhaseLoadingMore
	PhaseError
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseLoadingInitial:
		return "loading"
	case PhaseReady:
		return "ready"
	case PhaseLoadingMore:
		return "loading-more"
	case PhaseError:
		return "error"
	default:
		return "unknown"
	}
}

// ReloadMode selects what a change hint does to an already rendered view.
type ReloadMode string

const (
	// ReloadMerge folds the newest page into the view and keeps scroll depth.
	ReloadMerge ReloadMode = "merge"
	// ReloadReset discards the view and loads page 0 again.
	ReloadReset ReloadMode = "reset"
)

func ParseReloadMode(s string) (ReloadMode, error) {
	switch ReloadMode(s) {
	case "", ReloadMerge:
		return ReloadMerge, nil
	case ReloadReset:
		return ReloadReset, nil
	default:
		return "", errors.New("reload mode must be merge or reset")
	}
}

var (
	// ErrBusy is returned when a fetch is already in flight for the session.
	ErrBusy = errors.New("feed: load already in progress")
	// ErrNoMoreData is returned by LoadMore once the last page has been seen.
	ErrNoMoreData = errors.New("feed: no more data")
	// ErrNotReady is returned when an operation needs a loaded view.
	ErrNotReady = errors.New("feed: view not ready")
)

// Entry is one rendered card.
type Entry struct {
	Event models.SignalEvent
	// Rank is the 1-based oldest-first position among the rendered entries of its date.
	Rank int
	// New marks entries merged after the view was first built.
	New bool
}

// DateGroup holds the entries for one calendar date, newest first.
type DateGroup struct {
	Date    string
	Entries []Entry
}

// View is an immutable copy of the session's state, handed to renderers.
type View struct {
	Phase               Phase
	CurrentPage         int
	TotalPages          int
	HasMoreData         bool
	InitialLoadComplete bool
	Loading             bool
	Groups              []DateGroup
	Err                 error
	UpdatedAt           time.Time
}

// Len is the number of rendered entries.
func (v View) Len() int {
	n := 0
	for _, g := range v.Groups {
		n += len(g.Entries)
	}
	return n
}

// viewState is owned by exactly one Session and guarded by its mutex.
type viewState struct {
	phase               Phase
	currentPage         int
	totalPages          int
	hasMoreData         bool
	initialLoadComplete bool
	displayed           map[int64]struct{}
	groups              []DateGroup
	err                 error
	updatedAt           time.Time
}

func newViewState() viewState {
	return viewState{
		phase:       PhaseIdle,
		hasMoreData: true,
		displayed:   make(map[int64]struct{}),
	}
}

// clear drops everything rendered but keeps initialLoadComplete.
func (s *viewState) clear() {
	s.currentPage = 0
	s.totalPages = 0
	s.hasMoreData = true
	s.displayed = make(map[int64]struct{})
	s.groups = nil
	s.err = nil
}

func (s *viewState) snapshot(loading bool) View {
	groups := make([]DateGroup, len(s.groups))
	for i, g := range s.groups {
		groups[i] = DateGroup{Date: g.Date, Entries: append([]Entry(nil), g.Entries...)}
	}
	return View{
		Phase:               s.phase,
		CurrentPage:         s.currentPage,
		TotalPages:          s.totalPages,
		HasMoreData:         s.hasMoreData,
		InitialLoadComplete: s.initialLoadComplete,
		Loading:             loading,
		Groups:              groups,
		Err:                 s.err,
		UpdatedAt:           s.updatedAt,
	}
}
