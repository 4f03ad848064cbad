package feed

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"SignalFeed/pkg/util"
)

// TextRenderer prints the view as plain text, one card per line.
type TextRenderer struct {
	mu     sync.Mutex
	w      io.Writer
	loc    *time.Location
	clear  bool
	status string
}

// NewTextRenderer writes to w. With clearScreen set each render starts on a fresh terminal screen.
func NewTextRenderer(w io.Writer, loc *time.Location, clearScreen bool) *TextRenderer {
	if loc == nil {
		loc = time.Local
	}
	return &TextRenderer{w: w, loc: loc, clear: clearScreen}
}

// SetStatus sets a footer line, e.g. the hint channel state.
func (r *TextRenderer) SetStatus(s string) {
	r.mu.Lock()
	r.status = s
	r.mu.Unlock()
}

func (r *TextRenderer) Render(v View) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var b strings.Builder
	if r.clear {
		b.WriteString("\033[H\033[2J")
	}

	switch {
	case v.Phase == PhaseError:
		fmt.Fprintf(&b, "Failed to load data. %v\n", v.Err)
	case v.Phase == PhaseLoadingInitial && v.Len() == 0:
		b.WriteString("Loading...\n")
	case v.Len() == 0:
		b.WriteString("No signals yet.\n")
	}

	if v.Phase != PhaseError {
		for _, g := range v.Groups {
			fmt.Fprintf(&b, "\n== %s ==\n", g.Date)
			for _, e := range g.Entries {
				b.WriteString(r.card(e))
				b.WriteByte('\n')
			}
		}
	}

	b.WriteByte('\n')
	fmt.Fprintf(&b, "[%s] %d shown, page %d/%d", v.Phase, v.Len(), v.CurrentPage+1, max(v.TotalPages, 1))
	if v.Loading {
		b.WriteString(", loading")
	}
	if !v.HasMoreData {
		b.WriteString(", end of feed")
	}
	if r.status != "" {
		b.WriteString(", " + r.status)
	}
	b.WriteByte('\n')

	_, _ = io.WriteString(r.w, b.String())
}

func (r *TextRenderer) card(e Entry) string {
	ev := e.Event
	line := fmt.Sprintf("%3d. %-10s %-8s %14s  %s",
		e.Rank,
		ev.Symbol,
		ev.Signal,
		ev.Price.String(),
		ev.Timestamp.In(r.loc).Format("15:04:05"),
	)
	if ev.AdditionalInfo != "" {
		line += "  " + util.Truncate(ev.AdditionalInfo, 60)
	}
	if e.New {
		line += "  *new*"
	}
	return line
}
