package feed

import (
	"sort"
	"time"

	"SignalFeed/internal/domain/models"
	"SignalFeed/pkg/util"
)

// merge adds every event whose id is not rendered yet and returns how many
// were added. Group order and in-group order are maintained on insert.
func (s *viewState) merge(events []models.SignalEvent, loc *time.Location, markNew bool) int {
	added := 0
	for _, ev := range events {
		if _, ok := s.displayed[ev.ID]; ok {
			continue
		}
		s.displayed[ev.ID] = struct{}{}
		gi := s.groupFor(util.DateKey(ev.Timestamp, loc))
		s.groups[gi].Entries = insertEntry(s.groups[gi].Entries, Entry{Event: ev, New: markNew})
		added++
	}
	if added > 0 {
		for i := range s.groups {
			rank(s.groups[i].Entries)
		}
	}
	return added
}

// groupFor returns the index of the group for date, creating it in
// newest-date-first position when missing.
func (s *viewState) groupFor(date string) int {
	i := sort.Search(len(s.groups), func(i int) bool {
		return s.groups[i].Date <= date
	})
	if i < len(s.groups) && s.groups[i].Date == date {
		return i
	}
	s.groups = append(s.groups, DateGroup{})
	copy(s.groups[i+1:], s.groups[i:])
	s.groups[i] = DateGroup{Date: date}
	return i
}

// newer reports whether a sorts before b in display order.
func newer(a, b models.SignalEvent) bool {
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.After(b.Timestamp)
	}
	return a.ID > b.ID
}

func insertEntry(entries []Entry, e Entry) []Entry {
	i := sort.Search(len(entries), func(i int) bool {
		return newer(e.Event, entries[i].Event)
	})
	entries = append(entries, Entry{})
	copy(entries[i+1:], entries[i:])
	entries[i] = e
	return entries
}

// rank numbers entries oldest-first while they stay displayed newest-first.
func rank(entries []Entry) {
	n := len(entries)
	for i := range entries {
		entries[i].Rank = n - i
	}
}

func (s *viewState) ids() []int64 {
	out := make([]int64, 0, len(s.displayed))
	for _, g := range s.groups {
		for _, e := range g.Entries {
			out = append(out, e.Event.ID)
		}
	}
	return out
}
