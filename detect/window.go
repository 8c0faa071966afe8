package detect

import (
	"sort"
	"time"

	"cyberres/core"
)

// slidingWindow holds the matching events of one (rule, grouping key) pair,
// ordered by timestamp then ingestion sequence
type slidingWindow struct {
	events []*core.Event
}

// add inserts the event at its ordered position and evicts every entry older
// than the event's timestamp minus width. It returns the number of events
// left in the window.
func (w *slidingWindow) add(event *core.Event, width time.Duration) int {
	events := w.events

	insertIndex := sort.Search(len(events), func(i int) bool {
		return core.EventBefore(event, events[i])
	})
	events = append(events, nil)
	copy(events[insertIndex+1:], events[insertIndex:])
	events[insertIndex] = event

	// entries with ts < t - width fall out; ts == t - width stays
	cutoff := event.Timestamp.Add(-width)
	startIndex := sort.Search(len(events), func(i int) bool {
		return !events[i].Timestamp.Before(cutoff)
	})
	if startIndex > 0 {
		events = append(events[:0:0], events[startIndex:]...)
	}

	w.events = events
	return len(events)
}

// drain returns the window contents and leaves the window empty
func (w *slidingWindow) drain() []*core.Event {
	out := w.events
	w.events = nil
	return out
}

func (w *slidingWindow) size() int {
	return len(w.events)
}

// windowSet maps grouping keys to their windows for a single rule
type windowSet map[string]*slidingWindow

func (ws windowSet) get(key string) *slidingWindow {
	w, ok := ws[key]
	if !ok {
		w = &slidingWindow{}
		ws[key] = w
	}
	return w
}
