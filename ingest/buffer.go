package ingest

import (
	"sort"
	"sync"
	"time"

	"cyberres/core"
)

// Buffer accumulates events in (timestamp, sequence) order. Readers get a
// snapshot they may hold while the buffer keeps growing.
type Buffer struct {
	mu     sync.RWMutex
	events []*core.Event
}

// NewBuffer creates an empty buffer
func NewBuffer() *Buffer {
	return &Buffer{}
}

// Append inserts events keeping the buffer ordered. In-order appends are O(1)
// per event; late events are inserted at their position.
func (b *Buffer) Append(events ...*core.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, e := range events {
		n := len(b.events)
		if n == 0 || !core.EventBefore(e, b.events[n-1]) {
			b.events = append(b.events, e)
			continue
		}
		i := sort.Search(n, func(i int) bool { return core.EventBefore(e, b.events[i]) })
		b.events = append(b.events, nil)
		copy(b.events[i+1:], b.events[i:])
		b.events[i] = e
	}
}

// Snapshot returns the current contents. The slice is a copy; the events are
// shared and must not be modified.
func (b *Buffer) Snapshot() []*core.Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]*core.Event(nil), b.events...)
}

// Len returns the number of buffered events
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.events)
}

// Watermark returns the newest buffered timestamp, zero when empty
func (b *Buffer) Watermark() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.events) == 0 {
		return time.Time{}
	}
	return b.events[len(b.events)-1].Timestamp
}

// TrimBefore drops events older than cutoff and returns how many were dropped
func (b *Buffer) TrimBefore(cutoff time.Time) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	i := sort.Search(len(b.events), func(i int) bool {
		return !b.events[i].Timestamp.Before(cutoff)
	})
	if i == 0 {
		return 0
	}
	b.events = append([]*core.Event(nil), b.events[i:]...)
	return i
}

// Reset drops every event
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = nil
}
