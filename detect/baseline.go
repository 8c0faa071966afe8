package detect

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultBaselineSize bounds the number of (source, key) series tracked for delta checks
const DefaultBaselineSize = 4096

// BaselineTracker remembers the previous numeric reading per (source, key).
// The least recently seen series is dropped once the tracker is full.
type BaselineTracker struct {
	cache *lru.Cache[string, float64]
}

// NewBaselineTracker creates a tracker holding at most size series
func NewBaselineTracker(size int) (*BaselineTracker, error) {
	if size <= 0 {
		size = DefaultBaselineSize
	}
	cache, err := lru.New[string, float64](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create baseline cache: %w", err)
	}
	return &BaselineTracker{cache: cache}, nil
}

// Observe records value as the new baseline and returns the previous one.
// ok is false for the first reading of a series.
func (b *BaselineTracker) Observe(source, key string, value float64) (prev float64, ok bool) {
	id := source + "\x00" + key
	prev, ok = b.cache.Get(id)
	b.cache.Add(id, value)
	return prev, ok
}

// Len returns the number of tracked series
func (b *BaselineTracker) Len() int {
	return b.cache.Len()
}
