package observer

import (
	"fmt"
	"sync"
	"time"
)

// DefaultCapacity bounds the global event feed the UI monitor renders.
const DefaultCapacity = 50

// Feed is the capped, newest-first global event log. Markers like
// [SYSTEM], [CRITICAL] and [ERROR] inside messages are display
// conventions for the consumer; the feed itself does not interpret them.
type Feed struct {
	mu       sync.RWMutex
	capacity int
	entries  []string
	now      func() time.Time
}

func NewFeed(capacity int) *Feed {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	return &Feed{
		capacity: capacity,
		entries:  make([]string, 0, capacity),
		now:      time.Now,
	}
}

// Append prepends a timestamped entry, evicting the oldest entry once
// the feed is full.
func (f *Feed) Append(msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	entry := fmt.Sprintf("[%s] %s", f.now().Format("15:04:05"), msg)
	f.entries = append([]string{entry}, f.entries...)
	if len(f.entries) > f.capacity {
		f.entries = f.entries[:f.capacity]
	}
}

// Snapshot returns a copy of the feed, newest first.
func (f *Feed) Snapshot() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]string, len(f.entries))
	copy(out, f.entries)
	return out
}

func (f *Feed) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = f.entries[:0]
}

func (f *Feed) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.entries)
}
