// Package activity keeps a bounded in-memory feed of recent operational log
// events (skipped tickets, calendar syncs, queued time entries) for the
// admin API.
package activity

import (
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Event is one captured log record.
type Event struct {
	Time    time.Time      `json:"time"`
	Level   slog.Level     `json:"level"`
	Message string         `json:"message"`
	Attrs   map[string]any `json:"attrs,omitempty"`
}

// Filter selects events from a Feed.
type Filter struct {
	Since    time.Time  // zero means no lower bound
	MinLevel slog.Level // events below this level are dropped
	Contains string     // case-insensitive substring of the message
	Limit    int        // keep only the newest Limit events; <= 0 keeps all
}

// Feed is a fixed-capacity ring of events, safe for concurrent use.
type Feed struct {
	mu     sync.Mutex
	events []Event
	next   int
	full   bool
}

// NewFeed creates a feed that holds up to capacity events.
func NewFeed(capacity int) *Feed {
	if capacity < 1 {
		capacity = 1
	}
	return &Feed{events: make([]Event, capacity)}
}

// Add records an event, evicting the oldest when the feed is full.
func (f *Feed) Add(e Event) {
	f.mu.Lock()
	f.events[f.next] = e
	f.next = (f.next + 1) % len(f.events)
	if f.next == 0 {
		f.full = true
	}
	f.mu.Unlock()
}

// Len returns the number of events held.
func (f *Feed) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.full {
		return len(f.events)
	}
	return f.next
}

// Query returns the events matching flt, oldest first.
func (f *Feed) Query(flt Filter) []Event {
	f.mu.Lock()
	defer f.mu.Unlock()

	start, n := 0, f.next
	if f.full {
		start, n = f.next, len(f.events)
	}
	needle := strings.ToLower(flt.Contains)

	out := []Event{}
	for i := range n {
		e := f.events[(start+i)%len(f.events)]
		if !flt.Since.IsZero() && e.Time.Before(flt.Since) {
			continue
		}
		if e.Level < flt.MinLevel {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(e.Message), needle) {
			continue
		}
		out = append(out, e)
	}

	if flt.Limit > 0 && len(out) > flt.Limit {
		out = out[len(out)-flt.Limit:]
	}
	return out
}
