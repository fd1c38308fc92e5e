package notifications

import (
	"context"
	"sync"
	"time"
)

// Feed keeps the most recent notifications in memory for the CLI's toast view.
type Feed struct {
	mu      sync.Mutex
	size    int
	nextSeq int64
	items   []Notification
	now     func() time.Time
}

// NewFeed returns a feed that retains up to size notifications.
func NewFeed(size int) *Feed {
	if size <= 0 {
		size = 200
	}
	return &Feed{size: size, now: time.Now}
}

// Publish appends a rendered notification.
func (f *Feed) Publish(_ context.Context, event Event, payload Payload) error {
	n := render(event, payload, f.now())
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextSeq++
	n.Seq = f.nextSeq
	f.items = append(f.items, n)
	if overflow := len(f.items) - f.size; overflow > 0 {
		f.items = append([]Notification(nil), f.items[overflow:]...)
	}
	return nil
}

// Since returns notifications with a sequence number greater than seq, oldest
// first, capped at limit when limit is positive.
func (f *Feed) Since(seq int64, limit int) []Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Notification, 0)
	for _, n := range f.items {
		if n.Seq > seq {
			out = append(out, n)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// LastSeq returns the sequence number of the newest notification.
func (f *Feed) LastSeq() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nextSeq
}
