package tile

import (
	"sync"
	"time"

	"github.com/carewatch/streaming-console/pkg/types"
)

// Entry is one logged event detection.
type Entry struct {
	CameraID string    `json:"camera"`
	Label    string    `json:"message"`
	Conf     float64   `json:"confidence"`
	Time     time.Time `json:"time"`
}

// Feed is the bounded in-memory event log shared by the console's tiles.
type Feed struct {
	mu      sync.Mutex
	entries []Entry
	cap     int
}

// NewFeed creates a feed keeping at most capacity entries.
func NewFeed(capacity int) *Feed {
	if capacity <= 0 {
		capacity = 100
	}
	return &Feed{cap: capacity}
}

// Add appends one event, evicting the oldest entry when full.
func (f *Feed) Add(cameraID string, det types.Detection, at time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.entries = append(f.entries, Entry{
		CameraID: cameraID,
		Label:    det.Label,
		Conf:     det.Conf,
		Time:     at,
	})
	if len(f.entries) > f.cap {
		f.entries = f.entries[len(f.entries)-f.cap:]
	}
}

// Recent returns up to n entries, newest first.
func (f *Feed) Recent(n int) []Entry {
	f.mu.Lock()
	defer f.mu.Unlock()

	if n <= 0 || n > len(f.entries) {
		n = len(f.entries)
	}
	out := make([]Entry, 0, n)
	for i := len(f.entries) - 1; i >= len(f.entries)-n; i-- {
		out = append(out, f.entries[i])
	}
	return out
}
