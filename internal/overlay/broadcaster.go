package overlay

import (
	"sync"

	"github.com/carewatch/streaming-console/internal/logger"
)

// Broadcaster manages fanout of rendered overlay JPEGs to multiple viewers.
type Broadcaster struct {
	mu      sync.Mutex
	clients map[int]chan []byte
	nextID  int
}

// NewBroadcaster creates an empty fanout.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{clients: make(map[int]chan []byte)}
}

// Subscribe adds a new viewer and returns a channel for receiving frames.
func (b *Broadcaster) Subscribe() (int, <-chan []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan []byte, 2) // small buffer so a slow viewer drops frames
	b.clients[id] = ch

	logger.Debug("Overlay", "viewer #%d subscribed (total: %d)", id, len(b.clients))
	return id, ch
}

// Unsubscribe removes a viewer.
func (b *Broadcaster) Unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.clients[id]; ok {
		close(ch)
		delete(b.clients, id)
		logger.Debug("Overlay", "viewer #%d unsubscribed (remaining: %d)", id, len(b.clients))
	}
}

// ClientCount returns the number of subscribed viewers.
func (b *Broadcaster) ClientCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

func (b *Broadcaster) broadcast(data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.clients {
		select {
		case ch <- data:
		default:
			// Viewer too slow; skip this frame for it.
		}
	}
}
