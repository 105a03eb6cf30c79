// Package protocol carries frames out to the inference service and metadata
// back, over one websocket connection per active camera tile.
package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/carewatch/streaming-console/internal/logger"
	"github.com/carewatch/streaming-console/internal/metrics"
	"github.com/carewatch/streaming-console/pkg/types"
)

const (
	handshakeTimeout = 5 * time.Second
	writeTimeout     = 10 * time.Second
	sendQueueDepth   = 8
)

// ErrNotOpen reports a send on a connection that is not open.
var ErrNotOpen = errors.New("protocol: connection not open")

// ErrSendQueueFull reports that the write pump is saturated.
var ErrSendQueueFull = errors.New("protocol: send queue full")

// MetadataFunc receives each well-formed inference reply, in arrival order.
type MetadataFunc func(md *types.InferMetadata)

// CloseFunc fires exactly once per connection instance, whether the peer
// closed, the network dropped, or Close was called. err is nil only for a
// local Close.
type CloseFunc func(err error)

// Client dials inference connections for camera tiles.
type Client struct {
	inferURL *url.URL
	metrics  *metrics.Metrics
	dialer   *websocket.Dialer
}

// NewClient builds a client for the given inference service base URL
// (http or https; the websocket scheme is derived from it).
func NewClient(serverURL string, m *metrics.Metrics) (*Client, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return nil, errors.New("protocol: unsupported scheme " + u.Scheme)
	}
	u.Path = "/ws/infer"

	return &Client{
		inferURL: u,
		metrics:  m,
		dialer:   &websocket.Dialer{HandshakeTimeout: handshakeTimeout},
	}, nil
}

// Open establishes the streaming connection for a camera, attaching the
// camera id and bearer credential as connection parameters. A failed dial is
// not returned as an error: it routes into onClose, and the returned
// connection reports closed. The caller owns reconnect policy.
func (c *Client) Open(ctx context.Context, cameraID, token string, onMetadata MetadataFunc, onClose CloseFunc) *Conn {
	cn := &Conn{
		id:         uuid.NewString(),
		sendCh:     make(chan []byte, sendQueueDepth),
		done:       make(chan struct{}),
		onMetadata: onMetadata,
		onClose:    onClose,
		metrics:    c.metrics,
	}

	u := *c.inferURL
	q := u.Query()
	q.Set("cam", cameraID)
	q.Set("token", token)
	u.RawQuery = q.Encode()

	ws, _, err := c.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		logger.Debug("Protocol", "dial %s failed: %v", cameraID, err)
		cn.finish(err)
		return cn
	}

	cn.ws = ws
	cn.open.Store(true)
	c.metrics.ConnectsTotal.Add(1)
	logger.Debug("Protocol", "connection %s open for camera %s", cn.id, cameraID)

	go cn.writePump()
	go cn.readPump()
	return cn
}

// Conn is one live inference connection.
type Conn struct {
	id         string
	ws         *websocket.Conn
	sendCh     chan []byte
	buffered   atomic.Int64
	open       atomic.Bool
	closeOnce  sync.Once
	done       chan struct{}
	onMetadata MetadataFunc
	onClose    CloseFunc
	metrics    *metrics.Metrics
}

// IsOpen reports whether frames may currently be sent.
func (cn *Conn) IsOpen() bool {
	return cn.open.Load()
}

// BufferedAmount returns the bytes accepted for transmission but not yet
// written to the socket. The capture gate compares this against its ceiling.
func (cn *Conn) BufferedAmount() int64 {
	return cn.buffered.Load()
}

// SendFrame queues one compressed frame as a single binary message. Failures
// are absorbed by the caller clearing its in-flight flag; they never tear
// down the loop.
func (cn *Conn) SendFrame(data []byte) error {
	if !cn.open.Load() {
		return ErrNotOpen
	}
	cn.buffered.Add(int64(len(data)))
	select {
	case cn.sendCh <- data:
		return nil
	default:
		cn.buffered.Add(-int64(len(data)))
		return ErrSendQueueFull
	}
}

// Close tears the connection down. Idempotent; onClose still fires exactly
// once.
func (cn *Conn) Close() {
	cn.finish(nil)
}

func (cn *Conn) writePump() {
	for {
		select {
		case <-cn.done:
			return
		case data := <-cn.sendCh:
			_ = cn.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			err := cn.ws.WriteMessage(websocket.BinaryMessage, data)
			cn.buffered.Add(-int64(len(data)))
			if err != nil {
				cn.metrics.SendErrors.Add(1)
				cn.finish(err)
				return
			}
			cn.metrics.FramesSent.Add(1)
			cn.metrics.FrameBytesSent.Add(uint64(len(data)))
		}
	}
}

func (cn *Conn) readPump() {
	for {
		_, data, err := cn.ws.ReadMessage()
		if err != nil {
			cn.finish(err)
			return
		}

		var md types.InferMetadata
		if err := json.Unmarshal(data, &md); err != nil {
			// Best-effort display path: a malformed reply is dropped,
			// counted, and the next reply is awaited.
			cn.metrics.MetadataDropped.Add(1)
			continue
		}
		cn.metrics.MetadataReceived.Add(1)
		cn.onMetadata(&md)
	}
}

func (cn *Conn) finish(err error) {
	cn.closeOnce.Do(func() {
		cn.open.Store(false)
		close(cn.done)
		if cn.ws != nil {
			_ = cn.ws.Close()
		}
		if cn.onClose != nil {
			// Deliver off the pump goroutine so a callback holding the
			// caller's lock cannot deadlock against Close.
			go cn.onClose(err)
		}
	})
}
