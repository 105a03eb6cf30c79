package protocol

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/carewatch/streaming-console/internal/metrics"
	"github.com/carewatch/streaming-console/pkg/types"
)

var testUpgrader = websocket.Upgrader{}

// inferStub upgrades each request and hands the socket to fn.
func inferStub(t *testing.T, fn func(ws *websocket.Conn, r *http.Request)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer ws.Close()
		fn(ws, r)
	}))
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestNewClientDerivesWebsocketScheme(t *testing.T) {
	m := metrics.New()

	c, err := NewClient("http://infer.local:8000", m)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if c.inferURL.Scheme != "ws" || c.inferURL.Path != "/ws/infer" {
		t.Fatalf("derived URL = %v, want ws scheme and /ws/infer path", c.inferURL)
	}

	c, err = NewClient("https://infer.local", m)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if c.inferURL.Scheme != "wss" {
		t.Fatalf("https base derived scheme %q, want wss", c.inferURL.Scheme)
	}

	if _, err := NewClient("ftp://infer.local", m); err == nil {
		t.Fatalf("unsupported scheme accepted")
	}
}

func TestOpenSendsFrameAndParsesReply(t *testing.T) {
	var gotCam, gotToken atomic.Value
	srv := inferStub(t, func(ws *websocket.Conn, r *http.Request) {
		gotCam.Store(r.URL.Query().Get("cam"))
		gotToken.Store(r.URL.Query().Get("token"))

		mt, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		if mt != websocket.BinaryMessage {
			t.Errorf("frame message type = %d, want binary", mt)
		}
		if len(data) != 3 {
			t.Errorf("frame payload = %d bytes, want 3", len(data))
		}
		reply := `{"dets":[{"x1":1,"y1":2,"x2":3,"y2":4,"label":"person","conf":0.9}],"fall_detected":true,"timestamp":"now"}`
		_ = ws.WriteMessage(websocket.TextMessage, []byte(reply))

		// Hold the socket open until the client goes away.
		_, _, _ = ws.ReadMessage()
	})
	defer srv.Close()

	m := metrics.New()
	c, err := NewClient(srv.URL, m)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	var got atomic.Pointer[types.InferMetadata]
	conn := c.Open(context.Background(), "cam-1", "tok", func(md *types.InferMetadata) {
		got.Store(md)
	}, func(error) {})
	defer conn.Close()

	if !conn.IsOpen() {
		t.Fatalf("connection not open after successful dial")
	}
	if err := conn.SendFrame([]byte{1, 2, 3}); err != nil {
		t.Fatalf("SendFrame: %v", err)
	}

	waitFor(t, "metadata reply", func() bool { return got.Load() != nil })

	md := got.Load()
	if len(md.Dets) != 1 || md.Dets[0].Label != "person" || !md.FallDetected {
		t.Fatalf("parsed metadata = %+v", md)
	}
	if gotCam.Load() != "cam-1" || gotToken.Load() != "tok" {
		t.Fatalf("query params cam=%v token=%v, want cam-1/tok", gotCam.Load(), gotToken.Load())
	}

	waitFor(t, "write pump drain", func() bool { return conn.BufferedAmount() == 0 })
	if got := m.FramesSent.Load(); got != 1 {
		t.Fatalf("frames sent counter = %d, want 1", got)
	}
}

func TestMalformedReplyIsDroppedAndCounted(t *testing.T) {
	srv := inferStub(t, func(ws *websocket.Conn, r *http.Request) {
		_ = ws.WriteMessage(websocket.TextMessage, []byte("not json"))
		_ = ws.WriteMessage(websocket.TextMessage, []byte(`{"dets":[],"fall_detected":false,"timestamp":"now"}`))
		_, _, _ = ws.ReadMessage()
	})
	defer srv.Close()

	m := metrics.New()
	c, _ := NewClient(srv.URL, m)

	var received atomic.Int32
	conn := c.Open(context.Background(), "cam-1", "tok", func(*types.InferMetadata) {
		received.Add(1)
	}, func(error) {})
	defer conn.Close()

	waitFor(t, "well-formed reply", func() bool { return received.Load() == 1 })

	if got := m.MetadataDropped.Load(); got != 1 {
		t.Fatalf("dropped counter = %d, want 1", got)
	}
	if !conn.IsOpen() {
		t.Fatalf("malformed reply tore down the connection")
	}
}

func TestDialFailureRoutesToOnClose(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listening

	m := metrics.New()
	c, _ := NewClient(srv.URL, m)

	closed := make(chan error, 1)
	conn := c.Open(context.Background(), "cam-1", "tok", nil, func(err error) {
		closed <- err
	})

	if conn.IsOpen() {
		t.Fatalf("connection reports open after failed dial")
	}
	select {
	case err := <-closed:
		if err == nil {
			t.Fatalf("onClose fired with nil error for a failed dial")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("onClose never fired for a failed dial")
	}

	if err := conn.SendFrame([]byte{1}); err != ErrNotOpen {
		t.Fatalf("SendFrame on failed conn = %v, want ErrNotOpen", err)
	}
}

func TestOnCloseFiresExactlyOnce(t *testing.T) {
	srv := inferStub(t, func(ws *websocket.Conn, r *http.Request) {
		_, _, _ = ws.ReadMessage()
	})
	defer srv.Close()

	m := metrics.New()
	c, _ := NewClient(srv.URL, m)

	var closes atomic.Int32
	conn := c.Open(context.Background(), "cam-1", "tok", nil, func(error) {
		closes.Add(1)
	})

	conn.Close()
	conn.Close()

	waitFor(t, "close callback", func() bool { return closes.Load() >= 1 })
	time.Sleep(50 * time.Millisecond)
	if got := closes.Load(); got != 1 {
		t.Fatalf("onClose fired %d times, want exactly 1", got)
	}
}

func TestSendQueueFullSheds(t *testing.T) {
	// No pumps running, so the queue fills deterministically.
	cn := &Conn{
		sendCh:  make(chan []byte, sendQueueDepth),
		done:    make(chan struct{}),
		metrics: metrics.New(),
	}
	cn.open.Store(true)

	frame := []byte{1, 2, 3, 4}
	for i := 0; i < sendQueueDepth; i++ {
		if err := cn.SendFrame(frame); err != nil {
			t.Fatalf("SendFrame %d: %v", i, err)
		}
	}
	if got := cn.BufferedAmount(); got != int64(sendQueueDepth*len(frame)) {
		t.Fatalf("buffered = %d, want %d", got, sendQueueDepth*len(frame))
	}

	if err := cn.SendFrame(frame); err != ErrSendQueueFull {
		t.Fatalf("overfull SendFrame = %v, want ErrSendQueueFull", err)
	}
	// A shed frame must not leak into the buffered accounting.
	if got := cn.BufferedAmount(); got != int64(sendQueueDepth*len(frame)) {
		t.Fatalf("buffered after shed = %d, want %d", got, sendQueueDepth*len(frame))
	}
}
