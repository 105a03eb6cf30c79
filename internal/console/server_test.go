package console

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/carewatch/streaming-console/internal/alert"
	"github.com/carewatch/streaming-console/internal/config"
	"github.com/carewatch/streaming-console/internal/media"
	"github.com/carewatch/streaming-console/internal/metrics"
	"github.com/carewatch/streaming-console/internal/session"
	"github.com/carewatch/streaming-console/internal/tile"
	"github.com/carewatch/streaming-console/pkg/types"
)

type stubConn struct{}

func (stubConn) IsOpen() bool { return true }

func (stubConn) BufferedAmount() int64 { return 0 }

func (stubConn) SendFrame([]byte) error { return nil }

func (stubConn) Close() {}

type stubSource struct{}

func (stubSource) Capture() (*types.Frame, error) { return nil, media.ErrNoFrame }

func (stubSource) Dims() (int, int) { return 0, 0 }

func (stubSource) Release() {}

type stubNotifier struct{}

func (stubNotifier) NotifyStop(string) {}

func (stubNotifier) AcknowledgeAlarm(string) {}

func newTestServer(t *testing.T) (*Server, *tile.Feed, []*tile.Tile) {
	t.Helper()

	cfg := config.Default()
	cfg.TickInterval = time.Hour

	m := metrics.New()
	feed := tile.NewFeed(10)
	registry := session.NewRegistry()

	dial := func(context.Context, string, string, func(*types.InferMetadata), func(error)) tile.Conn {
		return stubConn{}
	}
	open := func(config.Camera) (media.Source, error) { return stubSource{}, nil }

	var tiles []*tile.Tile
	for _, id := range []string{"cam-1", "cam-2"} {
		tl := tile.New(tile.Options{
			Camera:     config.Camera{ID: id, Name: id, Mode: "live"},
			Config:     &cfg,
			Registry:   registry,
			Dial:       dial,
			OpenSource: open,
			Notifier:   stubNotifier{},
			Metrics:    m,
			Feed:       feed,
			Siren:      alert.NewSiren(nil, nil, time.Minute),
		})
		tiles = append(tiles, tl)
		t.Cleanup(tl.Stop)
	}

	return NewServer(tiles, feed, m), feed, tiles
}

func TestStatusListsCamerasInOrder(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d", rec.Code)
	}
	var body struct {
		Cameras []tile.Status `json:"cameras"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Cameras) != 2 || body.Cameras[0].CameraID != "cam-1" || body.Cameras[1].CameraID != "cam-2" {
		t.Fatalf("cameras = %+v, want cam-1 then cam-2", body.Cameras)
	}
}

func TestUnknownCameraIs404(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/cameras/cam-9/ack", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status code = %d, want 404", rec.Code)
	}
}

func TestStartStopRoundTrip(t *testing.T) {
	srv, _, tiles := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/cameras/cam-1/start", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("start code = %d, body %s", rec.Code, rec.Body)
	}
	if !tiles[0].Status().Running {
		t.Fatalf("tile not running after start")
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/cameras/cam-1/stop", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("stop code = %d", rec.Code)
	}
	if tiles[0].Status().Running {
		t.Fatalf("tile still running after stop")
	}
}

func TestEventsHonorsLimit(t *testing.T) {
	srv, feed, _ := newTestServer(t)

	now := time.Now()
	for i := 0; i < 5; i++ {
		feed.Add("cam-1", types.Detection{Label: "person", Conf: 0.9}, now)
	}

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/events?limit=3", nil))

	var body struct {
		Events []eventDTO `json:"events"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Events) != 3 {
		t.Fatalf("events = %d, want 3", len(body.Events))
	}
	if body.Events[0].Camera != "cam-1" || body.Events[0].Message != "person" {
		t.Fatalf("event = %+v", body.Events[0])
	}
}
