package console

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/samber/lo"

	"github.com/carewatch/streaming-console/internal/logger"
	"github.com/carewatch/streaming-console/internal/metrics"
	"github.com/carewatch/streaming-console/internal/tile"
)

// Server is the operator-facing HTTP surface: per-camera MJPEG overlay
// streams plus a small JSON control API.
type Server struct {
	tiles   map[string]*tile.Tile
	order   []string
	feed    *tile.Feed
	metrics *metrics.Metrics
}

// NewServer wraps the given tiles. Tile order is preserved for status
// listings.
func NewServer(tiles []*tile.Tile, feed *tile.Feed, m *metrics.Metrics) *Server {
	s := &Server{
		tiles:   make(map[string]*tile.Tile, len(tiles)),
		feed:    feed,
		metrics: m,
	}
	for _, t := range tiles {
		s.tiles[t.CameraID()] = t
		s.order = append(s.order, t.CameraID())
	}
	return s
}

// Handler exposes the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /cameras/{id}/overlay", s.handleOverlay)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/events", s.handleEvents)
	mux.HandleFunc("POST /api/cameras/{id}/start", s.handleStart)
	mux.HandleFunc("POST /api/cameras/{id}/stop", s.handleStop)
	mux.HandleFunc("POST /api/cameras/{id}/ack", s.handleAck)
	mux.Handle("GET /metrics", s.metrics.Handler())

	return mux
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*tile.Tile, bool) {
	t, ok := s.tiles[r.PathValue("id")]
	if !ok {
		writeJSONWithStatus(w, map[string]any{"error": "unknown camera"}, http.StatusNotFound)
	}
	return t, ok
}

func (s *Server) handleOverlay(w http.ResponseWriter, r *http.Request) {
	t, ok := s.lookup(w, r)
	if !ok {
		return
	}

	// Viewers can request a canvas size; the renderer re-letterboxes on
	// the next paint.
	q := r.URL.Query()
	if cw, err := strconv.Atoi(q.Get("w")); err == nil && cw > 0 {
		if ch, err := strconv.Atoi(q.Get("h")); err == nil && ch > 0 {
			t.Renderer().SetCanvasSize(cw, ch)
		}
	}

	id, frameCh := t.Renderer().Subscribe()
	defer t.Renderer().Unsubscribe(id)
	logger.Debug("Console", "Overlay viewer %d attached to %s", id, t.CameraID())
	streamMJPEG(w, frameCh)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	statuses := lo.Map(s.order, func(id string, _ int) tile.Status {
		return s.tiles[id].Status()
	})
	writeJSON(w, map[string]any{
		"cameras":   statuses,
		"timestamp": float64(time.Now().Unix()),
	})
}

type eventDTO struct {
	Camera     string  `json:"camera"`
	Message    string  `json:"message"`
	Confidence float64 `json:"confidence"`
	AgeMs      int64   `json:"age_ms"`
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if n, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && n > 0 {
		limit = n
	}

	now := time.Now()
	events := lo.Map(s.feed.Recent(limit), func(e tile.Entry, _ int) eventDTO {
		return eventDTO{
			Camera:     e.CameraID,
			Message:    e.Label,
			Confidence: e.Conf,
			AgeMs:      now.Sub(e.Time).Milliseconds(),
		}
	})
	writeJSON(w, map[string]any{"events": events})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	t, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if err := t.Start(); err != nil {
		logger.Error("Console", "Start %s: %v", t.CameraID(), err)
		writeJSONWithStatus(w, map[string]any{"error": err.Error()}, http.StatusBadRequest)
		return
	}
	writeJSON(w, map[string]any{"status": "started", "camera": t.CameraID()})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	t, ok := s.lookup(w, r)
	if !ok {
		return
	}
	t.Stop()
	writeJSON(w, map[string]any{"status": "stopped", "camera": t.CameraID()})
}

func (s *Server) handleAck(w http.ResponseWriter, r *http.Request) {
	t, ok := s.lookup(w, r)
	if !ok {
		return
	}
	t.Acknowledge()
	writeJSON(w, map[string]any{"status": "acknowledged", "camera": t.CameraID()})
}

func writeJSON(w http.ResponseWriter, payload any) {
	writeJSONWithStatus(w, payload, http.StatusOK)
}

func writeJSONWithStatus(w http.ResponseWriter, payload any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		_, _ = fmt.Fprintf(w, `{"error":"%s"}`, err.Error())
	}
}
