// Package tile orchestrates one camera: media lifetime, the capture-send
// loop, the overlay renderer, the fall-alert machine, and reconnects.
package tile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/carewatch/streaming-console/internal/alert"
	"github.com/carewatch/streaming-console/internal/config"
	"github.com/carewatch/streaming-console/internal/logger"
	"github.com/carewatch/streaming-console/internal/media"
	"github.com/carewatch/streaming-console/internal/metrics"
	"github.com/carewatch/streaming-console/internal/overlay"
	"github.com/carewatch/streaming-console/internal/sched"
	"github.com/carewatch/streaming-console/internal/session"
	"github.com/carewatch/streaming-console/pkg/types"
)

// Conn is the slice of a protocol connection the capture loop needs.
type Conn interface {
	IsOpen() bool
	BufferedAmount() int64
	SendFrame(data []byte) error
	Close()
}

// DialFunc opens an inference connection for a camera. A failed dial routes
// into onClose; the returned connection then reports closed.
type DialFunc func(ctx context.Context, cameraID, token string, onMetadata func(*types.InferMetadata), onClose func(error)) Conn

// SourceOpener acquires a media source for a camera. Blocking (the
// permission-prompt analog); called only from Start and Replace.
type SourceOpener func(cam config.Camera) (media.Source, error)

// Notifier is the best-effort REST collaborator surface.
type Notifier interface {
	NotifyStop(cameraID string)
	AcknowledgeAlarm(cameraID string)
}

// runtimeState is the transient per-camera state, owned by the tile and
// reset on stop. Only CameraSession.AutoResume outlives teardown.
type runtimeState struct {
	shouldRun      bool
	awaitingReply  bool
	lastSend       time.Time
	lastMetadataAt time.Time
	sourceDrained  bool
	framesSent     uint64
	lastSeen       map[string]time.Time // label -> last event log time
}

// Options wires a tile's collaborators.
type Options struct {
	Camera     config.Camera
	Config     *config.Config
	Registry   *session.Registry
	Dial       DialFunc
	OpenSource SourceOpener
	Notifier   Notifier
	Metrics    *metrics.Metrics
	Feed       *Feed
	Token      string

	// Siren overrides the default exec/bell pair (tests).
	Siren *alert.Siren
}

// Tile is the controller for one camera.
type Tile struct {
	cam        config.Camera
	cfg        *config.Config
	registry   *session.Registry
	dial       DialFunc
	openSource SourceOpener
	notifier   Notifier
	metrics    *metrics.Metrics
	renderer   *overlay.Renderer
	machine    *alert.Machine
	siren      *alert.Siren
	feed       *Feed
	token      string
	now        func() time.Time

	mu   sync.Mutex
	st   runtimeState
	conn Conn
	loop *sched.Loop
	gen  int // teardown token; callbacks from a previous generation are ignored
}

// New builds a tile controller. It does not start streaming.
func New(opts Options) *Tile {
	siren := opts.Siren
	if siren == nil {
		siren = alert.NewSiren(
			alert.NewExecPlayer(opts.Config.SirenCommand),
			&alert.BellPlayer{},
			opts.Config.SirenCeiling,
		)
	}
	return &Tile{
		cam:        opts.Camera,
		cfg:        opts.Config,
		registry:   opts.Registry,
		dial:       opts.Dial,
		openSource: opts.OpenSource,
		notifier:   opts.Notifier,
		metrics:    opts.Metrics,
		renderer:   overlay.NewRenderer(opts.Config.CanvasWidth, opts.Config.CanvasHeight, opts.Config.StickyWindow, opts.Metrics),
		machine:    alert.NewMachine(opts.Config.AlertCooldown),
		siren:      siren,
		feed:       opts.Feed,
		token:      opts.Token,
		now:        time.Now,
	}
}

// CameraID returns the tile's stable key.
func (t *Tile) CameraID() string { return t.cam.ID }

// Renderer exposes the overlay fanout for viewers.
func (t *Tile) Renderer() *overlay.Renderer { return t.renderer }

// ShouldResume reports whether a surviving session asks to be resumed.
func (t *Tile) ShouldResume() bool {
	s, ok := t.registry.Get(t.cam.ID)
	return ok && s.AutoResume
}

// Start acquires (or reattaches) media, opens the connection and begins the
// capture and paint loops. Media-acquisition failure is returned to the
// caller; everything downstream recovers on its own.
func (t *Tile) Start() error {
	t.mu.Lock()
	if t.st.shouldRun {
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	src, mode, reused, err := t.resolveMedia()
	if err != nil {
		return fmt.Errorf("camera %s: acquire media: %w", t.cam.ID, err)
	}

	t.mu.Lock()
	if t.st.shouldRun {
		t.mu.Unlock()
		// Lost a concurrent Start. The winner's session owns its source;
		// one acquired here would otherwise leak the device handle.
		if !reused {
			src.Release()
		}
		return nil
	}
	t.st = runtimeState{
		shouldRun: true,
		lastSeen:  make(map[string]time.Time),
	}
	t.gen++
	gen := t.gen
	t.registry.Set(t.cam.ID, &session.CameraSession{
		CameraID:   t.cam.ID,
		Mode:       mode,
		Source:     src,
		AutoResume: true,
	})
	t.mu.Unlock()

	t.metrics.ActiveStreams.Add(1)
	t.openConn(gen)
	t.renderer.Start(t.cfg.TickInterval)

	t.mu.Lock()
	t.loop = sched.Start(t.cfg.TickInterval, t.tick)
	t.mu.Unlock()

	if reused {
		logger.Info("Tile", "camera %s resumed (%s)", t.cam.ID, mode)
	} else {
		logger.Info("Tile", "camera %s started (%s)", t.cam.ID, mode)
	}
	return nil
}

func (t *Tile) resolveMedia() (media.Source, session.Mode, bool, error) {
	if s, ok := t.registry.Get(t.cam.ID); ok && s.Source != nil {
		// Session survived teardown; reattach without re-acquiring.
		return s.Source, s.Mode, true, nil
	}

	mode := session.Mode(t.cam.Mode)
	src, err := t.openSource(t.cam)
	if err != nil {
		return nil, mode, false, err
	}
	return src, mode, false, nil
}

func (t *Tile) openConn(gen int) {
	t.mu.Lock()
	if gen != t.gen || !t.st.shouldRun {
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()

	conn := t.dial(context.Background(), t.cam.ID, t.token,
		func(md *types.InferMetadata) { t.handleMetadata(gen, md) },
		func(err error) { t.handleClose(gen, err) },
	)

	t.mu.Lock()
	if gen != t.gen || !t.st.shouldRun {
		t.mu.Unlock()
		conn.Close()
		return
	}
	t.conn = conn
	t.mu.Unlock()
}

// tick is one pass of the capture-send loop. A frame goes out only when all
// five gates hold: intent set, connection open, send interval elapsed, no
// reply outstanding, and outbound buffer below the ceiling.
func (t *Tile) tick(now time.Time) {
	t.mu.Lock()
	if !t.st.shouldRun {
		t.mu.Unlock()
		return
	}
	conn := t.conn
	if conn == nil || !conn.IsOpen() {
		t.metrics.SkipsNotOpen.Add(1)
		t.mu.Unlock()
		return
	}
	if !t.st.lastSend.IsZero() && now.Sub(t.st.lastSend) < t.cfg.SendInterval {
		t.metrics.SkipsPacing.Add(1)
		t.mu.Unlock()
		return
	}
	if t.st.awaitingReply {
		t.metrics.SkipsAwaiting.Add(1)
		t.mu.Unlock()
		return
	}
	if conn.BufferedAmount() >= t.cfg.BufferCeiling {
		t.metrics.SkipsBackpressure.Add(1)
		t.mu.Unlock()
		return
	}
	if t.st.sourceDrained {
		t.mu.Unlock()
		return
	}
	src := t.currentSourceLocked()
	t.mu.Unlock()

	if src == nil {
		return
	}

	frame, err := src.Capture()
	if err != nil {
		switch {
		case errors.Is(err, io.EOF):
			t.mu.Lock()
			t.st.sourceDrained = true
			t.mu.Unlock()
			logger.Info("Tile", "camera %s: playback ended", t.cam.ID)
		case errors.Is(err, media.ErrNoFrame):
			// Source not yet decodable; no-op tick.
			t.metrics.SkipsNoFrame.Add(1)
		case errors.Is(err, media.ErrReleased):
			// Raced with stop/replace; the next tick sees new state.
		default:
			logger.Debug("Tile", "camera %s: capture: %v", t.cam.ID, err)
		}
		return
	}
	if frame.Width == 0 || frame.Height == 0 {
		t.metrics.SkipsNoFrame.Add(1)
		return
	}

	t.renderer.SetFrame(frame)

	t.mu.Lock()
	if !t.st.shouldRun || t.conn != conn {
		t.mu.Unlock()
		return
	}
	t.st.awaitingReply = true
	t.st.lastSend = now
	t.mu.Unlock()

	if err := conn.SendFrame(frame.Data); err != nil {
		// Absorbed: clear the in-flight flag so the next tick can retry.
		t.mu.Lock()
		t.st.awaitingReply = false
		t.mu.Unlock()
		logger.Debug("Tile", "camera %s: send: %v", t.cam.ID, err)
		return
	}

	t.mu.Lock()
	t.st.framesSent++
	t.mu.Unlock()
}

func (t *Tile) currentSourceLocked() media.Source {
	if s, ok := t.registry.Get(t.cam.ID); ok {
		return s.Source
	}
	return nil
}

func (t *Tile) handleMetadata(gen int, md *types.InferMetadata) {
	now := t.now()

	t.mu.Lock()
	if gen != t.gen || !t.st.shouldRun {
		t.mu.Unlock()
		return
	}
	t.st.awaitingReply = false
	t.st.lastMetadataAt = now

	var logged []types.Detection
	for _, ev := range md.Events {
		if last, ok := t.st.lastSeen[ev.Label]; ok && now.Sub(last) < t.cfg.EventCooldown {
			continue
		}
		t.st.lastSeen[ev.Label] = now
		logged = append(logged, ev)
	}
	t.mu.Unlock()

	t.renderer.UpdateMetadata(md)

	if t.feed != nil {
		for _, ev := range logged {
			t.feed.Add(t.cam.ID, ev, now)
		}
	}

	if raised := t.machine.Observe(md.FallDetected); raised {
		t.metrics.AlertsRaised.Add(1)
		logger.Warn("Tile", "fall alert raised for camera %s", t.cam.ID)
		t.siren.Start()
	}
}

func (t *Tile) handleClose(gen int, err error) {
	t.mu.Lock()
	if gen != t.gen {
		t.mu.Unlock()
		return
	}
	t.conn = nil
	t.st.awaitingReply = false
	shouldRun := t.st.shouldRun
	t.mu.Unlock()

	if !shouldRun {
		return
	}

	t.metrics.Reconnects.Add(1)
	if err != nil {
		logger.Info("Tile", "camera %s: connection lost (%v), reconnecting in %v", t.cam.ID, err, t.cfg.ReconnectDelay)
	} else {
		logger.Info("Tile", "camera %s: connection closed, reconnecting in %v", t.cam.ID, t.cfg.ReconnectDelay)
	}

	// Fixed-interval reconnect, repeated as long as intent holds.
	time.AfterFunc(t.cfg.ReconnectDelay, func() { t.openConn(gen) })
}

// Stop ends the stream: loops cancelled, connection closed, media released,
// session cleared, auto-resume off, server notified best-effort.
func (t *Tile) Stop() {
	conn, loop, stopped := t.teardown()
	if !stopped {
		return
	}
	if loop != nil {
		loop.Stop()
	}
	t.renderer.Stop()
	if conn != nil {
		conn.Close()
	}
	t.siren.Stop()

	if s, ok := t.registry.Get(t.cam.ID); ok {
		if s.Source != nil {
			s.Source.Release()
		}
		t.registry.Clear(t.cam.ID)
	}

	t.metrics.ActiveStreams.Add(^uint64(0))
	t.notifier.NotifyStop(t.cam.ID)
	logger.Info("Tile", "camera %s stopped", t.cam.ID)
}

// Detach tears down the tile's loops and connection without ending the
// session: the media source stays registered with auto-resume intact, so a
// recreated tile resumes without re-acquiring the device.
func (t *Tile) Detach() {
	conn, loop, stopped := t.teardown()
	if !stopped {
		return
	}
	if loop != nil {
		loop.Stop()
	}
	t.renderer.Stop()
	if conn != nil {
		conn.Close()
	}
	t.siren.Stop()

	t.metrics.ActiveStreams.Add(^uint64(0))
	logger.Info("Tile", "camera %s detached (session kept)", t.cam.ID)
}

func (t *Tile) teardown() (Conn, *sched.Loop, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.st.shouldRun {
		return nil, nil, false
	}
	t.st = runtimeState{}
	t.gen++
	conn := t.conn
	t.conn = nil
	loop := t.loop
	t.loop = nil
	return conn, loop, true
}

// Replace swaps the uploaded video behind a running tile and restarts
// capture. Upload mode only.
func (t *Tile) Replace(file string) error {
	if t.cam.Mode != string(session.ModeUpload) {
		return fmt.Errorf("camera %s: replace is upload-only", t.cam.ID)
	}

	cam := t.cam
	cam.File = file
	src, err := t.openSource(cam)
	if err != nil {
		return fmt.Errorf("camera %s: open replacement: %w", t.cam.ID, err)
	}

	var old media.Source
	if s, ok := t.registry.Get(t.cam.ID); ok && s.Source != nil {
		old = s.Source
	}

	t.mu.Lock()
	t.registry.Set(t.cam.ID, &session.CameraSession{
		CameraID:   t.cam.ID,
		Mode:       session.ModeUpload,
		Source:     src,
		AutoResume: true,
	})
	t.st.sourceDrained = false
	t.mu.Unlock()

	if old != nil {
		old.Release()
	}
	logger.Info("Tile", "camera %s: media replaced", t.cam.ID)
	return nil
}

// Acknowledge records the operator clearing the alert.
func (t *Tile) Acknowledge() {
	t.machine.Acknowledge()
	t.siren.Stop()
	t.metrics.AlertsAcknowledged.Add(1)
	t.notifier.AcknowledgeAlarm(t.cam.ID)
}

// Status is a point-in-time snapshot for the console surface.
type Status struct {
	CameraID      string `json:"camera_id"`
	Name          string `json:"name"`
	Mode          string `json:"mode"`
	Running       bool   `json:"running"`
	Connected     bool   `json:"connected"`
	AwaitingReply bool   `json:"awaiting_reply"`
	FramesSent    uint64 `json:"frames_sent"`
	AlertState    string `json:"alert_state"`
	AlertShowing  bool   `json:"alert_showing"`
	AutoResume    bool   `json:"auto_resume"`
	MetadataAgeMs int64  `json:"metadata_age_ms"` // -1 before the first reply
	SourceDrained bool   `json:"source_drained"`
}

// Status snapshots the tile.
func (t *Tile) Status() Status {
	t.mu.Lock()
	st := t.st
	conn := t.conn
	t.mu.Unlock()

	ageMs := int64(-1)
	if !st.lastMetadataAt.IsZero() {
		ageMs = t.now().Sub(st.lastMetadataAt).Milliseconds()
	}

	autoResume := false
	if s, ok := t.registry.Get(t.cam.ID); ok {
		autoResume = s.AutoResume
	}

	return Status{
		CameraID:      t.cam.ID,
		Name:          t.cam.Name,
		Mode:          t.cam.Mode,
		Running:       st.shouldRun,
		Connected:     conn != nil && conn.IsOpen(),
		AwaitingReply: st.awaitingReply,
		FramesSent:    st.framesSent,
		AlertState:    t.machine.State().String(),
		AlertShowing:  t.machine.Showing(),
		AutoResume:    autoResume,
		MetadataAgeMs: ageMs,
		SourceDrained: st.sourceDrained,
	}
}
