// Package overlay paints detection boxes aligned to the displayed video,
// on its own clock, independent of network timing.
package overlay

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"sync"
	"time"

	xdraw "golang.org/x/image/draw"

	"github.com/carewatch/streaming-console/internal/metrics"
	"github.com/carewatch/streaming-console/internal/sched"
	"github.com/carewatch/streaming-console/pkg/types"
)

const outputJPEGQuality = 75

// Renderer owns the sticky detection set and the paint loop for one camera
// tile. It composites the most recent captured frame with the effective
// detection set into a letterboxed canvas and fans the result out as JPEG.
type Renderer struct {
	mu       sync.Mutex
	frame    *types.Frame
	sticky   []types.Detection
	stickyW  int
	stickyH  int
	stickyAt time.Time
	canvasW  int
	canvasH  int
	window   time.Duration
	now      func() time.Time
	loop     *sched.Loop
	fan      *Broadcaster
	metrics  *metrics.Metrics
}

// NewRenderer creates a renderer with the given canvas size and sticky
// window.
func NewRenderer(canvasW, canvasH int, window time.Duration, m *metrics.Metrics) *Renderer {
	return &Renderer{
		canvasW: canvasW,
		canvasH: canvasH,
		window:  window,
		now:     time.Now,
		fan:     NewBroadcaster(),
		metrics: m,
	}
}

// Start begins the paint loop. One iteration per tick, whether or not new
// metadata arrived.
func (r *Renderer) Start(interval time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loop != nil {
		return
	}
	r.loop = sched.Start(interval, r.paint)
}

// Stop cancels the paint loop. No paint happens after Stop returns.
func (r *Renderer) Stop() {
	r.mu.Lock()
	loop := r.loop
	r.loop = nil
	r.mu.Unlock()
	if loop != nil {
		loop.Stop()
	}
}

// UpdateMetadata takes one reply's detections for the next paint. A
// non-empty set restarts the sticky clock and keeps painting until the
// window elapses without a newer non-empty reply; an empty set is a no-op
// (the previous set ages out on its own).
func (r *Renderer) UpdateMetadata(md *types.InferMetadata) {
	if md == nil || len(md.Dets) == 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	srcW, srcH := 0, 0
	if r.frame != nil {
		srcW, srcH = r.frame.Width, r.frame.Height
	}
	if w, h, ok := md.SourceDims(); ok {
		srcW, srcH = w, h
	}

	r.sticky = md.Dets
	r.stickyW, r.stickyH = srcW, srcH
	r.stickyAt = r.now()
}

// SetFrame stores the most recent captured frame as the paint backdrop.
func (r *Renderer) SetFrame(f *types.Frame) {
	r.mu.Lock()
	r.frame = f
	r.mu.Unlock()
}

// SetCanvasSize resizes the paint target, as a layout change would.
func (r *Renderer) SetCanvasSize(w, h int) {
	if w <= 0 || h <= 0 {
		return
	}
	r.mu.Lock()
	r.canvasW, r.canvasH = w, h
	r.mu.Unlock()
}

// Subscribe attaches an overlay viewer.
func (r *Renderer) Subscribe() (int, <-chan []byte) {
	return r.fan.Subscribe()
}

// Unsubscribe detaches an overlay viewer.
func (r *Renderer) Unsubscribe(id int) {
	r.fan.Unsubscribe(id)
}

// effective resolves the detection set to paint: the last non-empty set
// while it is younger than the sticky window, otherwise nothing. Also
// returns the source dimensions the set was computed against.
func (r *Renderer) effective(now time.Time) ([]types.Detection, int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.sticky) > 0 && now.Sub(r.stickyAt) < r.window {
		return r.sticky, r.stickyW, r.stickyH
	}

	srcW, srcH := 0, 0
	if r.frame != nil {
		srcW, srcH = r.frame.Width, r.frame.Height
	}
	return nil, srcW, srcH
}

func (r *Renderer) paint(now time.Time) {
	// Skip the expensive composite when nobody is watching.
	if r.fan.ClientCount() == 0 {
		return
	}
	dets, srcW, srcH := r.effective(now)

	r.mu.Lock()
	frame := r.frame
	cw, ch := r.canvasW, r.canvasH
	r.mu.Unlock()

	if srcW <= 0 || srcH <= 0 {
		return
	}

	canvas := image.NewRGBA(image.Rect(0, 0, cw, ch))
	rect := Letterbox(srcW, srcH, cw, ch)

	if frame != nil {
		if img, err := jpeg.Decode(bytes.NewReader(frame.Data)); err == nil {
			xdraw.ApproxBiLinear.Scale(canvas, rect, img, img.Bounds(), xdraw.Src, nil)
		}
	}

	for _, det := range dets {
		box := MapBox(det, srcW, srcH, rect)
		c := colorFor(det.Label)
		drawBox(canvas, box, c)
		drawLabelChip(canvas, box, fmt.Sprintf("%s %.1f%%", det.Label, det.Conf*100), c)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, canvas, &jpeg.Options{Quality: outputJPEGQuality}); err != nil {
		return
	}
	r.metrics.OverlayFrames.Add(1)
	r.fan.broadcast(buf.Bytes())
}
