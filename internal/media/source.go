// Package media supplies compressed video frames from a live capture device
// or an uploaded video file. Sources are owned by the session registry entry
// that holds them and must be released exactly once.
package media

import (
	"errors"

	"github.com/carewatch/streaming-console/pkg/types"
)

// ErrNoFrame reports that the source produced no decodable frame this tick.
// Capture ticks treat it as a no-op and try again on the next tick.
var ErrNoFrame = errors.New("media: no frame available")

// ErrReleased reports a capture attempt on a released source.
var ErrReleased = errors.New("media: source released")

// Source supplies frames ready for transmission. Capture returns io.EOF when
// an uploaded file's playback has ended.
type Source interface {
	// Capture grabs the next frame, downscaled and JPEG-compressed.
	Capture() (*types.Frame, error)
	// Dims returns the dimensions of the last captured frame, or zeros
	// before the first successful capture.
	Dims() (width, height int)
	// Release stops the device or closes the file. Idempotent.
	Release()
}
