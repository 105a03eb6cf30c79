package types

import "time"

// Frame is one captured video frame, already downscaled and JPEG-compressed,
// ready to be transmitted to the inference service.
type Frame struct {
	Data     []byte    // JPEG bytes
	Width    int       // pixel width of the encoded image
	Height   int       // pixel height of the encoded image
	Captured time.Time // capture timestamp
}

// Detection is one bounding box in source-frame pixel coordinates.
// JSON keys mirror the inference service wire format.
type Detection struct {
	X1    int     `json:"x1"`
	Y1    int     `json:"y1"`
	X2    int     `json:"x2"`
	Y2    int     `json:"y2"`
	Label string  `json:"label"`
	Conf  float64 `json:"conf"`
}

// InferMetadata is one inference reply. FallDetected is reply-local and
// carries no hysteresis state; FrameWidth/FrameHeight, when present, are the
// dimensions the detections were computed against (the service may have
// resized the frame before inference).
type InferMetadata struct {
	Dets         []Detection `json:"dets"`
	Events       []Detection `json:"events,omitempty"`
	FallDetected bool        `json:"fall_detected"`
	Timestamp    string      `json:"timestamp"`
	FrameWidth   *int        `json:"frame_width"`
	FrameHeight  *int        `json:"frame_height"`
}

// SourceDims returns the frame dimensions declared by the reply, or
// (0, 0, false) when the service did not report them.
func (m *InferMetadata) SourceDims() (w, h int, ok bool) {
	if m == nil || m.FrameWidth == nil || m.FrameHeight == nil {
		return 0, 0, false
	}
	if *m.FrameWidth <= 0 || *m.FrameHeight <= 0 {
		return 0, 0, false
	}
	return *m.FrameWidth, *m.FrameHeight, true
}
