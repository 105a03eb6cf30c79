package media

import (
	"fmt"
	"image"
	"io"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/carewatch/streaming-console/pkg/types"
)

// captureSource reads frames from an OpenCV VideoCapture, downscales them to
// sendWidth and encodes JPEG. It backs both live devices and uploaded files.
type captureSource struct {
	mu        sync.Mutex
	cap       *gocv.VideoCapture
	raw       gocv.Mat
	scaled    gocv.Mat
	sendWidth int
	quality   int
	isFile    bool
	released  bool
	width     int
	height    int
}

// OpenDevice acquires a live capture device by index.
func OpenDevice(device int, sendWidth, quality int) (Source, error) {
	vc, err := gocv.VideoCaptureDevice(device)
	if err != nil {
		return nil, fmt.Errorf("open capture device %d: %w", device, err)
	}
	return newCaptureSource(vc, sendWidth, quality, false), nil
}

// OpenFile opens an uploaded video file for playback.
func OpenFile(path string, sendWidth, quality int) (Source, error) {
	vc, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("open video file %s: %w", path, err)
	}
	return newCaptureSource(vc, sendWidth, quality, true), nil
}

func newCaptureSource(vc *gocv.VideoCapture, sendWidth, quality int, isFile bool) *captureSource {
	return &captureSource{
		cap:       vc,
		raw:       gocv.NewMat(),
		scaled:    gocv.NewMat(),
		sendWidth: sendWidth,
		quality:   quality,
		isFile:    isFile,
	}
}

func (s *captureSource) Capture() (*types.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.released {
		return nil, ErrReleased
	}

	if ok := s.cap.Read(&s.raw); !ok {
		if s.isFile {
			return nil, io.EOF
		}
		return nil, ErrNoFrame
	}
	if s.raw.Empty() || s.raw.Cols() == 0 || s.raw.Rows() == 0 {
		return nil, ErrNoFrame
	}

	img := s.raw
	if s.sendWidth > 0 && s.raw.Cols() > s.sendWidth {
		h := s.raw.Rows() * s.sendWidth / s.raw.Cols()
		gocv.Resize(s.raw, &s.scaled, image.Pt(s.sendWidth, h), 0, 0, gocv.InterpolationArea)
		img = s.scaled
	}

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, img, []int{gocv.IMWriteJpegQuality, s.quality})
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	data := make([]byte, len(buf.GetBytes()))
	copy(data, buf.GetBytes())

	s.width = img.Cols()
	s.height = img.Rows()

	return &types.Frame{
		Data:     data,
		Width:    s.width,
		Height:   s.height,
		Captured: time.Now(),
	}, nil
}

func (s *captureSource) Dims() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.width, s.height
}

func (s *captureSource) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.released {
		return
	}
	s.released = true
	_ = s.cap.Close()
	_ = s.raw.Close()
	_ = s.scaled.Close()
}
