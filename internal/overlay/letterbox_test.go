package overlay

import (
	"image"
	"testing"

	"github.com/carewatch/streaming-console/pkg/types"
)

func TestLetterboxWideSourceInSquareCanvas(t *testing.T) {
	rect := Letterbox(1920, 1080, 800, 800)

	want := image.Rect(0, 175, 800, 625)
	if rect != want {
		t.Fatalf("Letterbox(1920,1080,800,800) = %v, want %v", rect, want)
	}
}

func TestLetterboxTallSourceInWideCanvas(t *testing.T) {
	rect := Letterbox(1080, 1920, 800, 450)

	if rect.Dy() != 450 {
		t.Fatalf("tall source height = %d, want full canvas height 450", rect.Dy())
	}
	if rect.Min.X <= 0 || rect.Max.X >= 800 {
		t.Fatalf("tall source not pillarboxed, rect = %v", rect)
	}
	center := (rect.Min.X + rect.Max.X) / 2
	if center < 399 || center > 401 {
		t.Fatalf("pillarboxed rect not centered, rect = %v", rect)
	}
}

func TestLetterboxDegenerateInputs(t *testing.T) {
	if rect := Letterbox(0, 1080, 800, 450); !rect.Empty() {
		t.Fatalf("zero source width yielded %v, want empty", rect)
	}
	if rect := Letterbox(1920, 1080, 800, 0); !rect.Empty() {
		t.Fatalf("zero canvas height yielded %v, want empty", rect)
	}
}

func TestMapBoxFullFrameCoversRect(t *testing.T) {
	rect := Letterbox(1920, 1080, 800, 800)
	det := types.Detection{X1: 0, Y1: 0, X2: 1920, Y2: 1080}

	if got := MapBox(det, 1920, 1080, rect); got != rect {
		t.Fatalf("full-frame box = %v, want %v", got, rect)
	}
}

func TestMapBoxScalesAndOffsets(t *testing.T) {
	rect := Letterbox(1920, 1080, 800, 800)
	det := types.Detection{X1: 960, Y1: 540, X2: 1920, Y2: 1080}

	got := MapBox(det, 1920, 1080, rect)
	want := image.Rect(400, 400, 800, 625)
	if got != want {
		t.Fatalf("quadrant box = %v, want %v", got, want)
	}
}
