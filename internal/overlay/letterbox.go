package overlay

import (
	"image"
	"math"

	"github.com/carewatch/streaming-console/pkg/types"
)

// Letterbox fits a source frame inside a canvas preserving aspect ratio,
// centered, with the larger axis clipped by bars. The frame is never
// stretched.
func Letterbox(srcW, srcH, dstW, dstH int) image.Rectangle {
	if srcW <= 0 || srcH <= 0 || dstW <= 0 || dstH <= 0 {
		return image.Rectangle{}
	}

	scale := math.Min(float64(dstW)/float64(srcW), float64(dstH)/float64(srcH))
	w := int(math.Round(float64(srcW) * scale))
	h := int(math.Round(float64(srcH) * scale))
	x := (dstW - w) / 2
	y := (dstH - h) / 2
	return image.Rect(x, y, x+w, y+h)
}

// MapBox linearly maps a detection's source-frame coordinates into the
// letterboxed draw rectangle.
func MapBox(det types.Detection, srcW, srcH int, rect image.Rectangle) image.Rectangle {
	if srcW <= 0 || srcH <= 0 || rect.Empty() {
		return image.Rectangle{}
	}

	sx := float64(rect.Dx()) / float64(srcW)
	sy := float64(rect.Dy()) / float64(srcH)
	x1 := rect.Min.X + int(math.Round(float64(det.X1)*sx))
	y1 := rect.Min.Y + int(math.Round(float64(det.Y1)*sy))
	x2 := rect.Min.X + int(math.Round(float64(det.X2)*sx))
	y2 := rect.Min.Y + int(math.Round(float64(det.Y2)*sy))
	return image.Rect(x1, y1, x2, y2)
}
