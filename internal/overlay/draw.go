package overlay

import (
	"image"
	"image/color"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var (
	boxColor  = color.RGBA{0, 220, 60, 255}  // green
	fallColor = color.RGBA{230, 40, 40, 255} // red
	chipText  = color.RGBA{0, 0, 0, 255}
)

const boxThickness = 2

func colorFor(label string) color.RGBA {
	if strings.Contains(strings.ToLower(label), "fall") {
		return fallColor
	}
	return boxColor
}

// drawBox draws a rectangle outline clipped to the canvas.
func drawBox(dst *image.RGBA, r image.Rectangle, c color.RGBA) {
	r = r.Intersect(dst.Bounds())
	if r.Empty() {
		return
	}
	for t := 0; t < boxThickness; t++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			dst.SetRGBA(x, clampY(dst, r.Min.Y+t), c)
			dst.SetRGBA(x, clampY(dst, r.Max.Y-1-t), c)
		}
		for y := r.Min.Y; y < r.Max.Y; y++ {
			dst.SetRGBA(clampX(dst, r.Min.X+t), y, c)
			dst.SetRGBA(clampX(dst, r.Max.X-1-t), y, c)
		}
	}
}

// drawLabelChip draws a filled chip with the label text just above the box,
// or inside its top edge when there is no room above.
func drawLabelChip(dst *image.RGBA, box image.Rectangle, text string, c color.RGBA) {
	face := basicfont.Face7x13
	w := font.MeasureString(face, text).Ceil() + 6
	h := face.Metrics().Height.Ceil() + 4

	y := box.Min.Y - h
	if y < dst.Bounds().Min.Y {
		y = box.Min.Y
	}
	chip := image.Rect(box.Min.X, y, box.Min.X+w, y+h).Intersect(dst.Bounds())
	if chip.Empty() {
		return
	}

	for py := chip.Min.Y; py < chip.Max.Y; py++ {
		for px := chip.Min.X; px < chip.Max.X; px++ {
			dst.SetRGBA(px, py, c)
		}
	}

	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(chipText),
		Face: face,
		Dot: fixed.Point26_6{
			X: fixed.I(chip.Min.X + 3),
			Y: fixed.I(chip.Min.Y + face.Metrics().Ascent.Ceil() + 2),
		},
	}
	d.DrawString(text)
}

func clampX(dst *image.RGBA, x int) int {
	b := dst.Bounds()
	if x < b.Min.X {
		return b.Min.X
	}
	if x >= b.Max.X {
		return b.Max.X - 1
	}
	return x
}

func clampY(dst *image.RGBA, y int) int {
	b := dst.Bounds()
	if y < b.Min.Y {
		return b.Min.Y
	}
	if y >= b.Max.Y {
		return b.Max.Y - 1
	}
	return y
}
