package imaging

import (
	"image"
	"image/color"
	"math"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// StrokeCircle draws a ring of the given thickness centered on radius r.
func StrokeCircle(img *image.RGBA, cx, cy, r, thickness int, c color.RGBA) {
	if thickness < 1 {
		thickness = 1
	}
	half := float64(thickness) / 2
	outer := r + thickness
	b := img.Bounds()
	for y := cy - outer; y <= cy+outer; y++ {
		for x := cx - outer; x <= cx+outer; x++ {
			if !(image.Point{x, y}).In(b) {
				continue
			}
			d := math.Hypot(float64(x-cx), float64(y-cy))
			if math.Abs(d-float64(r)) <= half {
				img.SetRGBA(x, y, c)
			}
		}
	}
}

// FillCircle paints every pixel within radius r of (cx, cy).
func FillCircle(img *image.RGBA, cx, cy, r int, c color.RGBA) {
	b := img.Bounds()
	r2 := r * r
	for y := cy - r; y <= cy+r; y++ {
		for x := cx - r; x <= cx+r; x++ {
			dx, dy := x-cx, y-cy
			if dx*dx+dy*dy <= r2 && (image.Point{x, y}).In(b) {
				img.SetRGBA(x, y, c)
			}
		}
	}
}

// StrokeRect draws the outline of r with the given thickness (inward).
func StrokeRect(img *image.RGBA, r image.Rectangle, thickness int, c color.RGBA) {
	r = r.Canon().Intersect(img.Bounds())
	if r.Empty() {
		return
	}
	if thickness < 1 {
		thickness = 1
	}
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			if x < r.Min.X+thickness || x >= r.Max.X-thickness ||
				y < r.Min.Y+thickness || y >= r.Max.Y-thickness {
				img.SetRGBA(x, y, c)
			}
		}
	}
}

// ShadeRect tints every pixel inside r toward c by t.
func ShadeRect(img *image.RGBA, r image.Rectangle, c color.RGBA, t float64) {
	r = r.Canon().Intersect(img.Bounds())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			img.SetRGBA(x, y, Tint(img.RGBAAt(x, y), c, t))
		}
	}
}

// DrawLabel renders text with its top-left corner at (x, y) on a filled
// background box one pixel larger than the text on every side.
func DrawLabel(img *image.RGBA, x, y int, text string, fg, bg color.RGBA) {
	face := basicfont.Face7x13
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(fg),
		Face: face,
	}

	width := d.MeasureString(text).Ceil()
	height := face.Metrics().Height.Ceil()

	box := image.Rect(x-1, y-1, x+width+1, y+height+1).Intersect(img.Bounds())
	for py := box.Min.Y; py < box.Max.Y; py++ {
		for px := box.Min.X; px < box.Max.X; px++ {
			img.SetRGBA(px, py, bg)
		}
	}

	d.Dot = fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y + face.Metrics().Ascent.Ceil())}
	d.DrawString(text)
}
