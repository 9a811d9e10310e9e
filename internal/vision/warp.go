package vision

import (
	"image"
	"image/draw"
	"math"
)

// Warp resamples img through h (source to destination) into a new RGBA buffer of
// the given size. Each destination pixel is mapped back through the inverse
// transform and sampled bilinearly. Pixels that fall outside the source are
// black, matching a constant zero border.
func Warp(img image.Image, h Homography, size image.Point) (*image.RGBA, error) {
	if size.X <= 0 || size.Y <= 0 {
		return nil, ErrDegenerate
	}
	inv, err := h.Inverse()
	if err != nil {
		return nil, err
	}

	src := ToRGBA(img)
	sb := src.Bounds()
	sw, sh := sb.Dx(), sb.Dy()
	dst := image.NewRGBA(image.Rect(0, 0, size.X, size.Y))

	for y := 0; y < size.Y; y++ {
		row := dst.Pix[y*dst.Stride:]
		for x := 0; x < size.X; x++ {
			p := inv.Apply(Point{X: float64(x), Y: float64(y)})
			sx, sy := snap(p.X), snap(p.Y)
			if math.IsInf(sx, 0) || math.IsNaN(sx) || sx <= -1 || sy <= -1 || sx >= float64(sw) || sy >= float64(sh) {
				continue
			}

			x0, y0 := int(math.Floor(sx)), int(math.Floor(sy))
			fx, fy := sx-float64(x0), sy-float64(y0)

			var acc [4]float64
			for _, t := range [4]struct {
				dx, dy int
				w      float64
			}{
				{0, 0, (1 - fx) * (1 - fy)},
				{1, 0, fx * (1 - fy)},
				{0, 1, (1 - fx) * fy},
				{1, 1, fx * fy},
			} {
				px, py := x0+t.dx, y0+t.dy
				if t.w == 0 || px < 0 || py < 0 || px >= sw || py >= sh {
					continue
				}
				off := py*src.Stride + px*4
				for c := 0; c < 4; c++ {
					acc[c] += t.w * float64(src.Pix[off+c])
				}
			}

			o := x * 4
			for c := 0; c < 4; c++ {
				row[o+c] = clamp8(acc[c])
			}
		}
	}
	return dst, nil
}

// snap removes floating error around integer sample positions.
func snap(v float64) float64 {
	r := math.Round(v)
	if math.Abs(v-r) < 1e-6 {
		return r
	}
	return v
}

func clamp8(v float64) uint8 {
	v = math.Round(v)
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

// ToRGBA returns img as a zero-origin *image.RGBA, copying only when needed.
func ToRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Bounds().Min == (image.Point{}) {
		return rgba
	}
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	return rgba
}

// ToGray returns img as a zero-origin *image.Gray, copying only when needed.
func ToGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok && g.Bounds().Min == (image.Point{}) {
		return g
	}
	b := img.Bounds()
	g := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(g, g.Bounds(), img, b.Min, draw.Src)
	return g
}
