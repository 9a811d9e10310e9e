package vision

import "image"

// OtsuLevel returns the threshold that maximizes the between-class variance of
// the gray histogram. A single-valued image yields 0.
func OtsuLevel(g *image.Gray) uint8 {
	var hist [256]float64
	b := g.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		off := (y - g.Rect.Min.Y) * g.Stride
		for x := b.Min.X; x < b.Max.X; x++ {
			hist[g.Pix[off+x-g.Rect.Min.X]]++
		}
	}

	total := float64(b.Dx() * b.Dy())
	if total == 0 {
		return 0
	}
	var sum float64
	for i, c := range hist {
		sum += float64(i) * c
	}

	var (
		sumB, wB float64
		best     float64
		level    int
	)
	for i := 0; i < 256; i++ {
		wB += hist[i]
		if wB == 0 {
			continue
		}
		wF := total - wB
		if wF == 0 {
			break
		}
		sumB += float64(i) * hist[i]
		mB := sumB / wB
		mF := (sum - sumB) / wF
		v := wB * wF * (mB - mF) * (mB - mF)
		if v > best {
			best = v
			level = i
		}
	}
	return uint8(level)
}

// BinarizeOtsuInv thresholds g at its Otsu level. Pixels at or below the level
// become 255 (ink) and brighter pixels 0. The result has a zero origin.
func BinarizeOtsuInv(g *image.Gray) *image.Gray {
	level := OtsuLevel(g)
	b := g.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		src := g.Pix[(y+b.Min.Y-g.Rect.Min.Y)*g.Stride+(b.Min.X-g.Rect.Min.X):]
		dst := out.Pix[y*out.Stride:]
		for x := 0; x < b.Dx(); x++ {
			if src[x] <= level {
				dst[x] = 255
			}
		}
	}
	return out
}
