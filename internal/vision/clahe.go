package vision

import "image"

// EqualizeCLAHE applies contrast-limited adaptive histogram equalization.
//
// The image is split into a tiles x tiles grid. Each tile gets its own
// equalization table whose histogram is clipped at clip times the mean bin
// height, with the excess redistributed evenly. Output pixels interpolate
// bilinearly between the tables of the four surrounding tile centers.
func EqualizeCLAHE(src *image.Gray, clip float64, tiles int) *image.Gray {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewGray(image.Rect(0, 0, w, h))
	if w == 0 || h == 0 {
		return dst
	}
	if tiles < 1 {
		tiles = 1
	}
	if tiles > w {
		tiles = w
	}
	tilesY := tiles
	if tilesY > h {
		tilesY = h
	}
	tilesX := tiles

	tw := (w + tilesX - 1) / tilesX
	th := (h + tilesY - 1) / tilesY
	// Rounding the tile size up can leave trailing tiles empty.
	tilesX = (w + tw - 1) / tw
	tilesY = (h + th - 1) / th

	luts := make([][256]uint8, tilesX*tilesY)
	for ty := 0; ty < tilesY; ty++ {
		for tx := 0; tx < tilesX; tx++ {
			x0, y0 := tx*tw, ty*th
			x1, y1 := min(x0+tw, w), min(y0+th, h)
			luts[ty*tilesX+tx] = tileLUT(src, b.Min, image.Rect(x0, y0, x1, y1), clip)
		}
	}

	for y := 0; y < h; y++ {
		// Position relative to tile centers.
		gy := (float64(y)+0.5)/float64(th) - 0.5
		ty0 := clampInt(int(floorf(gy)), 0, tilesY-1)
		ty1 := clampInt(ty0+1, 0, tilesY-1)
		fy := clampf(gy-float64(ty0), 0, 1)

		for x := 0; x < w; x++ {
			gx := (float64(x)+0.5)/float64(tw) - 0.5
			tx0 := clampInt(int(floorf(gx)), 0, tilesX-1)
			tx1 := clampInt(tx0+1, 0, tilesX-1)
			fx := clampf(gx-float64(tx0), 0, 1)

			v := src.Pix[(y+b.Min.Y-src.Rect.Min.Y)*src.Stride+(x+b.Min.X-src.Rect.Min.X)]
			tl := float64(luts[ty0*tilesX+tx0][v])
			tr := float64(luts[ty0*tilesX+tx1][v])
			bl := float64(luts[ty1*tilesX+tx0][v])
			br := float64(luts[ty1*tilesX+tx1][v])

			top := tl*(1-fx) + tr*fx
			bot := bl*(1-fx) + br*fx
			dst.Pix[y*dst.Stride+x] = clamp8(top*(1-fy) + bot*fy)
		}
	}
	return dst
}

func tileLUT(src *image.Gray, origin image.Point, r image.Rectangle, clip float64) [256]uint8 {
	var hist [256]int
	for y := r.Min.Y; y < r.Max.Y; y++ {
		off := (y+origin.Y-src.Rect.Min.Y)*src.Stride + (origin.X - src.Rect.Min.X)
		for x := r.Min.X; x < r.Max.X; x++ {
			hist[src.Pix[off+x]]++
		}
	}

	area := r.Dx() * r.Dy()
	limit := int(clip * float64(area) / 256)
	if limit < 1 {
		limit = 1
	}

	excess := 0
	for i := range hist {
		if hist[i] > limit {
			excess += hist[i] - limit
			hist[i] = limit
		}
	}
	bonus, rest := excess/256, excess%256
	for i := range hist {
		hist[i] += bonus
		if i < rest {
			hist[i]++
		}
	}

	var lut [256]uint8
	cdf := 0
	scale := 255.0 / float64(max(area, 1))
	for i := range hist {
		cdf += hist[i]
		lut[i] = clamp8(float64(cdf) * scale)
	}
	return lut
}

func floorf(v float64) float64 {
	i := float64(int(v))
	if v < i {
		return i - 1
	}
	return i
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampf(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
