package imaging

import (
	"image"

	"github.com/disintegration/imaging"
)

// CropPadded extracts r grown by padding on every side and clamped to the
// image bounds. It returns the crop (zero origin) and the rectangle actually
// used. An empty intersection yields a nil image and an empty rectangle.
func CropPadded(img image.Image, r image.Rectangle, padding int) (image.Image, image.Rectangle) {
	r = r.Canon().Inset(-padding).Intersect(img.Bounds())
	if r.Empty() {
		return nil, image.Rectangle{}
	}
	return imaging.Crop(img, r), r
}

// Scale resizes img by factor using Lanczos resampling. Factors at or above 1
// return img unchanged.
func Scale(img image.Image, factor float64) image.Image {
	if factor >= 1 || factor <= 0 {
		return img
	}
	b := img.Bounds()
	w := max(1, int(float64(b.Dx())*factor))
	h := max(1, int(float64(b.Dy())*factor))
	return imaging.Resize(img, w, h, imaging.Lanczos)
}
