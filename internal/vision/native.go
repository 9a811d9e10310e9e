package vision

import (
	"fmt"
	"image"

	"github.com/anthonynsimon/bild/blur"
	"github.com/anthonynsimon/bild/effect"
)

// Native is the pure-Go primitives backend.
//
// It fits homographies with gonum, warps by bilinear inverse mapping, blurs with
// bild and equalizes with an in-process CLAHE. Fiducial localization is not
// available in pure Go: DetectMarkers delegates to the detector supplied with
// WithMarkerDetector and otherwise returns ErrNoMarkerDetector.
type Native struct {
	params   Params
	detector MarkerDetector
}

// NativeOption configures a Native backend.
type NativeOption func(*Native)

// WithMarkerDetector supplies the fiducial detector used by DetectMarkers.
func WithMarkerDetector(d MarkerDetector) NativeOption {
	return func(n *Native) {
		n.detector = d
	}
}

// NewNative creates a pure-Go backend.
func NewNative(p Params, opts ...NativeOption) *Native {
	n := &Native{params: p}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Name implements Primitives.
func (n *Native) Name() string { return "native" }

// Preprocess converts to grayscale, applies a Gaussian blur sized like an
// OpenCV kernel of Params.BlurKernel, then CLAHE.
func (n *Native) Preprocess(img image.Image) (*image.Gray, error) {
	if img == nil {
		return nil, fmt.Errorf("preprocess: nil image")
	}
	gray := ToGray(effect.Grayscale(img))

	if k := n.params.BlurKernel; k > 1 {
		sigma := 0.3*(float64(k-1)*0.5-1) + 0.8
		gray = ToGray(blur.Gaussian(gray, sigma))
	}

	clip, tiles := n.params.ClaheClip, n.params.ClaheTile
	if clip <= 0 || tiles <= 0 {
		return gray, nil
	}
	return EqualizeCLAHE(gray, clip, tiles), nil
}

// DetectMarkers implements MarkerDetector.
func (n *Native) DetectMarkers(gray *image.Gray) ([]Marker, error) {
	if n.detector == nil {
		return nil, ErrNoMarkerDetector
	}
	return n.detector.DetectMarkers(gray)
}

// FindHomography implements HomographySolver.
func (n *Native) FindHomography(src, dst []Point) (Homography, error) {
	h, _, err := FitHomography(src, dst, RansacOptions{
		Threshold:     n.params.RansacThreshold,
		MaxIterations: n.params.MaxIterations,
	})
	return h, err
}

// WarpPerspective implements Warper.
func (n *Native) WarpPerspective(img image.Image, h Homography, size image.Point) (*image.RGBA, error) {
	return Warp(img, h, size)
}

// BinarizeInv implements Binarizer.
func (n *Native) BinarizeInv(gray *image.Gray) *image.Gray {
	return BinarizeOtsuInv(gray)
}

// Decode implements Codec.
func (n *Native) Decode(data []byte) (image.Image, error) {
	return DecodeImage(data)
}

// EncodeJPEG implements Codec.
func (n *Native) EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	return EncodeJPEG(img, quality)
}
