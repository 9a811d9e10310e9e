//go:build gocv

// Package opencv implements vision.Primitives on OpenCV through gocv.
//
// Every native buffer created during a call is owned by a per-call arena and
// released by one deferred Close. Detector objects are created per call as
// well, since OpenCV detectors are not guaranteed reentrant.
package opencv

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"github.com/ironsheep/omr-mcp/internal/vision"
)

// Backend is the OpenCV primitives backend.
type Backend struct {
	params     vision.Params
	dictionary gocv.ArucoDictionaryCode
}

// New creates an OpenCV backend for the given parameters.
func New(p vision.Params) (*Backend, error) {
	code, err := vision.LookupDictionary(p.Dictionary)
	if err != nil {
		return nil, err
	}
	return &Backend{params: p, dictionary: gocv.ArucoDictionaryCode(code)}, nil
}

// Name implements vision.Primitives.
func (b *Backend) Name() string { return "opencv" }

// Preprocess converts to grayscale, then applies Gaussian blur and CLAHE.
func (b *Backend) Preprocess(img image.Image) (*image.Gray, error) {
	a := newArena()
	defer a.Close()

	src, err := toBGR(a, img)
	if err != nil {
		return nil, err
	}

	gray := a.mat()
	gocv.CvtColor(*src, gray, gocv.ColorBGRToGray)

	blurred := a.mat()
	k := b.params.BlurKernel
	if k < 1 {
		k = 1
	}
	gocv.GaussianBlur(*gray, blurred, image.Pt(k, k), 0, 0, gocv.BorderDefault)

	enhanced := a.mat()
	clahe := gocv.NewCLAHEWithParams(b.params.ClaheClip, image.Pt(b.params.ClaheTile, b.params.ClaheTile))
	defer clahe.Close()
	clahe.Apply(*blurred, enhanced)

	return toGray(enhanced)
}

// DetectMarkers runs the ArUco detector for the configured dictionary.
func (b *Backend) DetectMarkers(gray *image.Gray) ([]vision.Marker, error) {
	a := newArena()
	defer a.Close()

	m, err := gocv.ImageGrayToMatGray(gray)
	if err != nil {
		return nil, fmt.Errorf("failed to convert image: %w", err)
	}
	src := a.track(m)

	dict := gocv.GetPredefinedDictionary(b.dictionary)
	detector := gocv.NewArucoDetectorWithParams(dict, gocv.NewArucoDetectorParameters())
	defer detector.Close()

	corners, ids, _ := detector.DetectMarkers(*src)

	markers := make([]vision.Marker, 0, len(ids))
	for i, id := range ids {
		if i >= len(corners) || len(corners[i]) < 4 {
			continue
		}
		var c [4]vision.Point
		for j := 0; j < 4; j++ {
			c[j] = vision.Point{X: float64(corners[i][j].X), Y: float64(corners[i][j].Y)}
		}
		markers = append(markers, vision.NewMarker(id, c))
	}
	return markers, nil
}

// FindHomography fits a RANSAC homography from src to dst.
func (b *Backend) FindHomography(src, dst []vision.Point) (vision.Homography, error) {
	if len(src) != len(dst) {
		return vision.Homography{}, fmt.Errorf("point count mismatch: %d vs %d", len(src), len(dst))
	}
	if len(src) < 4 {
		return vision.Homography{}, vision.ErrTooFewPoints
	}

	a := newArena()
	defer a.Close()

	srcMat := pointsMat(a, src)
	dstMat := pointsMat(a, dst)
	mask := a.mat()

	h := a.track(gocv.FindHomography(*srcMat, dstMat, gocv.HomograpyMethodRANSAC,
		b.params.RansacThreshold, mask, b.params.MaxIterations, b.params.Confidence))
	if h.Empty() || h.Rows() != 3 || h.Cols() != 3 {
		return vision.Homography{}, vision.ErrDegenerate
	}

	var out vision.Homography
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			out[r*3+c] = h.GetDoubleAt(r, c)
		}
	}
	if out.IsDegenerate() {
		return vision.Homography{}, vision.ErrDegenerate
	}
	return out, nil
}

// WarpPerspective resamples img into a buffer of the given size.
func (b *Backend) WarpPerspective(img image.Image, h vision.Homography, size image.Point) (*image.RGBA, error) {
	if h.IsDegenerate() {
		return nil, vision.ErrDegenerate
	}

	a := newArena()
	defer a.Close()

	src, err := toBGR(a, img)
	if err != nil {
		return nil, err
	}

	hm := a.track(gocv.NewMatWithSize(3, 3, gocv.MatTypeCV64F))
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			hm.SetDoubleAt(r, c, h[r*3+c])
		}
	}

	dst := a.mat()
	gocv.WarpPerspective(*src, dst, *hm, size)
	if dst.Empty() {
		return nil, vision.ErrDegenerate
	}

	out, err := dst.ToImage()
	if err != nil {
		return nil, fmt.Errorf("failed to convert warped image: %w", err)
	}
	return vision.ToRGBA(out), nil
}

// BinarizeInv applies an inverted Otsu threshold (ink = 255).
func (b *Backend) BinarizeInv(gray *image.Gray) *image.Gray {
	a := newArena()
	defer a.Close()

	m, err := gocv.ImageGrayToMatGray(vision.ToGray(gray))
	if err != nil {
		return vision.BinarizeOtsuInv(gray)
	}
	src := a.track(m)

	dst := a.mat()
	gocv.Threshold(*src, dst, 0, 255, gocv.ThresholdBinaryInv|gocv.ThresholdOtsu)

	out, err := toGray(dst)
	if err != nil {
		return vision.BinarizeOtsuInv(gray)
	}
	return out
}

// Decode decodes an encoded image with OpenCV.
func (b *Backend) Decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("failed to decode image: empty input")
	}

	a := newArena()
	defer a.Close()

	m, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	mat := a.track(m)
	if mat.Empty() {
		return nil, fmt.Errorf("failed to decode image: unsupported or corrupt data")
	}

	img, err := mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// EncodeJPEG encodes img as JPEG at the given quality.
func (b *Backend) EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	a := newArena()
	defer a.Close()

	src, err := toBGR(a, img)
	if err != nil {
		return nil, err
	}

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, *src, []int{gocv.IMWriteJpegQuality, quality})
	if err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	defer buf.Close()

	native := buf.GetBytes()
	if len(native) == 0 {
		return nil, vision.ErrResourceExhausted
	}
	out := make([]byte, len(native))
	copy(out, native)
	return out, nil
}

func toBGR(a *arena, img image.Image) (*gocv.Mat, error) {
	if img == nil {
		return nil, fmt.Errorf("nil image")
	}
	m, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("failed to convert image: %w", err)
	}
	return a.track(m), nil
}

func toGray(m *gocv.Mat) (*image.Gray, error) {
	img, err := m.ToImage()
	if err != nil {
		return nil, fmt.Errorf("failed to convert image: %w", err)
	}
	return vision.ToGray(img), nil
}

func pointsMat(a *arena, pts []vision.Point) *gocv.Mat {
	m := a.track(gocv.NewMatWithSize(len(pts), 2, gocv.MatTypeCV32F))
	for i, p := range pts {
		m.SetFloatAt(i, 0, float32(p.X))
		m.SetFloatAt(i, 1, float32(p.Y))
	}
	return m
}
