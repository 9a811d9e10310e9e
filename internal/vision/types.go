package vision

import (
	"errors"
	"math"
)

var (
	// ErrNoMarkerDetector is returned by backends that cannot localize fiducials.
	ErrNoMarkerDetector = errors.New("marker detection requires the gocv build (go build -tags gocv) or an injected detector")

	// ErrDegenerate is returned when a fitted transform is empty or not invertible.
	ErrDegenerate = errors.New("degenerate homography")

	// ErrTooFewPoints is returned when a fit is attempted with fewer than 4 pairs.
	ErrTooFewPoints = errors.New("need at least 4 point pairs")

	// ErrResourceExhausted is returned by codecs that run out of room while encoding.
	ErrResourceExhausted = errors.New("resource exhausted")
)

// Point is a 2D point in pixel coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Distance returns the Euclidean distance between two points.
func (p Point) Distance(q Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// Marker is one detected fiducial.
type Marker struct {
	ID      int      `json:"id"`
	Corners [4]Point `json:"corners"`
	Center  Point    `json:"center"`
}

// NewMarker builds a Marker whose center is the mean of its corners.
func NewMarker(id int, corners [4]Point) Marker {
	var c Point
	for _, p := range corners {
		c.X += p.X
		c.Y += p.Y
	}
	c.X /= 4
	c.Y /= 4
	return Marker{ID: id, Corners: corners, Center: c}
}

// Params carries the tuning values backends need. It is a projection of the
// process configuration and is never mutated after construction.
type Params struct {
	Dictionary      string
	BlurKernel      int
	ClaheClip       float64
	ClaheTile       int
	RansacThreshold float64
	MaxIterations   int
	Confidence      float64
}

// Homography is a 3x3 projective transform stored row-major.
type Homography [9]float64

// Identity returns the identity transform.
func Identity() Homography {
	return Homography{1, 0, 0, 0, 1, 0, 0, 0, 1}
}

// Apply maps p through the transform.
func (h Homography) Apply(p Point) Point {
	w := h[6]*p.X + h[7]*p.Y + h[8]
	if w == 0 {
		return Point{X: math.Inf(1), Y: math.Inf(1)}
	}
	return Point{
		X: (h[0]*p.X + h[1]*p.Y + h[2]) / w,
		Y: (h[3]*p.X + h[4]*p.Y + h[5]) / w,
	}
}

// Det returns the determinant.
func (h Homography) Det() float64 {
	return h[0]*(h[4]*h[8]-h[5]*h[7]) -
		h[1]*(h[3]*h[8]-h[5]*h[6]) +
		h[2]*(h[3]*h[7]-h[4]*h[6])
}

// IsDegenerate reports whether h is empty, non-finite or singular.
func (h Homography) IsDegenerate() bool {
	allZero := true
	for _, v := range h {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return true
		}
		if v != 0 {
			allZero = false
		}
	}
	if allZero {
		return true
	}
	return math.Abs(h.Det()) < 1e-12
}

// Inverse returns the inverse transform normalized so that h[8] == 1 where possible.
func (h Homography) Inverse() (Homography, error) {
	det := h.Det()
	if h.IsDegenerate() {
		return Homography{}, ErrDegenerate
	}
	inv := Homography{
		(h[4]*h[8] - h[5]*h[7]) / det,
		(h[2]*h[7] - h[1]*h[8]) / det,
		(h[1]*h[5] - h[2]*h[4]) / det,
		(h[5]*h[6] - h[3]*h[8]) / det,
		(h[0]*h[8] - h[2]*h[6]) / det,
		(h[2]*h[3] - h[0]*h[5]) / det,
		(h[3]*h[7] - h[4]*h[6]) / det,
		(h[1]*h[6] - h[0]*h[7]) / det,
		(h[0]*h[4] - h[1]*h[3]) / det,
	}
	return inv.normalized(), nil
}

func (h Homography) normalized() Homography {
	if math.Abs(h[8]) < 1e-15 {
		return h
	}
	s := h[8]
	for i := range h {
		h[i] /= s
	}
	return h
}

// MeanResidual returns the mean distance between h(src[i]) and dst[i].
func MeanResidual(h Homography, src, dst []Point) float64 {
	if len(src) == 0 || len(src) != len(dst) {
		return 0
	}
	var sum float64
	for i := range src {
		sum += h.Apply(src[i]).Distance(dst[i])
	}
	return sum / float64(len(src))
}
