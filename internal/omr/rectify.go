package omr

import (
	"errors"
	"image"
	"sort"

	"github.com/anthonynsimon/bild/effect"

	"github.com/ironsheep/omr-mcp/internal/vision"
)

// Correspondence pairs the detected and canonical centers of one marker.
type Correspondence struct {
	ID        int
	Detected  vision.Point
	Canonical vision.Point
}

// BuildCorrespondences pairs every marker id present in both maps, ordered by
// ascending id. All matched markers are used, not only the corners.
//
// Fails with InsufficientCorrespondence when fewer than 4 pairs remain.
func BuildCorrespondences(detected, canonical map[int]vision.Point) ([]Correspondence, error) {
	var out []Correspondence
	for id, d := range detected {
		if c, ok := canonical[id]; ok {
			out = append(out, Correspondence{ID: id, Detected: d, Canonical: c})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	if len(out) < 4 {
		return nil, newError(InsufficientCorrespondence, "correspond", nil,
			"need at least 4 markers matching the template, got %d", len(out))
	}
	return out, nil
}

// Rectified is a capture warped into the canonical frame.
type Rectified struct {
	Color *image.RGBA
	Gray  *image.Gray
	H     vision.Homography

	// ReprojectionError is the mean distance in canonical pixels between the
	// projected detected centers and their template positions.
	ReprojectionError float64
}

// Rectifier fits a homography from correspondences and warps into a frame
// of fixed size.
type Rectifier struct {
	Solver vision.HomographySolver
	Warper vision.Warper
	Size   image.Point
}

// Rectify warps src into the canonical frame.
//
// Fails with InsufficientCorrespondence for fewer than 4 pairs and with
// WarpFailure when the solver yields no usable transform.
func (r Rectifier) Rectify(src image.Image, corr []Correspondence) (*Rectified, error) {
	if len(corr) < 4 {
		return nil, newError(InsufficientCorrespondence, "rectify", nil,
			"need at least 4 correspondences, got %d", len(corr))
	}

	from := make([]vision.Point, len(corr))
	to := make([]vision.Point, len(corr))
	for i, c := range corr {
		from[i] = c.Detected
		to[i] = c.Canonical
	}

	h, err := r.Solver.FindHomography(from, to)
	if err != nil {
		if errors.Is(err, vision.ErrTooFewPoints) {
			return nil, newError(InsufficientCorrespondence, "rectify", err, "homography fit")
		}
		return nil, newError(WarpFailure, "rectify", err, "homography fit")
	}
	if h.IsDegenerate() {
		return nil, newError(WarpFailure, "rectify", vision.ErrDegenerate, "homography fit")
	}

	warped, err := r.Warper.WarpPerspective(src, h, r.Size)
	if err != nil {
		return nil, newError(WarpFailure, "rectify", err, "perspective warp")
	}

	return &Rectified{
		Color:             warped,
		Gray:              vision.ToGray(effect.Grayscale(warped)),
		H:                 h,
		ReprojectionError: vision.MeanResidual(h, from, to),
	}, nil
}
