package vision

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// RansacOptions tunes FitHomography.
type RansacOptions struct {
	// Threshold is the maximum reprojection distance in pixels for an inlier.
	Threshold float64

	// MaxIterations caps the number of minimal samples evaluated.
	MaxIterations int
}

// FitHomography estimates the transform mapping src onto dst.
//
// Minimal 4-point samples are enumerated in lexicographic order rather than
// drawn at random, so the same input always yields the same transform. The
// sample with the most inliers (ties broken by lower total residual) wins and
// the transform is then refit by least squares over its inliers.
//
// Returns the transform, the indices of the inlier pairs, and an error that
// wraps ErrTooFewPoints or ErrDegenerate when no usable transform exists.
func FitHomography(src, dst []Point, opts RansacOptions) (Homography, []int, error) {
	if len(src) != len(dst) {
		return Homography{}, nil, fmt.Errorf("point count mismatch: %d vs %d", len(src), len(dst))
	}
	if len(src) < 4 {
		return Homography{}, nil, fmt.Errorf("%w: got %d", ErrTooFewPoints, len(src))
	}
	if opts.Threshold <= 0 {
		opts.Threshold = 5.0
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = 2000
	}

	n := len(src)
	var (
		bestInliers []int
		bestCost    = math.Inf(1)
		found       bool
	)

	sample := []int{0, 1, 2, 3}
	for iter := 0; iter < opts.MaxIterations; iter++ {
		s := make([]Point, 4)
		d := make([]Point, 4)
		for i, idx := range sample {
			s[i] = src[idx]
			d[i] = dst[idx]
		}

		if hasCollinearTriple(s) || hasCollinearTriple(d) {
			if !nextCombination(sample, n) {
				break
			}
			continue
		}

		if h, err := solveDLT(s, d); err == nil {
			inliers, cost := scoreInliers(h, src, dst, opts.Threshold)
			if len(inliers) > len(bestInliers) || (len(inliers) == len(bestInliers) && cost < bestCost) {
				bestInliers = inliers
				bestCost = cost
				found = true
			}
			if len(bestInliers) == n && bestCost < 1e-9 {
				break
			}
		}

		if !nextCombination(sample, n) {
			break
		}
	}

	if !found || len(bestInliers) < 4 {
		return Homography{}, nil, fmt.Errorf("%w: no 4-point sample produced a consistent fit", ErrDegenerate)
	}

	inSrc := make([]Point, len(bestInliers))
	inDst := make([]Point, len(bestInliers))
	for i, idx := range bestInliers {
		inSrc[i] = src[idx]
		inDst[i] = dst[idx]
	}

	h, err := solveDLT(inSrc, inDst)
	if err != nil {
		return Homography{}, nil, err
	}
	return h, bestInliers, nil
}

// nextCombination advances c to the next k-combination of [0,n) in
// lexicographic order. It returns false after the last one.
func nextCombination(c []int, n int) bool {
	k := len(c)
	i := k - 1
	for i >= 0 && c[i] == n-k+i {
		i--
	}
	if i < 0 {
		return false
	}
	c[i]++
	for j := i + 1; j < k; j++ {
		c[j] = c[j-1] + 1
	}
	return true
}

// hasCollinearTriple reports whether any three of the points are (nearly) collinear.
func hasCollinearTriple(pts []Point) bool {
	for i := 0; i < len(pts); i++ {
		for j := i + 1; j < len(pts); j++ {
			for k := j + 1; k < len(pts); k++ {
				ax, ay := pts[j].X-pts[i].X, pts[j].Y-pts[i].Y
				bx, by := pts[k].X-pts[i].X, pts[k].Y-pts[i].Y
				cross := math.Abs(ax*by - ay*bx)
				if cross <= 1e-6*math.Hypot(ax, ay)*math.Hypot(bx, by) {
					return true
				}
			}
		}
	}
	return false
}

func scoreInliers(h Homography, src, dst []Point, threshold float64) ([]int, float64) {
	var inliers []int
	var cost float64
	for i := range src {
		d := h.Apply(src[i]).Distance(dst[i])
		if d < threshold {
			inliers = append(inliers, i)
			cost += d
		}
	}
	return inliers, cost
}

// solveDLT fits h (with h33 fixed to 1) by least squares on Hartley-normalized
// coordinates. Exactly 4 pairs give the exact solution.
func solveDLT(src, dst []Point) (Homography, error) {
	n := len(src)
	if n < 4 {
		return Homography{}, ErrTooFewPoints
	}

	ns, ts, err := normalizePoints(src)
	if err != nil {
		return Homography{}, err
	}
	nd, td, err := normalizePoints(dst)
	if err != nil {
		return Homography{}, err
	}

	A := mat.NewDense(n*2, 8, nil)
	B := mat.NewVecDense(n*2, nil)
	for i := 0; i < n; i++ {
		x, y := ns[i].X, ns[i].Y
		u, v := nd[i].X, nd[i].Y

		A.SetRow(i*2, []float64{x, y, 1, 0, 0, 0, -u * x, -u * y})
		B.SetVec(i*2, u)

		A.SetRow(i*2+1, []float64{0, 0, 0, x, y, 1, -v * x, -v * y})
		B.SetVec(i*2+1, v)
	}

	var qr mat.QR
	qr.Factorize(A)

	var params mat.VecDense
	if err := qr.SolveVecTo(&params, false, B); err != nil {
		return Homography{}, fmt.Errorf("%w: %v", ErrDegenerate, err)
	}

	hn := mat.NewDense(3, 3, []float64{
		params.AtVec(0), params.AtVec(1), params.AtVec(2),
		params.AtVec(3), params.AtVec(4), params.AtVec(5),
		params.AtVec(6), params.AtVec(7), 1,
	})

	// H = Td^-1 * Hn * Ts
	var tdInv mat.Dense
	if err := tdInv.Inverse(td); err != nil {
		return Homography{}, fmt.Errorf("%w: %v", ErrDegenerate, err)
	}
	var tmp, full mat.Dense
	tmp.Mul(hn, ts)
	full.Mul(&tdInv, &tmp)

	var h Homography
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			h[r*3+c] = full.At(r, c)
		}
	}
	h = h.normalized()
	if h.IsDegenerate() {
		return Homography{}, ErrDegenerate
	}
	return h, nil
}

// normalizePoints translates points to their centroid and scales them so the
// mean distance from the origin is sqrt(2).
func normalizePoints(pts []Point) ([]Point, *mat.Dense, error) {
	var cx, cy float64
	for _, p := range pts {
		cx += p.X
		cy += p.Y
	}
	cx /= float64(len(pts))
	cy /= float64(len(pts))

	var meanDist float64
	for _, p := range pts {
		meanDist += math.Hypot(p.X-cx, p.Y-cy)
	}
	meanDist /= float64(len(pts))
	if meanDist < 1e-9 {
		return nil, nil, fmt.Errorf("%w: coincident points", ErrDegenerate)
	}

	s := math.Sqrt2 / meanDist
	out := make([]Point, len(pts))
	for i, p := range pts {
		out[i] = Point{X: (p.X - cx) * s, Y: (p.Y - cy) * s}
	}

	t := mat.NewDense(3, 3, []float64{
		s, 0, -s * cx,
		0, s, -s * cy,
		0, 0, 1,
	})
	return out, t, nil
}
