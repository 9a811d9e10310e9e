//go:build gocv

package opencv

import "gocv.io/x/gocv"

// arena owns every native buffer allocated during one backend call. A single
// deferred Close releases them all, including on early error returns.
type arena struct {
	mats []*gocv.Mat
}

func newArena() *arena {
	return &arena{}
}

// track registers m for release and returns a pointer to the tracked value.
func (a *arena) track(m gocv.Mat) *gocv.Mat {
	p := &m
	a.mats = append(a.mats, p)
	return p
}

// mat allocates an empty tracked Mat.
func (a *arena) mat() *gocv.Mat {
	return a.track(gocv.NewMat())
}

// Close releases tracked Mats in reverse allocation order.
func (a *arena) Close() {
	for i := len(a.mats) - 1; i >= 0; i-- {
		if m := a.mats[i]; m != nil {
			m.Close()
		}
	}
	a.mats = nil
}
