package omr

import (
	"errors"
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/ironsheep/omr-mcp/internal/vision"
)

func TestBuildCorrespondences(t *testing.T) {
	canonical := map[int]vision.Point{
		1: {X: 10, Y: 10}, 5: {X: 90, Y: 10}, 9: {X: 10, Y: 90}, 10: {X: 90, Y: 90}, 3: {X: 50, Y: 50},
	}

	t.Run("three overlapping ids", func(t *testing.T) {
		detected := map[int]vision.Point{1: {}, 5: {}, 9: {}, 42: {}}
		_, err := BuildCorrespondences(detected, canonical)
		if !errors.Is(err, ErrInsufficientCorrespondence) {
			t.Fatalf("got %v, want InsufficientCorrespondence", err)
		}
	})

	t.Run("four overlapping ids", func(t *testing.T) {
		detected := map[int]vision.Point{10: {}, 1: {}, 9: {}, 5: {}, 77: {}}
		corr, err := BuildCorrespondences(detected, canonical)
		if err != nil {
			t.Fatalf("BuildCorrespondences: %v", err)
		}
		if len(corr) != 4 {
			t.Fatalf("got %d pairs, want 4", len(corr))
		}
		for i, want := range []int{1, 5, 9, 10} {
			if corr[i].ID != want {
				t.Errorf("corr[%d].ID = %d, want %d", i, corr[i].ID, want)
			}
		}
		if corr[3].Canonical != canonical[10] {
			t.Errorf("canonical point for 10 = %v", corr[3].Canonical)
		}
	})

	t.Run("interior markers included", func(t *testing.T) {
		detected := map[int]vision.Point{1: {}, 3: {}, 5: {}, 9: {}, 10: {}}
		corr, err := BuildCorrespondences(detected, canonical)
		if err != nil {
			t.Fatalf("BuildCorrespondences: %v", err)
		}
		if len(corr) != 5 {
			t.Errorf("got %d pairs, want 5", len(corr))
		}
	})
}

func TestRectify_RoundTrip(t *testing.T) {
	size := image.Pt(200, 300)
	canonical := []vision.Point{{X: 20, Y: 20}, {X: 180, Y: 20}, {X: 20, Y: 280}, {X: 180, Y: 280}, {X: 100, Y: 150}}

	// A known projective distortion of the canonical frame.
	truth := vision.Homography{1.1, 0.05, 12, -0.03, 0.95, 7, 0.0002, 0.0001, 1}
	var corr []Correspondence
	for i, p := range canonical {
		corr = append(corr, Correspondence{ID: i, Detected: truth.Apply(p), Canonical: p})
	}

	src := image.NewRGBA(image.Rect(0, 0, 260, 360))
	for i := range src.Pix {
		src.Pix[i] = 255
	}

	native := vision.NewNative(vision.Params{RansacThreshold: 5, MaxIterations: 2000})
	r := Rectifier{Solver: native, Warper: native, Size: size}

	rect, err := r.Rectify(src, corr)
	if err != nil {
		t.Fatalf("Rectify: %v", err)
	}
	if rect.Color.Bounds().Size() != size || rect.Gray.Bounds().Size() != size {
		t.Errorf("output size = %v / %v, want %v", rect.Color.Bounds().Size(), rect.Gray.Bounds().Size(), size)
	}
	if rect.ReprojectionError > 1e-6 {
		t.Errorf("ReprojectionError = %g, want ~0", rect.ReprojectionError)
	}

	// A bubble center anywhere in the frame maps back onto itself.
	for _, p := range []vision.Point{{X: 60, Y: 90}, {X: 150, Y: 240}} {
		got := rect.H.Apply(truth.Apply(p))
		if math.Abs(got.X-p.X) > 0.5 || math.Abs(got.Y-p.Y) > 0.5 {
			t.Errorf("round trip of %v = %v", p, got)
		}
	}
}

func TestRectify_Errors(t *testing.T) {
	native := vision.NewNative(vision.Params{})
	r := Rectifier{Solver: native, Warper: native, Size: image.Pt(50, 50)}
	src := image.NewRGBA(image.Rect(0, 0, 50, 50))

	_, err := r.Rectify(src, make([]Correspondence, 3))
	if !errors.Is(err, ErrInsufficientCorrespondence) {
		t.Errorf("3 pairs: got %v, want InsufficientCorrespondence", err)
	}

	same := vision.Point{X: 5, Y: 5}
	collapsed := []Correspondence{
		{ID: 1, Detected: same, Canonical: vision.Point{X: 0, Y: 0}},
		{ID: 2, Detected: same, Canonical: vision.Point{X: 40, Y: 0}},
		{ID: 3, Detected: same, Canonical: vision.Point{X: 0, Y: 40}},
		{ID: 4, Detected: same, Canonical: vision.Point{X: 40, Y: 40}},
	}
	_, err = r.Rectify(src, collapsed)
	if !errors.Is(err, ErrWarpFailure) {
		t.Errorf("collapsed markers: got %v, want WarpFailure", err)
	}
}

func TestRectify_GrayMatchesColor(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 100, 100))
	for y := 0; y < 100; y++ {
		for x := 0; x < 100; x++ {
			c := uint8(255)
			if x < 50 {
				c = 0
			}
			src.SetRGBA(x, y, color.RGBA{c, c, c, 255})
		}
	}
	pts := []vision.Point{{X: 10, Y: 10}, {X: 90, Y: 10}, {X: 10, Y: 90}, {X: 90, Y: 90}}
	var corr []Correspondence
	for i, p := range pts {
		corr = append(corr, Correspondence{ID: i, Detected: p, Canonical: p})
	}

	native := vision.NewNative(vision.Params{})
	rect, err := Rectifier{Solver: native, Warper: native, Size: image.Pt(100, 100)}.Rectify(src, corr)
	if err != nil {
		t.Fatalf("Rectify: %v", err)
	}
	if g := rect.Gray.GrayAt(20, 50).Y; g > 10 {
		t.Errorf("left half gray = %d, want dark", g)
	}
	if g := rect.Gray.GrayAt(80, 50).Y; g < 245 {
		t.Errorf("right half gray = %d, want light", g)
	}
}
