//go:build gocv

package opencv

import (
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/ironsheep/omr-mcp/internal/vision"
)

func testBackend(t *testing.T) *Backend {
	t.Helper()
	b, err := New(vision.Params{
		Dictionary:      "DICT_4X4_50",
		BlurKernel:      5,
		ClaheClip:       2.0,
		ClaheTile:       8,
		RansacThreshold: 5.0,
		MaxIterations:   2000,
		Confidence:      0.995,
	})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	return b
}

func TestNew_UnknownDictionary(t *testing.T) {
	if _, err := New(vision.Params{Dictionary: "DICT_1X1_1"}); err == nil {
		t.Error("expected error for unknown dictionary")
	}
}

func TestBackend_FindHomography(t *testing.T) {
	b := testBackend(t)
	src := []vision.Point{{0, 0}, {100, 0}, {0, 100}, {100, 100}, {50, 50}}
	dst := make([]vision.Point, len(src))
	for i, p := range src {
		dst[i] = vision.Point{X: p.X*2 + 10, Y: p.Y*2 + 5}
	}

	h, err := b.FindHomography(src, dst)
	if err != nil {
		t.Fatalf("FindHomography error: %v", err)
	}
	got := h.Apply(vision.Point{X: 25, Y: 75})
	if math.Abs(got.X-60) > 1e-3 || math.Abs(got.Y-155) > 1e-3 {
		t.Errorf("Apply = %+v, want (60,155)", got)
	}
}

func TestBackend_WarpAndBinarize(t *testing.T) {
	b := testBackend(t)
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	for y := 20; y < 30; y++ {
		for x := 20; x < 30; x++ {
			img.Set(x, y, color.Black)
		}
	}

	warped, err := b.WarpPerspective(img, vision.Identity(), image.Pt(64, 64))
	if err != nil {
		t.Fatalf("WarpPerspective error: %v", err)
	}
	bin := b.BinarizeInv(vision.ToGray(warped))
	if bin.GrayAt(25, 25).Y != 255 || bin.GrayAt(5, 5).Y != 0 {
		t.Error("binarization did not separate ink from paper")
	}
}

func TestBackend_EncodeDecode(t *testing.T) {
	b := testBackend(t)
	img := image.NewRGBA(image.Rect(0, 0, 40, 30))
	data, err := b.EncodeJPEG(img, 85)
	if err != nil {
		t.Fatalf("EncodeJPEG error: %v", err)
	}
	out, err := b.Decode(data)
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if out.Bounds().Dx() != 40 || out.Bounds().Dy() != 30 {
		t.Errorf("decoded size = %v", out.Bounds())
	}
	if _, err := b.Decode([]byte("junk")); err == nil {
		t.Error("expected error for junk input")
	}
}
