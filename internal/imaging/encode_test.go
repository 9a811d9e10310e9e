package imaging

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"testing"
)

var errOutOfMemory = errors.New("out of memory")

func jpegFunc(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality})
	return buf.Bytes(), err
}

func TestEncoder_EncodeJPEG(t *testing.T) {
	img := createInMemoryImage(64, 48, color.RGBA{120, 130, 140, 255})

	var gotQuality int
	e := Encoder{
		Encode: jpegFunc,
		Quality: func(w, h int) int {
			gotQuality = 77
			return gotQuality
		},
	}
	out, err := e.EncodeJPEG(img)
	if err != nil {
		t.Fatalf("EncodeJPEG error: %v", err)
	}
	if out.Width != 64 || out.Height != 48 || out.Scale != 1 {
		t.Errorf("result = %dx%d at %g", out.Width, out.Height, out.Scale)
	}
	if out.MimeType != "image/jpeg" {
		t.Errorf("MimeType = %q", out.MimeType)
	}
	if gotQuality != 77 {
		t.Error("quality callback not used")
	}
	data, err := base64.StdEncoding.DecodeString(out.ImageBase64)
	if err != nil {
		t.Fatalf("base64: %v", err)
	}
	if _, err := jpeg.Decode(bytes.NewReader(data)); err != nil {
		t.Errorf("payload is not JPEG: %v", err)
	}
}

func TestEncoder_RetriesOnExhaustion(t *testing.T) {
	img := createInMemoryImage(400, 200, color.White)

	calls := 0
	e := Encoder{
		Encode: func(img image.Image, q int) ([]byte, error) {
			calls++
			if img.Bounds().Dx() > 100 {
				return nil, errOutOfMemory
			}
			return jpegFunc(img, q)
		},
		Exhausted:  errOutOfMemory,
		RetryScale: 0.5,
		MinScale:   0.125,
	}

	out, err := e.EncodeJPEG(img)
	if err != nil {
		t.Fatalf("EncodeJPEG error: %v", err)
	}
	if out.Width != 100 || out.Scale != 0.25 {
		t.Errorf("result width %d at scale %g, want 100 at 0.25", out.Width, out.Scale)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestEncoder_GivesUp(t *testing.T) {
	img := createInMemoryImage(64, 64, color.White)
	e := Encoder{
		Encode: func(image.Image, int) ([]byte, error) {
			return nil, errOutOfMemory
		},
		Exhausted:  errOutOfMemory,
		RetryScale: 0.5,
		MinScale:   0.25,
	}

	_, err := e.EncodeJPEG(img)
	if !errors.Is(err, ErrExhausted) {
		t.Errorf("error = %v, want ErrExhausted", err)
	}
}

func TestEncoder_MaxBytes(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 256, 256))
	for i := range img.Pix {
		img.Pix[i] = uint8(i * 31)
	}
	full, _ := jpegFunc(img, 85)

	e := Encoder{Encode: jpegFunc, MaxBytes: len(full) - 1, RetryScale: 0.5, MinScale: 0.125}
	out, err := e.EncodeJPEG(img)
	if err != nil {
		t.Fatalf("EncodeJPEG error: %v", err)
	}
	if out.Scale >= 1 {
		t.Errorf("scale = %g, want a reduced scale", out.Scale)
	}
}

func TestEncoder_OtherErrorsAreFatal(t *testing.T) {
	boom := errors.New("boom")
	e := Encoder{
		Encode:    func(image.Image, int) ([]byte, error) { return nil, boom },
		Exhausted: errOutOfMemory,
	}
	_, err := e.EncodeJPEG(createInMemoryImage(8, 8, color.Black))
	if !errors.Is(err, boom) || errors.Is(err, ErrExhausted) {
		t.Errorf("error = %v, want boom", err)
	}
	if _, err := e.EncodeJPEG(nil); err == nil {
		t.Error("expected error for nil image")
	}
}
