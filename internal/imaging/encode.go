package imaging

import (
	"encoding/base64"
	"errors"
	"fmt"
	"image"
)

// ErrExhausted is returned when an image cannot be encoded within the limits
// even at the smallest permitted scale.
var ErrExhausted = errors.New("image encoding exhausted resources")

// EncodedImage is a transport-friendly encoded image.
type EncodedImage struct {
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	ImageBase64 string  `json:"image_base64"`
	MimeType    string  `json:"mime_type"`
	Scale       float64 `json:"scale"`
}

// JPEGFunc encodes img at the given quality.
type JPEGFunc func(img image.Image, quality int) ([]byte, error)

// Encoder encodes output images as JPEG, retrying at reduced resolution when
// the encoder signals exhaustion or the output exceeds MaxBytes.
type Encoder struct {
	// Encode is the codec. It may return an error wrapping Exhausted to request
	// a retry at lower resolution.
	Encode JPEGFunc

	// Quality picks the JPEG quality for the size being encoded.
	Quality func(width, height int) int

	// Exhausted is the codec error that triggers a retry.
	Exhausted error

	// MaxBytes caps the encoded size. Zero means unlimited.
	MaxBytes int

	// RetryScale multiplies the scale on each retry (e.g. 0.5).
	RetryScale float64

	// MinScale is the smallest scale attempted.
	MinScale float64
}

// EncodeJPEG encodes img, stepping the resolution down on exhaustion.
//
// Returns an error wrapping ErrExhausted when every permitted scale failed,
// or the codec's error for any other failure.
func (e Encoder) EncodeJPEG(img image.Image) (*EncodedImage, error) {
	if img == nil {
		return nil, fmt.Errorf("encode: nil image")
	}

	retry := e.RetryScale
	if retry <= 0 || retry >= 1 {
		retry = 0.5
	}
	minScale := e.MinScale
	if minScale <= 0 {
		minScale = retry
	}

	var lastErr error
	for scale := 1.0; scale >= minScale-1e-9; scale *= retry {
		scaled := Scale(img, scale)
		b := scaled.Bounds()

		quality := 85
		if e.Quality != nil {
			quality = e.Quality(b.Dx(), b.Dy())
		}

		data, err := e.Encode(scaled, quality)
		switch {
		case err != nil && e.Exhausted != nil && errors.Is(err, e.Exhausted):
			lastErr = err
			continue
		case err != nil:
			return nil, err
		case e.MaxBytes > 0 && len(data) > e.MaxBytes:
			lastErr = fmt.Errorf("encoded size %d exceeds %d bytes", len(data), e.MaxBytes)
			continue
		}

		return &EncodedImage{
			Width:       b.Dx(),
			Height:      b.Dy(),
			ImageBase64: base64.StdEncoding.EncodeToString(data),
			MimeType:    "image/jpeg",
			Scale:       scale,
		}, nil
	}

	return nil, fmt.Errorf("%w: %v", ErrExhausted, lastErr)
}
