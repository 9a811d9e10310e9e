package ocr

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/ironsheep/omr-mcp/internal/omr"
)

// ErrUnavailable is returned when the binary was built without Tesseract support.
var ErrUnavailable = errors.New("text recognition not available in this build")

// minHeight is the crop height below which images are upscaled before
// recognition. Tesseract does poorly on glyphs shorter than about 20 pixels.
const minHeight = 160

// Bounds represents a rectangular bounding box in pixel coordinates.
type Bounds struct {
	X1 int `json:"x1"` // Left edge
	Y1 int `json:"y1"` // Top edge
	X2 int `json:"x2"` // Right edge
	Y2 int `json:"y2"` // Bottom edge
}

// TextRegion represents a recognized word with its location and confidence.
type TextRegion struct {
	Text string `json:"text"`

	// Confidence is the recognition confidence (0.0 to 1.0).
	Confidence float64 `json:"confidence"`

	// Bounds is relative to the image passed to Recognize.
	Bounds Bounds `json:"bounds"`
}

// OCRResult contains the text recognized in one image.
type OCRResult struct {
	// FullText is all recognized text with original spacing and newlines.
	FullText string `json:"full_text"`

	// Regions may be empty when word boxes are unavailable.
	Regions []TextRegion `json:"regions"`
}

// Reader recognizes text in in-memory images. It keeps no engine state
// between calls, so a Reader is safe for concurrent use.
type Reader struct {
	language string
}

// NewReader creates a Reader for a Tesseract language code such as "eng".
func NewReader(language string) *Reader {
	if language == "" {
		language = "eng"
	}
	return &Reader{language: language}
}

// Language returns the configured Tesseract language code.
func (r *Reader) Language() string { return r.language }

// ReadText implements omr.TextReader. It returns the trimmed text of img and
// its word boxes.
func (r *Reader) ReadText(img image.Image) (*omr.RecognizedText, error) {
	res, err := r.Recognize(img)
	if err != nil {
		return nil, err
	}
	return res.recognized(), nil
}

func (res *OCRResult) recognized() *omr.RecognizedText {
	out := &omr.RecognizedText{Text: strings.TrimSpace(res.FullText)}
	for _, w := range res.Regions {
		out.Words = append(out.Words, omr.InfoWord{
			Text:       w.Text,
			Confidence: w.Confidence,
			Bounds:     [4]int{w.Bounds.X1, w.Bounds.Y1, w.Bounds.X2 - w.Bounds.X1, w.Bounds.Y2 - w.Bounds.Y1},
		})
	}
	return out
}

// prepare converts img to a grayscale PNG, upscaling short crops. It returns
// the encoded bytes and the factor applied to coordinates.
func prepare(img image.Image) ([]byte, float64, error) {
	if img == nil {
		return nil, 0, fmt.Errorf("ocr: nil image")
	}
	b := img.Bounds()
	if b.Empty() {
		return nil, 0, fmt.Errorf("ocr: empty image")
	}

	scale := 1.0
	var gray image.Image = imaging.Grayscale(img)
	if b.Dy() < minHeight {
		scale = float64(minHeight) / float64(b.Dy())
		gray = imaging.Resize(gray, 0, minHeight, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, gray); err != nil {
		return nil, 0, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), scale, nil
}

// unscale maps a box from the prepared image back to the caller's image.
func unscale(r image.Rectangle, scale float64) Bounds {
	f := func(v int) int { return int(float64(v) / scale) }
	return Bounds{X1: f(r.Min.X), Y1: f(r.Min.Y), X2: f(r.Max.X), Y2: f(r.Max.Y)}
}
