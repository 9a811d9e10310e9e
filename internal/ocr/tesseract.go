//go:build cgo

package ocr

import (
	"fmt"
	"image"

	"github.com/otiai10/gosseract/v2"
)

// Recognize runs Tesseract on img and returns the full text plus word boxes.
//
// If word-level box extraction fails (which can happen with some Tesseract
// configurations), the full text is still returned with an empty Regions slice.
func (r *Reader) Recognize(img image.Image) (*OCRResult, error) {
	data, scale, err := prepare(img)
	if err != nil {
		return nil, err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(r.language); err != nil {
		return nil, fmt.Errorf("failed to set language: %w", err)
	}
	if err := client.SetImageFromBytes(data); err != nil {
		return nil, fmt.Errorf("failed to set image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return nil, fmt.Errorf("OCR failed: %w", err)
	}

	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return &OCRResult{FullText: text, Regions: []TextRegion{}}, nil
	}

	regions := make([]TextRegion, 0, len(boxes))
	for _, box := range boxes {
		if box.Word == "" {
			continue
		}
		regions = append(regions, TextRegion{
			Text:       box.Word,
			Confidence: float64(box.Confidence) / 100.0,
			Bounds:     unscale(box.Box, scale),
		})
	}
	return &OCRResult{FullText: text, Regions: regions}, nil
}

// Available reports whether the Tesseract engine can be initialized.
func Available() error {
	client := gosseract.NewClient()
	defer client.Close()
	if v := client.Version(); v == "" {
		return ErrUnavailable
	}
	return nil
}
