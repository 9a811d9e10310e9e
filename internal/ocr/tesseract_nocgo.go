//go:build !cgo

package ocr

import "image"

// Recognize always fails with ErrUnavailable in builds without cgo.
func (r *Reader) Recognize(image.Image) (*OCRResult, error) {
	return nil, ErrUnavailable
}

// Available always returns ErrUnavailable in builds without cgo.
func Available() error {
	return ErrUnavailable
}
