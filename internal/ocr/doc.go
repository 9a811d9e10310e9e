// Package ocr reads the handwritten info block of a rectified sheet using
// Tesseract (via gosseract/v2).
//
// Reader implements the text reader consumed by the scanner. Images are
// converted to grayscale and short crops are upscaled before recognition;
// word boxes are mapped back to the coordinates of the image passed in.
//
// # Prerequisites
//
// Tesseract and its language data must be installed on the system:
//   - Ubuntu/Debian: apt-get install tesseract-ocr tesseract-ocr-eng
//   - macOS: brew install tesseract
//
// Builds without cgo compile a stub whose calls fail with ErrUnavailable.
// Use Available to probe the engine at startup.
package ocr
