package vision

import "image"

// Preprocessor denoises and contrast-enhances a capture before marker detection.
type Preprocessor interface {
	Preprocess(img image.Image) (*image.Gray, error)
}

// MarkerDetector localizes fiducial markers in a grayscale image.
type MarkerDetector interface {
	DetectMarkers(gray *image.Gray) ([]Marker, error)
}

// HomographySolver fits a robust source-to-destination transform.
type HomographySolver interface {
	FindHomography(src, dst []Point) (Homography, error)
}

// Warper resamples an image through a homography into a new buffer of the given size.
type Warper interface {
	WarpPerspective(img image.Image, h Homography, size image.Point) (*image.RGBA, error)
}

// Binarizer applies an automatic global threshold. Pixels at or below the
// threshold (ink) become 255 and the rest 0.
type Binarizer interface {
	BinarizeInv(gray *image.Gray) *image.Gray
}

// Codec decodes captures and encodes output images.
type Codec interface {
	Decode(data []byte) (image.Image, error)
	EncodeJPEG(img image.Image, quality int) ([]byte, error)
}

// Primitives is the full set of vision operations the scanner consumes.
type Primitives interface {
	Preprocessor
	MarkerDetector
	HomographySolver
	Warper
	Binarizer
	Codec

	// Name identifies the backend in scan metadata.
	Name() string
}
