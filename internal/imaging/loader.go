package imaging

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF format decoder
	_ "image/jpeg" // Register JPEG format decoder
	_ "image/png"  // Register PNG format decoder
	"os"
	"strings"

	"github.com/rwcarlsen/goexif/exif"
	_ "golang.org/x/image/bmp"  // Register BMP format decoder
	_ "golang.org/x/image/tiff" // Register TIFF format decoder
	_ "golang.org/x/image/webp" // Register WebP format decoder
)

// ErrNoImage is returned when neither a path nor inline data was supplied.
var ErrNoImage = errors.New("no image supplied")

// Source is an encoded capture plus metadata read from its header.
//
// The pixel data is not decoded here; decoding belongs to the vision backend
// so that the same bytes reach OpenCV or the pure-Go codec unchanged.
type Source struct {
	Data []byte
	Info ImageInfo
}

// ImageInfo contains metadata about an encoded image.
type ImageInfo struct {
	// Width is the image width in pixels.
	Width int `json:"width"`

	// Height is the image height in pixels.
	Height int `json:"height"`

	// Format is the registered decoder name ("jpeg", "png", "tiff", ...).
	Format string `json:"format"`

	// SizeBytes is the encoded size.
	SizeBytes int64 `json:"size_bytes"`

	// Orientation is the EXIF orientation tag (1-8), or 0 when absent.
	Orientation int `json:"orientation,omitempty"`
}

// ReadSource loads an image from a path or from base64 text.
//
// Exactly one of path and b64 is expected. When both are given the path wins.
// A data URL prefix ("data:image/jpeg;base64,") on b64 is tolerated.
//
// Returns ErrNoImage when both are empty. Header parsing failures are reported
// so the caller can classify them as decode failures.
func ReadSource(path, b64 string) (*Source, error) {
	var data []byte
	switch {
	case path != "":
		d, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open image: %w", err)
		}
		data = d
	case b64 != "":
		d, err := DecodeBase64(b64)
		if err != nil {
			return nil, err
		}
		data = d
	default:
		return nil, ErrNoImage
	}

	info, err := Inspect(data)
	if err != nil {
		return nil, err
	}
	return &Source{Data: data, Info: *info}, nil
}

// DecodeBase64 decodes standard base64 text, stripping an optional data URL prefix.
func DecodeBase64(s string) ([]byte, error) {
	if i := strings.Index(s, ";base64,"); i >= 0 && strings.HasPrefix(s, "data:") {
		s = s[i+len(";base64,"):]
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("invalid base64 image data: %w", err)
	}
	return data, nil
}

// Inspect reads dimensions, format and EXIF orientation without decoding pixels.
func Inspect(data []byte) (*ImageInfo, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image header: %w", err)
	}
	return &ImageInfo{
		Width:       cfg.Width,
		Height:      cfg.Height,
		Format:      format,
		SizeBytes:   int64(len(data)),
		Orientation: ReadOrientation(data),
	}, nil
}

// ReadOrientation returns the EXIF orientation tag, or 0 when the data carries
// no EXIF block or no orientation entry.
func ReadOrientation(data []byte) int {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return 0
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 0
	}
	v, err := tag.Int(0)
	if err != nil || v < 1 || v > 8 {
		return 0
	}
	return v
}
