// Package config holds the process-wide scanner configuration.
//
// A Config is resolved once at startup (defaults, optionally overlaid by a YAML
// file) and then passed by value into the pipeline. Nothing in the module reads
// configuration from package globals.
package config

import (
	"fmt"
	"os"

	"github.com/lucasb-eyer/go-colorful"
	"gopkg.in/yaml.v3"

	"github.com/ironsheep/omr-mcp/internal/vision"
)

// Config is the top-level scanner configuration.
type Config struct {
	MarkerDictionary string           `yaml:"marker_dictionary"`
	CornerIDs        []int            `yaml:"corner_ids"`
	Canonical        CanonicalConfig  `yaml:"canonical"`
	Thresholds       ThresholdConfig  `yaml:"thresholds"`
	Homography       HomographyConfig `yaml:"homography"`
	Preprocess       PreprocessConfig `yaml:"preprocess"`
	Encoding         EncodingConfig   `yaml:"encoding"`
	InfoPadding      int              `yaml:"info_padding"`
	OCR              OCRConfig        `yaml:"ocr"`
	Palette          PaletteConfig    `yaml:"palette"`
}

// CanonicalConfig is the size of the rectified output frame.
type CanonicalConfig struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// ThresholdConfig holds the minimum ink pixel counts per bubble context.
type ThresholdConfig struct {
	Student int `yaml:"student"`
	Quiz    int `yaml:"quiz"`
	Class   int `yaml:"class"`
	Answer  int `yaml:"answer"`
}

// HomographyConfig tunes the robust fit.
type HomographyConfig struct {
	RansacThreshold float64 `yaml:"ransac_threshold"`
	MaxIterations   int     `yaml:"max_iterations"`
	Confidence      float64 `yaml:"confidence"`
}

// PreprocessConfig tunes denoise and contrast enhancement before marker detection.
type PreprocessConfig struct {
	BlurKernel int     `yaml:"blur_kernel"`
	ClaheClip  float64 `yaml:"clahe_clip"`
	ClaheTile  int     `yaml:"clahe_tile"`
}

// EncodingConfig controls output image encoding.
type EncodingConfig struct {
	Quality      int     `yaml:"quality"`
	LargeQuality int     `yaml:"large_quality"`
	LargeSide    int     `yaml:"large_side"`
	MaxBytes     int     `yaml:"max_bytes"` // 0 = unlimited
	RetryScale   float64 `yaml:"retry_scale"`
	MinScale     float64 `yaml:"min_scale"`
}

// OCRConfig controls info-region text recognition.
type OCRConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Language string `yaml:"language"`
}

// PaletteConfig holds annotation colors as "#RRGGBB" strings.
type PaletteConfig struct {
	Selected    string `yaml:"selected"`
	Multiple    string `yaml:"multiple"`
	Correct     string `yaml:"correct"`
	Wrong       string `yaml:"wrong"`
	ShowCorrect string `yaml:"show_correct"`
	IDHighlight string `yaml:"id_highlight"`
}

// Default returns the built-in configuration.
func Default() Config {
	var c Config
	c.applyDefaults()
	return c
}

// Load reads a YAML configuration file, fills unset fields with defaults and
// validates the result. An empty path yields Default().
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration bytes, applies defaults and validates.
func Parse(data []byte) (Config, error) {
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) applyDefaults() {
	if c.MarkerDictionary == "" {
		c.MarkerDictionary = "DICT_4X4_50"
	}
	if len(c.CornerIDs) == 0 {
		c.CornerIDs = []int{1, 5, 9, 10}
	}
	if c.Canonical.Width <= 0 {
		c.Canonical.Width = 2481
	}
	if c.Canonical.Height <= 0 {
		c.Canonical.Height = 3508
	}
	if c.Thresholds.Student <= 0 {
		c.Thresholds.Student = 700
	}
	if c.Thresholds.Quiz <= 0 {
		c.Thresholds.Quiz = 600
	}
	if c.Thresholds.Class <= 0 {
		c.Thresholds.Class = 600
	}
	if c.Thresholds.Answer <= 0 {
		c.Thresholds.Answer = 1200
	}
	if c.Homography.RansacThreshold <= 0 {
		c.Homography.RansacThreshold = 5.0
	}
	if c.Homography.MaxIterations <= 0 {
		c.Homography.MaxIterations = 2000
	}
	if c.Homography.Confidence <= 0 {
		c.Homography.Confidence = 0.995
	}
	if c.Preprocess.BlurKernel <= 0 {
		c.Preprocess.BlurKernel = 5
	}
	if c.Preprocess.ClaheClip <= 0 {
		c.Preprocess.ClaheClip = 2.0
	}
	if c.Preprocess.ClaheTile <= 0 {
		c.Preprocess.ClaheTile = 8
	}
	if c.Encoding.Quality <= 0 {
		c.Encoding.Quality = 85
	}
	if c.Encoding.LargeQuality <= 0 {
		c.Encoding.LargeQuality = 70
	}
	if c.Encoding.LargeSide <= 0 {
		c.Encoding.LargeSide = 2000
	}
	if c.Encoding.RetryScale <= 0 {
		c.Encoding.RetryScale = 0.5
	}
	if c.Encoding.MinScale <= 0 {
		c.Encoding.MinScale = 0.125
	}
	if c.InfoPadding <= 0 {
		c.InfoPadding = 10
	}
	if c.OCR.Language == "" {
		c.OCR.Language = "eng"
	}
	if c.Palette.Selected == "" {
		c.Palette.Selected = "#00FF00"
	}
	if c.Palette.Multiple == "" {
		c.Palette.Multiple = "#FF0000"
	}
	if c.Palette.Correct == "" {
		c.Palette.Correct = "#00C800"
	}
	if c.Palette.Wrong == "" {
		c.Palette.Wrong = "#FF0000"
	}
	if c.Palette.ShowCorrect == "" {
		c.Palette.ShowCorrect = "#FFD700"
	}
	if c.Palette.IDHighlight == "" {
		c.Palette.IDHighlight = "#00FF00"
	}
}

// Validate reports the first inconsistency in the configuration.
func (c Config) Validate() error {
	if _, err := vision.LookupDictionary(c.MarkerDictionary); err != nil {
		return fmt.Errorf("marker_dictionary: %w", err)
	}
	if len(c.CornerIDs) != 4 {
		return fmt.Errorf("corner_ids: need exactly 4 ids, got %d", len(c.CornerIDs))
	}
	seen := make(map[int]bool, 4)
	for _, id := range c.CornerIDs {
		if id < 0 {
			return fmt.Errorf("corner_ids: negative id %d", id)
		}
		if seen[id] {
			return fmt.Errorf("corner_ids: duplicate id %d", id)
		}
		seen[id] = true
	}
	if c.Canonical.Width <= 0 || c.Canonical.Height <= 0 {
		return fmt.Errorf("canonical: size must be positive, got %dx%d", c.Canonical.Width, c.Canonical.Height)
	}
	if c.Preprocess.BlurKernel%2 == 0 {
		return fmt.Errorf("preprocess.blur_kernel: must be odd, got %d", c.Preprocess.BlurKernel)
	}
	if c.Encoding.Quality > 100 || c.Encoding.LargeQuality > 100 {
		return fmt.Errorf("encoding: jpeg quality must be within 1..100")
	}
	if c.Encoding.RetryScale >= 1 {
		return fmt.Errorf("encoding.retry_scale: must be below 1, got %g", c.Encoding.RetryScale)
	}
	if c.Encoding.MaxBytes < 0 {
		return fmt.Errorf("encoding.max_bytes: must not be negative")
	}
	if c.Homography.Confidence >= 1 {
		return fmt.Errorf("homography.confidence: must be below 1, got %g", c.Homography.Confidence)
	}
	for name, hex := range c.Palette.entries() {
		if _, err := colorful.Hex(hex); err != nil {
			return fmt.Errorf("palette.%s: %w", name, err)
		}
	}
	return nil
}

func (p PaletteConfig) entries() map[string]string {
	return map[string]string{
		"selected":     p.Selected,
		"multiple":     p.Multiple,
		"correct":      p.Correct,
		"wrong":        p.Wrong,
		"show_correct": p.ShowCorrect,
		"id_highlight": p.IDHighlight,
	}
}

// VisionParams projects the settings consumed by the primitives backends.
func (c Config) VisionParams() vision.Params {
	return vision.Params{
		Dictionary:      c.MarkerDictionary,
		BlurKernel:      c.Preprocess.BlurKernel,
		ClaheClip:       c.Preprocess.ClaheClip,
		ClaheTile:       c.Preprocess.ClaheTile,
		RansacThreshold: c.Homography.RansacThreshold,
		MaxIterations:   c.Homography.MaxIterations,
		Confidence:      c.Homography.Confidence,
	}
}

// JPEGQuality picks the encode quality for an image of the given size.
func (c Config) JPEGQuality(width, height int) int {
	if width > c.Encoding.LargeSide || height > c.Encoding.LargeSide {
		return c.Encoding.LargeQuality
	}
	return c.Encoding.Quality
}
