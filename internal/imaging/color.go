package imaging

import (
	"fmt"
	"image/color"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/ironsheep/omr-mcp/internal/config"
)

// Palette holds the annotation colors.
type Palette struct {
	// Selected marks a detected answer during extraction.
	Selected color.RGBA

	// Multiple marks a question with more than one filled bubble.
	Multiple color.RGBA

	// Correct marks a student answer that matches the key.
	Correct color.RGBA

	// Wrong marks a student answer that does not match the key.
	Wrong color.RGBA

	// ShowCorrect marks the expected bubble when the student missed it.
	ShowCorrect color.RGBA

	// IDHighlight marks the resolved bubble of each ID digit column.
	IDHighlight color.RGBA
}

// NewPalette resolves the configured hex strings.
func NewPalette(p config.PaletteConfig) (Palette, error) {
	var out Palette
	for _, e := range []struct {
		name string
		hex  string
		dst  *color.RGBA
	}{
		{"selected", p.Selected, &out.Selected},
		{"multiple", p.Multiple, &out.Multiple},
		{"correct", p.Correct, &out.Correct},
		{"wrong", p.Wrong, &out.Wrong},
		{"show_correct", p.ShowCorrect, &out.ShowCorrect},
		{"id_highlight", p.IDHighlight, &out.IDHighlight},
	} {
		c, err := ParseHexColor(e.hex)
		if err != nil {
			return Palette{}, fmt.Errorf("palette %s: %w", e.name, err)
		}
		*e.dst = c
	}
	return out, nil
}

// DefaultPalette returns the palette of the default configuration.
func DefaultPalette() Palette {
	p, _ := NewPalette(config.Default().Palette)
	return p
}

// ParseHexColor converts "#RRGGBB" (or "#RGB") to an opaque RGBA color.
func ParseHexColor(hex string) (color.RGBA, error) {
	c, err := colorful.Hex(hex)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid hex color %q: %w", hex, err)
	}
	r, g, b := c.RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 255}, nil
}

// Tint blends over onto base by t (0 = base, 1 = over) in CIE L*a*b* space so
// that translucent highlights keep a perceptually even weight across hues.
func Tint(base, over color.RGBA, t float64) color.RGBA {
	b, ok1 := colorful.MakeColor(base)
	o, ok2 := colorful.MakeColor(over)
	if !ok1 || !ok2 {
		return over
	}
	r, g, bl := b.BlendLab(o, t).Clamped().RGB255()
	return color.RGBA{R: r, G: g, B: bl, A: 255}
}

// Hex formats c as "#RRGGBB".
func Hex(c color.RGBA) string {
	cc, _ := colorful.MakeColor(c)
	return cc.Hex()
}
