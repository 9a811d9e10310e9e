package omr

import (
	"image"
	"image/color"
	"math"
	"strconv"

	"github.com/ironsheep/omr-mcp/internal/imaging"
)

const defaultMarkerSize = 40

var (
	overlayInk   = color.RGBA{A: 255}
	overlayPaper = color.RGBA{R: 255, G: 255, B: 255, A: 255}
)

// Overlay draws the template layout over a rectified sheet so misalignment
// between the printed sheet and its template is visible.
//
// Markers are outlined squares labeled with their id. ID-section bubbles use
// the id highlight color, answer bubbles the selected color with the question
// number to their left. The info region is shaded with the show-correct color.
func Overlay(canvas *image.RGBA, t *Template, pal imaging.Palette) {
	if t.Info != nil {
		imaging.ShadeRect(canvas, t.Info.Bounds, pal.ShowCorrect, 0.25)
		imaging.StrokeRect(canvas, t.Info.Bounds, 2, pal.ShowCorrect)
		for _, f := range t.Info.Fields {
			if f.Text != "" {
				imaging.DrawLabel(canvas, f.Label.X, f.Label.Y, f.Text, overlayInk, overlayPaper)
			}
		}
	}

	for _, m := range t.Markers {
		size := m.Size
		if size <= 0 {
			size = defaultMarkerSize
		}
		cx, cy := int(math.Round(m.Position.X)), int(math.Round(m.Position.Y))
		r := image.Rect(cx-size/2, cy-size/2, cx+size/2, cy+size/2)
		imaging.StrokeRect(canvas, r, 2, pal.Multiple)
		imaging.DrawLabel(canvas, r.Max.X+4, r.Min.Y, strconv.Itoa(m.ID), overlayPaper, pal.Multiple)
	}

	for _, sec := range t.Sections() {
		if !sec.Bounds.Empty() {
			imaging.StrokeRect(canvas, sec.Bounds, 1, pal.IDHighlight)
		}
		for _, col := range sec.Columns {
			for _, b := range col.Bubbles {
				imaging.StrokeCircle(canvas, b.Center.X, b.Center.Y, b.Radius, 2, pal.IDHighlight)
			}
		}
	}

	for _, q := range t.Questions {
		for _, b := range q.Bubbles {
			imaging.StrokeCircle(canvas, b.Center.X, b.Center.Y, b.Radius, 2, pal.Selected)
		}
		first := q.Bubbles[0]
		label := strconv.Itoa(q.Number)
		imaging.DrawLabel(canvas, first.Center.X-first.Radius-8*len(label)-8, first.Center.Y-6, label, overlayInk, overlayPaper)
	}
}
