package omr

import (
	"image"

	"github.com/ironsheep/omr-mcp/internal/vision"
)

// Blank is the selection of a group in which no bubble crossed the threshold.
const Blank = -1

// Region is a binarized sub-image of the canonical frame.
type Region struct {
	// Binary holds 255 for ink and 0 for paper, with a zero origin.
	Binary *image.Gray

	// Origin is the canonical position of Binary's (0,0).
	Origin image.Point
}

// GroupBounds returns the box around the bubble centers padded by the largest
// radius in the group and clamped to frame.
func GroupBounds(bubbles []Bubble, frame image.Rectangle) image.Rectangle {
	if len(bubbles) == 0 {
		return image.Rectangle{}
	}
	minX, minY := bubbles[0].Center.X, bubbles[0].Center.Y
	maxX, maxY := minX, minY
	maxR := 0
	for _, b := range bubbles {
		minX, maxX = min(minX, b.Center.X), max(maxX, b.Center.X)
		minY, maxY = min(minY, b.Center.Y), max(maxY, b.Center.Y)
		maxR = max(maxR, b.Radius)
	}
	// Max is exclusive, so the far edge gets one extra pixel.
	r := image.Rect(minX-maxR, minY-maxR, maxX+maxR+1, maxY+maxR+1)
	return r.Intersect(frame)
}

// ThresholdRegion binarizes the part of gray that covers the group.
// An empty box yields a Region with a nil Binary.
func ThresholdRegion(gray *image.Gray, bubbles []Bubble, bin vision.Binarizer) Region {
	box := GroupBounds(bubbles, gray.Bounds())
	if box.Empty() {
		return Region{Origin: box.Min}
	}
	sub := gray.SubImage(box).(*image.Gray)
	return Region{Binary: bin.BinarizeInv(sub), Origin: box.Min}
}

// CountInk counts ink pixels inside the circle of b, which is given in
// canonical coordinates.
func (r Region) CountInk(b Bubble) int {
	if r.Binary == nil {
		return 0
	}
	cx, cy := b.Center.X-r.Origin.X, b.Center.Y-r.Origin.Y
	rr := b.Radius * b.Radius
	bounds := r.Binary.Bounds()

	count := 0
	for y := max(cy-b.Radius, bounds.Min.Y); y <= min(cy+b.Radius, bounds.Max.Y-1); y++ {
		dy := y - cy
		row := r.Binary.Pix[(y-bounds.Min.Y)*r.Binary.Stride:]
		for x := max(cx-b.Radius, bounds.Min.X); x <= min(cx+b.Radius, bounds.Max.X-1); x++ {
			dx := x - cx
			if dx*dx+dy*dy <= rr && row[x-bounds.Min.X] != 0 {
				count++
			}
		}
	}
	return count
}

// Decision is the resolved state of one bubble group.
type Decision struct {
	// Selected is the chosen bubble index, or Blank.
	Selected int

	// IsMultiple is set when more than one bubble crossed the threshold.
	IsMultiple bool

	// Counts holds the ink count of every bubble, in group order.
	Counts []int
}

// Resolve applies the marking policy to per-bubble ink counts. A bubble is
// marked when its count reaches minPixels. With several marks the highest
// count wins and equal counts go to the lowest index.
func Resolve(counts []int, minPixels int) Decision {
	d := Decision{Selected: Blank, Counts: counts}
	marked := 0
	for i, c := range counts {
		if c < minPixels {
			continue
		}
		marked++
		if d.Selected == Blank || c > counts[d.Selected] {
			d.Selected = i
		}
	}
	d.IsMultiple = marked > 1
	return d
}

// DetectGroup thresholds the region around bubbles and resolves the group.
func DetectGroup(gray *image.Gray, bubbles []Bubble, minPixels int, bin vision.Binarizer) Decision {
	region := ThresholdRegion(gray, bubbles, bin)
	counts := make([]int, len(bubbles))
	for i, b := range bubbles {
		counts[i] = region.CountInk(b)
	}
	return Resolve(counts, minPixels)
}
