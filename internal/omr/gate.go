package omr

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Ready reports whether every corner id is among the detected ids.
func Ready(detected, corners []int) bool {
	return len(MissingIDs(detected, corners)) == 0
}

// MissingIDs returns the corner ids absent from detected, ascending.
func MissingIDs(detected, corners []int) []int {
	have := make(map[int]bool, len(detected))
	for _, id := range detected {
		have[id] = true
	}
	var missing []int
	for _, id := range corners {
		if !have[id] {
			missing = append(missing, id)
		}
	}
	sort.Ints(missing)
	return missing
}

// Orientation is the capture rotation reported by the device.
type Orientation int

const (
	Normal Orientation = iota
	Rotate90
	Rotate180
	Rotate270
)

func (o Orientation) String() string {
	switch o {
	case Rotate90:
		return "rotate90"
	case Rotate180:
		return "rotate180"
	case Rotate270:
		return "rotate270"
	default:
		return "normal"
	}
}

// ParseOrientation accepts "normal", "rotate90", "90", "rotate180", "180",
// "rotate270" and "270" (case-insensitive). Empty means normal.
func ParseOrientation(s string) (Orientation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "normal", "0", "rotate0":
		return Normal, nil
	case "rotate90", "90":
		return Rotate90, nil
	case "rotate180", "180":
		return Rotate180, nil
	case "rotate270", "270":
		return Rotate270, nil
	}
	return Normal, fmt.Errorf("unknown orientation %q", s)
}

// OrientationFromEXIF maps an EXIF orientation tag to the capture rotation.
// Mirrored variants and unknown values map to Normal.
func OrientationFromEXIF(tag int) Orientation {
	switch tag {
	case 6:
		return Rotate90
	case 3:
		return Rotate180
	case 8:
		return Rotate270
	default:
		return Normal
	}
}

// NormPoint is a point normalized to [0,1] by image width and height.
type NormPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Normalize maps a normalized point captured under o into the upright frame.
func (o Orientation) Normalize(p NormPoint) NormPoint {
	switch o {
	case Rotate90:
		return NormPoint{X: 1 - p.Y, Y: p.X}
	case Rotate180:
		return NormPoint{X: 1 - p.X, Y: 1 - p.Y}
	case Rotate270:
		return NormPoint{X: p.Y, Y: 1 - p.X}
	default:
		return p
	}
}

// JoinDigits renders a digit list as a string ("" for an empty list).
func JoinDigits(digits []int) string {
	var b strings.Builder
	for _, d := range digits {
		b.WriteString(strconv.Itoa(d))
	}
	return b.String()
}
