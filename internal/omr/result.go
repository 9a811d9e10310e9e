package omr

import (
	"sort"

	"github.com/ironsheep/omr-mcp/internal/imaging"
)

// MarkerPoint is a detected marker center normalized to [0,1] in the upright frame.
type MarkerPoint struct {
	ID int     `json:"id"`
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
}

// DetectResult is the outcome of a detect-only pass.
type DetectResult struct {
	Ready          bool          `json:"ready"`
	Markers        []MarkerPoint `json:"markers"`
	DetectedIDs    []int         `json:"detected_ids"`
	MissingCorners []int         `json:"missing_corners"`
	Orientation    string        `json:"orientation"`
	Width          int           `json:"width"`
	Height         int           `json:"height"`
}

// InfoWord is one recognized word of the info region.
type InfoWord struct {
	Text string `json:"text"`

	// Confidence is the recognition confidence (0.0 to 1.0).
	Confidence float64 `json:"confidence"`

	// Bounds is [x, y, width, height] in canonical frame pixels.
	Bounds [4]int `json:"bounds"`
}

// Metadata describes how a scan was produced.
type Metadata struct {
	ProcessingTimeMs    int64   `json:"processing_time_ms"`
	DetectedMarkers     []int   `json:"detected_markers"`
	Correspondences     int     `json:"correspondences"`
	ReprojectionErrorPx float64 `json:"reprojection_error_px"`
	Backend             string  `json:"backend"`
}

// Images are the encoded output images of a scan. An image that could not be
// encoded is nil and explained in the result warnings.
type Images struct {
	Rectified   *imaging.EncodedImage `json:"rectified,omitempty"`
	Annotated   *imaging.EncodedImage `json:"annotated,omitempty"`
	InfoSection *imaging.EncodedImage `json:"info_section,omitempty"`
}

// ExtractionResult is the outcome of a full scan.
type ExtractionResult struct {
	StudentIDDigits []int `json:"student_id_digits"`
	QuizIDDigits    []int `json:"quiz_id_digits"`
	ClassIDDigits   []int `json:"class_id_digits"`

	StudentID string `json:"student_id"`
	QuizID    string `json:"quiz_id"`
	ClassID   string `json:"class_id"`

	// Answers is keyed by 0-based question index; Blank marks an unanswered question.
	Answers               map[int]int `json:"answers"`
	BlankCount            int         `json:"blank_count"`
	MultipleMarkCount     int         `json:"multiple_mark_count"`
	TotalQuestions        int         `json:"total_questions"`
	MultipleMarkQuestions []int       `json:"multiple_mark_questions"`

	InfoText  string     `json:"info_text,omitempty"`
	InfoWords []InfoWord `json:"info_words,omitempty"`

	Metadata Metadata `json:"metadata"`
	Images   Images   `json:"images"`
	Warnings []string `json:"warnings,omitempty"`
}

// TemplateSummary describes a validated template.
type TemplateSummary struct {
	MarkerIDs []int          `json:"marker_ids"`
	Sections  map[string]int `json:"sections"`
	Questions int            `json:"questions"`
	Options   map[int]int    `json:"options_per_question"`
	HasInfo   bool           `json:"has_info_section"`
}

// Summary reports the marker ids, the column count of each ID section, and
// the answer area shape.
func (t *Template) Summary() TemplateSummary {
	s := TemplateSummary{
		Sections:  make(map[string]int),
		Questions: len(t.Questions),
		Options:   make(map[int]int, len(t.Questions)),
		HasInfo:   t.Info != nil,
	}
	for _, m := range t.Markers {
		s.MarkerIDs = append(s.MarkerIDs, m.ID)
	}
	for _, sec := range t.Sections() {
		s.Sections[sec.Name] = len(sec.Columns)
	}
	for _, q := range t.Questions {
		s.Options[q.Number] = len(q.Bubbles)
	}
	return s
}

func uniqueSortedIDs(markers map[int]struct{}) []int {
	ids := make([]int, 0, len(markers))
	for id := range markers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
