package omr

import (
	"image"
	"image/color"

	"github.com/ironsheep/omr-mcp/internal/imaging"
	"github.com/ironsheep/omr-mcp/internal/vision"
)

// ReadSection resolves each column of an ID section in order and returns the
// digits. A blank column makes the whole section undetermined: the result is
// then an empty, non-nil slice rather than a partial ID.
//
// For every resolved column a highlight ring is drawn on canvas, which may be nil.
func ReadSection(canvas *image.RGBA, gray *image.Gray, sec *Section, minPixels int, bin vision.Binarizer, pal imaging.Palette) []int {
	digits := make([]int, 0, len(sec.Columns))
	for _, col := range sec.Columns {
		d := DetectGroup(gray, col.Bubbles, minPixels, bin)
		if d.Selected == Blank {
			return []int{}
		}

		b := col.Bubbles[d.Selected]
		digit := d.Selected
		if b.HasValue {
			digit = b.Value
		}
		digits = append(digits, digit)

		if canvas != nil {
			imaging.StrokeCircle(canvas, b.Center.X, b.Center.Y, b.Radius, 2, pal.IDHighlight)
		}
	}
	return digits
}

// AnswerSheet is the extraction result of the answer area.
type AnswerSheet struct {
	// Answers maps the 0-based question index to the selected bubble index or Blank.
	Answers map[int]int

	BlankCount        int
	MultipleMarkCount int

	// MultipleQuestions lists the 1-based numbers of ambiguous questions.
	MultipleQuestions []int
}

// ReadAnswers resolves every question. Each question with a selection gets a
// ring on canvas (which may be nil): the selected color, or the multiple color
// when more than one bubble was filled.
func ReadAnswers(canvas *image.RGBA, gray *image.Gray, questions []Question, minPixels int, bin vision.Binarizer, pal imaging.Palette) AnswerSheet {
	sheet := AnswerSheet{Answers: make(map[int]int, len(questions)), MultipleQuestions: []int{}}
	for _, q := range questions {
		d := DetectGroup(gray, q.Bubbles, minPixels, bin)
		sheet.Answers[q.Number-1] = d.Selected

		if d.Selected == Blank {
			sheet.BlankCount++
			continue
		}
		if d.IsMultiple {
			sheet.MultipleMarkCount++
			sheet.MultipleQuestions = append(sheet.MultipleQuestions, q.Number)
		}

		if canvas != nil {
			c := pal.Selected
			if d.IsMultiple {
				c = pal.Multiple
			}
			b := q.Bubbles[d.Selected]
			imaging.StrokeCircle(canvas, b.Center.X, b.Center.Y, b.Radius, 3, c)
		}
	}
	return sheet
}

// Annotate draws grading marks for each question present in correct.
//
// A blank student answer gets the show-correct mark on the correct bubble. A
// matching answer gets the correct mark. A wrong answer gets the wrong mark on
// the student's bubble plus the show-correct mark on the expected one. Keys
// are 0-based question indices. Indices outside a question's bubble list are
// ignored.
func Annotate(canvas *image.RGBA, questions []Question, student, correct map[int]int, pal imaging.Palette) {
	ring := func(q Question, idx int, c color.RGBA) {
		if idx < 0 || idx >= len(q.Bubbles) {
			return
		}
		b := q.Bubbles[idx]
		imaging.StrokeCircle(canvas, b.Center.X, b.Center.Y, b.Radius, 3, c)
	}

	for _, q := range questions {
		key := q.Number - 1
		want, ok := correct[key]
		if !ok {
			continue
		}
		got, answered := student[key]
		if !answered {
			got = Blank
		}

		switch {
		case got == Blank:
			ring(q, want, pal.ShowCorrect)
		case got == want:
			ring(q, got, pal.Correct)
		default:
			ring(q, got, pal.Wrong)
			ring(q, want, pal.ShowCorrect)
		}
	}
}
