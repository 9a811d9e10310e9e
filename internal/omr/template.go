package omr

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/ironsheep/omr-mcp/internal/vision"
)

// Template is the canonical layout of one sheet type. It is immutable once
// loaded and safe to share across concurrent scans.
type Template struct {
	// Markers are the fiducial positions, ordered by ascending id.
	Markers []MarkerPosition

	// Student, Quiz and Class are the ID sections. A nil section is absent.
	Student *Section
	Quiz    *Section
	Class   *Section

	// Questions is the answer area in template order.
	Questions []Question

	// Info is the free-text info region, or nil.
	Info *InfoRegion
}

// MarkerPosition is the canonical center of one fiducial.
type MarkerPosition struct {
	ID       int
	Position vision.Point
	Size     int
}

// Section is an ordered set of digit columns.
type Section struct {
	Name    string
	Bounds  image.Rectangle
	Columns []Column
}

// Column is the bubble group of one decimal digit position.
type Column struct {
	Bubbles []Bubble
}

// Question is one answer row. Number is 1-based.
type Question struct {
	Number  int
	Bubbles []Bubble
}

// Bubble is one printed circle in canonical coordinates.
type Bubble struct {
	Center image.Point
	Radius int

	// Value is the digit an ID bubble stands for. HasValue is false for answer bubbles.
	Value    int
	HasValue bool

	// Label is the printed option letter of an answer bubble, if known.
	Label string
}

// InfoRegion is the handwritten info block.
type InfoRegion struct {
	Bounds image.Rectangle
	Fields []InfoField
}

// InfoField is one labeled line inside the info block.
type InfoField struct {
	Text  string
	Label image.Point
}

// MarkerMap returns the canonical marker centers keyed by id.
func (t *Template) MarkerMap() map[int]vision.Point {
	m := make(map[int]vision.Point, len(t.Markers))
	for _, mk := range t.Markers {
		m[mk.ID] = mk.Position
	}
	return m
}

// Sections returns the present ID sections in student, quiz, class order.
func (t *Template) Sections() []*Section {
	var out []*Section
	for _, s := range []*Section{t.Student, t.Quiz, t.Class} {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

// Raw schema, decoded from JSON or YAML before validation.

type templateDoc struct {
	Markers    []markerDoc    `json:"aruco_marker" yaml:"aruco_marker"`
	Student    *sectionDoc    `json:"student_id_section" yaml:"student_id_section"`
	Quiz       *sectionDoc    `json:"quiz_id_section" yaml:"quiz_id_section"`
	Class      *sectionDoc    `json:"class_id_section" yaml:"class_id_section"`
	AnswerArea *answerAreaDoc `json:"answer_area" yaml:"answer_area"`
	Info       *infoDoc       `json:"info_section" yaml:"info_section"`
}

type markerDoc struct {
	ID       *int      `json:"id" yaml:"id"`
	Position []float64 `json:"position" yaml:"position"`
	Size     float64   `json:"size" yaml:"size"`
}

type sectionDoc struct {
	Position []float64  `json:"position" yaml:"position"`
	Columns  []groupDoc `json:"columns" yaml:"columns"`
}

type groupDoc struct {
	Bubbles []bubbleDoc `json:"bubbles" yaml:"bubbles"`
}

type bubbleDoc struct {
	Position []float64 `json:"position" yaml:"position"`
	Radius   float64   `json:"radius" yaml:"radius"`
	Value    *int      `json:"value" yaml:"value"`
	Option   string    `json:"option" yaml:"option"`
}

type answerAreaDoc struct {
	Questions []questionDoc `json:"questions" yaml:"questions"`
}

type questionDoc struct {
	Question int         `json:"question" yaml:"question"`
	Bubbles  []bubbleDoc `json:"bubbles" yaml:"bubbles"`
}

type infoDoc struct {
	Position []float64 `json:"position" yaml:"position"`
	Fields   []struct {
		Text     string    `json:"text" yaml:"text"`
		LabelPos []float64 `json:"label_pos" yaml:"label_pos"`
	} `json:"fields" yaml:"fields"`
}

// ParseTemplateJSON decodes and validates a JSON template against a canonical
// frame of the given size.
func ParseTemplateJSON(data []byte, frame image.Point) (*Template, error) {
	var doc templateDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, newError(MalformedTemplate, "parse template", err, "invalid JSON")
	}
	return doc.build(frame)
}

// ParseTemplateYAML decodes and validates a YAML template.
func ParseTemplateYAML(data []byte, frame image.Point) (*Template, error) {
	var doc templateDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, newError(MalformedTemplate, "parse template", err, "invalid YAML")
	}
	return doc.build(frame)
}

// LoadTemplate reads a template file. ".yaml" and ".yml" files are YAML, all
// others JSON.
func LoadTemplate(path string, frame image.Point) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, newError(InvalidArgument, "load template", err, "cannot read %s", path)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseTemplateYAML(data, frame)
	default:
		return ParseTemplateJSON(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf")), frame)
	}
}

// build validates the raw document eagerly so extraction never meets a
// malformed layout.
func (d *templateDoc) build(frame image.Point) (*Template, error) {
	fail := func(format string, args ...any) (*Template, error) {
		return nil, newError(MalformedTemplate, "validate template", nil, format, args...)
	}
	bounds := image.Rect(0, 0, frame.X, frame.Y)

	t := &Template{}

	if len(d.Markers) < 4 {
		return fail("aruco_marker: need at least 4 markers, got %d", len(d.Markers))
	}
	seen := map[int]bool{}
	for i, m := range d.Markers {
		if m.ID == nil {
			return fail("aruco_marker[%d]: missing id", i)
		}
		if seen[*m.ID] {
			return fail("aruco_marker[%d]: duplicate id %d", i, *m.ID)
		}
		seen[*m.ID] = true
		if len(m.Position) != 2 {
			return fail("aruco_marker[%d]: position needs [x,y]", i)
		}
		p := vision.Point{X: m.Position[0], Y: m.Position[1]}
		if !inFrame(p, frame) {
			return fail("aruco_marker[%d]: position (%g,%g) outside %dx%d frame", i, p.X, p.Y, frame.X, frame.Y)
		}
		t.Markers = append(t.Markers, MarkerPosition{ID: *m.ID, Position: p, Size: int(math.Round(m.Size))})
	}
	sort.Slice(t.Markers, func(i, j int) bool { return t.Markers[i].ID < t.Markers[j].ID })

	for _, s := range []struct {
		name string
		doc  *sectionDoc
		dst  **Section
	}{
		{"student_id_section", d.Student, &t.Student},
		{"quiz_id_section", d.Quiz, &t.Quiz},
		{"class_id_section", d.Class, &t.Class},
	} {
		if s.doc == nil {
			continue
		}
		sec, err := buildSection(s.name, s.doc, bounds)
		if err != nil {
			return nil, err
		}
		*s.dst = sec
	}

	if d.AnswerArea == nil {
		return fail("answer_area: section is required")
	}
	if len(d.AnswerArea.Questions) == 0 {
		return fail("answer_area: no questions")
	}
	numbers := map[int]bool{}
	for i, q := range d.AnswerArea.Questions {
		if q.Question < 1 {
			return fail("answer_area.questions[%d]: question number must be >= 1, got %d", i, q.Question)
		}
		if numbers[q.Question] {
			return fail("answer_area.questions[%d]: duplicate question %d", i, q.Question)
		}
		numbers[q.Question] = true
		if len(q.Bubbles) == 0 {
			return fail("answer_area.questions[%d]: no bubbles", i)
		}
		bubbles, err := buildBubbles(fmt.Sprintf("answer_area.questions[%d]", i), q.Bubbles, bounds, false)
		if err != nil {
			return nil, err
		}
		t.Questions = append(t.Questions, Question{Number: q.Question, Bubbles: bubbles})
	}

	if d.Info != nil {
		r, ok := rectFrom(d.Info.Position)
		if !ok {
			return fail("info_section: position needs [x,y,w,h] with positive size")
		}
		info := &InfoRegion{Bounds: r}
		for _, f := range d.Info.Fields {
			field := InfoField{Text: f.Text}
			if len(f.LabelPos) == 2 {
				field.Label = image.Pt(int(math.Round(f.LabelPos[0])), int(math.Round(f.LabelPos[1])))
			}
			info.Fields = append(info.Fields, field)
		}
		t.Info = info
	}

	return t, nil
}

func buildSection(name string, d *sectionDoc, bounds image.Rectangle) (*Section, error) {
	sec := &Section{Name: strings.TrimSuffix(name, "_id_section")}
	if d.Position != nil {
		r, ok := rectFrom(d.Position)
		if !ok {
			return nil, newError(MalformedTemplate, "validate template", nil, "%s: position needs [x,y,w,h] with positive size", name)
		}
		sec.Bounds = r
	}
	if len(d.Columns) == 0 {
		return nil, newError(MalformedTemplate, "validate template", nil, "%s: no columns", name)
	}
	for i, c := range d.Columns {
		where := fmt.Sprintf("%s.columns[%d]", name, i)
		if len(c.Bubbles) == 0 {
			return nil, newError(MalformedTemplate, "validate template", nil, "%s: no bubbles", where)
		}
		bubbles, err := buildBubbles(where, c.Bubbles, bounds, true)
		if err != nil {
			return nil, err
		}
		sec.Columns = append(sec.Columns, Column{Bubbles: bubbles})
	}
	return sec, nil
}

func buildBubbles(where string, docs []bubbleDoc, bounds image.Rectangle, digits bool) ([]Bubble, error) {
	out := make([]Bubble, 0, len(docs))
	for i, b := range docs {
		if len(b.Position) != 2 {
			return nil, newError(MalformedTemplate, "validate template", nil, "%s.bubbles[%d]: position needs [x,y]", where, i)
		}
		r := int(math.Round(b.Radius))
		if r <= 0 {
			return nil, newError(MalformedTemplate, "validate template", nil, "%s.bubbles[%d]: radius must be positive, got %g", where, i, b.Radius)
		}
		c := image.Pt(int(math.Round(b.Position[0])), int(math.Round(b.Position[1])))
		if !c.In(bounds) {
			return nil, newError(MalformedTemplate, "validate template", nil, "%s.bubbles[%d]: position %v outside frame %v", where, i, c, bounds.Max)
		}
		bubble := Bubble{Center: c, Radius: r, Label: b.Option}
		if b.Value != nil {
			if digits && (*b.Value < 0 || *b.Value > 9) {
				return nil, newError(MalformedTemplate, "validate template", nil, "%s.bubbles[%d]: digit value %d outside 0..9", where, i, *b.Value)
			}
			bubble.Value = *b.Value
			bubble.HasValue = true
		}
		out = append(out, bubble)
	}
	return out, nil
}

func rectFrom(v []float64) (image.Rectangle, bool) {
	if len(v) != 4 || v[2] <= 0 || v[3] <= 0 {
		return image.Rectangle{}, false
	}
	x, y := int(math.Round(v[0])), int(math.Round(v[1]))
	return image.Rect(x, y, x+int(math.Round(v[2])), y+int(math.Round(v[3]))), true
}

func inFrame(p vision.Point, frame image.Point) bool {
	return p.X >= 0 && p.Y >= 0 && p.X < float64(frame.X) && p.Y < float64(frame.Y)
}

// TemplateCache shares parsed templates across scans, keyed by file path.
//
// Templates are immutable, so a cached value is handed out to any number of
// concurrent scans. The cache is safe for concurrent use.
type TemplateCache struct {
	frame image.Point

	mu        sync.RWMutex
	templates map[string]*Template
}

// NewTemplateCache creates an empty cache validating against the given frame.
func NewTemplateCache(frame image.Point) *TemplateCache {
	return &TemplateCache{frame: frame, templates: make(map[string]*Template)}
}

// Load returns the cached template for path, parsing it on first use.
func (c *TemplateCache) Load(path string) (*Template, error) {
	c.mu.RLock()
	if t, ok := c.templates[path]; ok {
		c.mu.RUnlock()
		return t, nil
	}
	c.mu.RUnlock()

	t, err := LoadTemplate(path, c.frame)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.templates[path] = t
	c.mu.Unlock()
	return t, nil
}

// Evict drops a template so the next Load re-reads the file.
func (c *TemplateCache) Evict(path string) {
	c.mu.Lock()
	delete(c.templates, path)
	c.mu.Unlock()
}

// Len returns the number of cached templates.
func (c *TemplateCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.templates)
}
