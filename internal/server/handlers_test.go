package server

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/ironsheep/omr-mcp/internal/config"
	"github.com/ironsheep/omr-mcp/internal/omr"
	"github.com/ironsheep/omr-mcp/internal/vision"
)

const (
	sheetW = 600
	sheetH = 800
)

// Template marker positions and the four answer bubbles of question 1.
var (
	sheetMarkers = map[int][2]float64{
		1: {40, 40}, 5: {560, 40}, 9: {40, 760}, 10: {560, 760},
		2: {300, 40}, 3: {40, 400},
	}
	answerX = []float64{150, 250, 350, 450}
)

const (
	answerY      = 500
	answerRadius = 25
)

// stubDetector reports markers at the template positions, minus skipped ids.
type stubDetector struct {
	skip map[int]bool
}

func (d stubDetector) DetectMarkers(*image.Gray) ([]vision.Marker, error) {
	var out []vision.Marker
	for id, p := range sheetMarkers {
		if d.skip[id] {
			continue
		}
		out = append(out, vision.NewMarker(id, [4]vision.Point{
			{X: p[0] - 10, Y: p[1] - 10}, {X: p[0] + 10, Y: p[1] - 10},
			{X: p[0] + 10, Y: p[1] + 10}, {X: p[0] - 10, Y: p[1] + 10},
		}))
	}
	return out, nil
}

func testServerConfig() config.Config {
	cfg := config.Default()
	cfg.Canonical = config.CanonicalConfig{Width: sheetW, Height: sheetH}
	return cfg
}

// newTestServer builds a server over the native backend with a stub detector.
func newTestServer(t *testing.T, skip ...int) *Server {
	t.Helper()
	omit := map[int]bool{}
	for _, id := range skip {
		omit[id] = true
	}
	cfg := testServerConfig()
	prims := vision.NewNative(cfg.VisionParams(), vision.WithMarkerDetector(stubDetector{skip: omit}))
	sc, err := omr.NewScanner(cfg, prims)
	if err != nil {
		t.Fatalf("NewScanner: %v", err)
	}
	return New(cfg, sc, WithVersion("test"))
}

func templateJSON() json.RawMessage {
	var markers []interface{}
	for id, p := range sheetMarkers {
		markers = append(markers, map[string]interface{}{"id": id, "position": []float64{p[0], p[1]}, "size": 35})
	}
	var bubbles []interface{}
	for i, x := range answerX {
		bubbles = append(bubbles, map[string]interface{}{
			"position": []float64{x, answerY},
			"radius":   answerRadius,
			"option":   string(rune('A' + i)),
		})
	}
	doc := map[string]interface{}{
		"aruco_marker": markers,
		"answer_area": map[string]interface{}{
			"questions": []interface{}{
				map[string]interface{}{"question": 1, "bubbles": bubbles},
			},
		},
	}
	data, _ := json.Marshal(doc)
	return data
}

// sheetPNG renders a blank canonical sheet with one answer bubble filled,
// or none when answer is negative.
func sheetPNG(t *testing.T, answer int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, sheetW, sheetH))
	for y := 0; y < sheetH; y++ {
		for x := 0; x < sheetW; x++ {
			dark := false
			if answer >= 0 {
				dx, dy := float64(x)-answerX[answer], float64(y)-answerY
				dark = dx*dx+dy*dy <= answerRadius*answerRadius
			}
			if dark {
				img.SetRGBA(x, y, color.RGBA{0, 0, 0, 255})
			} else {
				img.SetRGBA(x, y, color.RGBA{255, 255, 255, 255})
			}
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode sheet: %v", err)
	}
	return buf.Bytes()
}

// callTool runs a tools/call request and returns the response.
func callTool(t *testing.T, s *Server, name string, args map[string]interface{}) *MCPResponse {
	t.Helper()
	params := map[string]interface{}{"name": name, "arguments": args}
	paramsJSON, _ := json.Marshal(params)

	resp := s.handleRequest(&MCPRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "tools/call",
		Params:  paramsJSON,
	})
	if resp == nil {
		t.Fatal("handleRequest returned nil")
	}
	return resp
}

// toolText extracts the text content of a tool result and whether it is an error.
func toolText(t *testing.T, resp *MCPResponse) (string, bool) {
	t.Helper()
	if resp.Error != nil {
		t.Fatalf("Unexpected JSON-RPC error: %v", resp.Error)
	}
	result, ok := resp.Result.(map[string]interface{})
	if !ok {
		t.Fatal("Result should be a map")
	}
	content, ok := result["content"].([]map[string]interface{})
	if !ok || len(content) != 1 {
		t.Fatalf("content: got %#v", result["content"])
	}
	text, _ := content[0]["text"].(string)
	isError, _ := result["isError"].(bool)
	return text, isError
}

// decodeSuccess asserts a successful tool result and decodes it into v.
func decodeSuccess(t *testing.T, resp *MCPResponse, v interface{}) {
	t.Helper()
	text, isError := toolText(t, resp)
	if isError {
		t.Fatalf("tool failed: %s", text)
	}
	if err := json.Unmarshal([]byte(text), v); err != nil {
		t.Fatalf("Failed to unmarshal result: %v", err)
	}
}

type failure struct {
	Success bool `json:"success"`
	Error   struct {
		Kind        string `json:"kind"`
		Message     string `json:"message"`
		MissingIDs  []int  `json:"missing_ids"`
		DetectedIDs []int  `json:"detected_ids"`
	} `json:"error"`
}

// decodeFailure asserts a failed tool result and returns its error payload.
func decodeFailure(t *testing.T, resp *MCPResponse) failure {
	t.Helper()
	text, isError := toolText(t, resp)
	if !isError {
		t.Fatalf("expected isError, got: %s", text)
	}
	var f failure
	if err := json.Unmarshal([]byte(text), &f); err != nil {
		t.Fatalf("Failed to unmarshal failure: %v", err)
	}
	if f.Success {
		t.Error("success should be false")
	}
	return f
}

func b64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

func TestHandleToolsCall_ScanSheet(t *testing.T) {
	s := newTestServer(t)

	resp := callTool(t, s, "omr_scan_sheet", map[string]interface{}{
		"image_base64": b64(sheetPNG(t, 2)),
		"template":     templateJSON(),
	})

	var got struct {
		Success        bool        `json:"success"`
		Answers        map[int]int `json:"answers"`
		BlankCount     int         `json:"blank_count"`
		TotalQuestions int         `json:"total_questions"`
		StudentID      string      `json:"student_id"`
		StudentDigits  []int       `json:"student_id_digits"`
		Metadata       struct {
			Correspondences int    `json:"correspondences"`
			Backend         string `json:"backend"`
		} `json:"metadata"`
		Images struct {
			Rectified *struct {
				Width  int    `json:"width"`
				Height int    `json:"height"`
				Data   string `json:"image_base64"`
			} `json:"rectified"`
		} `json:"images"`
	}
	decodeSuccess(t, resp, &got)

	if !got.Success {
		t.Error("success should be true")
	}
	if !reflect.DeepEqual(got.Answers, map[int]int{0: 2}) {
		t.Errorf("answers: got %v, want {0:2}", got.Answers)
	}
	if got.BlankCount != 0 || got.TotalQuestions != 1 {
		t.Errorf("blank=%d total=%d, want 0/1", got.BlankCount, got.TotalQuestions)
	}
	if got.StudentID != "" || got.StudentDigits == nil || len(got.StudentDigits) != 0 {
		t.Errorf("student id: got %q %v, want empty", got.StudentID, got.StudentDigits)
	}
	if got.Metadata.Correspondences != len(sheetMarkers) || got.Metadata.Backend != "native" {
		t.Errorf("metadata: got %+v", got.Metadata)
	}
	if got.Images.Rectified == nil || got.Images.Rectified.Width != sheetW || got.Images.Rectified.Data == "" {
		t.Errorf("rectified image: got %+v", got.Images.Rectified)
	}
}

func TestHandleToolsCall_ScanSheet_Files(t *testing.T) {
	s := newTestServer(t)
	dir := t.TempDir()

	imgPath := filepath.Join(dir, "sheet.png")
	if err := os.WriteFile(imgPath, sheetPNG(t, -1), 0o644); err != nil {
		t.Fatal(err)
	}
	tmplPath := filepath.Join(dir, "template.json")
	if err := os.WriteFile(tmplPath, templateJSON(), 0o644); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		resp := callTool(t, s, "omr_scan_sheet", map[string]interface{}{
			"path":          imgPath,
			"template_path": tmplPath,
		})
		var got struct {
			Answers    map[int]int `json:"answers"`
			BlankCount int         `json:"blank_count"`
		}
		decodeSuccess(t, resp, &got)
		if got.Answers[0] != omr.Blank || got.BlankCount != 1 {
			t.Errorf("blank sheet: answers=%v blank=%d", got.Answers, got.BlankCount)
		}
	}

	if s.templates.Len() != 1 {
		t.Errorf("template cache: got %d entries, want 1", s.templates.Len())
	}
}

func TestHandleToolsCall_ScanSheet_MissingCorners(t *testing.T) {
	s := newTestServer(t, 9)

	resp := callTool(t, s, "omr_scan_sheet", map[string]interface{}{
		"image_base64": b64(sheetPNG(t, 0)),
		"template":     templateJSON(),
	})
	f := decodeFailure(t, resp)

	if f.Error.Kind != "MISSING_CORNER_MARKERS" {
		t.Errorf("kind: got %s", f.Error.Kind)
	}
	if !reflect.DeepEqual(f.Error.MissingIDs, []int{9}) {
		t.Errorf("missing_ids: got %v, want [9]", f.Error.MissingIDs)
	}
	if !reflect.DeepEqual(f.Error.DetectedIDs, []int{1, 2, 3, 5, 10}) {
		t.Errorf("detected_ids: got %v", f.Error.DetectedIDs)
	}
}

func TestHandleToolsCall_Failures(t *testing.T) {
	s := newTestServer(t)
	sheet := b64(sheetPNG(t, 0))

	tests := []struct {
		name     string
		tool     string
		args     map[string]interface{}
		wantKind string
	}{
		{
			"scan without image",
			"omr_scan_sheet",
			map[string]interface{}{"template": templateJSON()},
			"INVALID_ARGUMENT",
		},
		{
			"scan without template",
			"omr_scan_sheet",
			map[string]interface{}{"image_base64": sheet},
			"INVALID_ARGUMENT",
		},
		{
			"scan with missing file",
			"omr_scan_sheet",
			map[string]interface{}{"path": "/nonexistent/sheet.png", "template": templateJSON()},
			"INVALID_ARGUMENT",
		},
		{
			"scan with bad base64",
			"omr_scan_sheet",
			map[string]interface{}{"image_base64": "not base64!!", "template": templateJSON()},
			"DECODE_FAILURE",
		},
		{
			"scan with non-image bytes",
			"omr_scan_sheet",
			map[string]interface{}{"image_base64": b64([]byte("plain text")), "template": templateJSON()},
			"DECODE_FAILURE",
		},
		{
			"scan with malformed template",
			"omr_scan_sheet",
			map[string]interface{}{"image_base64": sheet, "template": map[string]interface{}{"aruco_marker": []interface{}{}}},
			"MALFORMED_TEMPLATE",
		},
		{
			"detect with bad orientation",
			"omr_detect_markers",
			map[string]interface{}{"image_base64": sheet, "orientation": "sideways"},
			"INVALID_ARGUMENT",
		},
		{
			"annotate without key",
			"omr_annotate",
			map[string]interface{}{"image_base64": sheet, "template": templateJSON()},
			"INVALID_ARGUMENT",
		},
		{
			"annotate with bad key base",
			"omr_annotate",
			map[string]interface{}{"image_base64": sheet, "template": templateJSON(), "correct_answers": map[string]int{"1": 0}, "key_base": 2},
			"INVALID_ARGUMENT",
		},
		{
			"scan with wrong argument type",
			"omr_scan_sheet",
			map[string]interface{}{"path": 42},
			"INVALID_ARGUMENT",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := decodeFailure(t, callTool(t, s, tt.tool, tt.args))
			if f.Error.Kind != tt.wantKind {
				t.Errorf("kind: got %s, want %s (%s)", f.Error.Kind, tt.wantKind, f.Error.Message)
			}
			if f.Error.Message == "" {
				t.Error("message should not be empty")
			}
		})
	}
}

func TestHandleToolsCall_DetectMarkers(t *testing.T) {
	s := newTestServer(t)

	resp := callTool(t, s, "omr_detect_markers", map[string]interface{}{
		"image_base64": b64(sheetPNG(t, -1)),
		"orientation":  "normal",
	})

	var got struct {
		Success        bool  `json:"success"`
		Ready          bool  `json:"ready"`
		DetectedIDs    []int `json:"detected_ids"`
		MissingCorners []int `json:"missing_corners"`
		Markers        []struct {
			ID int     `json:"id"`
			X  float64 `json:"x"`
			Y  float64 `json:"y"`
		} `json:"markers"`
	}
	decodeSuccess(t, resp, &got)

	if !got.Success || !got.Ready {
		t.Errorf("success=%v ready=%v, want true/true", got.Success, got.Ready)
	}
	if !reflect.DeepEqual(got.DetectedIDs, []int{1, 2, 3, 5, 9, 10}) {
		t.Errorf("detected_ids: got %v", got.DetectedIDs)
	}
	if got.MissingCorners == nil || len(got.MissingCorners) != 0 {
		t.Errorf("missing_corners: got %#v, want []", got.MissingCorners)
	}
	for _, m := range got.Markers {
		if m.X < 0 || m.X > 1 || m.Y < 0 || m.Y > 1 {
			t.Errorf("marker %d not normalized: (%g,%g)", m.ID, m.X, m.Y)
		}
	}
}

func TestHandleToolsCall_DetectMarkers_Auto(t *testing.T) {
	s := newTestServer(t, 1)

	resp := callTool(t, s, "omr_detect_markers", map[string]interface{}{
		"image_base64": b64(sheetPNG(t, -1)),
		"orientation":  "auto",
	})

	var got struct {
		Ready          bool   `json:"ready"`
		MissingCorners []int  `json:"missing_corners"`
		Orientation    string `json:"orientation"`
	}
	decodeSuccess(t, resp, &got)

	if got.Ready {
		t.Error("ready should be false with corner 1 missing")
	}
	if !reflect.DeepEqual(got.MissingCorners, []int{1}) {
		t.Errorf("missing_corners: got %v, want [1]", got.MissingCorners)
	}
	// A PNG carries no EXIF orientation.
	if got.Orientation != "normal" {
		t.Errorf("orientation: got %s, want normal", got.Orientation)
	}
}

func TestHandleToolsCall_Annotate(t *testing.T) {
	s := newTestServer(t)

	for _, base := range []int{0, 1} {
		resp := callTool(t, s, "omr_annotate", map[string]interface{}{
			"image_base64":    b64(sheetPNG(t, 1)),
			"template":        templateJSON(),
			"student_answers": map[string]int{itoa(base): 1},
			"correct_answers": map[string]int{itoa(base): 2},
			"key_base":        base,
		})

		var got struct {
			Success bool `json:"success"`
			Image   struct {
				Width    int    `json:"width"`
				Height   int    `json:"height"`
				MimeType string `json:"mime_type"`
				Data     string `json:"image_base64"`
			} `json:"image"`
		}
		decodeSuccess(t, resp, &got)

		if got.Image.MimeType != "image/jpeg" {
			t.Errorf("key_base %d: mime_type %q", base, got.Image.MimeType)
		}
		if !got.Success || got.Image.Data == "" {
			t.Errorf("key_base %d: success=%v data=%d bytes", base, got.Success, len(got.Image.Data))
		}
		if got.Image.Width != sheetW || got.Image.Height != sheetH {
			t.Errorf("key_base %d: size %dx%d", base, got.Image.Width, got.Image.Height)
		}
	}
}

func itoa(n int) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func TestRebase(t *testing.T) {
	tests := []struct {
		name string
		in   map[int]int
		base int
		want map[int]int
	}{
		{"zero base unchanged", map[int]int{0: 1, 4: 2}, 0, map[int]int{0: 1, 4: 2}},
		{"one base shifted", map[int]int{1: 1, 5: 2}, 1, map[int]int{0: 1, 4: 2}},
		{"nil stays nil", nil, 1, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := rebase(tt.in, tt.base)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHandleToolsCall_ValidateTemplate(t *testing.T) {
	s := newTestServer(t)

	resp := callTool(t, s, "omr_validate_template", map[string]interface{}{
		"template": templateJSON(),
	})

	var got struct {
		Success bool `json:"success"`
		Valid   bool `json:"valid"`
		Summary struct {
			MarkerIDs []int          `json:"marker_ids"`
			Questions int            `json:"questions"`
			Options   map[string]int `json:"options_per_question"`
			HasInfo   bool           `json:"has_info_section"`
		} `json:"summary"`
	}
	decodeSuccess(t, resp, &got)

	if !got.Valid {
		t.Error("valid should be true")
	}
	if !reflect.DeepEqual(got.Summary.MarkerIDs, []int{1, 2, 3, 5, 9, 10}) {
		t.Errorf("marker_ids: got %v", got.Summary.MarkerIDs)
	}
	if got.Summary.Questions != 1 || got.Summary.Options["1"] != 4 {
		t.Errorf("questions=%d options=%v", got.Summary.Questions, got.Summary.Options)
	}
	if got.Summary.HasInfo {
		t.Error("has_info_section should be false")
	}
}

func TestHandleToolsCall_ValidateTemplate_Malformed(t *testing.T) {
	s := newTestServer(t)

	doc := map[string]interface{}{}
	if err := json.Unmarshal(templateJSON(), &doc); err != nil {
		t.Fatal(err)
	}
	delete(doc, "answer_area")

	f := decodeFailure(t, callTool(t, s, "omr_validate_template", map[string]interface{}{"template": doc}))
	if f.Error.Kind != "MALFORMED_TEMPLATE" {
		t.Errorf("kind: got %s", f.Error.Kind)
	}
}

func TestHandleToolsCall_TemplateOverlay(t *testing.T) {
	s := newTestServer(t)

	for _, rectify := range []bool{true, false} {
		resp := callTool(t, s, "omr_template_overlay", map[string]interface{}{
			"image_base64": b64(sheetPNG(t, -1)),
			"template":     templateJSON(),
			"rectify":      rectify,
		})
		var got struct {
			Success bool `json:"success"`
			Image   struct {
				Width int    `json:"width"`
				Data  string `json:"image_base64"`
			} `json:"image"`
		}
		decodeSuccess(t, resp, &got)
		if !got.Success || got.Image.Width != sheetW || got.Image.Data == "" {
			t.Errorf("rectify=%v: got %+v", rectify, got)
		}
	}
}

func TestHandleToolsCall_Info(t *testing.T) {
	s := newTestServer(t)

	var got struct {
		Success          bool           `json:"success"`
		Version          string         `json:"version"`
		Backend          string         `json:"backend"`
		MarkerDictionary string         `json:"marker_dictionary"`
		Dictionaries     []string       `json:"supported_dictionaries"`
		CornerIDs        []int          `json:"corner_ids"`
		Canonical        [2]int         `json:"canonical_size"`
		Thresholds       map[string]int `json:"thresholds"`
		OCRAvailable     bool           `json:"ocr_available"`
	}
	decodeSuccess(t, callTool(t, s, "omr_info", nil), &got)

	if got.Version != "test" || got.Backend != "native" {
		t.Errorf("version=%s backend=%s", got.Version, got.Backend)
	}
	if got.MarkerDictionary != "DICT_4X4_50" || len(got.Dictionaries) == 0 {
		t.Errorf("dictionary=%s supported=%v", got.MarkerDictionary, got.Dictionaries)
	}
	if !reflect.DeepEqual(got.CornerIDs, []int{1, 5, 9, 10}) {
		t.Errorf("corner_ids: got %v", got.CornerIDs)
	}
	if got.Canonical != [2]int{sheetW, sheetH} {
		t.Errorf("canonical_size: got %v", got.Canonical)
	}
	if got.Thresholds["answer"] != 1200 || got.Thresholds["student"] != 700 {
		t.Errorf("thresholds: got %v", got.Thresholds)
	}
	if got.OCRAvailable {
		t.Error("ocr_available should be false without a text reader")
	}
}

func TestHandleToolsCall_UnknownTool(t *testing.T) {
	s := newTestServer(t)

	resp := callTool(t, s, "image_load", map[string]interface{}{})
	if resp.Error == nil {
		t.Fatal("Expected error for unknown tool")
	}
	if resp.Error.Code != -32000 {
		t.Errorf("Error code: got %d, want -32000", resp.Error.Code)
	}
}

func TestHandleToolsCall_InvalidParams(t *testing.T) {
	s := newTestServer(t)

	resp := s.handleRequest(&MCPRequest{
		JSONRPC: "2.0",
		ID:      7,
		Method:  "tools/call",
		Params:  json.RawMessage(`"not an object"`),
	})
	if resp == nil || resp.Error == nil {
		t.Fatal("Expected error for invalid params")
	}
	if resp.Error.Code != -32602 {
		t.Errorf("Error code: got %d, want -32602", resp.Error.Code)
	}
}
