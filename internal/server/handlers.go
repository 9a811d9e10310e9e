package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/ironsheep/omr-mcp/internal/imaging"
	"github.com/ironsheep/omr-mcp/internal/omr"
	"github.com/ironsheep/omr-mcp/internal/vision"
)

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "omr_scan_sheet").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// toolFailure is the structured result of a failed scanner operation.
type toolFailure struct {
	Success bool       `json:"success"`
	Error   *omr.Error `json:"error"`
}

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Scanner failures are tool results with isError set and a
// {"success": false, "error": {...}} body. Unknown tools and unparseable
// arguments return a JSON-RPC error response with code -32000.
func (s *Server) handleToolsCall(req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}

	s.log.Debug("tool call", "tool", params.Name)
	result, err := s.executeTool(params.Name, params.Arguments)
	if err != nil {
		var e *omr.Error
		if errors.As(err, &e) {
			s.log.Warn("tool failed", "tool", params.Name, "kind", e.Kind, "error", e)
			return &MCPResponse{
				JSONRPC: "2.0",
				ID:      req.ID,
				Result: map[string]interface{}{
					"content": []map[string]interface{}{
						{
							"type": "text",
							"text": mustMarshalJSON(toolFailure{Success: false, Error: e}),
						},
					},
					"isError": true,
				},
			}
		}
		return s.errorResponse(req.ID, -32000, "Tool execution failed", err.Error())
	}

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": mustMarshalJSON(result),
				},
			},
		},
	}
}

// executeTool dispatches tool execution to the appropriate handler function.
//
// Each tool handler:
//  1. Unmarshals arguments from JSON
//  2. Applies default values for optional parameters
//  3. Resolves the image and template sources
//  4. Calls the scanner
//  5. Returns the result or error
func (s *Server) executeTool(name string, args json.RawMessage) (interface{}, error) {
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}

	switch name {
	case "omr_detect_markers":
		return s.handleDetectMarkers(args)
	case "omr_scan_sheet":
		return s.handleScanSheet(args)
	case "omr_annotate":
		return s.handleAnnotate(args)
	case "omr_validate_template":
		return s.handleValidateTemplate(args)
	case "omr_template_overlay":
		return s.handleTemplateOverlay(args)
	case "omr_info":
		return s.handleInfo(args)
	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

// errorResponse creates a JSON-RPC error response with the given details.
func (s *Server) errorResponse(id interface{}, code int, message, data string) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// mustMarshalJSON converts a value to pretty-printed JSON string.
// Panics are suppressed; on marshal failure, returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

// === Argument resolution ===

type imageArgs struct {
	Path        string `json:"path"`
	ImageBase64 string `json:"image_base64"`
}

// load reads the capture bytes. A missing or unreadable source is an
// InvalidArgument; bytes that are not an image are a DecodeFailure.
func (a imageArgs) load(op string) ([]byte, error) {
	src, err := imaging.ReadSource(a.Path, a.ImageBase64)
	switch {
	case err == nil:
		return src.Data, nil
	case errors.Is(err, imaging.ErrNoImage):
		return nil, omr.Errorf(omr.InvalidArgument, op, "path or image_base64 is required")
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, fs.ErrPermission):
		return nil, omr.Errorf(omr.InvalidArgument, op, "%v", err)
	default:
		return nil, omr.Errorf(omr.DecodeFailure, op, "%v", err)
	}
}

type templateArgs struct {
	TemplatePath string          `json:"template_path"`
	Template     json.RawMessage `json:"template"`
}

func (s *Server) loadTemplate(op string, a templateArgs) (*omr.Template, error) {
	switch {
	case a.TemplatePath != "":
		return s.templates.Load(a.TemplatePath)
	case len(a.Template) > 0 && string(a.Template) != "null":
		return omr.ParseTemplateJSON(a.Template, s.scanner.Canonical())
	default:
		return nil, omr.Errorf(omr.InvalidArgument, op, "template_path or template is required")
	}
}

func decodeArgs(op string, args json.RawMessage, v interface{}) error {
	if err := json.Unmarshal(args, v); err != nil {
		return omr.Errorf(omr.InvalidArgument, op, "invalid arguments: %v", err)
	}
	return nil
}

// === Scanner handlers ===

type detectMarkersArgs struct {
	imageArgs
	Orientation string `json:"orientation"`
}

func (s *Server) handleDetectMarkers(args json.RawMessage) (interface{}, error) {
	const op = "detect"
	var a detectMarkersArgs
	if err := decodeArgs(op, args, &a); err != nil {
		return nil, err
	}

	req := omr.DetectRequest{}
	if strings.EqualFold(strings.TrimSpace(a.Orientation), "auto") {
		req.AutoOrientation = true
	} else {
		o, err := omr.ParseOrientation(a.Orientation)
		if err != nil {
			return nil, omr.Errorf(omr.InvalidArgument, op, "%v", err)
		}
		req.Orientation = o
	}

	data, err := a.load(op)
	if err != nil {
		return nil, err
	}
	req.Image = data

	res, err := s.scanner.Detect(req)
	if err != nil {
		return nil, err
	}
	return struct {
		Success bool `json:"success"`
		*omr.DetectResult
	}{true, res}, nil
}

type scanSheetArgs struct {
	imageArgs
	templateArgs
	ReadInfoText bool `json:"read_info_text"`
}

func (s *Server) handleScanSheet(args json.RawMessage) (interface{}, error) {
	const op = "scan"
	var a scanSheetArgs
	if err := decodeArgs(op, args, &a); err != nil {
		return nil, err
	}

	tmpl, err := s.loadTemplate(op, a.templateArgs)
	if err != nil {
		return nil, err
	}
	data, err := a.load(op)
	if err != nil {
		return nil, err
	}

	res, err := s.scanner.Scan(omr.ScanRequest{Image: data, Template: tmpl, ReadInfoText: a.ReadInfoText})
	if err != nil {
		return nil, err
	}
	return struct {
		Success bool `json:"success"`
		*omr.ExtractionResult
	}{true, res}, nil
}

type annotateArgs struct {
	imageArgs
	templateArgs
	StudentAnswers map[int]int `json:"student_answers"`
	CorrectAnswers map[int]int `json:"correct_answers"`
	KeyBase        int         `json:"key_base"`
}

func (s *Server) handleAnnotate(args json.RawMessage) (interface{}, error) {
	const op = "annotate"
	var a annotateArgs
	if err := decodeArgs(op, args, &a); err != nil {
		return nil, err
	}
	if a.KeyBase != 0 && a.KeyBase != 1 {
		return nil, omr.Errorf(omr.InvalidArgument, op, "key_base must be 0 or 1, got %d", a.KeyBase)
	}
	if a.CorrectAnswers == nil {
		return nil, omr.Errorf(omr.InvalidArgument, op, "correct_answers is required")
	}

	tmpl, err := s.loadTemplate(op, a.templateArgs)
	if err != nil {
		return nil, err
	}
	data, err := a.load(op)
	if err != nil {
		return nil, err
	}

	img, err := s.scanner.Annotate(omr.AnnotateRequest{
		Image:    data,
		Template: tmpl,
		Student:  rebase(a.StudentAnswers, a.KeyBase),
		Correct:  rebase(a.CorrectAnswers, a.KeyBase),
	})
	if err != nil {
		return nil, err
	}
	return struct {
		Success bool                  `json:"success"`
		Image   *imaging.EncodedImage `json:"image"`
	}{true, img}, nil
}

// rebase shifts answer keys to 0-based question indices.
func rebase(m map[int]int, base int) map[int]int {
	if base == 0 || m == nil {
		return m
	}
	out := make(map[int]int, len(m))
	for k, v := range m {
		out[k-base] = v
	}
	return out
}

func (s *Server) handleValidateTemplate(args json.RawMessage) (interface{}, error) {
	const op = "validate template"
	var a templateArgs
	if err := decodeArgs(op, args, &a); err != nil {
		return nil, err
	}

	tmpl, err := s.loadTemplate(op, a)
	if err != nil {
		return nil, err
	}
	return struct {
		Success bool                `json:"success"`
		Valid   bool                `json:"valid"`
		Summary omr.TemplateSummary `json:"summary"`
	}{true, true, tmpl.Summary()}, nil
}

type templateOverlayArgs struct {
	imageArgs
	templateArgs
	Rectify *bool `json:"rectify"`
}

func (s *Server) handleTemplateOverlay(args json.RawMessage) (interface{}, error) {
	const op = "overlay"
	var a templateOverlayArgs
	if err := decodeArgs(op, args, &a); err != nil {
		return nil, err
	}
	rectify := true
	if a.Rectify != nil {
		rectify = *a.Rectify
	}

	tmpl, err := s.loadTemplate(op, a.templateArgs)
	if err != nil {
		return nil, err
	}
	data, err := a.load(op)
	if err != nil {
		return nil, err
	}

	img, err := s.scanner.Overlay(omr.OverlayRequest{Image: data, Template: tmpl, Rectify: rectify})
	if err != nil {
		return nil, err
	}
	return struct {
		Success bool                  `json:"success"`
		Image   *imaging.EncodedImage `json:"image"`
	}{true, img}, nil
}

type infoResult struct {
	Success          bool        `json:"success"`
	Version          string      `json:"version"`
	Backend          string      `json:"backend"`
	MarkerDictionary string      `json:"marker_dictionary"`
	Dictionaries     []string    `json:"supported_dictionaries"`
	CornerIDs        []int       `json:"corner_ids"`
	Canonical        [2]int      `json:"canonical_size"`
	Thresholds       interface{} `json:"thresholds"`
	OCRAvailable     bool        `json:"ocr_available"`
	CachedTemplates  int         `json:"cached_templates"`
}

func (s *Server) handleInfo(json.RawMessage) (interface{}, error) {
	th := s.cfg.Thresholds
	return infoResult{
		Success:          true,
		Version:          s.version,
		Backend:          s.scanner.Backend(),
		MarkerDictionary: s.cfg.MarkerDictionary,
		Dictionaries:     vision.DictionaryNames(),
		CornerIDs:        s.cfg.CornerIDs,
		Canonical:        [2]int{s.cfg.Canonical.Width, s.cfg.Canonical.Height},
		Thresholds: map[string]int{
			"student": th.Student,
			"quiz":    th.Quiz,
			"class":   th.Class,
			"answer":  th.Answer,
		},
		OCRAvailable:    s.scanner.CanReadText(),
		CachedTemplates: s.templates.Len(),
	}, nil
}
