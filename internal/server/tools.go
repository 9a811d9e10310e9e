package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// imageProperties are the two ways of passing a capture.
func imageProperties() map[string]interface{} {
	return map[string]interface{}{
		"path": map[string]interface{}{
			"type":        "string",
			"description": "Absolute path to the image file. Takes precedence over image_base64.",
		},
		"image_base64": map[string]interface{}{
			"type":        "string",
			"description": "Base64-encoded image bytes (JPEG, PNG, TIFF, BMP, WebP or GIF). A data URL prefix is accepted.",
		},
	}
}

// templateProperties are the two ways of passing a sheet template.
func templateProperties() map[string]interface{} {
	return map[string]interface{}{
		"template_path": map[string]interface{}{
			"type":        "string",
			"description": "Absolute path to a JSON or YAML template file. Parsed templates are cached by path.",
		},
		"template": map[string]interface{}{
			"type":        "object",
			"description": "Inline template object with aruco_marker, answer_area and optional student_id_section, quiz_id_section, class_id_section and info_section.",
		},
	}
}

func properties(groups ...map[string]interface{}) map[string]interface{} {
	out := map[string]interface{}{}
	for _, g := range groups {
		for k, v := range g {
			out[k] = v
		}
	}
	return out
}

// answerMap describes an answer key or student answer object.
func answerMap(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "object",
		"description": description,
		"additionalProperties": map[string]interface{}{
			"type": "integer",
		},
	}
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	return []Tool{
		{
			Name:        "omr_detect_markers",
			Description: "Detect the fiducial markers of a bubble-sheet photo and report whether all four corner markers are visible. Marker centers are normalized to [0,1] in the upright frame. Use this for a live readiness check before scanning.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": properties(imageProperties(), map[string]interface{}{
					"orientation": map[string]interface{}{
						"type":        "string",
						"enum":        []string{"normal", "rotate90", "rotate180", "rotate270", "auto"},
						"description": "Capture rotation. \"auto\" reads the EXIF orientation tag. Default normal.",
						"default":     "normal",
					},
				}),
			},
		},
		{
			Name:        "omr_scan_sheet",
			Description: "Rectify a bubble-sheet photo into the template frame and read the student, quiz and class ID digits and the answers. Returns answer indices keyed by 0-based question index (-1 for blank), blank and multiple-mark counts, and the rectified, annotated and info-region images as base64 JPEG.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": properties(imageProperties(), templateProperties(), map[string]interface{}{
					"read_info_text": map[string]interface{}{
						"type":        "boolean",
						"description": "Run text recognition on the info region. Default false.",
						"default":     false,
					},
				}),
			},
		},
		{
			Name:        "omr_annotate",
			Description: "Draw grading marks on a rectified sheet: correct answers, wrong answers, and the expected bubble wherever the student was wrong or blank. Returns the annotated image as base64 JPEG.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": properties(imageProperties(), templateProperties(), map[string]interface{}{
					"student_answers": answerMap("Selected bubble index per question, e.g. the answers of omr_scan_sheet. -1 or absent means blank."),
					"correct_answers": answerMap("Expected bubble index per question. Questions without a key are left unmarked."),
					"key_base": map[string]interface{}{
						"type":        "integer",
						"enum":        []int{0, 1},
						"description": "Base of the question keys: 0 for question indices (default), 1 for question numbers.",
						"default":     0,
					},
				}),
				"required": []string{"correct_answers"},
			},
		},
		{
			Name:        "omr_validate_template",
			Description: "Validate a sheet template against the canonical frame and summarize its markers, ID sections and questions.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": templateProperties(),
			},
		},
		{
			Name:        "omr_template_overlay",
			Description: "Draw the template layout (markers, ID bubbles, answer bubbles with question numbers, info region) over a sheet to check that the template matches the printed form.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": properties(imageProperties(), templateProperties(), map[string]interface{}{
					"rectify": map[string]interface{}{
						"type":        "boolean",
						"description": "Rectify the photo into the template frame first. Set false for an image that is already rectified. Default true.",
						"default":     true,
					},
				}),
			},
		},
		{
			Name:        "omr_info",
			Description: "Report the vision backend, marker dictionary, corner marker ids, canonical frame size, bubble thresholds and whether text recognition is available.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
	}
}

// handleToolsList returns the list of available tools
func (s *Server) handleToolsList(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"tools": GetToolDefinitions(),
		},
	}
}
