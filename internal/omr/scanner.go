package omr

import (
	"errors"
	"fmt"
	"image"
	"image/draw"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/ironsheep/omr-mcp/internal/config"
	"github.com/ironsheep/omr-mcp/internal/imaging"
	"github.com/ironsheep/omr-mcp/internal/vision"
)

// TextReader recognizes printed or handwritten text in an image.
type TextReader interface {
	ReadText(img image.Image) (*RecognizedText, error)
}

// RecognizedText is the output of a TextReader. Word bounds are relative to
// the image that was read.
type RecognizedText struct {
	Text  string
	Words []InfoWord
}

// Scanner runs the detect, scan and annotate operations.
//
// A Scanner holds only immutable configuration and the primitives backend.
// Every call allocates its own buffers, so one Scanner may serve concurrent
// calls as long as the backend is safe for concurrent use.
type Scanner struct {
	cfg     config.Config
	prims   vision.Primitives
	palette imaging.Palette
	encoder imaging.Encoder
	text    TextReader
	log     *slog.Logger
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithLogger sets the logger. The default discards all output.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scanner) {
		if l != nil {
			s.log = l
		}
	}
}

// WithTextReader enables info-region text recognition.
func WithTextReader(r TextReader) Option {
	return func(s *Scanner) {
		s.text = r
	}
}

// NewScanner creates a Scanner over a validated configuration.
func NewScanner(cfg config.Config, prims vision.Primitives, opts ...Option) (*Scanner, error) {
	if prims == nil {
		return nil, errors.New("scanner: nil primitives")
	}
	pal, err := imaging.NewPalette(cfg.Palette)
	if err != nil {
		return nil, fmt.Errorf("scanner: %w", err)
	}

	s := &Scanner{
		cfg:     cfg,
		prims:   prims,
		palette: pal,
		log:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		encoder: imaging.Encoder{
			Encode:     prims.EncodeJPEG,
			Quality:    cfg.JPEGQuality,
			Exhausted:  vision.ErrResourceExhausted,
			MaxBytes:   cfg.Encoding.MaxBytes,
			RetryScale: cfg.Encoding.RetryScale,
			MinScale:   cfg.Encoding.MinScale,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Backend returns the name of the primitives backend.
func (s *Scanner) Backend() string { return s.prims.Name() }

// CanReadText reports whether a text reader is configured.
func (s *Scanner) CanReadText() bool { return s.text != nil }

// Canonical returns the size of the rectified frame.
func (s *Scanner) Canonical() image.Point {
	return image.Pt(s.cfg.Canonical.Width, s.cfg.Canonical.Height)
}

// DetectRequest is the input of Detect. Decoded takes precedence over Image.
type DetectRequest struct {
	Image   []byte
	Decoded image.Image

	// Orientation is the capture rotation. With AutoOrientation set it is
	// read from the EXIF block of Image instead.
	Orientation     Orientation
	AutoOrientation bool
}

// Detect locates the markers of a capture and reports whether all corner
// markers are present. An empty marker list is a valid result.
func (s *Scanner) Detect(req DetectRequest) (res *DetectResult, err error) {
	const op = "detect"
	defer s.guard(op, &err, func() { res = nil })

	img, err := s.decode(op, req.Image, req.Decoded)
	if err != nil {
		return nil, err
	}
	markers, err := s.detect(op, img)
	if err != nil {
		return nil, err
	}

	orient := req.Orientation
	if req.AutoOrientation {
		orient = OrientationFromEXIF(imaging.ReadOrientation(req.Image))
	}

	b := img.Bounds()
	w, h := float64(b.Dx()), float64(b.Dy())
	points := make([]MarkerPoint, 0, len(markers))
	for _, m := range markers {
		p := orient.Normalize(NormPoint{X: m.Center.X / w, Y: m.Center.Y / h})
		points = append(points, MarkerPoint{ID: m.ID, X: p.X, Y: p.Y})
	}
	sort.SliceStable(points, func(i, j int) bool { return points[i].ID < points[j].ID })

	ids := markerIDs(markers)
	missing := MissingIDs(ids, s.cfg.CornerIDs)
	if missing == nil {
		missing = []int{}
	}

	s.log.Debug("detect complete", "markers", len(points), "missing", missing, "orientation", orient)
	return &DetectResult{
		Ready:          len(missing) == 0,
		Markers:        points,
		DetectedIDs:    ids,
		MissingCorners: missing,
		Orientation:    orient.String(),
		Width:          b.Dx(),
		Height:         b.Dy(),
	}, nil
}

// ScanRequest is the input of Scan. Decoded takes precedence over Image.
type ScanRequest struct {
	Image    []byte
	Decoded  image.Image
	Template *Template

	// ReadInfoText runs text recognition on the info region crop.
	ReadInfoText bool
}

// Scan rectifies a capture into the template frame and extracts the ID
// digits and answers.
//
// It fails with MissingCornerMarkers when a corner marker is absent, with
// InsufficientCorrespondence when fewer than 4 markers match the template and
// with WarpFailure when the transform is degenerate. An undetermined ID column
// or an image that cannot be encoded does not fail the scan.
func (s *Scanner) Scan(req ScanRequest) (res *ExtractionResult, err error) {
	const op = "scan"
	defer s.guard(op, &err, func() { res = nil })
	start := time.Now()

	tmpl := req.Template
	if tmpl == nil {
		return nil, newError(InvalidArgument, op, nil, "template is required")
	}
	if len(tmpl.Questions) == 0 {
		return nil, newError(MalformedTemplate, op, nil, "template has no answer area")
	}

	img, err := s.decode(op, req.Image, req.Decoded)
	if err != nil {
		return nil, err
	}
	markers, err := s.detect(op, img)
	if err != nil {
		return nil, err
	}

	ids := markerIDs(markers)
	if missing := MissingIDs(ids, s.cfg.CornerIDs); len(missing) > 0 {
		return nil, &Error{
			Kind:     MissingCornerMarkers,
			Op:       op,
			Msg:      fmt.Sprintf("missing corner markers %v (detected %v)", missing, ids),
			Missing:  missing,
			Detected: ids,
		}
	}

	corr, err := BuildCorrespondences(markerCenters(markers), tmpl.MarkerMap())
	if err != nil {
		return nil, err
	}
	rect, err := s.rectifier().Rectify(img, corr)
	if err != nil {
		return nil, err
	}
	s.log.Debug("rectified", "correspondences", len(corr), "reprojection_px", rect.ReprojectionError)

	annotated := cloneRGBA(rect.Color)
	th := s.cfg.Thresholds
	res = &ExtractionResult{
		StudentIDDigits: s.readSection(annotated, rect.Gray, tmpl.Student, th.Student),
		QuizIDDigits:    s.readSection(annotated, rect.Gray, tmpl.Quiz, th.Quiz),
		ClassIDDigits:   s.readSection(annotated, rect.Gray, tmpl.Class, th.Class),
	}
	res.StudentID = JoinDigits(res.StudentIDDigits)
	res.QuizID = JoinDigits(res.QuizIDDigits)
	res.ClassID = JoinDigits(res.ClassIDDigits)

	sheet := ReadAnswers(annotated, rect.Gray, tmpl.Questions, th.Answer, s.prims, s.palette)
	res.Answers = sheet.Answers
	res.BlankCount = sheet.BlankCount
	res.MultipleMarkCount = sheet.MultipleMarkCount
	res.MultipleMarkQuestions = sheet.MultipleQuestions
	res.TotalQuestions = len(tmpl.Questions)
	s.log.Debug("sheet read", "student_id", res.StudentID, "quiz_id", res.QuizID, "class_id", res.ClassID)

	// The info crop comes from the annotated sheet so that it shows the ID
	// highlights drawn above.
	var info image.Image
	var infoRect image.Rectangle
	if tmpl.Info != nil {
		info, infoRect = imaging.CropPadded(annotated, tmpl.Info.Bounds, s.cfg.InfoPadding)
		if info == nil {
			res.Warnings = append(res.Warnings, "info region lies outside the canonical frame")
		}
	}
	if req.ReadInfoText {
		switch {
		case s.text == nil:
			res.Warnings = append(res.Warnings, "text recognition is not available")
		case tmpl.Info == nil:
			res.Warnings = append(res.Warnings, "text recognition skipped: template has no info section")
		case info != nil:
			rt, err := s.text.ReadText(info)
			if err != nil {
				s.log.Warn("info text recognition failed", "error", err)
				res.Warnings = append(res.Warnings, fmt.Sprintf("info text recognition failed: %v", err))
			} else if rt != nil {
				res.InfoText = rt.Text
				res.InfoWords = toSheetWords(rt.Words, infoRect.Min)
			}
		}
	}

	for _, out := range []struct {
		name string
		img  image.Image
		dst  **imaging.EncodedImage
	}{
		{"rectified", rect.Color, &res.Images.Rectified},
		{"annotated", annotated, &res.Images.Annotated},
		{"info_section", info, &res.Images.InfoSection},
	} {
		if out.img == nil {
			continue
		}
		enc, err := s.encoder.EncodeJPEG(out.img)
		if err != nil {
			if !errors.Is(err, imaging.ErrExhausted) {
				return nil, newError(InternalFailure, op, err, "encode %s image", out.name)
			}
			s.log.Warn("image omitted", "image", out.name, "error", err)
			res.Warnings = append(res.Warnings, fmt.Sprintf("%s image omitted: %v", out.name, err))
			continue
		}
		*out.dst = enc
	}

	elapsed := time.Since(start)
	res.Metadata = Metadata{
		ProcessingTimeMs:    elapsed.Milliseconds(),
		DetectedMarkers:     ids,
		Correspondences:     len(corr),
		ReprojectionErrorPx: rect.ReprojectionError,
		Backend:             s.prims.Name(),
	}

	s.log.Info("scan complete",
		"markers", len(ids),
		"blank", res.BlankCount,
		"multiple", res.MultipleMarkCount,
		"elapsed_ms", elapsed.Milliseconds())
	return res, nil
}

// AnnotateRequest is the input of Annotate. Decoded takes precedence over Image.
type AnnotateRequest struct {
	// Image is the rectified sheet, usually a scan's rectified output.
	Image   []byte
	Decoded image.Image

	Template *Template

	// Student and Correct are keyed by 0-based question index.
	Student map[int]int
	Correct map[int]int
}

// Annotate draws grading marks over a rectified sheet and returns the encoded result.
func (s *Scanner) Annotate(req AnnotateRequest) (res *imaging.EncodedImage, err error) {
	const op = "annotate"
	defer s.guard(op, &err, func() { res = nil })

	if req.Template == nil {
		return nil, newError(InvalidArgument, op, nil, "template is required")
	}
	if req.Correct == nil {
		return nil, newError(InvalidArgument, op, nil, "correct answers are required")
	}
	img, err := s.decode(op, req.Image, req.Decoded)
	if err != nil {
		return nil, err
	}

	canvas := cloneRGBA(img)
	Annotate(canvas, req.Template.Questions, req.Student, req.Correct, s.palette)
	return s.encodeOrFail(op, canvas)
}

// OverlayRequest is the input of Overlay. Decoded takes precedence over Image.
type OverlayRequest struct {
	Image    []byte
	Decoded  image.Image
	Template *Template

	// Rectify warps the capture into the template frame first. Without it the
	// image is assumed to be rectified already.
	Rectify bool
}

// Overlay draws the template layout over a sheet and returns the encoded result.
func (s *Scanner) Overlay(req OverlayRequest) (res *imaging.EncodedImage, err error) {
	const op = "overlay"
	defer s.guard(op, &err, func() { res = nil })

	if req.Template == nil {
		return nil, newError(InvalidArgument, op, nil, "template is required")
	}
	img, err := s.decode(op, req.Image, req.Decoded)
	if err != nil {
		return nil, err
	}

	var canvas *image.RGBA
	if req.Rectify {
		markers, err := s.detect(op, img)
		if err != nil {
			return nil, err
		}
		corr, err := BuildCorrespondences(markerCenters(markers), req.Template.MarkerMap())
		if err != nil {
			return nil, err
		}
		rect, err := s.rectifier().Rectify(img, corr)
		if err != nil {
			return nil, err
		}
		canvas = rect.Color
	} else {
		canvas = cloneRGBA(img)
	}

	Overlay(canvas, req.Template, s.palette)
	return s.encodeOrFail(op, canvas)
}

func (s *Scanner) decode(op string, data []byte, decoded image.Image) (image.Image, error) {
	if decoded != nil {
		return decoded, nil
	}
	if len(data) == 0 {
		return nil, newError(InvalidArgument, op, nil, "image is required")
	}
	img, err := s.prims.Decode(data)
	if err != nil {
		return nil, newError(DecodeFailure, op, err, "cannot decode image")
	}
	b := img.Bounds()
	s.log.Debug("decoded", "op", op, "width", b.Dx(), "height", b.Dy())
	return img, nil
}

func (s *Scanner) detect(op string, img image.Image) ([]vision.Marker, error) {
	gray, err := s.prims.Preprocess(img)
	if err != nil {
		return nil, newError(InternalFailure, op, err, "preprocess")
	}
	markers, err := s.prims.DetectMarkers(gray)
	if errors.Is(err, vision.ErrNoMarkerDetector) {
		return nil, newError(InternalFailure, op, err, "marker detection unavailable in the %s backend", s.prims.Name())
	}
	if err != nil {
		return nil, newError(InternalFailure, op, err, "marker detection")
	}
	s.log.Debug("markers detected", "op", op, "count", len(markers))
	return markers, nil
}

func (s *Scanner) rectifier() Rectifier {
	return Rectifier{Solver: s.prims, Warper: s.prims, Size: s.Canonical()}
}

func (s *Scanner) readSection(canvas *image.RGBA, gray *image.Gray, sec *Section, minPixels int) []int {
	if sec == nil {
		return []int{}
	}
	return ReadSection(canvas, gray, sec, minPixels, s.prims, s.palette)
}

func (s *Scanner) encodeOrFail(op string, img image.Image) (*imaging.EncodedImage, error) {
	enc, err := s.encoder.EncodeJPEG(img)
	if err != nil {
		if errors.Is(err, imaging.ErrExhausted) {
			return nil, newError(ResourceExhaustion, op, err, "encode output image")
		}
		return nil, newError(InternalFailure, op, err, "encode output image")
	}
	return enc, nil
}

// guard converts a panic or an unclassified error into InternalFailure so
// that nothing escapes an operation untyped. A failed operation never returns
// a partial result.
func (s *Scanner) guard(op string, err *error, discard func()) {
	if r := recover(); r != nil {
		s.log.Error("recovered panic", "op", op, "panic", r)
		*err = newError(InternalFailure, op, nil, "unexpected failure: %v", r)
	}
	var e *Error
	if *err != nil && !errors.As(*err, &e) {
		*err = newError(InternalFailure, op, *err, "unexpected failure")
	}
	if *err != nil {
		discard()
		s.log.Debug("operation failed", "op", op, "kind", KindOf(*err), "error", *err)
	}
}

// markerIDs returns the distinct detected ids, ascending.
func markerIDs(markers []vision.Marker) []int {
	set := make(map[int]struct{}, len(markers))
	for _, m := range markers {
		set[m.ID] = struct{}{}
	}
	return uniqueSortedIDs(set)
}

// markerCenters keys detected centers by id. When an id was reported more
// than once the first detection is kept.
func markerCenters(markers []vision.Marker) map[int]vision.Point {
	out := make(map[int]vision.Point, len(markers))
	for _, m := range markers {
		if _, ok := out[m.ID]; !ok {
			out[m.ID] = m.Center
		}
	}
	return out
}

// toSheetWords moves word boxes from crop to canonical frame coordinates.
func toSheetWords(words []InfoWord, origin image.Point) []InfoWord {
	if len(words) == 0 {
		return nil
	}
	out := make([]InfoWord, len(words))
	for i, w := range words {
		w.Bounds[0] += origin.X
		w.Bounds[1] += origin.Y
		out[i] = w
	}
	return out
}

func cloneRGBA(img image.Image) *image.RGBA {
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	return out
}
