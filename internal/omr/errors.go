package omr

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Kind classifies operation failures.
type Kind int

const (
	// InternalFailure is an unexpected state, including recovered panics.
	InternalFailure Kind = iota
	// InvalidArgument means a required input was absent.
	InvalidArgument
	// DecodeFailure means the image bytes could not be decoded.
	DecodeFailure
	// InsufficientCorrespondence means fewer than 4 markers matched the template.
	InsufficientCorrespondence
	// WarpFailure means the fitted transform was degenerate.
	WarpFailure
	// MissingCornerMarkers means the readiness check failed.
	MissingCornerMarkers
	// MalformedTemplate means the template failed validation.
	MalformedTemplate
	// ResourceExhaustion means encoding failed even at reduced resolution.
	ResourceExhaustion
)

var kindCodes = [...]string{
	InternalFailure:            "INTERNAL_FAILURE",
	InvalidArgument:            "INVALID_ARGUMENT",
	DecodeFailure:              "DECODE_FAILURE",
	InsufficientCorrespondence: "INSUFFICIENT_CORRESPONDENCE",
	WarpFailure:                "WARP_FAILURE",
	MissingCornerMarkers:       "MISSING_CORNER_MARKERS",
	MalformedTemplate:          "MALFORMED_TEMPLATE",
	ResourceExhaustion:         "RESOURCE_EXHAUSTION",
}

// String returns the stable upper-snake code of k.
func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindCodes) {
		return kindCodes[InternalFailure]
	}
	return kindCodes[k]
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Sentinels for errors.Is. They match any *Error of the same Kind.
var (
	ErrInvalidArgument            = &Error{Kind: InvalidArgument}
	ErrDecodeFailure              = &Error{Kind: DecodeFailure}
	ErrInsufficientCorrespondence = &Error{Kind: InsufficientCorrespondence}
	ErrWarpFailure                = &Error{Kind: WarpFailure}
	ErrMissingCornerMarkers       = &Error{Kind: MissingCornerMarkers}
	ErrMalformedTemplate          = &Error{Kind: MalformedTemplate}
	ErrResourceExhaustion         = &Error{Kind: ResourceExhaustion}
	ErrInternalFailure            = &Error{Kind: InternalFailure}
)

// Error is the failure type returned by every public operation.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error

	// Missing and Detected are set for MissingCornerMarkers.
	Missing  []int
	Detected []int
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if e.Msg != "" {
		b.WriteString(e.Msg)
	} else {
		b.WriteString(strings.ToLower(strings.ReplaceAll(e.Kind.String(), "_", " ")))
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is a bare sentinel of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Msg == "" && t.Err == nil
}

// MarshalJSON renders the error as a structured failure payload.
func (e *Error) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Kind        Kind   `json:"kind"`
		Message     string `json:"message"`
		MissingIDs  []int  `json:"missing_ids,omitempty"`
		DetectedIDs []int  `json:"detected_ids,omitempty"`
	}{e.Kind, e.Error(), e.Missing, e.Detected})
}

// KindOf classifies err. Errors that are not *Error are InternalFailure.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return InternalFailure
}

// Errorf builds an *Error of the given kind with a formatted message.
func Errorf(kind Kind, op, format string, args ...any) *Error {
	return newError(kind, op, nil, format, args...)
}

func newError(kind Kind, op string, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...), Err: err}
}
