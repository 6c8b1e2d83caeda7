// Package errs classifies pipeline failures so HTTP handlers can map them to
// status codes without inspecting error strings.
package errs

import (
	"errors"
	"net/http"
)

// Kind distinguishes the failure classes of the report pipeline.
type Kind int

const (
	KindUnknown Kind = iota
	// KindValidation covers missing or malformed caller input.
	KindValidation
	// KindGateRejected means the vision gate ran and found no garbage.
	KindGateRejected
	// KindUnavailable means a fatal stage's external service call failed.
	KindUnavailable
	// KindConflict means a state transition lost an exclusivity race.
	KindConflict
	// KindNotFound means a referenced ticket, job or link does not exist.
	KindNotFound
)

// Error carries a kind plus optional structured metadata surfaced to clients
// (gate rejections include the detected confidence and type for feedback).
type Error struct {
	Kind Kind
	Msg  string
	Meta map[string]any
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Validation reports invalid caller input.
func Validation(msg string) error {
	return &Error{Kind: KindValidation, Msg: msg}
}

// GateRejected reports a vision gate refusal with feedback metadata.
func GateRejected(msg string, meta map[string]any) error {
	return &Error{Kind: KindGateRejected, Msg: msg, Meta: meta}
}

// Unavailable reports a fatal external service failure.
func Unavailable(msg string, cause error) error {
	return &Error{Kind: KindUnavailable, Msg: msg, Err: cause}
}

// Conflict reports a lost exclusivity race.
func Conflict(msg string) error {
	return &Error{Kind: KindConflict, Msg: msg}
}

// NotFound reports a missing entity.
func NotFound(msg string) error {
	return &Error{Kind: KindNotFound, Msg: msg}
}

// KindOf extracts the kind from an error chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// MetaOf returns the structured metadata attached to an error, if any.
func MetaOf(err error) map[string]any {
	var e *Error
	if errors.As(err, &e) {
		return e.Meta
	}
	return nil
}

// HTTPStatus maps an error chain to the response status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindGateRejected:
		return http.StatusUnprocessableEntity
	case KindUnavailable:
		return http.StatusServiceUnavailable
	case KindConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
