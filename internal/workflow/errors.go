// Package workflow resolves, submits and transforms NSX Defender analyses
// for a single MISP attribute.
package workflow

import (
	"errors"
)

// Error kinds. Match them with errors.Is.
var (
	ErrConfiguration  = errors.New("error connecting to VMware NSX Defender")
	ErrInputParsing   = errors.New("error parsing input")
	ErrInputDecoding  = errors.New("error decoding input")
	ErrProcessing     = errors.New("error processing input")
	ErrAPICall        = errors.New("error issuing API call")
	ErrTransformation = errors.New("error parsing the report")
)

// Error is a failed enrichment. Kind is one of the Err* sentinels; Err holds
// the cause.
type Error struct {
	Kind error
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.Error()
	}
	return e.Kind.Error() + ": " + e.Err.Error()
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

func newError(kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// KindOf returns the kind of err, or nil when err is not a workflow error.
func KindOf(err error) error {
	var we *Error
	if errors.As(err, &we) {
		return we.Kind
	}
	return nil
}
