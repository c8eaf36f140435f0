package render

import "fmt"

// Kind classifies render failures.
type Kind string

const (
	KindMalformed Kind = "malformed"
	KindWrite     Kind = "write"
)

// RenderError is fatal and not worth retrying: the same input fails the
// same way.
type RenderError struct {
	Kind Kind
	Err  error
}

func (e *RenderError) Error() string { return fmt.Sprintf("render %s: %v", e.Kind, e.Err) }

func (e *RenderError) Unwrap() error { return e.Err }
