package decode

import "fmt"

// Kind classifies why a decode failed.
type Kind string

const (
	KindInput     Kind = "input"
	KindTransport Kind = "transport"
	KindStatus    Kind = "status"
	KindEmpty     Kind = "empty"
	KindMalformed Kind = "malformed"
)

// DecodeError is returned for every failed Fetch.
type DecodeError struct {
	VIN        string
	Kind       Kind
	StatusCode int
	Err        error
}

func (e *DecodeError) Error() string {
	if e.VIN == "" {
		return fmt.Sprintf("decode %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("decode %s for %s: %v", e.Kind, e.VIN, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
