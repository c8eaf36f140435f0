package storage

import "fmt"

// Kind classifies store failures.
type Kind string

const (
	KindKey       Kind = "key"
	KindContainer Kind = "container"
	KindWrite     Kind = "write"
	KindIndex     Kind = "index"
)

// StoreError is returned by Persist. Nothing is retried internally.
type StoreError struct {
	VIN  string
	Kind Kind
	Err  error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s for %s: %v", e.Kind, e.VIN, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }
