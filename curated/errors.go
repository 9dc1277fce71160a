package curated

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is the sentinel wrapped by every ValidationError.
	ErrValidation = errors.New("invalid page record")
	// ErrVersionExists is returned when a rebuild targets an existing version.
	ErrVersionExists = errors.New("dataset version already exists")
	// ErrNotFound is returned when a page has no record in the version.
	ErrNotFound = errors.New("page not found")
	// ErrClosed is returned by operations on a closed index.
	ErrClosed = errors.New("curated index is closed")
)

// ValidationError describes a rejected record. Nothing is written.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid page record: %s: %s", e.Field, e.Reason)
}

// Unwrap returns ErrValidation.
func (e *ValidationError) Unwrap() error { return ErrValidation }

// IOError wraps a storage failure. The index does not retry.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("curated %s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *IOError) Unwrap() error { return e.Err }

func ioErr(op, path string, err error) error {
	if err == nil {
		return nil
	}
	var ie *IOError
	if errors.As(err, &ie) {
		return err
	}
	return &IOError{Op: op, Path: path, Err: err}
}
