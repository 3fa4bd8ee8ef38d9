package store

import (
	"errors"
	"fmt"
)

var (
	// ErrStoreMissing reports that the store file does not exist yet.
	ErrStoreMissing = errors.New("record store missing")
	// ErrRecordNotFound reports that no row carries the requested timestamp.
	ErrRecordNotFound = errors.New("record not found")
)

// RowParseError describes a row that was skipped during a scan.
type RowParseError struct {
	Line   int
	Reason string
}

func (e *RowParseError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Reason)
}

// ReadError wraps an I/O failure while reading the store.
type ReadError struct {
	Path string
	Err  error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("read %s: %v", e.Path, e.Err)
}

func (e *ReadError) Unwrap() error {
	return e.Err
}
