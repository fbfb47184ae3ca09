// Package vaulterr defines the error taxonomy shared by every assetvault package.
//
// Callers classify failures with errors.Is against the sentinel errors below.
// Packages that need to attach the failing operation and path return *Error,
// which matches the sentinel of its Code:
//
//	if errors.Is(err, vaulterr.ErrNotFound) {
//	    // identifier or task is absent
//	}
package vaulterr

import (
	"errors"
	"fmt"
)

// ============================================================================
// Standard Errors
// ============================================================================

var (
	// ErrNotFound indicates an asset identifier or task identifier is absent.
	ErrNotFound = errors.New("not found")

	// ErrPathEscape indicates a source or destination path lies outside the
	// directory it is required to be contained in.
	ErrPathEscape = errors.New("path escapes its root")

	// ErrCorrupt indicates a metadata or preferences document could not be
	// decoded with any known schema revision.
	ErrCorrupt = errors.New("corrupt document")

	// ErrIO indicates an underlying filesystem, copy, or delete failure.
	ErrIO = errors.New("i/o failure")

	// ErrConflict indicates the target state conflicts with the request, for
	// example a non-empty export directory or a duplicate identifier.
	ErrConflict = errors.New("conflict")
)

// Code is the category of an *Error.
type Code int

const (
	// CodeNotFound maps to ErrNotFound
	CodeNotFound Code = iota

	// CodePathEscape maps to ErrPathEscape
	CodePathEscape

	// CodeCorrupt maps to ErrCorrupt
	CodeCorrupt

	// CodeIO maps to ErrIO
	CodeIO

	// CodeConflict maps to ErrConflict
	CodeConflict
)

// String returns the lower-case name of the code.
func (c Code) String() string {
	switch c {
	case CodeNotFound:
		return "not_found"
	case CodePathEscape:
		return "path_escape"
	case CodeCorrupt:
		return "corrupt"
	case CodeIO:
		return "io"
	case CodeConflict:
		return "conflict"
	default:
		return "unknown"
	}
}

func (c Code) sentinel() error {
	switch c {
	case CodeNotFound:
		return ErrNotFound
	case CodePathEscape:
		return ErrPathEscape
	case CodeCorrupt:
		return ErrCorrupt
	case CodeIO:
		return ErrIO
	case CodeConflict:
		return ErrConflict
	default:
		return nil
	}
}

// Error is a categorized error carrying the operation and path it concerns.
//
// The message is already human-readable; the GUI layer shows it verbatim.
type Error struct {
	// Code is the error category
	Code Code

	// Op is the operation that failed (e.g. "delete", "copy", "load")
	Op string

	// Path is the filesystem path or identifier related to the error (if any)
	Path string

	// Err is the underlying cause (may be nil)
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Op
	if msg == "" {
		msg = e.Code.String()
	}
	if e.Path != "" {
		msg += " " + e.Path
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	if s := e.Code.sentinel(); s != nil {
		return msg + ": " + s.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel error of this error's code.
func (e *Error) Is(target error) bool {
	s := e.Code.sentinel()
	return s != nil && target == s
}

// New builds an *Error.
func New(code Code, op, path string, err error) *Error {
	return &Error{Code: code, Op: op, Path: path, Err: err}
}

// NotFound builds a CodeNotFound error for the given identifier.
func NotFound(op, id string) error {
	return New(CodeNotFound, op, id, nil)
}

// IO wraps a filesystem failure with the operation and path that produced it.
// A nil err yields nil.
func IO(op, path string, err error) error {
	if err == nil {
		return nil
	}
	return New(CodeIO, op, path, err)
}

// Corrupt wraps a decoding failure.
func Corrupt(op, path string, err error) error {
	return New(CodeCorrupt, op, path, err)
}

// Conflictf builds a CodeConflict error with a formatted cause.
func Conflictf(op, path, format string, args ...any) error {
	return New(CodeConflict, op, path, fmt.Errorf(format, args...))
}

// CodeOf returns the category of err, or false if err belongs to none.
func CodeOf(err error) (Code, bool) {
	var ve *Error
	if errors.As(err, &ve) {
		return ve.Code, true
	}
	for _, c := range []Code{CodeNotFound, CodePathEscape, CodeCorrupt, CodeIO, CodeConflict} {
		if errors.Is(err, c.sentinel()) {
			return c, true
		}
	}
	return 0, false
}
