package storage

import (
	"errors"
	"fmt"
)

// Code is a machine-readable store error code.
type Code string

const (
	CodeLockTimeout        Code = "LOCK_TIMEOUT"
	CodeUnsupportedVersion Code = "UNSUPPORTED_VERSION"
	CodeMigrationFailed    Code = "MIGRATION_FAILED"
	CodeCorruptDocument    Code = "CORRUPT_DOCUMENT"
	CodeWriteFailed        Code = "WRITE_FAILED"
	CodeReadFailed         Code = "READ_FAILED"
	CodeUpdateRejected     Code = "UPDATE_REJECTED"
)

// Error is a store failure with the operation and document it concerns.
type Error struct {
	Code Code
	Op   string // load, update, migrate, lock, write
	Path string
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := string(e.Code)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Path != "" {
		msg += " (" + e.Path + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// Sentinels for errors.Is checks.
var (
	ErrLockTimeout        = &Error{Code: CodeLockTimeout}
	ErrUnsupportedVersion = &Error{Code: CodeUnsupportedVersion}
	ErrMigrationFailed    = &Error{Code: CodeMigrationFailed}
	ErrCorruptDocument    = &Error{Code: CodeCorruptDocument}
	ErrWriteFailed        = &Error{Code: CodeWriteFailed}
)

func newError(code Code, op, path string, err error) *Error {
	return &Error{Code: code, Op: op, Path: path, Err: err}
}

// CodeOf returns the store error code of err, or "" when err is not a store error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func errorf(code Code, op, path, format string, args ...any) *Error {
	return newError(code, op, path, fmt.Errorf(format, args...))
}
