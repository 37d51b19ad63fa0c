package engine

import (
	"errors"
	"strings"
)

// Failure kinds. Every error returned by an Engine wraps exactly one of these.
var (
	ErrNotFound             = errors.New("file not found")
	ErrUnsupportedFormat    = errors.New("unsupported format")
	ErrRuntimeUnavailable   = errors.New("runtime unavailable")
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrQuotaExceeded        = errors.New("quota exceeded")
	ErrTransientBackend     = errors.New("transient backend error")
)

// Error is a classified transcription failure for one file.
type Error struct {
	Kind    error
	Path    string
	Message string
	Err     error
}

func newError(kind error, path, message string, err error) *Error {
	return &Error{Kind: kind, Path: path, Message: message, Err: err}
}

func (e *Error) Error() string {
	parts := []string{e.Kind.Error()}
	if e.Message != "" {
		parts = append(parts, e.Message)
	}
	if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}
	return strings.Join(parts, ": ")
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// IsTransient reports whether err is worth another attempt.
func IsTransient(err error) bool {
	return errors.Is(err, ErrQuotaExceeded) || errors.Is(err, ErrTransientBackend)
}

// KindOf returns the failure kind wrapped by err, or nil.
func KindOf(err error) error {
	for _, kind := range []error{
		ErrNotFound,
		ErrUnsupportedFormat,
		ErrRuntimeUnavailable,
		ErrAuthenticationFailed,
		ErrQuotaExceeded,
		ErrTransientBackend,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
