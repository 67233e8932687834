package polling

import (
	"errors"
	"fmt"
)

// ErrorKind classifies fallback failures.
type ErrorKind string

const (
	KindNetwork ErrorKind = "network"
	KindHTTP    ErrorKind = "http"
	KindDecode  ErrorKind = "decode"
)

// Error is returned by every Client call that fails.
type Error struct {
	Kind       ErrorKind
	Op         string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.Kind == KindHTTP {
		return fmt.Sprintf("%s: http %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %s error: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func kindOf(err error) ErrorKind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

func IsNetwork(err error) bool { return kindOf(err) == KindNetwork }

func IsHTTP(err error) bool { return kindOf(err) == KindHTTP }

func IsDecode(err error) bool { return kindOf(err) == KindDecode }

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.StatusCode
	}
	return 0
}
