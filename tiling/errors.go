package tiling

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRequest marks client input that can never produce a tile.
	ErrInvalidRequest = errors.New("invalid tile request")
	// ErrUpstream marks a failed, timed out or empty upstream resolution.
	ErrUpstream = errors.New("upstream resolution failed")
	// ErrCacheUnavailable marks a transport failure talking to the cache store.
	ErrCacheUnavailable = errors.New("cache unavailable")
	// ErrInternalFault marks a defect inside this service.
	ErrInternalFault = errors.New("internal fault")
)

type RequestError struct {
	Field  string
	Reason string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s: %s %s", ErrInvalidRequest, e.Field, e.Reason)
}

func (e *RequestError) Is(target error) bool {
	return target == ErrInvalidRequest
}

func invalid(field string, format string, args ...interface{}) error {
	return &RequestError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
