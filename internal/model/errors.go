package model

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

var (
	ErrValidation          = errors.New("validation error")
	ErrNotFound            = errors.New("not found")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrMalformedVerdict    = errors.New("malformed verdict")
	ErrConflict            = errors.New("conflict")
	ErrClaimBusy           = errors.New("claim is already being analyzed")
	ErrTranscriptFrozen    = errors.New("transcript is read-only")
)

// Validationf wraps ErrValidation with a formatted message
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NotFoundError names the entity that could not be found
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// UpstreamError describes a failed call to an external service
type UpstreamError struct {
	Service    string // "openai", "google-search", ...
	Op         string
	StatusCode int // 0 when no HTTP response was received
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: status %d: %v", e.Service, e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Service, e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

func (e *UpstreamError) Is(target error) bool {
	return target == ErrUpstreamUnavailable
}

// Temporary reports whether retrying the call could succeed
func (e *UpstreamError) Temporary() bool {
	switch {
	case e.StatusCode == http.StatusTooManyRequests:
		return true
	case e.StatusCode >= 500:
		return true
	case e.StatusCode != 0:
		return false
	}
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(e.Err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	return errors.As(e.Err, &opErr)
}

// IsTransient reports whether err is an upstream failure worth one retry
func IsTransient(err error) bool {
	var up *UpstreamError
	if errors.As(err, &up) {
		return up.Temporary()
	}
	return false
}

// MalformedVerdictError keeps the raw model output that could not be parsed
type MalformedVerdictError struct {
	Raw string
	Err error
}

func (e *MalformedVerdictError) Error() string {
	return fmt.Sprintf("malformed verdict: %v", e.Err)
}

func (e *MalformedVerdictError) Unwrap() error { return e.Err }

func (e *MalformedVerdictError) Is(target error) bool {
	return target == ErrMalformedVerdict
}
