package identify

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrInvalidImage is returned when the image payload is missing,
	// malformed, not an image or too large. No network call is made.
	ErrInvalidImage = errors.New("invalid image")

	// ErrNotConfigured is returned when neither the recognizer nor a prompt
	// backend has credentials. No network call is made.
	ErrNotConfigured = errors.New("identification service not configured")

	// ErrNoMatch is returned when nothing in the image could be identified
	// with enough confidence.
	ErrNoMatch = errors.New("could not identify a plant in the image")
)

// UpstreamError wraps a failure of an external service.
type UpstreamError struct {
	Service string
	// Status is the upstream HTTP status, or 0 when the call never got a
	// response.
	Status int
	Err    error
}

func (e *UpstreamError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s failed with status %d: %v", e.Service, e.Status, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Service, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

type httpStatuser interface {
	HTTPStatus() int
}

// upstream wraps err as an UpstreamError. Cancellation of the caller's
// context is passed through unchanged.
func upstream(service string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	ue := &UpstreamError{Service: service, Err: err}
	var hs httpStatuser
	if errors.As(err, &hs) {
		ue.Status = hs.HTTPStatus()
	}
	return ue
}
