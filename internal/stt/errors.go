package stt

import (
	"errors"
	"fmt"
)

// ErrMissingJobID is returned when a submission succeeds without an id in the response.
var ErrMissingJobID = errors.New("missing job id")

// ProviderError is a structured response indicating a non-2xx HTTP response.
type ProviderError struct {
	Status int
	Body   string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("stt: status=%d: %s", e.Status, e.Body)
}

// StatusOf returns the provider status carried by err, or 0.
func StatusOf(err error) int {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Status
	}
	return 0
}
