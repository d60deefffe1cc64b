package enrich

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a provider has no data for a trip.
var ErrNotFound = errors.New("no data at provider")

// ProviderError reports a transport or decoding failure at a provider.
type ProviderError struct {
	// Provider names the strategy or timetable backend.
	Provider string

	// Status is the HTTP status code, 0 if no response was received.
	Status int

	Err error
}

func (e *ProviderError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: HTTP %d: %v", e.Provider, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// IsProviderError reports whether err is a ProviderError.
func IsProviderError(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}
