package status

import (
	"errors"
	"fmt"
)

// ProtocolErrorCode categorizes rejected webhook deliveries.
type ProtocolErrorCode string

const (
	// ErrCodeMalformed indicates the body could not be decoded.
	ErrCodeMalformed ProtocolErrorCode = "MALFORMED"

	// ErrCodeUnknownReason indicates a reason the live feed ignores.
	ErrCodeUnknownReason ProtocolErrorCode = "UNKNOWN_REASON"

	// ErrCodeNoDestination indicates a status without a destination station.
	ErrCodeNoDestination ProtocolErrorCode = "NO_DESTINATION"

	// ErrCodeUnauthorized indicates a missing or unknown webhook token.
	ErrCodeUnauthorized ProtocolErrorCode = "UNAUTHORIZED"
)

// ProtocolError reports a webhook delivery that cannot be processed.
type ProtocolError struct {
	Code    ProtocolErrorCode
	Message string
	Err     error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// IsProtocolError reports whether err is a ProtocolError.
func IsProtocolError(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}

// IsIgnorable reports whether err marks a well-formed delivery the live feed
// deliberately does not process.
func IsIgnorable(err error) bool {
	var pe *ProtocolError
	if !errors.As(err, &pe) {
		return false
	}
	return pe.Code == ErrCodeUnknownReason || pe.Code == ErrCodeNoDestination
}
