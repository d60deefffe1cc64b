package livefeed

import (
	"errors"
	"fmt"
)

// UserInputError rejects an operation before anything was changed.
type UserInputError struct {
	Field   string
	Message string
}

func (e *UserInputError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// IsUserInputError reports whether err is a UserInputError.
func IsUserInputError(err error) bool {
	var ue *UserInputError
	return errors.As(err, &ue)
}
