package provider

import (
	"errors"
	"fmt"
)

// Error is a failure reported by the provider. Message is the provider's own text.
type Error struct {
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("provider error %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("provider error %d: %s", e.Status, e.Message)
}

// AsError returns the provider error in err's chain, if any.
func AsError(err error) (*Error, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
