package types

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrValidation marks input rejected at rule creation.
	ErrValidation = errors.New("validation failed")
	// ErrPriceUnavailable means neither the cache nor the fallback produced a price.
	ErrPriceUnavailable = errors.New("price unavailable")
	// ErrDelivery marks a failed notification send.
	ErrDelivery = errors.New("notification delivery failed")
	// ErrTransport marks a network or protocol failure talking to the exchange.
	ErrTransport = errors.New("exchange transport error")
	// ErrSchema means an exchange payload could not be decoded at all.
	ErrSchema   = errors.New("unexpected exchange payload")
	ErrNotFound = errors.New("not found")
)

// ValidationError carries the user-facing reason a rule was rejected.
// It matches ErrValidation with errors.Is.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func Validationf(format string, args ...interface{}) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}
