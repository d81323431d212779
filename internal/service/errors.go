package service

import (
	"errors"
	"fmt"
)

var (
	ErrValidation           = errors.New("invalid request")
	ErrNotFound             = errors.New("not found")
	ErrGeneration           = errors.New("generation failed")
	ErrPersistence          = errors.New("storage failure")
	ErrPurchaseNotCompleted = errors.New("purchase is not completed")
	ErrInvalidTransition    = errors.New("purchase status does not allow this change")
	ErrMessageMismatch      = errors.New("message does not belong to this purchase")
	ErrBypassDisabled       = errors.New("test completion is disabled")
	ErrPaymentUnavailable   = errors.New("payment provider unavailable")
	ErrChannelUnavailable   = errors.New("delivery channel is not configured")
	ErrDelivery             = errors.New("delivery failed")
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func notFound(what string, id int64) error {
	return fmt.Errorf("%w: %s %d", ErrNotFound, what, id)
}

func persistence(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}
