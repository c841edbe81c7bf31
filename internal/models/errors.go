package models

import (
	"errors"
	"fmt"
)

// ValidationError rejects bad input: missing or ambiguous target,
// non-positive amount, malformed wallet address.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// NewValidationError builds a ValidationError with a formatted message.
func NewValidationError(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// NotFoundError covers absent records and records not owned by the caller.
// Ownership failures are deliberately indistinguishable from absence.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// ConflictError covers duplicate wallets and already-terminal records.
type ConflictError struct {
	Msg string
}

func (e *ConflictError) Error() string { return e.Msg }

// GatewayError wraps an upstream provider failure. The operation and
// attempted values are audited before this surfaces; HTTP callers only see a
// generic message.
type GatewayError struct {
	Op  string
	Err error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway %s failed: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

var (
	// ErrNotSucceeded is returned when a client confirms an intent the
	// provider does not consider succeeded.
	ErrNotSucceeded = errors.New("payment intent has not succeeded")
	// ErrAlreadyCanceled is returned when canceling a recurring donation
	// that is already canceled.
	ErrAlreadyCanceled = &ConflictError{Msg: "recurring donation already canceled"}
	// ErrWebhookSignature marks a webhook delivery that failed signature
	// verification, the only case where the webhook endpoint returns 400.
	ErrWebhookSignature = errors.New("webhook signature verification failed")
)
