package billing

import "errors"

var (
	// ErrNotFound is returned when a referenced account or plan does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidPlan is returned for inactive plans or plans missing fields required by their type.
	ErrInvalidPlan = errors.New("invalid plan")
	// ErrUsageTracking is returned when a usage increment or its ledger entry could not be persisted.
	ErrUsageTracking = errors.New("usage tracking failed")
	// ErrValidation is returned for malformed input.
	ErrValidation = errors.New("validation failed")
	// ErrConcurrentUpdate is returned when the account changed between read and write.
	ErrConcurrentUpdate = errors.New("account was modified concurrently")
	// ErrUsageLimitExceeded is returned when a hard usage limit blocks an increment.
	ErrUsageLimitExceeded = errors.New("usage limit exceeded")
	// ErrInvalidTransition is returned when a lifecycle operation is not allowed from the current status.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrPaymentFailed is returned when the payment processor declines a charge.
	ErrPaymentFailed = errors.New("payment failed")
)
