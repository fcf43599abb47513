// Package errs defines the error taxonomy shared across the engine.
// Policy outcomes (blocked requests, quota violations) are NOT errors;
// they travel as Decision values. These types cover genuine failures.
package errs

import (
	"errors"
	"fmt"
	"time"
)

// ValidationError reports malformed input (negative amounts, bad timeframes).
type ValidationError struct {
	Field  string
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Detail
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Detail)
}

// NotFoundError reports an unknown account, plan, or alert.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ConcurrencyConflict reports a counter rollover race. It is retried
// internally and must never surface to callers.
type ConcurrencyConflict struct {
	AccountID string
}

func (e *ConcurrencyConflict) Error() string {
	return "concurrent period rollover for account " + e.AccountID
}

// UpstreamTimeout reports an analytics batch exceeding its budget.
// Callers degrade to the last-known-good cached result.
type UpstreamTimeout struct {
	Op     string
	Budget time.Duration
}

func (e *UpstreamTimeout) Error() string {
	return fmt.Sprintf("%s exceeded budget %s", e.Op, e.Budget)
}

// Validation creates a ValidationError.
func Validation(field, detail string) error {
	return &ValidationError{Field: field, Detail: detail}
}

// NotFound creates a NotFoundError.
func NotFound(resource, id string) error {
	return &NotFoundError{Resource: resource, ID: id}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsConflict reports whether err is a ConcurrencyConflict.
func IsConflict(err error) bool {
	var cc *ConcurrencyConflict
	return errors.As(err, &cc)
}

// IsTimeout reports whether err is an UpstreamTimeout.
func IsTimeout(err error) bool {
	var ut *UpstreamTimeout
	return errors.As(err, &ut)
}
