package errors

import (
	"errors"
	"fmt"

	"github.com/jafarshop/bundles/internal/domain"
)

// ErrNotFound is returned when a resource is not found
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrUnauthorized is returned when authentication fails
type ErrUnauthorized struct {
	Message string
}

func (e *ErrUnauthorized) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "unauthorized"
}

// ErrConflict is returned when a uniqueness constraint is violated
// (duplicate promotion code, duplicate idempotency key)
type ErrConflict struct {
	Message string
}

func (e *ErrConflict) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "conflict"
}

// IsConflict reports whether err is a storage uniqueness conflict
func IsConflict(err error) bool {
	var conflict *ErrConflict
	return errors.As(err, &conflict)
}

// ErrValidation is returned when validation fails
type ErrValidation struct {
	Message string
	Fields  map[string]string
}

func (e *ErrValidation) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "validation failed"
}

// ErrInvalidStateTransition is returned when an invalid promotion status
// transition is attempted
type ErrInvalidStateTransition struct {
	From domain.PromotionStatus
	To   domain.PromotionStatus
}

func (e *ErrInvalidStateTransition) Error() string {
	return fmt.Sprintf("invalid state transition from %s to %s", e.From, e.To)
}

// ErrPlatformRejection is returned when the commerce platform rejects a
// promotion call. StatusCode follows HTTP semantics: 409 for conflicts
// (name/code already taken), 422 for validation rejections, anything else
// is unretryable.
type ErrPlatformRejection struct {
	StatusCode int
	Code       string // platform error code when available (e.g. "TAKEN")
	Message    string
	Payload    interface{} // last attempted payload, for verbose failure reporting
}

func (e *ErrPlatformRejection) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("platform rejected request (%d %s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("platform rejected request (%d): %s", e.StatusCode, e.Message)
}

// IsValidationRejection reports whether the rejection is a 422
func (e *ErrPlatformRejection) IsValidationRejection() bool {
	return e.StatusCode == 422
}

// IsNameConflict reports whether the rejection is a 409 naming/uniqueness conflict
func (e *ErrPlatformRejection) IsNameConflict() bool {
	return e.StatusCode == 409
}

// AsPlatformRejection unwraps err into an ErrPlatformRejection, if it is one
func AsPlatformRejection(err error) (*ErrPlatformRejection, bool) {
	var rejection *ErrPlatformRejection
	if errors.As(err, &rejection) {
		return rejection, true
	}
	return nil, false
}
