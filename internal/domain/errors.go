package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrValidation           = errors.New("validation failed")
	ErrCapacityExceeded     = errors.New("capacity exceeded")
	ErrNotFound             = errors.New("not found")
	ErrBlockedUser          = errors.New("user is blocked from reserving")
	ErrNotificationDelivery = errors.New("notification delivery failed")
	ErrEmptyCart            = errors.New("cart is empty")
	ErrInvalidIndex         = errors.New("invalid index")
)

// ValidationError names the offending field and why it was rejected.
type ValidationError struct {
	Field  string
	Reason string
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", ErrValidation, e.Reason)
	}
	return fmt.Sprintf("%s: %s %s", ErrValidation, e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// CapacityError reports the item and range that could not take the requested quantity.
type CapacityError struct {
	ItemID    int64
	ItemName  string
	Start     time.Time
	End       time.Time
	Requested int64
	Available int64
}

func (e *CapacityError) Error() string {
	name := e.ItemName
	if name == "" {
		name = fmt.Sprintf("item %d", e.ItemID)
	}
	return fmt.Sprintf("%s: %s from %s to %s (requested %d, available %d)",
		ErrCapacityExceeded, name,
		e.Start.Format(time.RFC3339), e.End.Format(time.RFC3339),
		e.Requested, e.Available)
}

func (e *CapacityError) Unwrap() error { return ErrCapacityExceeded }

// NotFoundError names the missing entity.
type NotFoundError struct {
	Entity string
	ID     int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d: %s", e.Entity, e.ID, ErrNotFound)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// CheckoutError collects one error per failed segment.
type CheckoutError struct {
	WorkspaceID int64
	Errors      []error
}

func (e *CheckoutError) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, err := range e.Errors {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("checkout of workspace %d failed: %s", e.WorkspaceID, strings.Join(msgs, "; "))
}

func (e *CheckoutError) Unwrap() []error { return e.Errors }

// Messages returns the user-facing reason for every failed segment.
func (e *CheckoutError) Messages() []string {
	msgs := make([]string, 0, len(e.Errors))
	for _, err := range e.Errors {
		msgs = append(msgs, err.Error())
	}
	return msgs
}
