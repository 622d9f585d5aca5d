package model

import (
	"fmt"

	"github.com/pkg/errors"
)

// InvalidRuleError rejects a malformed recurrence rule before anything is materialized.
type InvalidRuleError struct {
	Field  string
	Reason string
}

func NewInvalidRuleError(field, format string, args ...any) error {
	return &InvalidRuleError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

func (e *InvalidRuleError) Error() string {
	return fmt.Sprintf("invalid rule: %s: %s", e.Field, e.Reason)
}

// NotFoundError means the referenced row does not exist (anymore).
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// InvalidTransitionError is returned for status changes the mutation API does not allow.
type InvalidTransitionError struct {
	From Status
	To   Status
	Role Role
}

func (e *InvalidTransitionError) Error() string {
	if e.Role != "" {
		return fmt.Sprintf("transition %s -> %s is not allowed for %s", e.From, e.To, e.Role)
	}
	return fmt.Sprintf("transition %s -> %s is not allowed", e.From, e.To)
}

// ForbiddenError is returned when an actor touches something outside its reach.
type ForbiddenError struct {
	ActorID string
	Reason  string
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("actor %s: %s", e.ActorID, e.Reason)
}

// TransientStoreError wraps connectivity and timeout failures of the backing store.
// Callers may retry the operation later.
type TransientStoreError struct {
	Op  string
	Err error
}

func (e *TransientStoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *TransientStoreError) Unwrap() error {
	return e.Err
}

func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

func IsInvalidTransition(err error) bool {
	var target *InvalidTransitionError
	return errors.As(err, &target)
}

func IsInvalidRule(err error) bool {
	var target *InvalidRuleError
	return errors.As(err, &target)
}

func IsTransient(err error) bool {
	var target *TransientStoreError
	return errors.As(err, &target)
}

func IsForbidden(err error) bool {
	var target *ForbiddenError
	return errors.As(err, &target)
}
