// Package apperrors defines the error taxonomy shared by the workflow
// engine, schema validator and HTTP layer. Handlers map each type to a
// status code with errors.As; nothing here is retried internally.
package apperrors

import "fmt"

// NotFoundError means an entity referenced by id does not exist.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

// NewNotFound creates a NotFoundError
func NewNotFound(entity, id string) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

// ConflictError means a unique constraint was violated (duplicate client
// name, device serial, hardware code).
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

// NewConflict creates a ConflictError
func NewConflict(format string, args ...interface{}) *ConflictError {
	return &ConflictError{Message: fmt.Sprintf(format, args...)}
}

// InvalidStateError means a business rule was violated: missing transition
// payload, mismatched device count, inactive client, and so on.
type InvalidStateError struct {
	Message string
}

func (e *InvalidStateError) Error() string { return e.Message }

// NewInvalidState creates an InvalidStateError
func NewInvalidState(format string, args ...interface{}) *InvalidStateError {
	return &InvalidStateError{Message: fmt.Sprintf(format, args...)}
}

// ForbiddenError means the acting role does not satisfy the transition's
// role requirement.
type ForbiddenError struct {
	Message string
}

func (e *ForbiddenError) Error() string { return e.Message }

// NewForbidden creates a ForbiddenError
func NewForbidden(format string, args ...interface{}) *ForbiddenError {
	return &ForbiddenError{Message: fmt.Sprintf(format, args...)}
}

// InvalidTransitionError means no edge, forward or reverse, connects the
// two statuses. The message enumerates the valid next statuses.
type InvalidTransitionError struct {
	Message string
}

func (e *InvalidTransitionError) Error() string { return e.Message }

// NewInvalidTransition creates an InvalidTransitionError
func NewInvalidTransition(format string, args ...interface{}) *InvalidTransitionError {
	return &InvalidTransitionError{Message: fmt.Sprintf(format, args...)}
}
