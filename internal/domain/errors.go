package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrValidation     = errors.New("validation failed")
	ErrNotSupported   = errors.New("not supported")
	ErrStorageBackend = errors.New("storage backend failure")
)

// NotFoundError reports a missing device, conflict, item or version.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

type NotSupportedError struct {
	Operation string
}

func (e *NotSupportedError) Error() string {
	return fmt.Sprintf("%s is not supported", e.Operation)
}

func (e *NotSupportedError) Is(target error) bool {
	return target == ErrNotSupported
}

// StorageError wraps a failure from CouchDB or the change log database.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func (e *StorageError) Is(target error) bool {
	return target == ErrStorageBackend
}

func NewNotFound(entity, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}

func NewValidation(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

func NewNotSupported(operation string) error {
	return &NotSupportedError{Operation: operation}
}

func NewStorageError(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}

// IsNotFound reports whether err is, or wraps, a not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
