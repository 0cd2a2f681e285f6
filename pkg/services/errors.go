package services

import (
	"fmt"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidBranchPoint = errors.New("root message does not belong to this conversation")
	ErrConflict           = errors.New("conflict")
	ErrStorage            = errors.New("storage failure")
)

// NotFoundError reports a missing (or not owned) resource.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ValidationError reports caller input that must be corrected.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func (e *ValidationError) Is(target error) bool { return target == ErrInvalidInput }

// StorageError wraps a database failure. Its detail is for logs only.
type StorageError struct {
	Err error
}

func (e *StorageError) Error() string { return e.Err.Error() }
func (e *StorageError) Unwrap() error { return e.Err }
func (e *StorageError) Is(target error) bool {
	return target == ErrStorage
}

func notFound(resource, id string) error {
	return &NotFoundError{Resource: resource, ID: id}
}

func invalid(field, msg string) error {
	return &ValidationError{Field: field, Message: msg}
}

func conflict(msg string) error {
	return errors.Wrap(ErrConflict, msg)
}

// storageError passes domain errors through untouched and wraps everything
// else as a StorageError annotated with op.
func storageError(err error, op string) error {
	if err == nil {
		return nil
	}
	if isDomainError(err) {
		return err
	}
	return &StorageError{Err: errors.Wrap(err, op)}
}

func isDomainError(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrInvalidBranchPoint) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrStorage)
}

func isRecordNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
