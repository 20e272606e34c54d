package common

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Common application errors
var (
	ErrNotFound          = errors.New("resource not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrDatabase          = errors.New("database error")
	ErrValidation        = errors.New("validation failed")
	ErrUnsupportedFormat = errors.New("unsupported statement format")
	ErrDuplicateContent  = errors.New("statement content already uploaded")
	ErrConflict          = errors.New("resource is in a conflicting state")
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// UnsupportedFormatError reports a file extension outside the accepted set.
func UnsupportedFormatError(ext string) error {
	return NewAppError("UNSUPPORTED_FORMAT", fmt.Sprintf("extension %q is not one of csv, xls, xlsx", ext), ErrUnsupportedFormat)
}

// DuplicateContentError is returned by uploads whose bytes are already stored.
type DuplicateContentError struct {
	ExistingFileID uuid.UUID
	ContentHash    string
}

func (e *DuplicateContentError) Error() string {
	return fmt.Sprintf("content %s already uploaded as file %s", e.ContentHash, e.ExistingFileID)
}

func (e *DuplicateContentError) Unwrap() error {
	return ErrDuplicateContent
}

// StatusCode maps an error onto the closest canonical status code.
// HTTP and gRPC surfaces translate from it.
func StatusCode(err error) codes.Code {
	switch {
	case err == nil:
		return codes.OK
	case errors.Is(err, ErrDuplicateContent):
		return codes.AlreadyExists
	case errors.Is(err, ErrNotFound):
		return codes.NotFound
	case errors.Is(err, ErrConflict):
		return codes.FailedPrecondition
	case errors.Is(err, ErrUnsupportedFormat):
		return codes.Unimplemented
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrValidation):
		return codes.InvalidArgument
	default:
		return codes.Internal
	}
}
