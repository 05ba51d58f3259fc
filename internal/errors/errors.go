package errors

import (
	"errors"
	"fmt"
)

// AppError represents a structured application error
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates a new AppError
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	if appErr, ok := err.(*AppError); ok {
		return &AppError{
			Code:    appErr.Code,
			Message: message,
			Cause:   appErr,
		}
	}
	return &AppError{
		Code:    CodeInternalError,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an error with formatted additional context
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(format, args...))
}

// GetCode returns the error code if it's an AppError, otherwise returns "UNKNOWN"
func GetCode(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return "UNKNOWN"
}

// HasCode reports whether err (or anything it wraps) carries the given code
func HasCode(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// Predefined error codes
const (
	CodeInvalidMethod      = "INVALID_METHOD"
	CodeInvalidRank        = "INVALID_RANK"
	CodeInvalidInput       = "INVALID_INPUT"
	CodeEmptyGeneOverlap   = "EMPTY_GENE_OVERLAP"
	CodeExternalFitFailure = "EXTERNAL_FIT_FAILURE"
	CodeDimensionMismatch  = "DIMENSION_MISMATCH"
	CodeConfigInvalid      = "CONFIG_INVALID"
	CodeInternalError      = "INTERNAL_ERROR"
)

// Common error constructors

func InvalidMethod(message string) *AppError {
	return New(CodeInvalidMethod, message)
}

func InvalidRank(message string) *AppError {
	return New(CodeInvalidRank, message)
}

func InvalidInput(message string) *AppError {
	return New(CodeInvalidInput, message)
}

func EmptyGeneOverlap(message string) *AppError {
	return New(CodeEmptyGeneOverlap, message)
}

func ExternalFitFailure(stage string, cause error) *AppError {
	return &AppError{
		Code:    CodeExternalFitFailure,
		Message: fmt.Sprintf("%s external fit failed", stage),
		Cause:   cause,
	}
}

func DimensionMismatch(message string) *AppError {
	return New(CodeDimensionMismatch, message)
}

func ConfigInvalid(message string) *AppError {
	return New(CodeConfigInvalid, message)
}

func InternalError(message string) *AppError {
	return New(CodeInternalError, message)
}
