package common

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
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
	ErrNotFound       = errors.New("resource not found")
	ErrInvalidInput   = errors.New("invalid input")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrInternal       = errors.New("internal error")
	ErrDatabase       = errors.New("database error")
	ErrValidation     = errors.New("validation failed")
	ErrDuplicate      = errors.New("already exists")
	ErrUpload         = errors.New("upload failed")
	ErrSubmission     = errors.New("submission failed")
	ErrReconciliation = errors.New("reconciliation incomplete")
)

// Error codes carried by AppError.Code.
const (
	CodeValidation     = "VALIDATION_ERROR"
	CodeUpload         = "UPLOAD_ERROR"
	CodeSubmission     = "SUBMISSION_ERROR"
	CodeNotFound       = "NOT_FOUND"
	CodeDuplicate      = "DUPLICATE"
	CodeReconciliation = "RECONCILIATION_WARNING"
	CodeUnauthorized   = "UNAUTHORIZED"
	CodeDatabase       = "DB_ERROR"
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewValidationError rejects user input; the message is safe to show to callers.
func NewValidationError(message string) *AppError {
	return NewAppError(CodeValidation, message, ErrValidation)
}

// NewUploadError wraps a failed transfer to the provider.
func NewUploadError(message string, cause error) *AppError {
	return NewAppError(CodeUpload, message, withKind(ErrUpload, cause))
}

// NewSubmissionError wraps a rejected or unreachable job submission.
func NewSubmissionError(message string, cause error) *AppError {
	return NewAppError(CodeSubmission, message, withKind(ErrSubmission, cause))
}

// NewNotFoundError reports an unknown resource.
func NewNotFoundError(message string) *AppError {
	return NewAppError(CodeNotFound, message, ErrNotFound)
}

// NewReconciliationWarning reports a partial or failed sync with the provider.
func NewReconciliationWarning(message string, cause error) *AppError {
	return NewAppError(CodeReconciliation, message, withKind(ErrReconciliation, cause))
}

// NewDatabaseError wraps a failed storage operation.
func NewDatabaseError(message string, cause error) *AppError {
	return NewAppError(CodeDatabase, message, withKind(ErrDatabase, cause))
}

func withKind(kind, cause error) error {
	if cause == nil {
		return kind
	}
	return fmt.Errorf("%w: %w", kind, cause)
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// PublicMessage returns the caller-facing part of err.
func PublicMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "internal error"
}

// HTTPStatus maps an error to the status code served by the HTTP API.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation), errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, ErrUpload), errors.Is(err, ErrSubmission):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// GRPCStatus maps an error to a gRPC status error.
func GRPCStatus(err error) error {
	if err == nil {
		return nil
	}
	msg := PublicMessage(err)
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, ErrInvalidInput):
		return InvalidArgumentError(msg)
	case errors.Is(err, ErrUnauthorized):
		return status.Error(codes.Unauthenticated, msg)
	case errors.Is(err, ErrNotFound):
		return NotFoundError(msg)
	case errors.Is(err, ErrDuplicate):
		return status.Error(codes.AlreadyExists, msg)
	case errors.Is(err, ErrUpload), errors.Is(err, ErrSubmission):
		return status.Error(codes.Unavailable, msg)
	default:
		return InternalError(msg)
	}
}

// gRPC error helpers
func InvalidArgumentError(message string) error {
	return status.Error(codes.InvalidArgument, message)
}

func NotFoundError(message string) error {
	return status.Error(codes.NotFound, message)
}

func InternalError(message string) error {
	return status.Error(codes.Internal, message)
}

func InvalidArgumentErrorf(format string, args ...interface{}) error {
	return InvalidArgumentError(fmt.Sprintf(format, args...))
}
