package common

import (
	"errors"
	"fmt"

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

// Error codes surfaced to callers.
const (
	CodeFileNotFound      = "FILE_NOT_FOUND"
	CodeMalformedSnapshot = "MALFORMED_SNAPSHOT"
	CodeValidation        = "VALIDATION_ERROR"
	CodeNotARepository    = "NOT_A_REPOSITORY"
	CodeExternalProcess   = "EXTERNAL_PROCESS_ERROR"
	CodeStore             = "STORE_ERROR"
	CodeIO                = "IO_ERROR"
	CodeExport            = "EXPORT_ERROR"
	CodeInvalidInput      = "INVALID_INPUT"
	CodeConfig            = "CONFIG_ERROR"
)

// Common application errors
var (
	ErrNotFound          = errors.New("resource not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInternal          = errors.New("internal error")
	ErrDatabase          = errors.New("database error")
	ErrValidation        = errors.New("validation failed")
	ErrFileNotFound      = errors.New("file not found")
	ErrMalformedSnapshot = errors.New("malformed snapshot")
	ErrNotARepository    = errors.New("not a git repository")
	ErrExternalProcess   = errors.New("external process failed")
	ErrIO                = errors.New("i/o error")
	ErrExport            = errors.New("export failed")
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Wrapf builds an AppError whose cause matches both sentinel and err under errors.Is.
func Wrapf(code string, sentinel, err error, format string, args ...any) *AppError {
	cause := sentinel
	if err != nil {
		cause = fmt.Errorf("%w: %w", sentinel, err)
	}
	return NewAppError(code, fmt.Sprintf(format, args...), cause)
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// ErrorCode returns the code of the outermost AppError in err's chain, or "" when there is none.
func ErrorCode(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
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

// GRPCStatus maps an application error onto a gRPC status error.
func GRPCStatus(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch ErrorCode(err) {
	case CodeFileNotFound:
		return NotFoundError(msg)
	case CodeMalformedSnapshot, CodeValidation, CodeInvalidInput:
		return InvalidArgumentError(msg)
	case CodeNotARepository:
		return status.Error(codes.FailedPrecondition, msg)
	case CodeExternalProcess:
		return status.Error(codes.Unavailable, msg)
	default:
		return InternalError(msg)
	}
}
