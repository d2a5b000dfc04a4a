// Package errors provides structured error handling for Cleave
package errors

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/cleaveai/cleave/pkg/types"
)

// ErrorCode represents specific error codes
type ErrorCode string

const (
	// Validation errors
	ErrCodeInvalidArgument ErrorCode = "INVALID_ARGUMENT"
	ErrCodeMissingField    ErrorCode = "MISSING_FIELD"
	ErrCodeInvalidFormat   ErrorCode = "INVALID_FORMAT"

	// Engine errors
	ErrCodeEmbeddingUnavailable ErrorCode = "EMBEDDING_UNAVAILABLE"
	ErrCodeInvariantViolation   ErrorCode = "INVARIANT_VIOLATION"

	// Resource errors
	ErrCodeNotFound      ErrorCode = "NOT_FOUND"
	ErrCodeAlreadyExists ErrorCode = "ALREADY_EXISTS"

	// System errors
	ErrCodeInternal           ErrorCode = "INTERNAL_ERROR"
	ErrCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	ErrCodeTimeout            ErrorCode = "TIMEOUT"

	// Collaborator errors
	ErrCodeStorageError      ErrorCode = "STORAGE_ERROR"
	ErrCodeIndexError        ErrorCode = "INDEX_ERROR"
	ErrCodeGraphError        ErrorCode = "GRAPH_ERROR"
	ErrCodeParseError        ErrorCode = "PARSE_ERROR"
	ErrCodeEventError        ErrorCode = "EVENT_ERROR"
	ErrCodeConnectionFailed  ErrorCode = "CONNECTION_FAILED"
	ErrCodeTransactionFailed ErrorCode = "TRANSACTION_FAILED"

	// Configuration errors
	ErrCodeConfigError    ErrorCode = "CONFIG_ERROR"
	ErrCodeConfigNotFound ErrorCode = "CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  ErrorCode = "CONFIG_INVALID"

	// File system errors
	ErrCodeFileNotFound ErrorCode = "FILE_NOT_FOUND"
	ErrCodeFileTooLarge ErrorCode = "FILE_TOO_LARGE"
)

// CleaveError represents a structured error in Cleave
type CleaveError struct {
	Type       types.ErrorType        `json:"type"`
	Code       ErrorCode              `json:"code"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Cause      error                  `json:"-"`
	StackTrace string                 `json:"stack_trace,omitempty"`
}

// Error implements the error interface
func (e *CleaveError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s (caused by: %v)", e.Code, e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *CleaveError) Unwrap() error {
	return e.Cause
}

// WithDetail adds a detail to the error
func (e *CleaveError) WithDetail(key string, value interface{}) *CleaveError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithStackTrace adds a stack trace to the error
func (e *CleaveError) WithStackTrace() *CleaveError {
	e.StackTrace = getStackTrace()
	return e
}

// NewCleaveError creates a new Cleave error
func NewCleaveError(errType types.ErrorType, code ErrorCode, message string) *CleaveError {
	return &CleaveError{
		Type:    errType,
		Code:    code,
		Message: message,
	}
}

// NewCleaveErrorWithCause creates a new Cleave error with a cause
func NewCleaveErrorWithCause(errType types.ErrorType, code ErrorCode, message string, cause error) *CleaveError {
	return &CleaveError{
		Type:    errType,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Validation error constructors

func NewInvalidArgumentError(message string) *CleaveError {
	return NewCleaveError(types.ErrorTypeValidation, ErrCodeInvalidArgument, message)
}

func NewMissingFieldError(field string) *CleaveError {
	return NewCleaveError(types.ErrorTypeValidation, ErrCodeMissingField,
		fmt.Sprintf("missing required field: %s", field)).WithDetail("field", field)
}

func NewInvalidFormatError(field, expectedFormat string) *CleaveError {
	return NewCleaveError(types.ErrorTypeValidation, ErrCodeInvalidFormat,
		fmt.Sprintf("invalid format for field %s, expected: %s", field, expectedFormat)).
		WithDetail("field", field).WithDetail("expected_format", expectedFormat)
}

// Engine error constructors

func NewEmbeddingUnavailableError(message string, cause error) *CleaveError {
	return NewCleaveErrorWithCause(types.ErrorTypeExternal, ErrCodeEmbeddingUnavailable, message, cause)
}

func NewInvariantViolationError(message string) *CleaveError {
	return NewCleaveError(types.ErrorTypeInternal, ErrCodeInvariantViolation, message).WithStackTrace()
}

// Resource error constructors

func NewNotFoundError(resource string) *CleaveError {
	return NewCleaveError(types.ErrorTypeNotFound, ErrCodeNotFound,
		fmt.Sprintf("%s not found", resource)).WithDetail("resource", resource)
}

func NewAlreadyExistsError(resource string) *CleaveError {
	return NewCleaveError(types.ErrorTypeValidation, ErrCodeAlreadyExists,
		fmt.Sprintf("%s already exists", resource)).WithDetail("resource", resource)
}

// System error constructors

func NewInternalError(message string) *CleaveError {
	return NewCleaveError(types.ErrorTypeInternal, ErrCodeInternal, message)
}

func NewInternalErrorWithCause(message string, cause error) *CleaveError {
	return NewCleaveErrorWithCause(types.ErrorTypeInternal, ErrCodeInternal, message, cause)
}

func NewServiceUnavailableError(service string) *CleaveError {
	return NewCleaveError(types.ErrorTypeExternal, ErrCodeServiceUnavailable,
		fmt.Sprintf("%s service is unavailable", service)).WithDetail("service", service)
}

func NewTimeoutError(operation string) *CleaveError {
	return NewCleaveError(types.ErrorTypeInternal, ErrCodeTimeout,
		fmt.Sprintf("%s operation timed out", operation)).WithDetail("operation", operation)
}

// Collaborator error constructors

func NewStorageError(message string, cause error) *CleaveError {
	return NewCleaveErrorWithCause(types.ErrorTypeInternal, ErrCodeStorageError, message, cause)
}

func NewIndexError(message string, cause error) *CleaveError {
	return NewCleaveErrorWithCause(types.ErrorTypeExternal, ErrCodeIndexError, message, cause)
}

func NewGraphError(message string, cause error) *CleaveError {
	return NewCleaveErrorWithCause(types.ErrorTypeExternal, ErrCodeGraphError, message, cause)
}

func NewParseError(message string, cause error) *CleaveError {
	return NewCleaveErrorWithCause(types.ErrorTypeValidation, ErrCodeParseError, message, cause)
}

func NewEventError(message string, cause error) *CleaveError {
	return NewCleaveErrorWithCause(types.ErrorTypeExternal, ErrCodeEventError, message, cause)
}

func NewConnectionFailedError(target string) *CleaveError {
	return NewCleaveError(types.ErrorTypeExternal, ErrCodeConnectionFailed,
		fmt.Sprintf("failed to connect to %s", target)).WithDetail("target", target)
}

func NewTransactionFailedError(cause error) *CleaveError {
	return NewCleaveErrorWithCause(types.ErrorTypeInternal, ErrCodeTransactionFailed,
		"transaction failed", cause)
}

// Configuration error constructors

func NewConfigError(message string) *CleaveError {
	return NewCleaveError(types.ErrorTypeValidation, ErrCodeConfigError, message)
}

func NewConfigNotFoundError(configPath string) *CleaveError {
	return NewCleaveError(types.ErrorTypeNotFound, ErrCodeConfigNotFound,
		fmt.Sprintf("configuration file not found: %s", configPath)).WithDetail("config_path", configPath)
}

func NewConfigInvalidError(message string) *CleaveError {
	return NewCleaveError(types.ErrorTypeValidation, ErrCodeConfigInvalid, message)
}

// File system error constructors

func NewFileNotFoundError(filePath string) *CleaveError {
	return NewCleaveError(types.ErrorTypeNotFound, ErrCodeFileNotFound,
		fmt.Sprintf("file not found: %s", filePath)).WithDetail("file_path", filePath)
}

func NewFileTooLargeError(filePath string, size, limit int64) *CleaveError {
	return NewCleaveError(types.ErrorTypeValidation, ErrCodeFileTooLarge,
		fmt.Sprintf("file %s exceeds size limit", filePath)).
		WithDetail("file_path", filePath).WithDetail("size", size).WithDetail("limit", limit)
}

// Helper functions

func getStackTrace() string {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:])
	frames := runtime.CallersFrames(pcs[:n])

	var trace strings.Builder
	for {
		frame, more := frames.Next()
		if !more {
			break
		}
		trace.WriteString(fmt.Sprintf("%s:%d %s\n", frame.File, frame.Line, frame.Function))
	}

	return trace.String()
}

// IsCleaveError checks if an error is a CleaveError
func IsCleaveError(err error) bool {
	_, ok := err.(*CleaveError)
	return ok
}

// GetCleaveError extracts a CleaveError from an error
func GetCleaveError(err error) *CleaveError {
	if cleaveErr, ok := err.(*CleaveError); ok {
		return cleaveErr
	}
	return nil
}

// hasCode reports whether err is a CleaveError carrying the given code
func hasCode(err error, code ErrorCode) bool {
	cleaveErr := GetCleaveError(err)
	return cleaveErr != nil && cleaveErr.Code == code
}

// IsInvalidArgument checks for the INVALID_ARGUMENT code
func IsInvalidArgument(err error) bool {
	return hasCode(err, ErrCodeInvalidArgument)
}

// IsEmbeddingUnavailable checks for the EMBEDDING_UNAVAILABLE code
func IsEmbeddingUnavailable(err error) bool {
	return hasCode(err, ErrCodeEmbeddingUnavailable)
}

// IsInvariantViolation checks for the INVARIANT_VIOLATION code
func IsInvariantViolation(err error) bool {
	return hasCode(err, ErrCodeInvariantViolation)
}

// IsNotFound checks for not-found errors of any kind: resources, files,
// configuration paths
func IsNotFound(err error) bool {
	cleaveErr := GetCleaveError(err)
	return cleaveErr != nil && cleaveErr.Type == types.ErrorTypeNotFound
}

// WrapError wraps an error as a CleaveError
func WrapError(err error, errType types.ErrorType, code ErrorCode, message string) *CleaveError {
	return NewCleaveErrorWithCause(errType, code, message, err)
}

// ErrorList represents a list of errors
type ErrorList struct {
	Errors []*CleaveError `json:"errors"`
}

// Error implements the error interface
func (el *ErrorList) Error() string {
	var messages []string
	for _, err := range el.Errors {
		messages = append(messages, err.Error())
	}
	return strings.Join(messages, "; ")
}

// Add adds an error to the list
func (el *ErrorList) Add(err *CleaveError) {
	el.Errors = append(el.Errors, err)
}

// HasErrors returns true if there are errors
func (el *ErrorList) HasErrors() bool {
	return len(el.Errors) > 0
}

// ToError returns the ErrorList as an error if it has errors, otherwise nil
func (el *ErrorList) ToError() error {
	if el.HasErrors() {
		return el
	}
	return nil
}

// NewErrorList creates a new error list
func NewErrorList() *ErrorList {
	return &ErrorList{
		Errors: make([]*CleaveError, 0),
	}
}

// Collect collects multiple errors into an ErrorList
func Collect(errors ...*CleaveError) *ErrorList {
	el := NewErrorList()
	for _, err := range errors {
		if err != nil {
			el.Add(err)
		}
	}
	return el
}
