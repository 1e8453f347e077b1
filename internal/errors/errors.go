// Package errors provides structured error handling for scanvault operations.
// It defines error codes, error types, and provides utilities for creating
// and handling errors with context and structured information.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents different types of errors that can occur.
type ErrorCode string

const (
	// General errors.
	CodeUnknown       ErrorCode = "UNKNOWN"
	CodeValidation    ErrorCode = "VALIDATION"
	CodeConfiguration ErrorCode = "CONFIGURATION"
	CodeTimeout       ErrorCode = "TIMEOUT"
	CodeCanceled      ErrorCode = "CANCELED"
	CodeNotFound      ErrorCode = "NOT_FOUND"
	CodeConflict      ErrorCode = "CONFLICT"

	// Report parsing and loading errors.
	CodeMalformedDocument ErrorCode = "MALFORMED_DOCUMENT"
	CodeMissingField      ErrorCode = "MISSING_FIELD"
	CodeInvalidValue      ErrorCode = "INVALID_VALUE"
	CodeInvalidEnum       ErrorCode = "INVALID_ENUM"
	CodeNoScan            ErrorCode = "NO_SCAN"
	CodeDuplicateScan     ErrorCode = "DUPLICATE_SCAN"
	CodeDocumentTooLarge  ErrorCode = "DOCUMENT_TOO_LARGE"

	// Database errors.
	CodeDatabaseConnection ErrorCode = "DATABASE_CONNECTION"
	CodeDatabaseQuery      ErrorCode = "DATABASE_QUERY"
	CodeDatabaseMigration  ErrorCode = "DATABASE_MIGRATION"
	CodeDatabaseTimeout    ErrorCode = "DATABASE_TIMEOUT"

	// File system errors.
	CodeFileNotFound   ErrorCode = "FILE_NOT_FOUND"
	CodeFilePermission ErrorCode = "FILE_PERMISSION"

	// Service errors.
	CodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	CodeServiceTimeout     ErrorCode = "SERVICE_TIMEOUT"
)

// ReportError represents a failure to parse or load a scan report.
// Element names the XML element being processed when the error occurred
// and Value holds the offending raw value, if there was one.
type ReportError struct {
	Code    ErrorCode
	Message string
	Element string
	Value   string
	Line    int
	Cause   error
}

// Error implements the error interface.
func (e *ReportError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Value != "" {
		msg += fmt.Sprintf(": %q", e.Value)
	}
	if e.Element != "" {
		msg += fmt.Sprintf(" (element: %s)", e.Element)
	}
	if e.Line > 0 {
		msg += fmt.Sprintf(" (line: %d)", e.Line)
	}
	return msg
}

// Unwrap returns the underlying error for error unwrapping.
func (e *ReportError) Unwrap() error {
	return e.Cause
}

// InElement records the element the error belongs to.
func (e *ReportError) InElement(element string) *ReportError {
	e.Element = element
	return e
}

// NewReportError creates a new report error with the specified code and message.
func NewReportError(code ErrorCode, message string) *ReportError {
	return &ReportError{
		Code:    code,
		Message: message,
	}
}

// NewReportValueError creates a report error that names an offending raw value.
func NewReportValueError(code ErrorCode, message, value string) *ReportError {
	return &ReportError{
		Code:    code,
		Message: message,
		Value:   value,
	}
}

// WrapReportError wraps an existing error as a report error.
func WrapReportError(code ErrorCode, message string, err error) *ReportError {
	return &ReportError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// DatabaseError represents database-related errors.
type DatabaseError struct {
	Code      ErrorCode
	Message   string
	Operation string
	Query     string
	Cause     error
	Context   map[string]interface{}
}

// Error implements the error interface.
func (e *DatabaseError) Error() string {
	if e.Operation != "" {
		return fmt.Sprintf("[%s] %s (operation: %s)", e.Code, e.Message, e.Operation)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *DatabaseError) Unwrap() error {
	return e.Cause
}

// WithQuery adds the SQL query that caused the error.
func (e *DatabaseError) WithQuery(query string) *DatabaseError {
	e.Query = query
	return e
}

// NewDatabaseError creates a new database error.
func NewDatabaseError(code ErrorCode, message string) *DatabaseError {
	return &DatabaseError{
		Code:    code,
		Message: message,
		Context: make(map[string]interface{}),
	}
}

// WrapDatabaseError wraps an existing error as a database error.
func WrapDatabaseError(code ErrorCode, message string, err error) *DatabaseError {
	return &DatabaseError{
		Code:    code,
		Message: message,
		Cause:   err,
		Context: make(map[string]interface{}),
	}
}

// ConfigError represents configuration-related errors.
type ConfigError struct {
	Code    ErrorCode
	Message string
	Field   string
	Value   interface{}
	Cause   error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("[%s] %s (field: %s)", e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// NewConfigError creates a new configuration error.
func NewConfigError(code ErrorCode, message string) *ConfigError {
	return &ConfigError{
		Code:    code,
		Message: message,
	}
}

// NewConfigFieldError creates a configuration error for a specific field.
func NewConfigFieldError(code ErrorCode, message, field string, value interface{}) *ConfigError {
	return &ConfigError{
		Code:    code,
		Message: message,
		Field:   field,
		Value:   value,
	}
}

// WrapConfigError wraps an existing error as a configuration error.
func WrapConfigError(code ErrorCode, message string, err error) *ConfigError {
	return &ConfigError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// ServiceError represents a failure of a collaborating service such as the
// worker pool or the report archive.
type ServiceError struct {
	Code    ErrorCode
	Service string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Service, e.Message)
}

// Unwrap returns the underlying error.
func (e *ServiceError) Unwrap() error {
	return e.Cause
}

// NewServiceError creates a new service error.
func NewServiceError(code ErrorCode, service, message string) *ServiceError {
	return &ServiceError{Code: code, Service: service, Message: message}
}

// WrapServiceError wraps an existing error as a service error.
func WrapServiceError(code ErrorCode, service, message string, err error) *ServiceError {
	return &ServiceError{Code: code, Service: service, Message: message, Cause: err}
}

// Utility functions for common error operations

// IsCode checks if an error, or any error it wraps, has a specific error code.
func IsCode(err error, code ErrorCode) bool {
	for e := err; e != nil; e = stderrors.Unwrap(e) {
		if c, ok := codeOf(e); ok && c == code {
			return true
		}
	}
	return false
}

// GetCode returns the code of the outermost coded error in the chain, so a
// wrapping error decides how the whole failure is reported.
func GetCode(err error) ErrorCode {
	for e := err; e != nil; e = stderrors.Unwrap(e) {
		if c, ok := codeOf(e); ok {
			return c
		}
	}
	return CodeUnknown
}

func codeOf(err error) (ErrorCode, bool) {
	switch e := err.(type) {
	case *ReportError:
		return e.Code, true
	case *DatabaseError:
		return e.Code, true
	case *ConfigError:
		return e.Code, true
	case *ServiceError:
		return e.Code, true
	default:
		return "", false
	}
}

// IsRetryable determines if an error indicates a retryable condition.
// Report errors never are: the same bytes fail the same way every time.
func IsRetryable(err error) bool {
	switch GetCode(err) {
	case CodeTimeout, CodeServiceTimeout, CodeDatabaseTimeout, CodeDatabaseConnection:
		return true
	default:
		return false
	}
}

// IsReportError reports whether err was produced while parsing or loading a report.
func IsReportError(err error) bool {
	var reportErr *ReportError
	return stderrors.As(err, &reportErr)
}

// Common error creation functions

// ErrMissingField creates an error for a required attribute or element that is absent.
func ErrMissingField(element, field string) *ReportError {
	return NewReportError(CodeMissingField, fmt.Sprintf("missing required attribute %q", field)).InElement(element)
}

// ErrInvalidEnum creates an error for an enumeration string outside the known set.
func ErrInvalidEnum(kind, value string) *ReportError {
	return NewReportValueError(CodeInvalidEnum, "invalid "+kind, value)
}

// ErrNoScan creates the error returned when a document has no run header.
func ErrNoScan() *ReportError {
	return NewReportError(CodeNoScan, "no scan found")
}

// ErrDatabaseConnection creates an error for database connection failures.
func ErrDatabaseConnection(err error) *DatabaseError {
	return WrapDatabaseError(CodeDatabaseConnection, "Failed to connect to database", err)
}

// ErrDatabaseQuery creates an error for database query failures.
func ErrDatabaseQuery(query string, err error) *DatabaseError {
	return WrapDatabaseError(CodeDatabaseQuery, "Database query failed", err).WithQuery(query)
}

// ErrNotFound creates an error for a stored resource that does not exist.
func ErrNotFound(resource, id string) *DatabaseError {
	err := NewDatabaseError(CodeNotFound, fmt.Sprintf("%s not found", resource))
	err.Context["id"] = id
	return err
}

// ErrConfigInvalid creates an error for invalid configuration.
func ErrConfigInvalid(field string, value interface{}) *ConfigError {
	return NewConfigFieldError(CodeValidation, "Invalid configuration value", field, value)
}

// ErrConfigMissing creates an error for missing required configuration.
func ErrConfigMissing(field string) *ConfigError {
	return NewConfigFieldError(CodeConfiguration, "Required configuration field missing", field, nil)
}
