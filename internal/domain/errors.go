package domain

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	CodeInvalidFilename    ErrorCode = "INVALID_FILENAME"
	CodeInvalidContentType ErrorCode = "INVALID_CONTENT_TYPE"
	CodeInvalidByteSize    ErrorCode = "INVALID_BYTE_SIZE"
	CodeInvalidHash        ErrorCode = "INVALID_HASH"
	CodeNotFound           ErrorCode = "NOT_FOUND"
	CodeSessionExpired     ErrorCode = "SESSION_EXPIRED"
	CodeSessionConsumed    ErrorCode = "SESSION_CONSUMED"
	CodeStorageProvider    ErrorCode = "STORAGE_PROVIDER"
	CodeIntegrityMismatch  ErrorCode = "INGESTION_INTEGRITY_MISMATCH"
	CodeMalformedPayload   ErrorCode = "MALFORMED_TASK_PAYLOAD"
	CodeInternal           ErrorCode = "INTERNAL"
)

// Error is the only failure shape exposed past the pipeline boundary:
// a machine-readable code plus a human-readable message.
type Error struct {
	Code    ErrorCode
	Message string
	cause   error
}

func NewError(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func WrapError(code ErrorCode, err error, message string) *Error {
	return &Error{Code: code, Message: message, cause: err}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// CodeOf extracts the domain error code, or empty when err carries none.
func CodeOf(err error) ErrorCode {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}
