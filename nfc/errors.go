package nfc

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode represents a specific type of NFC error for programmatic handling.
type ErrorCode int

const (
	// Tag operation errors (100-199)
	ErrCodeNotSupported ErrorCode = iota + 100
	ErrCodeTagRemoved
	ErrCodeTransceiveFailed
	ErrCodeTagNotConnected
	ErrCodeInvalidData
	ErrCodeActivationFailed
)

const (
	// NDEF and memory errors (200-299)
	ErrCodeNDEFUnsupported ErrorCode = iota + 200
	ErrCodeNDEFFormat
	ErrCodeReadOnly
	ErrCodeAuthFailed
)

// NFCError provides structured error information for programmatic handling.
type NFCError struct {
	Code    ErrorCode
	Op      string // Operation that failed (e.g., "Transceive", "HistoricalBytes")
	TagUID  string // Optional: UID of tag involved
	Message string // Human-readable message
	Cause   error  // Underlying error
}

func (e *NFCError) Error() string {
	var sb strings.Builder
	if e.Op != "" {
		sb.WriteString(e.Op)
		sb.WriteString(": ")
	}
	sb.WriteString(e.Message)
	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}
	return sb.String()
}

func (e *NFCError) Unwrap() error {
	return e.Cause
}

func (e *NFCError) Is(target error) bool {
	if t, ok := target.(*NFCError); ok {
		return e.Code == t.Code
	}
	return false
}

// NewNotSupportedError creates an error for unsupported operations.
func NewNotSupportedError(op string) *NFCError {
	return &NFCError{
		Code:    ErrCodeNotSupported,
		Op:      op,
		Message: "operation not supported",
	}
}

// NewTagRemovedError creates an error for when a tag leaves the field mid-operation.
func NewTagRemovedError(op string, cause error) *NFCError {
	return &NFCError{
		Code:    ErrCodeTagRemoved,
		Op:      op,
		Message: "tag was lost",
		Cause:   cause,
	}
}

// NewTransceiveError creates an error for transceive failures.
func NewTransceiveError(op string, cause error) *NFCError {
	return &NFCError{
		Code:    ErrCodeTransceiveFailed,
		Op:      op,
		Message: "transceive failed",
		Cause:   cause,
	}
}

// NewNotConnectedError creates an error for operations on a tag that is not activated.
func NewNotConnectedError(op, tagUID string) *NFCError {
	return &NFCError{
		Code:    ErrCodeTagNotConnected,
		Op:      op,
		TagUID:  tagUID,
		Message: "tag not connected",
	}
}

// NewActivationError creates an error for a card whose activation data could not be read.
func NewActivationError(op, tagUID string, cause error) *NFCError {
	return &NFCError{
		Code:    ErrCodeActivationFailed,
		Op:      op,
		TagUID:  tagUID,
		Message: "activation data unavailable",
		Cause:   cause,
	}
}

// NewNDEFUnsupportedError creates an error for tags that carry no NDEF data area.
func NewNDEFUnsupportedError(op, tagUID string) *NFCError {
	return &NFCError{
		Code:    ErrCodeNDEFUnsupported,
		Op:      op,
		TagUID:  tagUID,
		Message: "NDEF not supported on tag",
	}
}

// NewNDEFFormatError creates an error for malformed NDEF data.
func NewNDEFFormatError(op string, cause error) *NFCError {
	return &NFCError{
		Code:    ErrCodeNDEFFormat,
		Op:      op,
		Message: "malformed NDEF data",
		Cause:   cause,
	}
}

// NewReadOnlyError creates an error for writes to a locked tag.
func NewReadOnlyError(op, tagUID string) *NFCError {
	return &NFCError{
		Code:    ErrCodeReadOnly,
		Op:      op,
		TagUID:  tagUID,
		Message: "tag is read-only",
	}
}

// NewAuthError creates an error for a MIFARE sector the key did not open.
func NewAuthError(op string, sector int, cause error) *NFCError {
	return &NFCError{
		Code:    ErrCodeAuthFailed,
		Op:      op,
		Message: fmt.Sprintf("authentication failed for sector %d", sector),
		Cause:   cause,
	}
}

// IsNotSupportedError checks if an error indicates an unsupported operation.
func IsNotSupportedError(err error) bool {
	if err == nil {
		return false
	}
	var nfcErr *NFCError
	if errors.As(err, &nfcErr) {
		return nfcErr.Code == ErrCodeNotSupported
	}
	// Fallback to string matching for backend errors
	errStr := err.Error()
	return strings.Contains(errStr, "not supported") ||
		strings.Contains(errStr, "Not Supported by Device")
}

// IsTagRemovedError checks if an error indicates the tag left the field.
func IsTagRemovedError(err error) bool {
	if err == nil {
		return false
	}
	var nfcErr *NFCError
	if errors.As(err, &nfcErr) && nfcErr.Code == ErrCodeTagRemoved {
		return true
	}
	if IsCardRemovedError(err) {
		return true
	}
	// Fallback to string matching
	errStr := err.Error()
	return strings.Contains(errStr, "tag removed") ||
		strings.Contains(errStr, "tag lost") ||
		strings.Contains(errStr, "Target Released")
}

// GetErrorCode extracts the ErrorCode from an error if it's an NFCError.
// Returns 0 if the error is not an NFCError.
func GetErrorCode(err error) ErrorCode {
	var nfcErr *NFCError
	if errors.As(err, &nfcErr) {
		return nfcErr.Code
	}
	return 0
}

// Errorf creates an NFCError with a formatted message.
func Errorf(code ErrorCode, op, format string, args ...interface{}) *NFCError {
	return &NFCError{
		Code:    code,
		Op:      op,
		Message: fmt.Sprintf(format, args...),
	}
}
