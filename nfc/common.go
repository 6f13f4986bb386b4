package nfc

import (
	"errors"
	"strings"
	"time"
)

// Polling and enumeration constants
const (
	DefaultPollingInterval = 100 * time.Millisecond
	DefaultPollTimeout     = 20 * time.Second
	DeviceEnumRetries      = 3 // Number of retries for device enumeration
)

// Availability values reported by Reader.Availability.
const (
	AvailabilityAvailable    = "available"
	AvailabilityNotSupported = "not_supported"
	AvailabilityDisabled     = "disabled"
)

// Sentinel errors for reader operations
var (
	// ErrPollTimeout indicates no ISO-DEP tag entered the field before the poll deadline
	ErrPollTimeout = errors.New("polling tag timeout")

	// ErrNoTag indicates an operation needs a polled tag but none is active
	ErrNoTag = errors.New("no tag polled")

	// ErrTimeout indicates a timeout occurred during device communication
	ErrTimeout = errors.New("device operation timed out")

	// ErrDeviceClosed indicates the device connection was closed
	ErrDeviceClosed = errors.New("device closed")
)

// noCardError is returned when attempting to connect to a reader with no card present.
// This is a normal condition while polling and should not be treated as a device error.
type noCardError struct {
	ReaderName string
}

func (e *noCardError) Error() string {
	return "no card present in reader " + e.ReaderName
}

// IsNoCardError checks if an error indicates no card is present in the reader.
func IsNoCardError(err error) bool {
	if err == nil {
		return false
	}
	var noCard *noCardError
	if errors.As(err, &noCard) {
		return true
	}
	errLower := strings.ToLower(err.Error())
	return strings.Contains(errLower, "no card present") ||
		strings.Contains(errLower, "no smart card") ||
		strings.Contains(errLower, "card is not present")
}

// cardRemovedError indicates the card was removed during operation.
// This requires the device connection to be closed and reopened.
type cardRemovedError struct {
	Cause error
}

func (e *cardRemovedError) Error() string {
	if e.Cause != nil {
		return "card was removed: " + e.Cause.Error()
	}
	return "card was removed"
}

func (e *cardRemovedError) Unwrap() error {
	return e.Cause
}

// NewCardRemovedError creates a card removed error.
func NewCardRemovedError(cause error) error {
	return &cardRemovedError{Cause: cause}
}

// IsCardRemovedError checks if an error indicates the card was removed during operation.
// All card removal errors are created via NewCardRemovedError() at the device layer.
func IsCardRemovedError(err error) bool {
	if err == nil {
		return false
	}
	var cardRemoved *cardRemovedError
	return errors.As(err, &cardRemoved)
}

func IsTimeoutError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, ErrPollTimeout) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "Operation timed out") ||
		strings.Contains(errStr, "operation timed out") ||
		strings.Contains(errStr, "Timeout")
}

func IsDeviceClosedError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrDeviceClosed) {
		return true
	}
	return strings.Contains(err.Error(), "device closed")
}
