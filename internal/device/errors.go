package device

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// NotFoundError represents an error when a GATT resource is not found
type NotFoundError struct {
	Resource string   // "service", "characteristic"
	UUIDs    []string // [serviceUUID] or [serviceUUID, charUUID]
}

func (e *NotFoundError) Error() string {
	if len(e.UUIDs) == 0 {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	if len(e.UUIDs) == 1 {
		return fmt.Sprintf("%s %q not found", e.Resource, e.UUIDs[0])
	}
	return fmt.Sprintf("%s %q not found in service %q", e.Resource, e.UUIDs[len(e.UUIDs)-1], e.UUIDs[0])
}

// ConnectionState represents the specific kind of connection state failure
type ConnectionState string

const (
	NotConnected        ConnectionState = "not_connected"
	AlreadyConnected    ConnectionState = "already_connected"
	BluetoothOff        ConnectionState = "bluetooth_off"
	ServiceNotSupported ConnectionState = "service_not_supported"
)

// ConnectionError represents any connection-related problem
type ConnectionError struct {
	State ConnectionState
	Msg   string
}

// Error implements the error interface
func (e *ConnectionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.State)
	}
	return fmt.Sprintf("%s: %s", e.State, e.Msg)
}

// Is allows errors.Is to compare ConnectionError values by State
func (e *ConnectionError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*ConnectionError)
	if !ok {
		return false
	}
	return e.State == t.State
}

// Predefined sentinel errors for connection states
var (
	ErrNotConnected        = &ConnectionError{State: NotConnected}
	ErrAlreadyConnected    = &ConnectionError{State: AlreadyConnected}
	ErrBluetoothOff        = &ConnectionError{State: BluetoothOff, Msg: "bluetooth is turned off"}
	ErrServiceNotSupported = &ConnectionError{State: ServiceNotSupported}
)

// Operation errors
var (
	ErrTimeout            = errors.New("timeout")
	ErrUnsupported        = errors.New("unsupported")
	ErrScanAlreadyStarted = errors.New("scan already in progress")
)

// IsConnectionState reports whether err is a ConnectionError with the given state
func IsConnectionState(err error, state ConnectionState) bool {
	var cerr *ConnectionError
	if errors.As(err, &cerr) {
		return cerr.State == state
	}
	return false
}

// ScanFailureCode mirrors the platform scan failure codes
type ScanFailureCode int

const (
	ScanFailedAlreadyStarted         ScanFailureCode = 1
	ScanFailedRegistrationFailed     ScanFailureCode = 2
	ScanFailedInternalError          ScanFailureCode = 3
	ScanFailedFeatureUnsupported     ScanFailureCode = 4
	ScanFailedOutOfHardwareResources ScanFailureCode = 5
	ScanFailedScanningTooFrequently  ScanFailureCode = 6
)

func (c ScanFailureCode) String() string {
	switch c {
	case ScanFailedAlreadyStarted:
		return "already_started"
	case ScanFailedRegistrationFailed:
		return "registration_failed"
	case ScanFailedInternalError:
		return "internal_error"
	case ScanFailedFeatureUnsupported:
		return "feature_unsupported"
	case ScanFailedOutOfHardwareResources:
		return "out_of_hardware_resources"
	case ScanFailedScanningTooFrequently:
		return "scanning_too_frequently"
	default:
		return fmt.Sprintf("code_%d", int(c))
	}
}

// ScanFailedError reports a terminal failure of one scan session
type ScanFailedError struct {
	Code ScanFailureCode
	Err  error
}

func (e *ScanFailedError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("scan failed: %s (%d)", e.Code, int(e.Code))
	}
	return fmt.Sprintf("scan failed: %s (%d): %v", e.Code, int(e.Code), e.Err)
}

func (e *ScanFailedError) Unwrap() error {
	return e.Err
}

// NewScanFailedError classifies a backend scan error into a ScanFailedError.
// Returns nil for nil and context cancellation errors, which end a scan normally.
func NewScanFailedError(err error) *ScanFailedError {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}

	var sfe *ScanFailedError
	if errors.As(err, &sfe) {
		return sfe
	}

	code := ScanFailedInternalError
	switch {
	case errors.Is(err, ErrScanAlreadyStarted):
		code = ScanFailedAlreadyStarted
	case errors.Is(err, ErrBluetoothOff):
		code = ScanFailedRegistrationFailed
	case errors.Is(err, ErrUnsupported):
		code = ScanFailedFeatureUnsupported
	}
	return &ScanFailedError{Code: code, Err: err}
}

// NormalizeError maps known library error strings to structured error types.
// Returns wrapped errors to preserve original context.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}

	msg := err.Error()
	switch {
	case containsIgnoreCase(msg, "is bluetooth turned on"),
		containsIgnoreCase(msg, "bluetooth is turned off"):
		return fmt.Errorf("%w: %v", ErrBluetoothOff, err)
	case containsIgnoreCase(msg, "device not connected"):
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	case containsIgnoreCase(msg, "device already connected"):
		return fmt.Errorf("%w: %v", ErrAlreadyConnected, err)
	case containsIgnoreCase(msg, "already in progress"),
		containsIgnoreCase(msg, "already scanning"):
		return fmt.Errorf("%w: %v", ErrScanAlreadyStarted, err)
	case containsIgnoreCase(msg, "not supported"):
		return fmt.Errorf("%w: %v", ErrUnsupported, err)
	default:
		return err
	}
}

// containsIgnoreCase checks substring case-insensitively
func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
