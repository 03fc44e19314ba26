package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/srg/bluecontrol/internal/config"
	"github.com/srg/bluecontrol/internal/device"
)

// Command-level errors
var (
	// ErrConnectionLost indicates the link dropped while the command held it.
	// This is distinct from device.ErrNotConnected, which means the device was never ready.
	ErrConnectionLost = errors.New("connection lost")
)

// FormatUserError renders err as a one-line message for the terminal
func FormatUserError(err error) string {
	if err == nil {
		return ""
	}

	var sfe *device.ScanFailedError
	var nf *device.NotFoundError
	var ve *config.ValidationError
	switch {
	case errors.Is(err, device.ErrBluetoothOff):
		return "Bluetooth is turned off; enable it and try again"
	case errors.Is(err, device.ErrServiceNotSupported):
		return fmt.Sprintf("device does not expose the control service: %v", err)
	case errors.Is(err, device.ErrAlreadyConnected):
		return fmt.Sprintf("a connection is already active: %v", err)
	case errors.Is(err, device.ErrNotConnected):
		return fmt.Sprintf("device is not connected: %v", err)
	case errors.Is(err, ErrConnectionLost):
		return "connection to the device was lost"
	case errors.As(err, &sfe):
		return fmt.Sprintf("scan failed (%s, code %d)", sfe.Code, int(sfe.Code))
	case errors.As(err, &nf):
		return nf.Error()
	case errors.As(err, &ve):
		return "invalid configuration: " + strings.Join(ve.Errors, "; ")
	default:
		return err.Error()
	}
}
