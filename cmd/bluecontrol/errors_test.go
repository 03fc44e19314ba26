package main

import (
	"errors"
	"fmt"
	"testing"

	"github.com/srg/bluecontrol/internal/config"
	"github.com/srg/bluecontrol/internal/device"
	"github.com/stretchr/testify/assert"
)

func TestFormatUserError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{name: "nil", err: nil, expected: ""},
		{
			name:     "bluetooth off",
			err:      fmt.Errorf("failed to open BLE adapter: %w", device.ErrBluetoothOff),
			expected: "Bluetooth is turned off; enable it and try again",
		},
		{
			name:     "connection lost",
			err:      ErrConnectionLost,
			expected: "connection to the device was lost",
		},
		{
			name:     "scan failure",
			err:      &device.ScanFailedError{Code: device.ScanFailedScanningTooFrequently},
			expected: "scan failed (scanning_too_frequently, code 6)",
		},
		{
			name:     "not found",
			err:      fmt.Errorf("lookup: %w", &device.NotFoundError{Resource: "service", UUIDs: []string{"180f"}}),
			expected: `service "180f" not found`,
		},
		{
			name: "validation errors are joined on one line",
			err: fmt.Errorf("load: %w", &config.ValidationError{Errors: []string{
				"scan.mode: \"x\" must be low_power, balanced or low_latency",
				"connection.retry_count must be >= 0",
			}}),
			expected: "invalid configuration: scan.mode: \"x\" must be low_power, balanced or low_latency; connection.retry_count must be >= 0",
		},
		{
			name:     "other errors pass through",
			err:      errors.New("boom"),
			expected: "boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatUserError(tt.err))
		})
	}
}

func TestFormatVersion(t *testing.T) {
	assert.Equal(t, "v1.2.3", formatVersion("1.2.3"))
	assert.Equal(t, "dev", formatVersion("dev"))
	assert.Equal(t, "", formatVersion(""))
}
