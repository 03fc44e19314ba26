//go:build linux

package goble

import (
	"testing"
	"time"

	"github.com/srg/bluecontrol/internal/device"
	"github.com/stretchr/testify/assert"
)

func TestScanParameters(t *testing.T) {
	tests := []struct {
		mode     device.ScanMode
		window   uint16
		interval uint16
	}{
		{device.ScanModeLowPower, 819, 8192},
		{device.ScanModeBalanced, 1638, 6553},
		{device.ScanModeLowLatency, 6553, 6553},
		{device.ScanMode(42), 1638, 6553},
	}

	for _, tt := range tests {
		t.Run(tt.mode.String(), func(t *testing.T) {
			p := scanParameters(tt.mode)
			assert.Equal(t, uint8(0x01), p.LEScanType, "scan MUST be active")
			assert.Equal(t, tt.window, p.LEScanWindow)
			assert.Equal(t, tt.interval, p.LEScanInterval)
			assert.LessOrEqual(t, p.LEScanWindow, p.LEScanInterval, "window MUST NOT exceed interval")
		})
	}
}

func TestToSlotsClamps(t *testing.T) {
	assert.Equal(t, uint16(0x0004), toSlots(time.Microsecond))
	assert.Equal(t, uint16(0x4000), toSlots(time.Minute))
	assert.Equal(t, uint16(16), toSlots(10*time.Millisecond))
}
