//go:build !linux

package goble

import (
	"github.com/go-ble/ble"
	"github.com/srg/bluecontrol/internal/device"
)

// configureScan is a no-op where the OS owns scan timing
func configureScan(ble.Device, device.ScanMode) error {
	return nil
}
