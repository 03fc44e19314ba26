//go:build linux

package goble

import (
	"time"

	"github.com/go-ble/ble"
	"github.com/go-ble/ble/linux"
	"github.com/go-ble/ble/linux/hci/cmd"
	"github.com/srg/bluecontrol/internal/device"
)

// scan timing in 0.625 ms slots; the controller accepts 0x0004 - 0x4000
const (
	scanSlot    = 625 * time.Microsecond
	maxScanSlot = 0x4000
)

type scanTiming struct {
	window   time.Duration
	interval time.Duration
}

var scanTimings = map[device.ScanMode]scanTiming{
	device.ScanModeLowPower:   {window: 512 * time.Millisecond, interval: 5120 * time.Millisecond},
	device.ScanModeBalanced:   {window: 1024 * time.Millisecond, interval: 4096 * time.Millisecond},
	device.ScanModeLowLatency: {window: 4096 * time.Millisecond, interval: 4096 * time.Millisecond},
}

func toSlots(d time.Duration) uint16 {
	slots := d / scanSlot
	if slots > maxScanSlot {
		slots = maxScanSlot
	}
	if slots < 0x0004 {
		slots = 0x0004
	}
	return uint16(slots)
}

// scanParameters maps a scan mode onto HCI active scan parameters
func scanParameters(mode device.ScanMode) *cmd.LESetScanParameters {
	timing, ok := scanTimings[mode]
	if !ok {
		timing = scanTimings[device.ScanModeBalanced]
	}
	return &cmd.LESetScanParameters{
		LEScanType:           0x01, // 0x01: active
		LEScanInterval:       toSlots(timing.interval),
		LEScanWindow:         toSlots(timing.window),
		OwnAddressType:       0x00, // 0x00: public
		ScanningFilterPolicy: 0x00, // 0x00: accept all
	}
}

func configureScan(dev ble.Device, mode device.ScanMode) error {
	ld, ok := dev.(*linux.Device)
	if !ok {
		return nil
	}
	return ld.HCI.Send(scanParameters(mode), nil)
}
