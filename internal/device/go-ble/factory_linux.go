//go:build linux

package goble

import (
	"time"

	"github.com/go-ble/ble"
	"github.com/go-ble/ble/linux"
)

const dialerTimeout = 20 * time.Second

func newPlatformDevice() (ble.Device, error) {
	return linux.NewDevice(ble.OptDialerTimeout(dialerTimeout))
}
