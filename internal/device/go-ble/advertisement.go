package goble

import (
	"github.com/go-ble/ble"
	"github.com/srg/bluecontrol/internal/device"
)

// Advertisement is a copy of a ble.Advertisement taken inside the scan handler,
// so it stays valid after the handler returns and can be batched.
type Advertisement struct {
	localName string
	services  []string
	rssi      int
	addr      string
}

// NewAdvertisement snapshots adv into a device.Advertisement
func NewAdvertisement(adv ble.Advertisement) *Advertisement {
	bleServices := adv.Services()
	services := make([]string, 0, len(bleServices))
	for _, svc := range bleServices {
		services = append(services, svc.String())
	}

	addr := ""
	if a := adv.Addr(); a != nil {
		addr = device.NormalizeAddress(a.String())
	}

	return &Advertisement{
		localName: adv.LocalName(),
		services:  services,
		rssi:      adv.RSSI(),
		addr:      addr,
	}
}

func (a *Advertisement) LocalName() string  { return a.localName }
func (a *Advertisement) Services() []string { return a.services }
func (a *Advertisement) RSSI() int          { return a.rssi }
func (a *Advertisement) Addr() string       { return a.addr }
