package scanner

import (
	"sort"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/srg/bluecontrol/internal/device"
)

// DiscoveredDevice is one peripheral seen during the current scan session
type DiscoveredDevice struct {
	Address  string    `json:"address"`
	Name     string    `json:"name,omitempty"` // empty when the peripheral never advertised a name
	RSSI     int       `json:"rssi"`
	LastSeen time.Time `json:"last_seen"`
}

// DisplayName returns the advertised name, or fallback when none was seen
func (d DiscoveredDevice) DisplayName(fallback string) string {
	if d.Name == "" {
		return fallback
	}
	return d.Name
}

// DeviceSet is an immutable snapshot of discovered devices, one entry per address, sorted by address
type DeviceSet []DiscoveredDevice

// Get returns the device with the given address
func (s DeviceSet) Get(address string) (DiscoveredDevice, bool) {
	address = device.NormalizeAddress(address)
	i := sort.Search(len(s), func(i int) bool { return s[i].Address >= address })
	if i < len(s) && s[i].Address == address {
		return s[i], true
	}
	return DiscoveredDevice{}, false
}

// Addresses returns the addresses in the set
func (s DeviceSet) Addresses() []string {
	out := make([]string, len(s))
	for i, d := range s {
		out[i] = d.Address
	}
	return out
}

// mergeAdvertisement folds a new advertisement into an existing record.
// The most recently seen non-empty name wins; an empty name keeps the previous one.
func mergeAdvertisement(existing DiscoveredDevice, adv device.Advertisement, now time.Time) DiscoveredDevice {
	merged := existing
	merged.RSSI = adv.RSSI()
	merged.LastSeen = now
	if name := adv.LocalName(); name != "" {
		merged.Name = name
	}
	return merged
}

func newDiscoveredDevice(address string, adv device.Advertisement, now time.Time) DiscoveredDevice {
	return DiscoveredDevice{
		Address:  address,
		Name:     adv.LocalName(),
		RSSI:     adv.RSSI(),
		LastSeen: now,
	}
}

func snapshot(devices *hashmap.Map[string, DiscoveredDevice]) DeviceSet {
	set := make(DeviceSet, 0, devices.Len())
	devices.Range(func(_ string, d DiscoveredDevice) bool {
		set = append(set, d)
		return true
	})
	sort.Slice(set, func(i, j int) bool { return set[i].Address < set[j].Address })
	return set
}
