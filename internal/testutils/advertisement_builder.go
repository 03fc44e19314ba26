//go:build test

package testutils

import (
	"encoding/json"
	"fmt"

	"github.com/go-ble/ble"
	"github.com/srg/bluecontrol/internal/device"
)

// FakeAdvertisement is a plain device.Advertisement value for driving scanners in tests.
// IsConnectable only surfaces through BuildBLE.
type FakeAdvertisement struct {
	Name          string
	Address       string
	ServiceUUIDs  []string
	Signal        int
	IsConnectable bool
}

func (a *FakeAdvertisement) LocalName() string  { return a.Name }
func (a *FakeAdvertisement) Services() []string { return a.ServiceUUIDs }
func (a *FakeAdvertisement) RSSI() int          { return a.Signal }
func (a *FakeAdvertisement) Addr() string       { return a.Address }

// bleAdvertisement satisfies ble.Advertisement; fields not used by the bindings panic if called.
type bleAdvertisement struct {
	ble.Advertisement
	fake *FakeAdvertisement
}

func (a *bleAdvertisement) LocalName() string { return a.fake.Name }
func (a *bleAdvertisement) RSSI() int         { return a.fake.Signal }
func (a *bleAdvertisement) Connectable() bool { return a.fake.IsConnectable }
func (a *bleAdvertisement) Addr() ble.Addr    { return ble.NewAddr(a.fake.Address) }

func (a *bleAdvertisement) Services() []ble.UUID {
	var out []ble.UUID
	for _, s := range a.fake.ServiceUUIDs {
		out = append(out, ble.MustParse(s))
	}
	return out
}

// AdvertisementBuilder builds advertisements with a fluent API.
// The builder starts connectable, advertising the control service.
type AdvertisementBuilder struct {
	adv FakeAdvertisement
}

// NewAdvertisementBuilder creates a builder for a connectable control-service advertisement
func NewAdvertisementBuilder() *AdvertisementBuilder {
	return &AdvertisementBuilder{adv: FakeAdvertisement{
		ServiceUUIDs:  []string{device.ControlServiceUUID},
		Signal:        -50,
		IsConnectable: true,
	}}
}

func (b *AdvertisementBuilder) WithName(name string) *AdvertisementBuilder {
	b.adv.Name = name
	return b
}

func (b *AdvertisementBuilder) WithAddress(addr string) *AdvertisementBuilder {
	b.adv.Address = addr
	return b
}

func (b *AdvertisementBuilder) WithRSSI(rssi int) *AdvertisementBuilder {
	b.adv.Signal = rssi
	return b
}

// WithServices replaces the advertised service UUIDs; short or full form.
func (b *AdvertisementBuilder) WithServices(uuids ...string) *AdvertisementBuilder {
	b.adv.ServiceUUIDs = append([]string(nil), uuids...)
	return b
}

func (b *AdvertisementBuilder) WithConnectable(c bool) *AdvertisementBuilder {
	b.adv.IsConnectable = c
	return b
}

// FromJSON fills builder fields from a JSON string with format support.
// Only keys present in the JSON override the builder defaults. Panics on invalid JSON.
func (b *AdvertisementBuilder) FromJSON(jsonStrFmt string, args ...interface{}) *AdvertisementBuilder {
	jsonStr := fmt.Sprintf(jsonStrFmt, args...)

	var data struct {
		Name        *string  `json:"name"`
		Address     *string  `json:"address"`
		RSSI        *int     `json:"rssi"`
		Services    []string `json:"services"`
		Connectable *bool    `json:"connectable"`
	}
	if err := json.Unmarshal([]byte(jsonStr), &data); err != nil {
		panic(fmt.Sprintf("FromJSON: %v", err))
	}

	if data.Name != nil {
		b.adv.Name = *data.Name
	}
	if data.Address != nil {
		b.adv.Address = *data.Address
	}
	if data.RSSI != nil {
		b.adv.Signal = *data.RSSI
	}
	if data.Services != nil {
		b.adv.ServiceUUIDs = data.Services
	}
	if data.Connectable != nil {
		b.adv.IsConnectable = *data.Connectable
	}
	return b
}

// Build returns the advertisement as a device.Advertisement
func (b *AdvertisementBuilder) Build() *FakeAdvertisement {
	adv := b.adv
	adv.ServiceUUIDs = append([]string(nil), b.adv.ServiceUUIDs...)
	return &adv
}

// BuildBLE returns the advertisement as a go-ble ble.Advertisement
func (b *AdvertisementBuilder) BuildBLE() ble.Advertisement {
	return &bleAdvertisement{fake: b.Build()}
}
