//go:build test

package testutils

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/srg/bluecontrol/internal/device"
)

// FakeAdapter is an in-memory device.Adapter.
//
// Each Scan call publishes its receiver on Receivers() and blocks until the scan
// context is cancelled or FailScan injects an error. Peripherals registered with
// AddPeripheral are reachable through RemoteDevice.
type FakeAdapter struct {
	mu          sync.Mutex
	scanCalls   int
	activeScans int
	settings    []device.ScanSettings
	pendingErr  error
	failCh      chan error
	receivers   chan device.ScanReceiver
	peripherals map[string]*FakePeripheral
}

// NewFakeAdapter creates an adapter with no peripherals
func NewFakeAdapter() *FakeAdapter {
	return &FakeAdapter{
		failCh:      make(chan error, 1),
		receivers:   make(chan device.ScanReceiver, 16),
		peripherals: make(map[string]*FakePeripheral),
	}
}

func (a *FakeAdapter) Scan(ctx context.Context, settings device.ScanSettings, receiver device.ScanReceiver) error {
	a.mu.Lock()
	a.scanCalls++
	a.settings = append(a.settings, settings)
	if err := a.pendingErr; err != nil {
		a.pendingErr = nil
		a.mu.Unlock()
		return err
	}
	a.activeScans++
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		a.activeScans--
		a.mu.Unlock()
	}()

	a.receivers <- receiver

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-a.failCh:
		return err
	}
}

// FailNextScan makes the next Scan call return err immediately
func (a *FakeAdapter) FailNextScan(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pendingErr = err
}

// FailScan ends the running scan with err
func (a *FakeAdapter) FailScan(err error) {
	a.failCh <- err
}

// Receivers delivers the receiver of every started scan
func (a *FakeAdapter) Receivers() <-chan device.ScanReceiver {
	return a.receivers
}

// NextReceiver waits for the next scan to start
func (a *FakeAdapter) NextReceiver(timeout time.Duration) (device.ScanReceiver, error) {
	select {
	case r := <-a.receivers:
		return r, nil
	case <-time.After(timeout):
		return nil, errors.New("timed out waiting for scan to start")
	}
}

func (a *FakeAdapter) ScanCalls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.scanCalls
}

func (a *FakeAdapter) ActiveScans() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.activeScans
}

// LastSettings returns the settings of the most recent Scan call
func (a *FakeAdapter) LastSettings() device.ScanSettings {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.settings) == 0 {
		return device.ScanSettings{}
	}
	return a.settings[len(a.settings)-1]
}

// AddPeripheral registers p under its address
func (a *FakeAdapter) AddPeripheral(p *FakePeripheral) *FakeAdapter {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.peripherals[device.NormalizeAddress(p.address)] = p
	return a
}

func (a *FakeAdapter) RemoteDevice(address string) (device.RemoteDevice, error) {
	address = device.NormalizeAddress(address)
	if address == "" {
		return nil, fmt.Errorf("invalid device address %q", address)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.peripherals[address]
	if !ok {
		// Unknown addresses still resolve; dialing them fails like an out-of-range peripheral.
		p = &FakePeripheral{address: address, unreachable: true}
	}
	return p, nil
}

// FakePeripheral is a dialable remote device with a fixed GATT profile
type FakePeripheral struct {
	address     string
	unreachable bool
	dialDelay   time.Duration
	services    map[string]map[string]*FakeCharacteristic

	mu         sync.Mutex
	dialErrs   []error
	dials      int
	client     *FakeClient
	dialedAt   []time.Time
	dialNotify chan struct{}
}

func (p *FakePeripheral) Address() string { return p.address }

func (p *FakePeripheral) Dial(ctx context.Context) (device.Client, error) {
	p.mu.Lock()
	p.dials++
	p.dialedAt = append(p.dialedAt, time.Now())
	var err error
	if len(p.dialErrs) > 0 {
		err = p.dialErrs[0]
		p.dialErrs = p.dialErrs[1:]
	}
	notify := p.dialNotify
	p.mu.Unlock()

	if notify != nil {
		select {
		case notify <- struct{}{}:
		default:
		}
	}

	if p.dialDelay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(p.dialDelay):
		}
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	if p.unreachable {
		return nil, device.ErrTimeout
	}

	client := &FakeClient{peripheral: p, disconnected: make(chan struct{})}
	p.mu.Lock()
	p.client = client
	p.mu.Unlock()
	return client, nil
}

// Dials returns the number of Dial attempts
func (p *FakePeripheral) Dials() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dials
}

// DialTimes returns when each Dial attempt started
func (p *FakePeripheral) DialTimes() []time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]time.Time(nil), p.dialedAt...)
}

// DialStarted signals every Dial attempt
func (p *FakePeripheral) DialStarted() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dialNotify == nil {
		p.dialNotify = make(chan struct{}, 8)
	}
	return p.dialNotify
}

// Client returns the client of the latest successful dial
func (p *FakePeripheral) Client() *FakeClient {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.client
}

// DropLink simulates a link loss on the current connection
func (p *FakePeripheral) DropLink() {
	if c := p.Client(); c != nil {
		c.drop()
	}
}

// Characteristic returns the configured characteristic, or nil
func (p *FakePeripheral) Characteristic(service, uuid string) *FakeCharacteristic {
	chars := p.services[device.NormalizeUUID(service)]
	if chars == nil {
		return nil
	}
	return chars[device.NormalizeUUID(uuid)]
}

// FakeClient is one live connection to a FakePeripheral
type FakeClient struct {
	peripheral   *FakePeripheral
	disconnected chan struct{}
	once         sync.Once

	mu     sync.Mutex
	closed bool
}

func (c *FakeClient) Address() string { return c.peripheral.address }

func (c *FakeClient) Characteristic(service, uuid string) (device.Characteristic, error) {
	chars, ok := c.peripheral.services[device.NormalizeUUID(service)]
	if !ok {
		return nil, &device.NotFoundError{Resource: "service", UUIDs: []string{service}}
	}
	char, ok := chars[device.NormalizeUUID(uuid)]
	if !ok {
		return nil, &device.NotFoundError{Resource: "characteristic", UUIDs: []string{service, uuid}}
	}
	return char, nil
}

func (c *FakeClient) Disconnected() <-chan struct{} { return c.disconnected }

func (c *FakeClient) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.drop()
	return nil
}

// Closed reports whether Close was called
func (c *FakeClient) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *FakeClient) drop() {
	c.once.Do(func() { close(c.disconnected) })
}

// FakeCharacteristic stores a value and records writes
type FakeCharacteristic struct {
	uuid string

	mu       sync.Mutex
	value    []byte
	writes   [][]byte
	ReadErr  error
	WriteErr error
}

func (c *FakeCharacteristic) UUID() string { return c.uuid }

func (c *FakeCharacteristic) Read(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ReadErr != nil {
		return nil, c.ReadErr
	}
	return append([]byte(nil), c.value...), nil
}

func (c *FakeCharacteristic) Write(ctx context.Context, data []byte, _ bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.WriteErr != nil {
		return c.WriteErr
	}
	c.value = append([]byte(nil), data...)
	c.writes = append(c.writes, c.value)
	return nil
}

// Writes returns every value written, oldest first
func (c *FakeCharacteristic) Writes() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.writes...)
}

// PeripheralBuilder builds a FakePeripheral with a fluent API
type PeripheralBuilder struct {
	p           *FakePeripheral
	lastService string
}

// NewPeripheralBuilder creates a builder for the peripheral at address
func NewPeripheralBuilder(address string) *PeripheralBuilder {
	return &PeripheralBuilder{p: &FakePeripheral{
		address:  device.NormalizeAddress(address),
		services: make(map[string]map[string]*FakeCharacteristic),
	}}
}

// WithControlProfile adds the control service with its control characteristic
func (b *PeripheralBuilder) WithControlProfile(value []byte) *PeripheralBuilder {
	return b.WithService(device.ControlServiceUUID).WithCharacteristic(device.ControlCharacteristicUUID, value)
}

func (b *PeripheralBuilder) WithService(uuid string) *PeripheralBuilder {
	n := device.NormalizeUUID(uuid)
	if _, ok := b.p.services[n]; !ok {
		b.p.services[n] = make(map[string]*FakeCharacteristic)
	}
	b.lastService = n
	return b
}

// WithCharacteristic adds a characteristic to the last added service
func (b *PeripheralBuilder) WithCharacteristic(uuid string, value []byte) *PeripheralBuilder {
	if b.lastService == "" {
		panic("WithCharacteristic: WithService must be called first")
	}
	n := device.NormalizeUUID(uuid)
	b.p.services[b.lastService][n] = &FakeCharacteristic{uuid: n, value: value}
	return b
}

// WithDialErrors makes successive Dial attempts fail with errs, in order
func (b *PeripheralBuilder) WithDialErrors(errs ...error) *PeripheralBuilder {
	b.p.dialErrs = append(b.p.dialErrs, errs...)
	return b
}

func (b *PeripheralBuilder) WithDialDelay(d time.Duration) *PeripheralBuilder {
	b.p.dialDelay = d
	return b
}

func (b *PeripheralBuilder) Unreachable() *PeripheralBuilder {
	b.p.unreachable = true
	return b
}

func (b *PeripheralBuilder) Build() *FakePeripheral {
	return b.p
}
