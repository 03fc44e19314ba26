package goble

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/bluecontrol/internal/device"
	"github.com/srg/bluecontrol/internal/groutine"
)

// DeviceFactory creates ble.Device instances (can be overridden in tests)
//
//nolint:revive // DeviceFactory name is intentional for test mocking
var DeviceFactory = newPlatformDevice

// Adapter implements device.Adapter on top of a go-ble device
type Adapter struct {
	dev    ble.Device
	logger *logrus.Logger
}

// NewAdapter opens the platform BLE device through DeviceFactory
func NewAdapter(logger *logrus.Logger) (*Adapter, error) {
	dev, err := DeviceFactory()
	if err != nil {
		return nil, fmt.Errorf("failed to create BLE device: %w", device.NormalizeError(err))
	}
	return NewAdapterWithDevice(dev, logger), nil
}

// NewAdapterWithDevice wraps an already opened ble.Device
func NewAdapterWithDevice(dev ble.Device, logger *logrus.Logger) *Adapter {
	if logger == nil {
		logger = logrus.New()
	}
	return &Adapter{dev: dev, logger: logger}
}

// Close releases the underlying device
func (a *Adapter) Close() error {
	return device.NormalizeError(a.dev.Stop())
}

// Scan runs one scan until ctx is done. Low power mode suppresses duplicate
// reports; the other modes report every advertisement. Results are delivered
// one by one, or in batches every settings.ReportDelay when it is set.
func (a *Adapter) Scan(ctx context.Context, settings device.ScanSettings, receiver device.ScanReceiver) error {
	if err := configureScan(a.dev, settings.Mode); err != nil {
		a.logger.WithFields(logrus.Fields{
			"mode":  settings.Mode.String(),
			"error": err,
		}).Warn("Failed to apply scan parameters, using controller defaults")
	}

	allowDup := settings.Mode != device.ScanModeLowPower
	deliver := receiver.HandleResult

	var b *batcher
	if settings.ReportDelay > 0 {
		b = &batcher{}
		deliver = b.add
		flushDone := groutine.Go(ctx, "scan-batch-flush", func(ctx context.Context) {
			b.run(ctx, settings.ReportDelay, receiver)
		})
		defer func() {
			<-flushDone
			b.flush(receiver)
		}()
	}

	a.logger.WithFields(logrus.Fields{
		"services":     settings.ServiceUUIDs,
		"mode":         settings.Mode.String(),
		"allow_dup":    allowDup,
		"report_delay": settings.ReportDelay,
	}).Debug("Starting go-ble scan")

	err := a.dev.Scan(ctx, allowDup, func(adv ble.Advertisement) {
		wrapped := NewAdvertisement(adv)
		if !device.HasService(wrapped.Services(), settings.ServiceUUIDs) {
			return
		}
		deliver(wrapped)
	})

	if ctx.Err() != nil {
		return nil
	}
	return device.NormalizeError(err)
}

// RemoteDevice resolves address into a dialable device
func (a *Adapter) RemoteDevice(address string) (device.RemoteDevice, error) {
	address = device.NormalizeAddress(address)
	if address == "" {
		return nil, fmt.Errorf("device address is empty")
	}
	return &remoteDevice{
		dev:     a.dev,
		addr:    ble.NewAddr(address),
		address: address,
		logger:  a.logger,
	}, nil
}

// batcher buffers scan results between flushes
type batcher struct {
	mu      sync.Mutex
	pending []device.Advertisement
}

func (b *batcher) add(adv device.Advertisement) {
	b.mu.Lock()
	b.pending = append(b.pending, adv)
	b.mu.Unlock()
}

func (b *batcher) flush(receiver device.ScanReceiver) {
	b.mu.Lock()
	batch := b.pending
	b.pending = nil
	b.mu.Unlock()

	if len(batch) > 0 {
		receiver.HandleBatch(batch)
	}
}

func (b *batcher) run(ctx context.Context, every time.Duration, receiver device.ScanReceiver) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.flush(receiver)
		}
	}
}
