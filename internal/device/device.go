package device

import (
	"context"
	"time"
)

// ScanMode trades discovery latency for power, mirroring the platform scan modes
type ScanMode int

const (
	ScanModeLowPower ScanMode = iota
	ScanModeBalanced
	ScanModeLowLatency
)

func (m ScanMode) String() string {
	switch m {
	case ScanModeLowPower:
		return "low_power"
	case ScanModeBalanced:
		return "balanced"
	case ScanModeLowLatency:
		return "low_latency"
	default:
		return "unknown"
	}
}

// ParseScanMode converts a configuration string into a ScanMode
func ParseScanMode(s string) (ScanMode, bool) {
	switch s {
	case "low_power", "low-power":
		return ScanModeLowPower, true
	case "balanced", "":
		return ScanModeBalanced, true
	case "low_latency", "low-latency":
		return ScanModeLowLatency, true
	default:
		return ScanModeBalanced, false
	}
}

// ScanSettings configures one scan session
type ScanSettings struct {
	// ServiceUUIDs are normalized service UUIDs; an advertisement matches if it carries any of them.
	ServiceUUIDs []string
	Mode         ScanMode
	// ReportDelay > 0 asks the backend to deliver results in batches at this interval.
	ReportDelay time.Duration
}

// Advertisement is a single received advertising report
type Advertisement interface {
	LocalName() string
	Services() []string
	RSSI() int
	Addr() string
}

// ScanReceiver consumes scan results. Backends deliver either single results or batches;
// both shapes must be handled identically by the receiver.
type ScanReceiver interface {
	HandleResult(adv Advertisement)
	HandleBatch(advs []Advertisement)
}

// Adapter is the platform BLE adapter, constructed once and injected into consumers
type Adapter interface {
	// Scan blocks until ctx is done or the scan fails. A context error is not a failure.
	Scan(ctx context.Context, settings ScanSettings, receiver ScanReceiver) error

	// RemoteDevice resolves an address string into a connectable device reference.
	RemoteDevice(address string) (RemoteDevice, error)
}

// RemoteDevice is a connectable reference to a peripheral that has not been dialed yet
type RemoteDevice interface {
	Address() string
	Dial(ctx context.Context) (Client, error)
}

// Client is a live GATT client connection
type Client interface {
	Address() string

	// Characteristic looks up a discovered characteristic; returns *NotFoundError if absent.
	Characteristic(service, uuid string) (Characteristic, error)

	// Disconnected is closed when the link drops for any reason.
	Disconnected() <-chan struct{}

	// Close cancels the connection.
	Close() error
}

// Characteristic provides raw read/write access to one GATT characteristic
type Characteristic interface {
	UUID() string
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte, withResponse bool) error
}
