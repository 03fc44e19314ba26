package devicefactory

import (
	"github.com/sirupsen/logrus"
	"github.com/srg/bluecontrol/internal/device"
	"github.com/srg/bluecontrol/internal/device/go-ble"
)

// Closer is implemented by adapters that hold a platform device
type Closer interface {
	Close() error
}

// AdapterFactory creates the platform device.Adapter.
// This is a variable so that it can be overridden in tests.
var AdapterFactory = func(logger *logrus.Logger) (device.Adapter, error) {
	return goble.NewAdapter(logger)
}

// NewAdapter creates the platform adapter and returns a release func for it.
// The release func is safe to call when the adapter has nothing to close.
func NewAdapter(logger *logrus.Logger) (device.Adapter, func(), error) {
	adapter, err := AdapterFactory(logger)
	if err != nil {
		return nil, nil, err
	}

	release := func() {
		c, ok := adapter.(Closer)
		if !ok {
			return
		}
		if err := c.Close(); err != nil && logger != nil {
			logger.WithError(err).Debug("Failed to release BLE adapter")
		}
	}
	return adapter, release, nil
}
