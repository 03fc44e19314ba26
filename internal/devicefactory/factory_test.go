package devicefactory

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/srg/bluecontrol/internal/device"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type closingAdapter struct {
	closed bool
}

func (a *closingAdapter) Scan(context.Context, device.ScanSettings, device.ScanReceiver) error {
	return nil
}

func (a *closingAdapter) RemoteDevice(string) (device.RemoteDevice, error) {
	return nil, errors.New("no devices")
}

func (a *closingAdapter) Close() error {
	a.closed = true
	return errors.New("already closed")
}

func TestNewAdapter(t *testing.T) {
	original := AdapterFactory
	defer func() { AdapterFactory = original }()

	t.Run("release closes the adapter", func(t *testing.T) {
		fake := &closingAdapter{}
		AdapterFactory = func(*logrus.Logger) (device.Adapter, error) { return fake, nil }

		adapter, release, err := NewAdapter(logrus.New())
		require.NoError(t, err)
		assert.Same(t, fake, adapter)

		release()
		assert.True(t, fake.closed, "release MUST close the adapter")
	})

	t.Run("factory error is returned", func(t *testing.T) {
		AdapterFactory = func(*logrus.Logger) (device.Adapter, error) {
			return nil, device.ErrBluetoothOff
		}

		_, release, err := NewAdapter(nil)
		assert.ErrorIs(t, err, device.ErrBluetoothOff)
		assert.Nil(t, release)
	})
}
