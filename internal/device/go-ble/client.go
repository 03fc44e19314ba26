package goble

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/bluecontrol/internal/device"
)

type remoteDevice struct {
	dev     ble.Device
	addr    ble.Addr
	address string
	logger  *logrus.Logger
}

func (r *remoteDevice) Address() string { return r.address }

// Dial connects and discovers the full GATT profile. A profile discovery
// failure cancels the link and fails the dial.
func (r *remoteDevice) Dial(ctx context.Context) (device.Client, error) {
	r.logger.WithField("address", r.address).Debug("Dialing BLE device...")

	client, err := r.dev.Dial(ctx, r.addr)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("failed to dial device with address %q: %w", r.address, device.NormalizeError(err))
	}

	r.logger.WithField("address", r.address).Debug("Discovering services and characteristics...")
	profile, err := client.DiscoverProfile(true)
	if err != nil {
		if cancelErr := client.CancelConnection(); cancelErr != nil {
			r.logger.WithField("cancel_error", cancelErr).Warn("Failed to cancel connection during profile discovery failure")
		}
		return nil, fmt.Errorf("failed to discover profile: %w", device.NormalizeError(err))
	}

	return newClient(client, r.address, profile, r.logger), nil
}

// Client is a connected go-ble client with its discovered profile indexed by normalized UUIDs
type Client struct {
	client       ble.Client
	address      string
	services     map[string]map[string]*ble.Characteristic
	disconnected <-chan struct{}
	logger       *logrus.Logger

	ioMu sync.Mutex // go-ble clients do not allow concurrent ATT requests
}

func newClient(client ble.Client, address string, profile *ble.Profile, logger *logrus.Logger) *Client {
	services := make(map[string]map[string]*ble.Characteristic)
	totalChars := 0
	if profile != nil {
		for _, svc := range profile.Services {
			svcUUID := device.NormalizeUUID(svc.UUID.String())
			chars, ok := services[svcUUID]
			if !ok {
				chars = make(map[string]*ble.Characteristic)
				services[svcUUID] = chars
			}
			for _, c := range svc.Characteristics {
				charUUID := device.NormalizeUUID(c.UUID.String())
				chars[charUUID] = c
				totalChars++
				logger.WithFields(logrus.Fields{
					"service_uuid": svcUUID,
					"char_uuid":    charUUID,
					"properties":   describeProperties(c.Property),
				}).Debug("Found characteristic")
			}
		}
	}

	// Clients without a disconnect signal never report link loss.
	disconnected := make(<-chan struct{})
	if dc, ok := client.(interface{ Disconnected() <-chan struct{} }); ok {
		disconnected = dc.Disconnected()
	} else {
		logger.Debug("Client does not support Disconnected() channel")
	}

	logger.WithFields(logrus.Fields{
		"address":         address,
		"services":        len(services),
		"characteristics": totalChars,
	}).Info("BLE device connected")

	return &Client{
		client:       client,
		address:      address,
		services:     services,
		disconnected: disconnected,
		logger:       logger,
	}
}

func (c *Client) Address() string { return c.address }

// Characteristic looks up a discovered characteristic by service and characteristic UUID
func (c *Client) Characteristic(service, uuid string) (device.Characteristic, error) {
	svcUUID := device.NormalizeUUID(service)
	chars, ok := c.services[svcUUID]
	if !ok {
		return nil, &device.NotFoundError{Resource: "service", UUIDs: []string{svcUUID}}
	}
	charUUID := device.NormalizeUUID(uuid)
	char, ok := chars[charUUID]
	if !ok {
		return nil, &device.NotFoundError{Resource: "characteristic", UUIDs: []string{svcUUID, charUUID}}
	}
	return &Characteristic{client: c, char: char, uuid: charUUID}, nil
}

func (c *Client) Disconnected() <-chan struct{} { return c.disconnected }

// Close cancels the connection
func (c *Client) Close() error {
	return device.NormalizeError(c.client.CancelConnection())
}

// Characteristic performs ATT reads and writes on one characteristic
type Characteristic struct {
	client *Client
	char   *ble.Characteristic
	uuid   string
}

func (ch *Characteristic) UUID() string { return ch.uuid }

// Read reads the current value. go-ble reads cannot be cancelled, so ctx only
// bounds how long the caller waits.
func (ch *Characteristic) Read(ctx context.Context) ([]byte, error) {
	if !canRead(ch.char.Property) {
		return nil, fmt.Errorf("%w: characteristic %s is not readable", device.ErrUnsupported, ch.uuid)
	}
	return ch.do(ctx, func() ([]byte, error) {
		return ch.client.client.ReadCharacteristic(ch.char)
	})
}

// Write writes data with or without a response
func (ch *Characteristic) Write(ctx context.Context, data []byte, withResponse bool) error {
	if !canWrite(ch.char.Property, withResponse) {
		return fmt.Errorf("%w: characteristic %s does not support this write mode", device.ErrUnsupported, ch.uuid)
	}
	_, err := ch.do(ctx, func() ([]byte, error) {
		return nil, ch.client.client.WriteCharacteristic(ch.char, data, !withResponse)
	})
	return err
}

func (ch *Characteristic) do(ctx context.Context, op func() ([]byte, error)) ([]byte, error) {
	type result struct {
		data []byte
		err  error
	}
	resultCh := make(chan result, 1)

	go func() {
		ch.client.ioMu.Lock()
		defer ch.client.ioMu.Unlock()
		data, err := op()
		resultCh <- result{data: data, err: err}
	}()

	select {
	case r := <-resultCh:
		return r.data, device.NormalizeError(r.err)
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: characteristic %s: %w", device.ErrTimeout, ch.uuid, ctx.Err())
		}
		return nil, fmt.Errorf("characteristic %s: %w", ch.uuid, ctx.Err())
	}
}
