// Package lifecycle drives the scanner and the connection manager from explicit
// visibility events. A screen owner sends Visible when it starts showing its
// content and Hidden when it stops, and the screen starts or tears down the
// underlying BLE work accordingly.
package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/bluecontrol/connection"
	"github.com/srg/bluecontrol/internal/device"
	"github.com/srg/bluecontrol/internal/groutine"
)

// Event is a visibility change of a screen
type Event int

const (
	Visible Event = iota
	Hidden
)

func (e Event) String() string {
	switch e {
	case Visible:
		return "visible"
	case Hidden:
		return "hidden"
	default:
		return fmt.Sprintf("event_%d", int(e))
	}
}

// Screen reacts to visibility events
type Screen interface {
	Handle(ev Event) error
}

// Scanner is the part of scanner.Scanner a devices screen drives
type Scanner interface {
	Start() error
	Stop() error
}

// Connector is the part of connection.Manager a control screen drives
type Connector interface {
	Connect(ctx context.Context, address string, observers ...connection.Observer) *connection.Request
	Disconnect() *connection.Request
}

// DevicesScreen scans while visible
type DevicesScreen struct {
	scanner Scanner
	logger  *logrus.Logger
}

// NewDevicesScreen creates a devices screen driving s
func NewDevicesScreen(s Scanner, logger *logrus.Logger) *DevicesScreen {
	if logger == nil {
		logger = logrus.New()
	}
	return &DevicesScreen{scanner: s, logger: logger}
}

// Handle starts scanning on Visible and stops it on Hidden
func (d *DevicesScreen) Handle(ev Event) error {
	d.logger.WithField("event", ev.String()).Debug("Devices screen event")
	switch ev {
	case Visible:
		return d.scanner.Start()
	case Hidden:
		return d.scanner.Stop()
	default:
		return fmt.Errorf("devices screen: unknown event %s", ev)
	}
}

// ControlScreen holds a connection to one peripheral while visible
type ControlScreen struct {
	conn      Connector
	address   string
	observers []connection.Observer
	logger    *logrus.Logger
	timeout   time.Duration

	mu         sync.Mutex
	visible    bool
	connect    *connection.Request
	disconnect *connection.Request
}

// NewControlScreen creates a control screen for the peripheral at address.
// observers are attached to every connection the screen opens.
func NewControlScreen(conn Connector, address string, logger *logrus.Logger, observers ...connection.Observer) (*ControlScreen, error) {
	address = device.NormalizeAddress(address)
	if address == "" {
		return nil, fmt.Errorf("control screen: device address is required")
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &ControlScreen{
		conn:      conn,
		address:   address,
		observers: observers,
		logger:    logger,
	}, nil
}

// SetConnectTimeout bounds every connect request the screen issues; 0 means unbounded
func (c *ControlScreen) SetConnectTimeout(d time.Duration) {
	c.mu.Lock()
	c.timeout = d
	c.mu.Unlock()
}

// Address returns the peripheral address
func (c *ControlScreen) Address() string { return c.address }

// Handle connects on Visible and disconnects on Hidden. Repeated events of the
// same kind are ignored. Completion is observed through Connection and
// Disconnection.
func (c *ControlScreen) Handle(ev Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	log := c.logger.WithFields(logrus.Fields{
		"event":   ev.String(),
		"address": c.address,
	})

	switch ev {
	case Visible:
		if c.visible {
			log.Debug("Control screen already visible")
			return nil
		}
		c.visible = true
		c.connect = c.issueConnect()
		c.disconnect = nil
		return nil
	case Hidden:
		if !c.visible {
			log.Debug("Control screen already hidden")
			return nil
		}
		c.visible = false
		c.disconnect = c.conn.Disconnect()
		return nil
	default:
		return fmt.Errorf("control screen: unknown event %s", ev)
	}
}

func (c *ControlScreen) issueConnect() *connection.Request {
	if c.timeout <= 0 {
		return c.conn.Connect(context.Background(), c.address, c.observers...)
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	req := c.conn.Connect(ctx, c.address, c.observers...)
	groutine.Go(context.Background(), "connect-timeout", func(context.Context) {
		<-req.Done()
		cancel()
	})
	return req
}

// Connection returns the request issued by the last Visible event, or nil
func (c *ControlScreen) Connection() *connection.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connect
}

// Disconnection returns the request issued by the last Hidden event, or nil
func (c *ControlScreen) Disconnection() *connection.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnect
}

// Run delivers events to screen from a single goroutine until events is closed
// or ctx is done. A screen left visible receives a final Hidden.
func Run(ctx context.Context, screen Screen, events <-chan Event, logger *logrus.Logger) error {
	if logger == nil {
		logger = logrus.New()
	}

	visible := false
	hide := func() error {
		if !visible {
			return nil
		}
		visible = false
		return screen.Handle(Hidden)
	}

	for {
		select {
		case <-ctx.Done():
			return hide()
		case ev, ok := <-events:
			if !ok {
				return hide()
			}
			if err := screen.Handle(ev); err != nil {
				logger.WithFields(logrus.Fields{
					"event": ev.String(),
					"error": err,
				}).Error("Screen failed to handle event")
				_ = hide()
				return err
			}
			visible = ev == Visible
		}
	}
}
