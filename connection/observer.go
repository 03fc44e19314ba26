package connection

import (
	"github.com/sirupsen/logrus"
)

// Observer receives connection state changes for a peripheral.
// Callbacks run on the session goroutine and must not block.
type Observer interface {
	OnDeviceConnecting(address string)
	OnDeviceConnected(address string)
	OnDeviceFailedToConnect(address string, reason Reason)
	OnDeviceReady(address string)
	OnDeviceDisconnecting(address string)
	OnDeviceDisconnected(address string, reason Reason)
}

// ObserverFuncs adapts plain functions to Observer; nil fields are skipped.
type ObserverFuncs struct {
	Connecting      func(address string)
	Connected       func(address string)
	FailedToConnect func(address string, reason Reason)
	Ready           func(address string)
	Disconnecting   func(address string)
	Disconnected    func(address string, reason Reason)
}

func (f ObserverFuncs) OnDeviceConnecting(address string) {
	if f.Connecting != nil {
		f.Connecting(address)
	}
}

func (f ObserverFuncs) OnDeviceConnected(address string) {
	if f.Connected != nil {
		f.Connected(address)
	}
}

func (f ObserverFuncs) OnDeviceFailedToConnect(address string, reason Reason) {
	if f.FailedToConnect != nil {
		f.FailedToConnect(address, reason)
	}
}

func (f ObserverFuncs) OnDeviceReady(address string) {
	if f.Ready != nil {
		f.Ready(address)
	}
}

func (f ObserverFuncs) OnDeviceDisconnecting(address string) {
	if f.Disconnecting != nil {
		f.Disconnecting(address)
	}
}

func (f ObserverFuncs) OnDeviceDisconnected(address string, reason Reason) {
	if f.Disconnected != nil {
		f.Disconnected(address, reason)
	}
}

// LoggingObserver logs every state change; only readiness is logged at info level.
type LoggingObserver struct {
	logger *logrus.Logger
}

func NewLoggingObserver(logger *logrus.Logger) *LoggingObserver {
	if logger == nil {
		logger = logrus.New()
	}
	return &LoggingObserver{logger: logger}
}

func (o *LoggingObserver) OnDeviceConnecting(address string) {
	o.logger.WithField("address", address).Debug("Device connecting")
}

func (o *LoggingObserver) OnDeviceConnected(address string) {
	o.logger.WithField("address", address).Debug("Device connected")
}

func (o *LoggingObserver) OnDeviceFailedToConnect(address string, reason Reason) {
	o.logger.WithFields(logrus.Fields{
		"address": address,
		"reason":  reason.String(),
	}).Debug("Device failed to connect")
}

func (o *LoggingObserver) OnDeviceReady(address string) {
	o.logger.WithField("address", address).Info("Device ready")
}

func (o *LoggingObserver) OnDeviceDisconnecting(address string) {
	o.logger.WithField("address", address).Debug("Device disconnecting")
}

func (o *LoggingObserver) OnDeviceDisconnected(address string, reason Reason) {
	o.logger.WithFields(logrus.Fields{
		"address": address,
		"reason":  reason.String(),
	}).Debug("Device disconnected")
}
