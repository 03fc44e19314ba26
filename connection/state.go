package connection

import (
	"context"
	"errors"
	"fmt"

	"github.com/srg/bluecontrol/internal/device"
)

// State is the lifecycle stage of a connection session
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateReady
	StateFailedToConnect
	StateDisconnecting
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReady:
		return "ready"
	case StateFailedToConnect:
		return "failed_to_connect"
	case StateDisconnecting:
		return "disconnecting"
	case StateDisconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("state_%d", int(s))
	}
}

// Reason explains a failed connection or a disconnection.
// Values match the codes used by common BLE manager libraries.
type Reason int

const (
	ReasonUnknown            Reason = -1
	ReasonSuccess            Reason = 0
	ReasonTerminateLocalHost Reason = 1
	ReasonTerminatePeerUser  Reason = 2
	ReasonLinkLoss           Reason = 3
	ReasonNotSupported       Reason = 4
	ReasonCancelled          Reason = 5
	ReasonTimeout            Reason = 10
)

func (r Reason) String() string {
	switch r {
	case ReasonUnknown:
		return "unknown"
	case ReasonSuccess:
		return "success"
	case ReasonTerminateLocalHost:
		return "terminate_local_host"
	case ReasonTerminatePeerUser:
		return "terminate_peer_user"
	case ReasonLinkLoss:
		return "link_loss"
	case ReasonNotSupported:
		return "not_supported"
	case ReasonCancelled:
		return "cancelled"
	case ReasonTimeout:
		return "timeout"
	default:
		return fmt.Sprintf("reason_%d", int(r))
	}
}

// ReasonFromError classifies a connect error
func ReasonFromError(err error) Reason {
	var nf *device.NotFoundError
	switch {
	case err == nil:
		return ReasonSuccess
	case errors.Is(err, context.Canceled):
		return ReasonCancelled
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, device.ErrTimeout):
		return ReasonTimeout
	case errors.Is(err, device.ErrServiceNotSupported), errors.Is(err, device.ErrUnsupported), errors.As(err, &nf):
		return ReasonNotSupported
	default:
		return ReasonUnknown
	}
}
