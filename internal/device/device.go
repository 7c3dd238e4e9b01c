package device

import (
	"errors"
	"fmt"
)

// NotFoundError represents an error when a GATT resource is not found
type NotFoundError struct {
	Resource string   // "service" or "characteristic"
	UUIDs    []string // One or more UUIDs (e.g., [serviceUUID] or [serviceUUID, charUUID])
}

func (e *NotFoundError) Error() string {
	if len(e.UUIDs) == 0 {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	if len(e.UUIDs) == 1 {
		return fmt.Sprintf("%s %q not found", e.Resource, e.UUIDs[0])
	}
	// characteristic lookups carry [serviceUUID, charUUID...]
	return fmt.Sprintf("%s %q not found in service %q", e.Resource, e.UUIDs[len(e.UUIDs)-1], e.UUIDs[0])
}

// Is allows errors.Is to compare NotFoundError values by Resource
func (e *NotFoundError) Is(target error) bool {
	t, ok := target.(*NotFoundError)
	if !ok {
		return false
	}
	return e.Resource == t.Resource
}

// Predefined sentinel errors for discovery misses
var (
	ErrServiceNotFound        = &NotFoundError{Resource: "service"}
	ErrCharacteristicNotFound = &NotFoundError{Resource: "characteristic"}
)

// ConnectionError reports an operation that is invalid in the peripheral's
// current connection state.
type ConnectionError struct {
	State ConnectionState
	Msg   string
}

// Error implements the error interface
func (e *ConnectionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return "peripheral is " + e.State.String()
	}
	return e.Msg
}

// Is allows errors.Is to compare ConnectionError values by State
func (e *ConnectionError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*ConnectionError)
	if !ok {
		return false
	}
	return e.State == t.State
}

// Predefined sentinel errors for connection states
var (
	ErrNotConnected      = &ConnectionError{State: Disconnected, Msg: "not connected"}
	ErrAlreadyConnecting = &ConnectionError{State: Connecting, Msg: "already connecting"}
	ErrAlreadyConnected  = &ConnectionError{State: Connected, Msg: "already connected"}
	ErrDisconnecting     = &ConnectionError{State: Disconnecting, Msg: "disconnect in progress"}
)

// Operation errors
var (
	ErrConnectTimeout = errors.New("connect timeout")
	ErrConnectFailed  = errors.New("connect failed")
	ErrWriteTimeout   = errors.New("write timeout")
	ErrWriteFailed    = errors.New("write failed")
	ErrTimeout        = errors.New("timeout")
	ErrUnsupported    = errors.New("unsupported")

	// ErrPeripheralDisconnected is the cause of a link that dropped on its own.
	ErrPeripheralDisconnected = errors.New("peripheral disconnected")
	// ErrForcedDisconnect is the cause of a link torn down by the transport,
	// e.g. during an adapter reset.
	ErrForcedDisconnect = errors.New("peripheral forcibly disconnected")
	// ErrStaleCatalog is returned by lookups on a catalog whose connection is gone.
	ErrStaleCatalog = errors.New("service catalog is stale")
)

// Adapter errors
var (
	ErrBluetoothOff     = errors.New("bluetooth is turned off")
	ErrUnauthorized     = errors.New("bluetooth access is not authorized")
	ErrAdapterResetting = errors.New("bluetooth adapter is resetting")
)

// IsConnectionState reports whether err is a ConnectionError with the given state
func IsConnectionState(err error, state ConnectionState) bool {
	var cerr *ConnectionError
	if errors.As(err, &cerr) {
		return cerr.State == state
	}
	return false
}
