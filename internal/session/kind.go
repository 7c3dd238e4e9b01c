package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/srg/blepwn/internal/device"
)

// Kind classifies every failure the controller can observe.
type Kind int

const (
	Unexpected Kind = iota
	AdapterPoweredOff
	AdapterUnauthorized
	AdapterUnsupported
	AdapterResetting
	AdapterUnknown
	NameMismatch
	ServiceNotFound
	CharacteristicNotFound
	PeripheralDisconnected
	PeripheralForcedDisconnect
	ConnectTimeout
	ConnectFailed
	WriteTimeout
	WriteFailed
)

var kindNames = map[Kind]string{
	Unexpected:                 "unexpected",
	AdapterPoweredOff:          "adapter_powered_off",
	AdapterUnauthorized:        "adapter_unauthorized",
	AdapterUnsupported:         "adapter_unsupported",
	AdapterResetting:           "adapter_resetting",
	AdapterUnknown:             "adapter_unknown",
	NameMismatch:               "name_mismatch",
	ServiceNotFound:            "service_not_found",
	CharacteristicNotFound:     "characteristic_not_found",
	PeripheralDisconnected:     "peripheral_disconnected",
	PeripheralForcedDisconnect: "peripheral_forced_disconnect",
	ConnectTimeout:             "connect_timeout",
	ConnectFailed:              "connect_failed",
	WriteTimeout:               "write_timeout",
	WriteFailed:                "write_failed",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Level groups kinds by where they originate.
type Level int

const (
	// AdapterLevel failures come from the local radio.
	AdapterLevel Level = iota
	// SessionLevel failures come from the pipeline or the remote peripheral.
	SessionLevel
)

func (l Level) String() string {
	if l == AdapterLevel {
		return "adapter"
	}
	return "session"
}

func (k Kind) Level() Level {
	switch k {
	case AdapterPoweredOff, AdapterUnauthorized, AdapterUnsupported, AdapterResetting, AdapterUnknown:
		return AdapterLevel
	default:
		return SessionLevel
	}
}

// Halting reports whether a failure of this kind ends the session in Faulted.
func (k Kind) Halting() bool {
	switch k {
	case AdapterUnauthorized, AdapterUnsupported,
		ServiceNotFound, CharacteristicNotFound,
		PeripheralForcedDisconnect,
		ConnectTimeout, ConnectFailed,
		Unexpected:
		return true
	default:
		return false
	}
}

// Error is a classified failure.
type Error struct {
	Kind Kind
	Op   string // pipeline step that failed, e.g. "connect" or "write payload 1"
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same Kind.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// ErrorOf returns a sentinel for kind k, for use with errors.Is.
func ErrorOf(k Kind) error {
	return &Error{Kind: k}
}

var (
	// ErrNotReady is returned by SendPayloads outside the Ready state.
	ErrNotReady = errors.New("session is not ready for writes")
	// ErrDeactivated is returned to callers whose request was cut short by Deactivate.
	ErrDeactivated = errors.New("session deactivated")
)

// Classify maps an error from the device layer to a Kind. Errors it does not
// recognize are Unexpected.
func Classify(err error) Kind {
	var se *Error
	switch {
	case err == nil:
		return Unexpected
	case errors.As(err, &se):
		return se.Kind
	case errors.Is(err, device.ErrServiceNotFound):
		return ServiceNotFound
	case errors.Is(err, device.ErrCharacteristicNotFound):
		return CharacteristicNotFound
	case errors.Is(err, device.ErrConnectTimeout):
		return ConnectTimeout
	case errors.Is(err, device.ErrConnectFailed):
		return ConnectFailed
	case errors.Is(err, device.ErrWriteTimeout):
		return WriteTimeout
	case errors.Is(err, device.ErrWriteFailed):
		return WriteFailed
	case errors.Is(err, device.ErrForcedDisconnect):
		return PeripheralForcedDisconnect
	case errors.Is(err, device.ErrPeripheralDisconnected),
		errors.Is(err, device.ErrNotConnected),
		errors.Is(err, device.ErrStaleCatalog):
		return PeripheralDisconnected
	case errors.Is(err, device.ErrBluetoothOff):
		return AdapterPoweredOff
	case errors.Is(err, device.ErrUnauthorized):
		return AdapterUnauthorized
	case errors.Is(err, device.ErrUnsupported):
		return AdapterUnsupported
	case errors.Is(err, device.ErrAdapterResetting):
		return AdapterResetting
	default:
		return Unexpected
	}
}

// classify wraps err as an *Error unless it already is one.
func classify(op string, err error) *Error {
	var se *Error
	if errors.As(err, &se) {
		return se
	}
	return &Error{Kind: Classify(err), Op: op, Err: err}
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled)
}

// adapterKind maps an adapter state to the failure it represents; ok is false
// for PoweredOn.
func adapterKind(s device.AdapterState) (Kind, bool) {
	switch s {
	case device.AdapterPoweredOff:
		return AdapterPoweredOff, true
	case device.AdapterUnauthorized:
		return AdapterUnauthorized, true
	case device.AdapterUnsupported:
		return AdapterUnsupported, true
	case device.AdapterResetting:
		return AdapterResetting, true
	case device.AdapterUnknown:
		return AdapterUnknown, true
	default:
		return Unexpected, false
	}
}
