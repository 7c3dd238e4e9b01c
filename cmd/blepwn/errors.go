package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/srg/blepwn/internal/device"
	"github.com/srg/blepwn/internal/session"
)

// Command-level errors
var (
	// ErrWaitTimeout indicates the target never became writable within --wait.
	ErrWaitTimeout = errors.New("timed out waiting for the target")
)

var kindHints = map[session.Kind]string{
	session.AdapterPoweredOff:          "Bluetooth is turned off; turn it on and retry",
	session.AdapterUnauthorized:        "Bluetooth access is not authorized for this process; grant it in the system settings",
	session.AdapterUnsupported:         "this machine does not support Bluetooth Low Energy",
	session.AdapterResetting:           "the Bluetooth adapter was reset",
	session.AdapterUnknown:             "the Bluetooth adapter is in an unknown state",
	session.ServiceNotFound:            "the target does not expose the expected service",
	session.CharacteristicNotFound:     "the target service has no writable payload characteristic",
	session.PeripheralDisconnected:     "the target disconnected",
	session.PeripheralForcedDisconnect: "the connection to the target was torn down",
	session.ConnectTimeout:             "the target did not accept the connection in time",
	session.ConnectFailed:              "connecting to the target failed",
	session.WriteTimeout:               "the target did not acknowledge the payload in time",
	session.WriteFailed:                "the target rejected the payload",
}

// FormatUserError renders err for the terminal. Classified session failures
// get a hint; the underlying cause is kept for troubleshooting.
func FormatUserError(err error) string {
	if err == nil {
		return ""
	}

	var se *session.Error
	switch {
	case errors.As(err, &se):
		hint, ok := kindHints[se.Kind]
		if !ok {
			return err.Error()
		}
		if se.Err != nil {
			return fmt.Sprintf("%s (%s: %v)", hint, se.Kind, se.Err)
		}
		return fmt.Sprintf("%s (%s)", hint, se.Kind)
	case errors.Is(err, ErrWaitTimeout), errors.Is(err, context.DeadlineExceeded):
		return ErrWaitTimeout.Error()
	case errors.Is(err, device.ErrBluetoothOff):
		return kindHints[session.AdapterPoweredOff]
	case errors.Is(err, device.ErrUnauthorized):
		return kindHints[session.AdapterUnauthorized]
	case errors.Is(err, device.ErrUnsupported):
		return kindHints[session.AdapterUnsupported]
	case errors.Is(err, session.ErrDeactivated):
		return "session was interrupted"
	default:
		return err.Error()
	}
}
