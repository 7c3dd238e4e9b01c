package goble

import (
	"errors"
	"fmt"
	"strings"

	"github.com/srg/blepwn/internal/device"
)

// NormalizeError maps known go-ble error strings to the device package
// sentinels. The original error stays wrapped for context.
//
// CoreBluetooth reports a non-powered central as "have=N want=5", where N is
// the CBManagerState: 1 resetting, 2 unsupported, 3 unauthorized, 4 powered off.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}

	msg := err.Error()
	switch {
	case containsIgnoreCase(msg, "have=1 want=5"):
		return fmt.Errorf("%w: %v", device.ErrAdapterResetting, err)
	case containsIgnoreCase(msg, "have=2 want=5"):
		return fmt.Errorf("%w: %v", device.ErrUnsupported, err)
	case containsIgnoreCase(msg, "have=3 want=5"), containsIgnoreCase(msg, "operation not permitted"):
		return fmt.Errorf("%w: %v", device.ErrUnauthorized, err)
	case containsIgnoreCase(msg, "have=4 want=5"),
		containsIgnoreCase(msg, "bluetooth is turned off"),
		containsIgnoreCase(msg, "no such device"):
		return fmt.Errorf("%w: %v", device.ErrBluetoothOff, err)
	case containsIgnoreCase(msg, "device not connected"),
		containsIgnoreCase(msg, "disconnected"):
		return fmt.Errorf("%w: %v", device.ErrNotConnected, err)
	case containsIgnoreCase(msg, "device already connected"):
		return fmt.Errorf("%w: %v", device.ErrAlreadyConnected, err)
	case containsIgnoreCase(msg, "timeout"), containsIgnoreCase(msg, "timed out"):
		return fmt.Errorf("%w: %v", device.ErrTimeout, err)
	default:
		return err
	}
}

// adapterState returns the adapter state an error implies, or
// AdapterPoweredOn if it says nothing about the adapter.
func adapterState(err error) device.AdapterState {
	switch {
	case err == nil:
		return device.AdapterPoweredOn
	case errors.Is(err, device.ErrBluetoothOff):
		return device.AdapterPoweredOff
	case errors.Is(err, device.ErrUnauthorized):
		return device.AdapterUnauthorized
	case errors.Is(err, device.ErrUnsupported):
		return device.AdapterUnsupported
	case errors.Is(err, device.ErrAdapterResetting):
		return device.AdapterResetting
	default:
		return device.AdapterPoweredOn
	}
}

// stateError is the error reported for operations attempted while the
// adapter is in state s.
func stateError(s device.AdapterState) error {
	switch s {
	case device.AdapterPoweredOff:
		return device.ErrBluetoothOff
	case device.AdapterUnauthorized:
		return device.ErrUnauthorized
	case device.AdapterUnsupported:
		return device.ErrUnsupported
	case device.AdapterResetting:
		return device.ErrAdapterResetting
	default:
		return fmt.Errorf("%w: adapter is %s", device.ErrBluetoothOff, s)
	}
}

func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
