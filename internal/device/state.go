package device

// AdapterState is the power/availability state of the local BLE radio.
// Values follow the CoreBluetooth manager state ordering.
type AdapterState int

const (
	AdapterUnknown      AdapterState = 0 // State is unknown, cannot use Bluetooth yet
	AdapterResetting    AdapterState = 1 // Connection to the system service was momentarily lost
	AdapterUnsupported  AdapterState = 2 // Platform doesn't support Bluetooth Low Energy
	AdapterUnauthorized AdapterState = 3 // Process is not authorized to use Bluetooth Low Energy
	AdapterPoweredOff   AdapterState = 4 // Bluetooth is powered off
	AdapterPoweredOn    AdapterState = 5 // Bluetooth is powered on and available
)

func (s AdapterState) String() string {
	switch s {
	case AdapterUnknown:
		return "unknown"
	case AdapterResetting:
		return "resetting"
	case AdapterUnsupported:
		return "unsupported"
	case AdapterUnauthorized:
		return "unauthorized"
	case AdapterPoweredOff:
		return "powered_off"
	case AdapterPoweredOn:
		return "powered_on"
	default:
		return "unknown"
	}
}

// Usable reports whether scan and connect commands are valid in this state.
func (s AdapterState) Usable() bool {
	return s == AdapterPoweredOn
}

// ConnectionState is the connection lifecycle state of a peripheral.
type ConnectionState int

const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
	Disconnecting
)

func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Disconnecting:
		return "disconnecting"
	default:
		return "disconnected"
	}
}
