package device

import "context"

// Advertisement is a single advertising report observed during a scan.
type Advertisement interface {
	LocalName() string
	Addr() string
	RSSI() int
	Connectable() bool
	Services() []string
	ManufacturerData() []byte
	TxPowerLevel() int
}

// ScanOptions configures a scan command.
type ScanOptions struct {
	// AllowDuplicates reports every advertisement, not only the first per device.
	AllowDuplicates bool
	// ServiceUUIDs restricts results to devices advertising one of these services (empty: all).
	ServiceUUIDs []string
}

// Property is a bitmask of GATT characteristic properties.
// Bit values match the ATT characteristic properties field.
type Property uint8

const (
	PropBroadcast            Property = 0x01
	PropRead                 Property = 0x02
	PropWriteWithoutResponse Property = 0x04
	PropWrite                Property = 0x08
	PropNotify               Property = 0x10
	PropIndicate             Property = 0x20
)

// Writable reports whether any write mode is supported.
func (p Property) Writable() bool {
	return p&(PropWrite|PropWriteWithoutResponse) != 0
}

// RemoteService is a transport-level GATT service handle.
type RemoteService interface {
	UUID() string
}

// RemoteCharacteristic is a transport-level GATT characteristic handle.
type RemoteCharacteristic interface {
	UUID() string
	Properties() Property
}

// Link is one live GATT client connection.
//
// Done is closed when the link goes away for any reason. After that, Err
// returns ErrPeripheralDisconnected for a drop the transport did not cause,
// ErrForcedDisconnect for a drop the transport forced, and ErrNotConnected
// after Close.
type Link interface {
	Address() string
	DiscoverServices(ctx context.Context, uuids []string) ([]RemoteService, error)
	DiscoverCharacteristics(ctx context.Context, svc RemoteService, uuids []string) ([]RemoteCharacteristic, error)
	WriteCharacteristic(ctx context.Context, c RemoteCharacteristic, data []byte, withResponse bool) error
	Done() <-chan struct{}
	Err() error
	Close() error
}

// Dialer opens links to peripherals.
type Dialer interface {
	Dial(ctx context.Context, address string) (Link, error)
}

// Transport is the capability-providing BLE adapter the session runs on.
type Transport interface {
	Dialer

	// SubscribeState delivers the current adapter state immediately, then every
	// transition, until ctx ends.
	SubscribeState(ctx context.Context) <-chan AdapterState
	// Scan reports advertisements to handler until ctx ends or the scan fails.
	// Stopping a scan is cancelling its context.
	Scan(ctx context.Context, opts ScanOptions, handler func(Advertisement)) error
	// Reset asks the adapter to recover after a reset notification.
	Reset(ctx context.Context) error
}
