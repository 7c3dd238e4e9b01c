package testutils

import (
	"github.com/srg/blepwn/internal/device"
)

// MockAdvertisement is a static device.Advertisement.
type MockAdvertisement struct {
	name        string
	address     string
	rssi        int
	services    []string
	manufData   []byte
	txPower     int
	connectable bool
}

func (a *MockAdvertisement) LocalName() string        { return a.name }
func (a *MockAdvertisement) Addr() string             { return a.address }
func (a *MockAdvertisement) RSSI() int                { return a.rssi }
func (a *MockAdvertisement) Connectable() bool        { return a.connectable }
func (a *MockAdvertisement) Services() []string       { return a.services }
func (a *MockAdvertisement) ManufacturerData() []byte { return a.manufData }
func (a *MockAdvertisement) TxPowerLevel() int        { return a.txPower }

// AdvertisementBuilder builds mocked BLE advertisements for testing.
type AdvertisementBuilder struct {
	adv MockAdvertisement
}

// NewAdvertisementBuilder creates a builder for a connectable advertisement
// with no TX power reported.
func NewAdvertisementBuilder() *AdvertisementBuilder {
	return &AdvertisementBuilder{
		adv: MockAdvertisement{
			rssi:        -50,
			txPower:     127,
			connectable: true,
		},
	}
}

// WithName sets the local name for the advertisement.
func (b *AdvertisementBuilder) WithName(name string) *AdvertisementBuilder {
	b.adv.name = name
	return b
}

// WithAddress sets the device address for the advertisement.
func (b *AdvertisementBuilder) WithAddress(addr string) *AdvertisementBuilder {
	b.adv.address = addr
	return b
}

// WithRSSI sets the signal strength for the advertisement.
func (b *AdvertisementBuilder) WithRSSI(rssi int) *AdvertisementBuilder {
	b.adv.rssi = rssi
	return b
}

// WithServices adds service UUIDs to the advertisement.
func (b *AdvertisementBuilder) WithServices(uuids ...string) *AdvertisementBuilder {
	b.adv.services = append(b.adv.services, uuids...)
	return b
}

// WithManufacturerData sets the manufacturer-specific data.
func (b *AdvertisementBuilder) WithManufacturerData(data []byte) *AdvertisementBuilder {
	b.adv.manufData = data
	return b
}

// WithTxPower sets the transmission power level.
func (b *AdvertisementBuilder) WithTxPower(power int) *AdvertisementBuilder {
	b.adv.txPower = power
	return b
}

// WithConnectable sets whether the device accepts connections.
func (b *AdvertisementBuilder) WithConnectable(c bool) *AdvertisementBuilder {
	b.adv.connectable = c
	return b
}

// Build returns a copy of the configured advertisement.
func (b *AdvertisementBuilder) Build() device.Advertisement {
	adv := b.adv
	adv.services = append([]string(nil), b.adv.services...)
	return &adv
}
