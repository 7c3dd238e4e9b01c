// Package mocks holds testify mocks of the go-ble interfaces.
//
// Each mock embeds the interface it stands in for, so only the methods the
// code under test calls need an implementation; any other call panics.
package mocks

import (
	"context"

	"github.com/go-ble/ble"
	"github.com/stretchr/testify/mock"
)

// MockDevice is a mock ble.Device.
type MockDevice struct {
	ble.Device
	mock.Mock
}

func (m *MockDevice) Scan(ctx context.Context, allowDup bool, h ble.AdvHandler) error {
	args := m.Called(ctx, allowDup, h)
	return args.Error(0)
}

func (m *MockDevice) Dial(ctx context.Context, a ble.Addr) (ble.Client, error) {
	args := m.Called(ctx, a)
	client, _ := args.Get(0).(ble.Client)
	return client, args.Error(1)
}

func (m *MockDevice) Stop() error {
	args := m.Called()
	return args.Error(0)
}

// MockClient is a mock ble.Client. Disconnected returns a channel the test
// closes with Disconnect.
type MockClient struct {
	ble.Client
	mock.Mock

	disconnected chan struct{}
}

// NewMockClient creates a client whose Disconnected channel is open.
func NewMockClient() *MockClient {
	return &MockClient{disconnected: make(chan struct{})}
}

func (m *MockClient) DiscoverServices(filter []ble.UUID) ([]*ble.Service, error) {
	args := m.Called(filter)
	services, _ := args.Get(0).([]*ble.Service)
	return services, args.Error(1)
}

func (m *MockClient) DiscoverCharacteristics(filter []ble.UUID, s *ble.Service) ([]*ble.Characteristic, error) {
	args := m.Called(filter, s)
	chars, _ := args.Get(0).([]*ble.Characteristic)
	return chars, args.Error(1)
}

func (m *MockClient) WriteCharacteristic(c *ble.Characteristic, value []byte, noRsp bool) error {
	args := m.Called(c, value, noRsp)
	return args.Error(0)
}

func (m *MockClient) CancelConnection() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockClient) Disconnected() <-chan struct{} {
	return m.disconnected
}

// Disconnect simulates the peripheral going away.
func (m *MockClient) Disconnect() {
	close(m.disconnected)
}

// Advertisement is a ble.Advertisement with settable fields.
type Advertisement struct {
	ble.Advertisement

	Name          string
	Address       string
	Rssi          int
	TxPower       int
	IsConnectable bool
	Manufacturer  []byte
	ServiceUUIDs  []ble.UUID
}

func (a *Advertisement) LocalName() string           { return a.Name }
func (a *Advertisement) ManufacturerData() []byte    { return a.Manufacturer }
func (a *Advertisement) Services() []ble.UUID        { return a.ServiceUUIDs }
func (a *Advertisement) OverflowService() []ble.UUID { return nil }
func (a *Advertisement) TxPowerLevel() int           { return a.TxPower }
func (a *Advertisement) Connectable() bool           { return a.IsConnectable }
func (a *Advertisement) RSSI() int                   { return a.Rssi }
func (a *Advertisement) Addr() ble.Addr              { return ble.NewAddr(a.Address) }
