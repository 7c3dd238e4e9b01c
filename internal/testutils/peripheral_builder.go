package testutils

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/srg/blepwn/internal/device"
)

// Default GATT layout of the mocked target peripheral.
const (
	TargetName               = "Dropcam"
	TargetAddress            = "AA:BB:CC:DD:EE:FF"
	TargetServiceUUID        = "D2D3F8EF-9C99-4D9C-A2B3-91C85D44326C"
	TargetCharacteristicUUID = "7606123e-4282-4ed4-aca1-2374de7fdb61"
)

// CharacteristicConfig represents a BLE characteristic configuration for mocking
type CharacteristicConfig struct {
	UUID       string `json:"uuid"`
	Properties string `json:"properties,omitempty"` // e.g., "read,write,notify"
}

// ServiceConfig represents a BLE service configuration for mocking
type ServiceConfig struct {
	UUID            string                 `json:"uuid"`
	Characteristics []CharacteristicConfig `json:"characteristics,omitempty"`
}

// PeripheralProfile is the GATT layout a FakeLink serves.
type PeripheralProfile struct {
	Services []ServiceConfig `json:"services"`
}

// PeripheralBuilder builds the GATT layout of a mocked peripheral.
type PeripheralBuilder struct {
	profile PeripheralProfile
}

// NewPeripheralBuilder creates a builder with no services.
func NewPeripheralBuilder() *PeripheralBuilder {
	return &PeripheralBuilder{
		profile: PeripheralProfile{Services: []ServiceConfig{}},
	}
}

// WithService adds a service to the profile
func (b *PeripheralBuilder) WithService(uuid string) *PeripheralBuilder {
	b.profile.Services = append(b.profile.Services, ServiceConfig{
		UUID:            uuid,
		Characteristics: []CharacteristicConfig{},
	})
	return b
}

// WithCharacteristic adds a characteristic to the last added service
func (b *PeripheralBuilder) WithCharacteristic(uuid, properties string) *PeripheralBuilder {
	if len(b.profile.Services) == 0 {
		panic("WithCharacteristic: no service added yet, call WithService first")
	}

	last := len(b.profile.Services) - 1
	b.profile.Services[last].Characteristics = append(b.profile.Services[last].Characteristics, CharacteristicConfig{
		UUID:       uuid,
		Properties: properties,
	})
	return b
}

// FromJSON replaces the profile with the one described by JSON
func (b *PeripheralBuilder) FromJSON(jsonStrFmt string, args ...interface{}) *PeripheralBuilder {
	jsonStr := fmt.Sprintf(jsonStrFmt, args...)

	var profile PeripheralProfile
	if err := json.Unmarshal([]byte(jsonStr), &profile); err != nil {
		panic(fmt.Sprintf("PeripheralBuilder.FromJSON: failed to unmarshal: %v", err))
	}

	b.profile = profile
	return b
}

// Build returns a copy of the configured profile.
func (b *PeripheralBuilder) Build() *PeripheralProfile {
	profile := &PeripheralProfile{Services: make([]ServiceConfig, len(b.profile.Services))}
	for i, svc := range b.profile.Services {
		profile.Services[i] = ServiceConfig{
			UUID:            svc.UUID,
			Characteristics: append([]CharacteristicConfig(nil), svc.Characteristics...),
		}
	}
	return profile
}

// DefaultTargetPeripheral is the target service with one writable characteristic.
func DefaultTargetPeripheral() *PeripheralBuilder {
	return NewPeripheralBuilder().
		WithService(TargetServiceUUID).
		WithCharacteristic(TargetCharacteristicUUID, "read,write")
}

// ParseProperties converts a comma-separated property list to device.Property flags.
// An empty list means read, write and notify.
func ParseProperties(props string) device.Property {
	if strings.TrimSpace(props) == "" {
		return device.PropRead | device.PropWrite | device.PropNotify
	}

	var property device.Property
	for _, p := range strings.Split(props, ",") {
		switch strings.TrimSpace(strings.ToLower(p)) {
		case "broadcast":
			property |= device.PropBroadcast
		case "read":
			property |= device.PropRead
		case "write-without-response", "writenr":
			property |= device.PropWriteWithoutResponse
		case "write":
			property |= device.PropWrite
		case "notify":
			property |= device.PropNotify
		case "indicate":
			property |= device.PropIndicate
		}
	}
	return property
}
