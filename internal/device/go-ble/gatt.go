package goble

import (
	"github.com/go-ble/ble"
	"github.com/srg/blepwn/internal/device"
)

// remoteService is a device.RemoteService backed by a discovered ble.Service.
type remoteService struct {
	svc *ble.Service
}

func (s *remoteService) UUID() string { return s.svc.UUID.String() }

// remoteCharacteristic is a device.RemoteCharacteristic backed by a
// discovered ble.Characteristic.
type remoteCharacteristic struct {
	char *ble.Characteristic
}

func (c *remoteCharacteristic) UUID() string { return c.char.UUID.String() }

func (c *remoteCharacteristic) Properties() device.Property {
	return toProperty(c.char.Property)
}

var propertyMap = []struct {
	ble ble.Property
	dev device.Property
}{
	{ble.CharBroadcast, device.PropBroadcast},
	{ble.CharRead, device.PropRead},
	{ble.CharWriteNR, device.PropWriteWithoutResponse},
	{ble.CharWrite, device.PropWrite},
	{ble.CharNotify, device.PropNotify},
	{ble.CharIndicate, device.PropIndicate},
}

// toProperty converts go-ble property flags, dropping the ones the session
// does not use.
func toProperty(p ble.Property) device.Property {
	var result device.Property
	for _, m := range propertyMap {
		if p&m.ble != 0 {
			result |= m.dev
		}
	}
	return result
}

// parseUUIDs converts normalized UUID strings to go-ble UUIDs. A nil result
// means no filter.
func parseUUIDs(uuids []string) ([]ble.UUID, error) {
	if len(uuids) == 0 {
		return nil, nil
	}
	result := make([]ble.UUID, 0, len(uuids))
	for _, s := range uuids {
		u, err := ble.Parse(s)
		if err != nil {
			return nil, err
		}
		result = append(result, u)
	}
	return result, nil
}
