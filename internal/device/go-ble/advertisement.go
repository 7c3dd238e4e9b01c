package goble

import (
	"github.com/go-ble/ble"
	"github.com/srg/blepwn/internal/device"
)

// BLEAdvertisement wraps ble.Advertisement to implement device.Advertisement.
type BLEAdvertisement struct {
	adv ble.Advertisement
}

// NewBLEAdvertisement creates a new BLEAdvertisement wrapper.
func NewBLEAdvertisement(adv ble.Advertisement) *BLEAdvertisement {
	return &BLEAdvertisement{adv: adv}
}

func (a *BLEAdvertisement) LocalName() string        { return a.adv.LocalName() }
func (a *BLEAdvertisement) ManufacturerData() []byte { return a.adv.ManufacturerData() }
func (a *BLEAdvertisement) TxPowerLevel() int        { return a.adv.TxPowerLevel() }
func (a *BLEAdvertisement) Connectable() bool        { return a.adv.Connectable() }
func (a *BLEAdvertisement) RSSI() int                { return a.adv.RSSI() }

func (a *BLEAdvertisement) Addr() string {
	if addr := a.adv.Addr(); addr != nil {
		return addr.String()
	}
	return ""
}

// Services returns the advertised service UUIDs, overflow area included,
// normalized.
func (a *BLEAdvertisement) Services() []string {
	uuids := append(append([]ble.UUID(nil), a.adv.Services()...), a.adv.OverflowService()...)
	result := make([]string, len(uuids))
	for i, u := range uuids {
		result[i] = device.NormalizeUUID(u.String())
	}
	return result
}

// advertises reports whether adv lists one of the normalized uuids. An empty
// filter matches everything.
func advertises(adv device.Advertisement, uuids []string) bool {
	if len(uuids) == 0 {
		return true
	}
	for _, s := range adv.Services() {
		for _, u := range uuids {
			if s == u {
				return true
			}
		}
	}
	return false
}
