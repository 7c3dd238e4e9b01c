package devicefactory

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/blepwn/internal/device"
	"github.com/srg/blepwn/internal/device/go-ble"
)

// Transport is a device.Transport that owns platform resources.
type Transport interface {
	device.Transport
	Close() error
}

// TransportFactory creates the BLE transport used by commands.
// This is a variable so that it can be overridden in tests.
var TransportFactory = func(logger *logrus.Logger, probe time.Duration) (Transport, error) {
	return goble.NewTransportWithProbe(logger, probe), nil
}

// NewTransport creates a transport through TransportFactory.
func NewTransport(logger *logrus.Logger, probe time.Duration) (Transport, error) {
	return TransportFactory(logger, probe)
}
