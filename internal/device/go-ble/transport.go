package goble

import (
	"context"
	"sync"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/blepwn/internal/device"
	"github.com/srg/blepwn/internal/groutine"
)

// DefaultProbeInterval is how often an unusable adapter is re-opened.
const DefaultProbeInterval = 2 * time.Second

// DeviceFactory creates ble.Device instances (can be overridden in tests)
//
//nolint:revive // DeviceFactory name is intentional for test mocking
var DeviceFactory = newPlatformDevice

// Transport implements device.Transport on top of go-ble.
//
// go-ble has no adapter state callbacks, so the state is derived: opening the
// device and the errors of scans and dials tell whether the radio is usable,
// and while it is not the device is re-opened every probe interval.
type Transport struct {
	logger *logrus.Logger
	feed   *device.StateFeed
	links  *hashmap.Map[string, *Link]

	mu  sync.Mutex
	dev ble.Device

	ctx    context.Context
	cancel context.CancelFunc
	group  groutine.Group
}

// NewTransport opens the platform BLE device. It never fails: an adapter
// that cannot be opened is reported through SubscribeState.
func NewTransport(logger *logrus.Logger) *Transport {
	return NewTransportWithProbe(logger, DefaultProbeInterval)
}

// NewTransportWithProbe is NewTransport with a custom probe interval.
func NewTransportWithProbe(logger *logrus.Logger, probe time.Duration) *Transport {
	if logger == nil {
		logger = logrus.New()
	}
	if probe <= 0 {
		probe = DefaultProbeInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &Transport{
		logger: logger,
		links:  hashmap.New[string, *Link](),
		ctx:    ctx,
		cancel: cancel,
	}
	t.feed = device.NewStateFeed(t.open(), logger)

	t.group.Go(ctx, "goble-adapter-probe", func(ctx context.Context) {
		ticker := time.NewTicker(probe)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if t.feed.Current() != device.AdapterPoweredOn {
					t.feed.Publish(t.open())
				}
			}
		}
	})
	return t
}

// open creates the BLE device unless one is already open and returns the
// resulting adapter state.
func (t *Transport) open() device.AdapterState {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.dev != nil {
		return device.AdapterPoweredOn
	}

	dev, err := DeviceFactory()
	if err != nil {
		err = NormalizeError(err)
		state := adapterState(err)
		if state == device.AdapterPoweredOn {
			state = device.AdapterUnknown
		}
		t.logger.WithFields(logrus.Fields{
			"error": err,
			"state": state.String(),
		}).Debug("BLE device is not available")
		return state
	}

	ble.SetDefaultDevice(dev)
	t.dev = dev
	t.logger.Debug("BLE device opened")
	return device.AdapterPoweredOn
}

// device returns the open device, opening it if needed.
func (t *Transport) device() (ble.Device, error) {
	t.mu.Lock()
	dev := t.dev
	t.mu.Unlock()
	if dev != nil {
		return dev, nil
	}

	state := t.open()
	t.feed.Publish(state)
	if state != device.AdapterPoweredOn {
		return nil, stateError(state)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dev, nil
}

// observe publishes the adapter state implied by err. A device that reports
// an unusable adapter is closed so the probe re-opens it.
func (t *Transport) observe(err error) error {
	state := adapterState(err)
	if state == device.AdapterPoweredOn {
		return err
	}
	t.closeDevice()
	t.feed.Publish(state)
	return err
}

func (t *Transport) closeDevice() {
	t.mu.Lock()
	dev := t.dev
	t.dev = nil
	t.mu.Unlock()

	if dev == nil {
		return
	}
	if err := dev.Stop(); err != nil {
		t.logger.WithError(err).Debug("Stopping BLE device failed")
	}
}

// SubscribeState implements device.Transport.
func (t *Transport) SubscribeState(ctx context.Context) <-chan device.AdapterState {
	return t.feed.Subscribe(ctx)
}

// Scan implements device.Transport. go-ble has no scan filter, so service
// UUIDs are matched here.
func (t *Transport) Scan(ctx context.Context, opts device.ScanOptions, handler func(device.Advertisement)) error {
	dev, err := t.device()
	if err != nil {
		return err
	}

	filter := device.NormalizeUUIDs(opts.ServiceUUIDs)
	t.logger.WithFields(logrus.Fields{
		"allow_duplicates": opts.AllowDuplicates,
		"service_uuids":    filter,
	}).Debug("Starting BLE scan...")

	err = dev.Scan(ctx, opts.AllowDuplicates, func(a ble.Advertisement) {
		adv := NewBLEAdvertisement(a)
		if advertises(adv, filter) {
			handler(adv)
		}
	})
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return t.observe(NormalizeError(err))
}

// Dial implements device.Dialer.
func (t *Transport) Dial(ctx context.Context, address string) (device.Link, error) {
	dev, err := t.device()
	if err != nil {
		return nil, err
	}

	t.logger.WithField("address", address).Debug("Dialing BLE device...")
	client, err := dev.Dial(ctx, ble.NewAddr(address))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, t.observe(NormalizeError(err))
	}

	l := newLink(address, client, t.logger)
	if prev, ok := t.links.Get(address); ok {
		prev.drop(device.ErrForcedDisconnect)
	}
	t.links.Set(address, l)

	t.group.Go(t.ctx, "goble-link-registry", func(ctx context.Context) {
		select {
		case <-l.Done():
		case <-ctx.Done():
			return
		}
		if cur, ok := t.links.Get(address); ok && cur == l {
			t.links.Del(address)
		}
	})
	return l, nil
}

// Reset tears every link down as forced, restarts the BLE device and
// publishes the resulting state.
func (t *Transport) Reset(ctx context.Context) error {
	t.logger.Info("Resetting BLE adapter...")

	t.links.Range(func(_ string, l *Link) bool {
		l.drop(device.ErrForcedDisconnect)
		return true
	})
	t.closeDevice()

	if err := ctx.Err(); err != nil {
		return err
	}

	state := t.open()
	t.feed.Publish(state)
	if state != device.AdapterPoweredOn {
		return stateError(state)
	}
	t.logger.Info("BLE adapter reset completed")
	return nil
}

// Links returns the number of live links.
func (t *Transport) Links() int {
	return t.links.Len()
}

// Close stops the probe, drops every link and releases the device.
func (t *Transport) Close() error {
	t.cancel()
	t.links.Range(func(_ string, l *Link) bool {
		if err := l.Close(); err != nil {
			t.logger.WithError(err).Debug("Closing link failed")
		}
		return true
	})
	t.closeDevice()
	t.group.Wait()
	return nil
}
