package testutils

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/blepwn/internal/device"
	"github.com/stretchr/testify/mock"
)

// DialBehavior decides the outcome of one Dial on a FakeTransport.
type DialBehavior func(ctx context.Context, address string) (device.Link, error)

// DialHang blocks until the dial context ends.
func DialHang(ctx context.Context, _ string) (device.Link, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// DialFail fails the dial with err.
func DialFail(err error) DialBehavior {
	return func(context.Context, string) (device.Link, error) {
		return nil, err
	}
}

// FakeTransport is a scripted device.Transport.
//
// Adapter state is driven with SetState, advertisements with Advertise, and
// each Dial consumes the next queued DialBehavior (default: a FakeLink
// serving the configured profile). Reset goes through the embedded
// mock.Mock so tests can assert on it.
type FakeTransport struct {
	mock.Mock

	feed   *device.StateFeed
	logger *logrus.Logger

	mu        sync.Mutex
	profile   *PeripheralProfile
	ads       []device.Advertisement
	handler   func(device.Advertisement)
	scans     int
	resets    int
	closed    bool
	scanErr   error
	dialQueue []DialBehavior
	dials     int
	links     []*FakeLink
	write     WriteBehavior
	discover  DiscoverBehavior
}

// NewFakeTransport creates a transport starting in initial state. Reset
// succeeds unless the test replaces the expectation.
func NewFakeTransport(initial device.AdapterState, profile *PeripheralProfile, logger *logrus.Logger) *FakeTransport {
	if logger == nil {
		logger = logrus.New()
	}
	if profile == nil {
		profile = DefaultTargetPeripheral().Build()
	}
	t := &FakeTransport{
		feed:    device.NewStateFeed(initial, logger),
		logger:  logger,
		profile: profile,
	}
	t.On("Reset", mock.Anything).Return(nil).Maybe()
	return t
}

// SubscribeState implements device.Transport.
func (t *FakeTransport) SubscribeState(ctx context.Context) <-chan device.AdapterState {
	return t.feed.Subscribe(ctx)
}

// SetState publishes an adapter state transition.
func (t *FakeTransport) SetState(s device.AdapterState) {
	t.feed.Publish(s)
}

// Scan delivers the preloaded advertisements, then any passed to Advertise,
// until ctx ends.
func (t *FakeTransport) Scan(ctx context.Context, _ device.ScanOptions, handler func(device.Advertisement)) error {
	t.mu.Lock()
	t.scans++
	if t.scanErr != nil {
		err := t.scanErr
		t.mu.Unlock()
		return err
	}
	if !t.feed.Current().Usable() {
		t.mu.Unlock()
		return device.ErrBluetoothOff
	}
	t.handler = handler
	ads := append([]device.Advertisement(nil), t.ads...)
	t.mu.Unlock()

	for _, adv := range ads {
		handler(adv)
	}

	<-ctx.Done()

	t.mu.Lock()
	t.handler = nil
	t.mu.Unlock()
	return nil
}

// Dial implements device.Dialer.
func (t *FakeTransport) Dial(ctx context.Context, address string) (device.Link, error) {
	t.mu.Lock()
	t.dials++
	var behavior DialBehavior
	if len(t.dialQueue) > 0 {
		behavior = t.dialQueue[0]
		t.dialQueue = t.dialQueue[1:]
	}
	t.mu.Unlock()

	if behavior != nil {
		return behavior(ctx, address)
	}
	return t.newLink(address), nil
}

func (t *FakeTransport) newLink(address string) *FakeLink {
	t.mu.Lock()
	defer t.mu.Unlock()
	link := NewFakeLink(address, t.profile)
	link.SetWriteBehavior(t.write)
	link.SetDiscoverBehavior(t.discover)
	t.links = append(t.links, link)
	return link
}

// Reset implements device.Transport.
func (t *FakeTransport) Reset(ctx context.Context) error {
	t.mu.Lock()
	t.resets++
	t.mu.Unlock()
	args := t.Called(ctx)
	return args.Error(0)
}

// Close marks the transport closed and drops every live link.
func (t *FakeTransport) Close() error {
	t.mu.Lock()
	t.closed = true
	links := append([]*FakeLink(nil), t.links...)
	t.mu.Unlock()
	for _, l := range links {
		_ = l.Close()
	}
	return nil
}

// Closed reports whether Close was called.
func (t *FakeTransport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// WithAdvertisements preloads advertisements delivered at the start of every scan.
func (t *FakeTransport) WithAdvertisements(ads ...device.Advertisement) *FakeTransport {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ads = append(t.ads, ads...)
	return t
}

// QueueDial scripts the next dials in order.
func (t *FakeTransport) QueueDial(behaviors ...DialBehavior) *FakeTransport {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dialQueue = append(t.dialQueue, behaviors...)
	return t
}

// SetScanError makes subsequent scans fail immediately.
func (t *FakeTransport) SetScanError(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.scanErr = err
}

// SetProfile replaces the GATT layout served by links dialed from now on.
func (t *FakeTransport) SetProfile(profile *PeripheralProfile) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.profile = profile
}

// SetWriteBehavior applies fn to the live links and every future one.
func (t *FakeTransport) SetWriteBehavior(fn WriteBehavior) {
	t.mu.Lock()
	t.write = fn
	links := append([]*FakeLink(nil), t.links...)
	t.mu.Unlock()
	for _, l := range links {
		l.SetWriteBehavior(fn)
	}
}

// SetDiscoverBehavior applies fn to the live links and every future one.
func (t *FakeTransport) SetDiscoverBehavior(fn DiscoverBehavior) {
	t.mu.Lock()
	t.discover = fn
	links := append([]*FakeLink(nil), t.links...)
	t.mu.Unlock()
	for _, l := range links {
		l.SetDiscoverBehavior(fn)
	}
}

// Advertise delivers adv to the running scan. Returns false if no scan is running.
func (t *FakeTransport) Advertise(adv device.Advertisement) bool {
	t.mu.Lock()
	handler := t.handler
	t.mu.Unlock()
	if handler == nil {
		return false
	}
	handler(adv)
	return true
}

// Scanning reports whether a scan is in progress.
func (t *FakeTransport) Scanning() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.handler != nil
}

// ScanCount returns how many scans were started.
func (t *FakeTransport) ScanCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.scans
}

// ResetCount returns how many adapter resets were requested.
func (t *FakeTransport) ResetCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.resets
}

// DialCount returns how many dials were attempted.
func (t *FakeTransport) DialCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dials
}

// Links returns every link produced by default dials, oldest first.
func (t *FakeTransport) Links() []*FakeLink {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*FakeLink(nil), t.links...)
}

// LastLink returns the most recent default-dialed link, or nil.
func (t *FakeTransport) LastLink() *FakeLink {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.links) == 0 {
		return nil
	}
	return t.links[len(t.links)-1]
}
