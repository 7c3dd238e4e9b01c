package testutils

import (
	"context"
	"sync"

	"github.com/srg/blepwn/internal/device"
)

// WriteBehavior decides the outcome of a write on a FakeLink.
type WriteBehavior func(ctx context.Context, charUUID string, data []byte) error

// WriteHang blocks every write until its context ends.
func WriteHang(ctx context.Context, _ string, _ []byte) error {
	<-ctx.Done()
	return ctx.Err()
}

// WriteFail fails every write with err.
func WriteFail(err error) WriteBehavior {
	return func(context.Context, string, []byte) error {
		return err
	}
}

// DiscoverBehavior runs before every discovery call on a FakeLink; a non-nil
// error fails the call.
type DiscoverBehavior func(ctx context.Context) error

// DiscoverHang blocks discovery until its context ends.
func DiscoverHang(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

// WriteRecord is one write attempt observed by a FakeLink.
type WriteRecord struct {
	Characteristic string
	Data           []byte
	WithResponse   bool
	Err            error
}

type fakeService struct {
	uuid  string
	chars []*fakeCharacteristic
}

func (s *fakeService) UUID() string { return s.uuid }

type fakeCharacteristic struct {
	uuid  string
	props device.Property
}

func (c *fakeCharacteristic) UUID() string                { return c.uuid }
func (c *fakeCharacteristic) Properties() device.Property { return c.props }

// FakeLink is an in-memory device.Link serving a PeripheralProfile.
type FakeLink struct {
	address  string
	services []*fakeService

	mu          sync.Mutex
	writes      []WriteRecord
	write       WriteBehavior
	discover    DiscoverBehavior
	discoverErr error
	closed      bool
	err         error

	done chan struct{}
	once sync.Once
}

// NewFakeLink creates a live link for profile.
func NewFakeLink(address string, profile *PeripheralProfile) *FakeLink {
	l := &FakeLink{
		address: address,
		done:    make(chan struct{}),
	}
	for _, svc := range profile.Services {
		fs := &fakeService{uuid: svc.UUID}
		for _, c := range svc.Characteristics {
			fs.chars = append(fs.chars, &fakeCharacteristic{uuid: c.UUID, props: ParseProperties(c.Properties)})
		}
		l.services = append(l.services, fs)
	}
	return l
}

func (l *FakeLink) Address() string { return l.address }

// DiscoverServices returns every service of the profile; filtering is left to the caller.
func (l *FakeLink) DiscoverServices(ctx context.Context, _ []string) ([]device.RemoteService, error) {
	if err := l.beforeDiscover(ctx); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.discoverErr != nil {
		return nil, l.discoverErr
	}
	result := make([]device.RemoteService, 0, len(l.services))
	for _, s := range l.services {
		result = append(result, s)
	}
	return result, nil
}

func (l *FakeLink) DiscoverCharacteristics(ctx context.Context, svc device.RemoteService, _ []string) ([]device.RemoteCharacteristic, error) {
	if err := l.beforeDiscover(ctx); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.discoverErr != nil {
		return nil, l.discoverErr
	}
	fs, ok := svc.(*fakeService)
	if !ok {
		return nil, device.ErrUnsupported
	}
	result := make([]device.RemoteCharacteristic, 0, len(fs.chars))
	for _, c := range fs.chars {
		result = append(result, c)
	}
	return result, nil
}

func (l *FakeLink) WriteCharacteristic(ctx context.Context, c device.RemoteCharacteristic, data []byte, withResponse bool) error {
	if err := l.check(ctx); err != nil {
		return err
	}

	l.mu.Lock()
	behavior := l.write
	l.mu.Unlock()

	var err error
	if behavior != nil {
		err = behavior(ctx, c.UUID(), data)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.writes = append(l.writes, WriteRecord{
		Characteristic: device.NormalizeUUID(c.UUID()),
		Data:           append([]byte(nil), data...),
		WithResponse:   withResponse,
		Err:            err,
	})
	return err
}

func (l *FakeLink) beforeDiscover(ctx context.Context) error {
	if err := l.check(ctx); err != nil {
		return err
	}
	l.mu.Lock()
	behavior := l.discover
	l.mu.Unlock()
	if behavior == nil {
		return nil
	}
	if err := behavior(ctx); err != nil {
		return err
	}
	return l.check(ctx)
}

func (l *FakeLink) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-l.done:
		return device.ErrNotConnected
	default:
		return nil
	}
}

func (l *FakeLink) Done() <-chan struct{} { return l.done }

func (l *FakeLink) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// Close ends the link as if the owner released it.
func (l *FakeLink) Close() error {
	l.end(device.ErrNotConnected, true)
	return nil
}

// Drop ends the link as if the remote side or the transport tore it down.
// cause is device.ErrPeripheralDisconnected or device.ErrForcedDisconnect.
func (l *FakeLink) Drop(cause error) {
	l.end(cause, false)
}

func (l *FakeLink) end(cause error, closed bool) {
	l.once.Do(func() {
		l.mu.Lock()
		l.err = cause
		l.closed = closed
		l.mu.Unlock()
		close(l.done)
	})
}

// Closed reports whether Close was called before any drop.
func (l *FakeLink) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// SetWriteBehavior replaces how writes complete. nil means success.
func (l *FakeLink) SetWriteBehavior(fn WriteBehavior) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.write = fn
}

// SetDiscoverBehavior installs a hook run before every discovery call. nil removes it.
func (l *FakeLink) SetDiscoverBehavior(fn DiscoverBehavior) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.discover = fn
}

// SetDiscoverError makes every discovery call fail with err.
func (l *FakeLink) SetDiscoverError(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.discoverErr = err
}

// Writes returns every write attempt in order, failed ones included.
func (l *FakeLink) Writes() []WriteRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]WriteRecord(nil), l.writes...)
}
