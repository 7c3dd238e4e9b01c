package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/blepwn/internal/groutine"
)

// StateObserver is called after every connection state transition. cause is
// non-nil only for a transition the peripheral did not ask for: it is
// ErrPeripheralDisconnected or ErrForcedDisconnect.
type StateObserver func(state ConnectionState, cause error)

// Peripheral is a selected remote device and its connection lifecycle.
//
//	Disconnected -> Connecting -> Connected -> Disconnecting -> Disconnected
//
// At most one connect attempt is outstanding at a time. Every successful
// connect gets a fresh ServiceCatalog; the previous one goes stale.
type Peripheral struct {
	address string
	name    string
	dialer  Dialer
	logger  *logrus.Logger

	mu       sync.Mutex
	state    ConnectionState
	link     Link
	catalog  *ServiceCatalog
	observer StateObserver
}

// NewPeripheral creates a disconnected handle for the advertiser of adv.
func NewPeripheral(adv Advertisement, dialer Dialer, logger *logrus.Logger) *Peripheral {
	if logger == nil {
		logger = logrus.New()
	}
	return &Peripheral{
		address: adv.Addr(),
		name:    adv.LocalName(),
		dialer:  dialer,
		logger:  logger,
		state:   Disconnected,
	}
}

// ID returns the transport address of the peripheral.
func (p *Peripheral) ID() string {
	return p.address
}

// Name returns the advertised name.
func (p *Peripheral) Name() string {
	return p.name
}

// State returns the current connection state.
func (p *Peripheral) State() ConnectionState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Catalog returns the catalog of the current connection, or nil if the
// peripheral has never connected. It may be stale.
func (p *Peripheral) Catalog() *ServiceCatalog {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.catalog
}

// SetObserver installs the connection state observer.
func (p *Peripheral) SetObserver(fn StateObserver) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observer = fn
}

// setState must be called with p.mu held; the returned func notifies the
// observer and must be called after unlocking.
func (p *Peripheral) setState(s ConnectionState, cause error) func() {
	p.state = s
	obs := p.observer
	return func() {
		if obs != nil {
			obs(s, cause)
		}
	}
}

// Connect dials the peripheral with a hard deadline.
//
// Returns ErrAlreadyConnecting while another attempt is outstanding (that
// attempt and its deadline are unaffected), ErrConnectTimeout when the
// deadline expires, ErrConnectFailed when the transport refuses, and ctx's
// error when the caller cancels. On any failure the handle is Disconnected.
func (p *Peripheral) Connect(ctx context.Context, timeout time.Duration) error {
	p.mu.Lock()
	switch p.state {
	case Connecting:
		p.mu.Unlock()
		return ErrAlreadyConnecting
	case Connected:
		p.mu.Unlock()
		return ErrAlreadyConnected
	case Disconnecting:
		p.mu.Unlock()
		return ErrDisconnecting
	}
	notify := p.setState(Connecting, nil)
	p.mu.Unlock()
	notify()

	p.logger.WithFields(logrus.Fields{
		"address": p.address,
		"timeout": timeout,
	}).Info("Connecting to peripheral...")

	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	link, err := p.dialer.Dial(dialCtx, p.address)
	timedOut := errors.Is(dialCtx.Err(), context.DeadlineExceeded)
	cancel()

	if err == nil && ctx.Err() != nil {
		// Cancelled while the transport was completing; release what it produced.
		if closeErr := link.Close(); closeErr != nil {
			p.logger.WithError(closeErr).Warn("Failed to release link after cancelled connect")
		}
		err = ctx.Err()
	}

	if err != nil {
		p.mu.Lock()
		notify := p.setState(Disconnected, nil)
		p.mu.Unlock()
		notify()

		switch {
		case ctx.Err() != nil:
			p.logger.WithField("address", p.address).Debug("Connect cancelled")
			return ctx.Err()
		case timedOut || errors.Is(err, context.DeadlineExceeded):
			p.logger.WithField("address", p.address).Warn("Connect timed out")
			return fmt.Errorf("%w: %s after %v", ErrConnectTimeout, p.address, timeout)
		default:
			p.logger.WithFields(logrus.Fields{
				"address": p.address,
				"error":   err,
			}).Error("Failed to connect to peripheral")
			return fmt.Errorf("%w: %s: %w", ErrConnectFailed, p.address, err)
		}
	}

	p.mu.Lock()
	p.link = link
	p.catalog = newServiceCatalog(link, p.logger)
	notify = p.setState(Connected, nil)
	p.mu.Unlock()
	notify()

	groutine.Go(context.Background(), "peripheral-link-monitor", func(context.Context) {
		p.monitor(link)
	})

	p.logger.WithField("address", p.address).Info("Peripheral connected")
	return nil
}

// monitor waits for link to end and reports drops that Disconnect did not cause.
func (p *Peripheral) monitor(link Link) {
	<-link.Done()

	p.mu.Lock()
	if p.link != link {
		// Replaced or released by Disconnect.
		p.mu.Unlock()
		return
	}
	cause := link.Err()
	if !errors.Is(cause, ErrForcedDisconnect) {
		cause = ErrPeripheralDisconnected
	}
	p.link = nil
	p.catalog.invalidate()
	notify := p.setState(Disconnected, cause)
	p.mu.Unlock()

	p.logger.WithFields(logrus.Fields{
		"address": p.address,
		"cause":   cause,
	}).Warn("Peripheral link dropped")
	notify()
}

// Disconnect releases the connection and invalidates its catalog. It is
// idempotent: disconnecting a disconnected handle succeeds. An outstanding
// connect attempt is aborted by cancelling its context, not by Disconnect.
func (p *Peripheral) Disconnect() error {
	p.mu.Lock()
	if p.link == nil {
		p.mu.Unlock()
		p.logger.WithField("address", p.address).Debug("Disconnect called but already disconnected")
		return nil
	}

	link := p.link
	p.link = nil
	p.catalog.invalidate()
	notify := p.setState(Disconnecting, nil)
	p.mu.Unlock()
	notify()

	p.logger.WithField("address", p.address).Info("Disconnecting peripheral...")
	err := link.Close()

	p.mu.Lock()
	notify = p.setState(Disconnected, nil)
	p.mu.Unlock()
	notify()

	if err != nil {
		p.logger.WithError(err).Warn("Peripheral disconnected with errors")
		return fmt.Errorf("failed to disconnect %s: %w", p.address, err)
	}
	p.logger.WithField("address", p.address).Info("Peripheral disconnected")
	return nil
}

// Reconnect disconnects if needed and connects again. Discovered services do
// not survive; DiscoverServices must be called again.
func (p *Peripheral) Reconnect(ctx context.Context, timeout time.Duration) error {
	if err := p.Disconnect(); err != nil {
		p.logger.WithError(err).Warn("Ignoring disconnect error before reconnect")
	}
	return p.Connect(ctx, timeout)
}

// DiscoverServices discovers the filtered services on the current connection.
// Valid only when Connected. Returns the subset found, or a service
// NotFoundError when the filter yields nothing.
func (p *Peripheral) DiscoverServices(ctx context.Context, uuids ...string) ([]*ServiceRecord, error) {
	p.mu.Lock()
	if p.state != Connected || p.catalog == nil {
		p.mu.Unlock()
		return nil, ErrNotConnected
	}
	catalog := p.catalog
	p.mu.Unlock()

	return catalog.discoverServices(ctx, uuids)
}
