// Package session drives a BLE central through adapter wait, scan, connect,
// discovery and the two-step payload write, recovering from adapter resets
// and disconnects along the way.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/blepwn/internal/device"
	"github.com/srg/blepwn/internal/groutine"
	"github.com/srg/blepwn/internal/notify"
)

// Controller is the session state machine.
//
// All pipeline state is owned by a single event-loop goroutine. Blocking
// operations (scan, connect, discovery, writes, adapter reset) run on their
// own goroutines and report back to the loop; a completion that arrives after
// its stage was superseded is dropped.
//
// Events reach the Sink synchronously from the loop goroutine, so a Sink must
// not call Deactivate.
type Controller struct {
	transport device.Transport
	sink      notify.Sink
	opts      Options
	logger    *logrus.Logger

	lifecycle sync.Mutex // serializes Activate and Deactivate

	mu      sync.Mutex
	state   State
	fault   *Error
	changed chan struct{} // closed and replaced on every state change
	run     *run
}

// New creates an idle controller. A nil sink discards events.
func New(transport device.Transport, sink notify.Sink, opts Options, logger *logrus.Logger) (*Controller, error) {
	if transport == nil {
		return nil, errors.New("transport is required")
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if sink == nil {
		sink = notify.Discard
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Controller{
		transport: transport,
		sink:      sink,
		opts:      opts,
		logger:    logger,
		state:     State{Phase: Idle},
		changed:   make(chan struct{}),
	}, nil
}

// Activate starts a session. It is a no-op while a session is active; from
// Idle, Faulted or Deactivated it starts a fresh one.
func (c *Controller) Activate() error {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	c.mu.Lock()
	prev := c.run
	c.mu.Unlock()

	if prev != nil {
		if prev.ctx.Err() == nil {
			c.logger.Debug("Activate called while session is active")
			return nil
		}
		<-prev.loopDone
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &run{
		c:         c,
		ctx:       ctx,
		cancel:    cancel,
		events:    make(chan any, c.opts.EventBuffer),
		loopDone:  make(chan struct{}),
		writes:    newWriteTracker(),
		reconnect: 1,
		adapter:   device.AdapterUnknown,
	}

	c.mu.Lock()
	c.run = r
	c.fault = nil
	c.mu.Unlock()
	c.setState(State{Phase: WaitingForAdapter})

	c.logger.WithFields(logrus.Fields{
		"target":         c.opts.TargetName,
		"service":        c.opts.ServiceUUID,
		"characteristic": c.opts.CharacteristicUUID,
	}).Info("Session activated")

	states := c.transport.SubscribeState(ctx)
	r.group.Go(ctx, "session-adapter-state", func(ctx context.Context) {
		for s := range states {
			r.post(adapterEvent{state: s})
		}
		if ctx.Err() == nil {
			r.post(adapterClosed{})
		}
	})

	groutine.Go(context.Background(), "session-loop", func(context.Context) {
		r.loop()
	})
	return nil
}

// Deactivate tears the session down: in-flight operations are cancelled,
// the peripheral is released and the state becomes Deactivated. Cancelled
// operations are not reported to the sink. Deactivate blocks until every
// goroutine of the session has exited.
func (c *Controller) Deactivate() {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	c.mu.Lock()
	r := c.run
	c.mu.Unlock()

	if r != nil {
		r.deactivating.Store(true)
		r.cancel()
		<-r.loopDone
	}

	c.setState(State{Phase: Deactivated})
	c.logger.Info("Session deactivated")
}

// State returns a snapshot of the controller.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Ready reports whether SendPayloads would be accepted.
func (c *Controller) Ready() bool {
	c.mu.Lock()
	r := c.run
	phase := c.state.Phase
	c.mu.Unlock()
	return phase == Ready && r != nil && r.writeEnabled.Load()
}

// PendingWrites returns the number of SendPayloads calls in flight.
func (c *Controller) PendingWrites() int {
	c.mu.Lock()
	r := c.run
	c.mu.Unlock()
	if r == nil {
		return 0
	}
	return r.writes.Len()
}

// Wait blocks until the controller reaches phase. It fails with the halting
// *Error if the session faults first, with ErrDeactivated if it is
// deactivated first, and with ctx's error on cancellation.
func (c *Controller) Wait(ctx context.Context, phase Phase) (State, error) {
	for {
		c.mu.Lock()
		state, fault, changed := c.state, c.fault, c.changed
		c.mu.Unlock()

		switch {
		case state.Phase == phase:
			return state, nil
		case state.Phase == Faulted:
			return state, fault
		case state.Phase == Deactivated:
			return state, ErrDeactivated
		}

		select {
		case <-changed:
		case <-ctx.Done():
			return state, ctx.Err()
		}
	}
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == s {
		return
	}
	c.logger.WithFields(logrus.Fields{
		"from": c.state.String(),
		"to":   s.String(),
	}).Debug("Session state changed")
	c.state = s
	close(c.changed)
	c.changed = make(chan struct{})
}

func (c *Controller) setFault(e *Error) {
	c.mu.Lock()
	c.fault = e
	c.mu.Unlock()
	c.setState(State{Phase: Faulted, Fault: e.Kind})
}

func (c *Controller) emit(e notify.Event) {
	e.At = time.Now()
	c.logger.WithField("event", e.String()).Debug("Session event")
	c.sink.Notify(e)
}

func (c *Controller) report(e *Error) {
	entry := c.logger.WithFields(logrus.Fields{
		"kind":  e.Kind.String(),
		"level": e.Kind.Level().String(),
		"op":    e.Op,
	})
	if e.Kind.Halting() {
		entry.WithError(e.Err).Error("Session operation failed")
	} else {
		entry.WithError(e.Err).Warn("Session operation failed")
	}
	c.emit(notify.Event{
		Type:   notify.OperationFailed,
		Kind:   e.Kind.String(),
		Detail: e.Error(),
		Err:    e,
	})
}

func (c *Controller) String() string {
	return fmt.Sprintf("Controller{%s}", c.State())
}
