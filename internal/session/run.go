package session

import (
	"context"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"github.com/srg/blepwn/internal/device"
	"github.com/srg/blepwn/internal/groutine"
	"github.com/srg/blepwn/internal/notify"
)

// Loop events. Stage completions carry the token of the stage that produced
// them.
type (
	adapterEvent  struct{ state device.AdapterState }
	adapterClosed struct{}
	advEvent      struct {
		token uint64
		adv   device.Advertisement
	}
	scanEnded struct {
		token uint64
		err   error
	}
	connectDone struct {
		token     uint64
		reconnect bool
		err       error
	}
	servicesDone struct {
		token   uint64
		service *device.ServiceRecord
		err     error
	}
	characteristicDone struct {
		token uint64
		char  *device.Characteristic
		err   error
	}
	linkEvent struct {
		peripheral *device.Peripheral
		state      device.ConnectionState
		cause      error
	}
)

// stage is the single outstanding pipeline operation.
type stage struct {
	token  uint64
	cancel context.CancelFunc
	done   chan struct{}
}

// run is one activation of a Controller. Fields below the group are owned by
// the loop goroutine.
type run struct {
	c      *Controller
	ctx    context.Context
	cancel context.CancelFunc
	events chan any

	loopDone     chan struct{}
	deactivating atomic.Bool
	writeEnabled atomic.Bool
	writes       *writeTracker
	group        groutine.Group

	token      uint64
	stage      stage
	adapter    device.AdapterState
	reported   Kind // adapter kind last reported, to avoid duplicates
	peripheral *device.Peripheral
	lastStatus device.ConnectionState
	service    *device.ServiceRecord
	char       *device.Characteristic
	reconnect  int // automatic reconnects left before the next Ready
	halted     *Error
}

// post hands ev to the loop unless the session is over.
func (r *run) post(ev any) {
	select {
	case r.events <- ev:
	case <-r.ctx.Done():
	}
}

func (r *run) loop() {
	defer close(r.loopDone)
	for {
		select {
		case <-r.ctx.Done():
			r.teardown()
			return
		case ev := <-r.events:
			if r.ctx.Err() != nil {
				continue
			}
			r.handle(ev)
		}
	}
}

func (r *run) handle(ev any) {
	switch ev := ev.(type) {
	case adapterEvent:
		r.onAdapter(ev.state)
	case adapterClosed:
		r.fail(&Error{Kind: Unexpected, Op: "adapter state", Err: errAdapterFeedClosed})
	case advEvent:
		r.onAdvertisement(ev)
	case scanEnded:
		r.onScanEnded(ev)
	case connectDone:
		r.onConnected(ev)
	case servicesDone:
		r.onServices(ev)
	case characteristicDone:
		r.onCharacteristic(ev)
	case linkEvent:
		r.onLink(ev)
	case writeRequest:
		r.onWriteRequest(ev)
	case writeDone:
		r.onWriteDone(ev)
	default:
		r.c.logger.WithField("event", ev).Warn("Ignoring unknown session event")
	}
}

func (r *run) current(token uint64) bool {
	return token == r.stage.token && r.stage.cancel != nil
}

// startStage aborts the outstanding stage and runs fn as the new one.
func (r *run) startStage(name string, fn func(ctx context.Context, token uint64)) {
	r.abortStage()

	r.token++
	token := r.token
	ctx, cancel := context.WithCancel(r.ctx)
	done := make(chan struct{})
	r.stage = stage{token: token, cancel: cancel, done: done}

	r.group.Go(ctx, name, func(ctx context.Context) {
		defer close(done)
		defer cancel()
		fn(ctx, token)
	})
}

// abortStage cancels the outstanding stage and returns a channel closed once
// its goroutine has exited (nil if there was none).
func (r *run) abortStage() <-chan struct{} {
	if r.stage.cancel == nil {
		return nil
	}
	r.stage.cancel()
	done := r.stage.done
	r.stage = stage{}
	return done
}

func (r *run) phase() Phase {
	return r.c.State().Phase
}

func (r *run) setPhase(p Phase) {
	s := State{Phase: p}
	if r.peripheral != nil {
		s.Peripheral = r.peripheral.ID()
	}
	if r.service != nil && p != Connecting && p != DiscoveringServices {
		s.Service = r.service.UUID()
	}
	if r.char != nil && (p == Ready || p == Writing) {
		s.Characteristic = r.char.UUID()
	}
	r.c.setState(s)
}

func (r *run) setStep(step int) {
	s := r.c.State()
	s.Phase = Writing
	s.Step = step
	r.c.setState(s)
}

// enableWrites grants write capability. The event goes out before the flag
// flips, so an observer of Ready has already seen CharacteristicReady.
func (r *run) enableWrites() {
	if r.writeEnabled.Load() {
		return
	}
	r.c.emit(notify.Event{Type: notify.CharacteristicReady})
	r.writeEnabled.Store(true)
}

// revokeWrites withdraws write capability, announcing it only if it was granted.
func (r *run) revokeWrites() {
	if r.writeEnabled.Swap(false) {
		r.c.emit(notify.Event{Type: notify.CharacteristicUnavailable})
	}
}

// releasePeripheral forgets the active peripheral and disconnects it in the
// background once the aborted stage has let go of it. Link events of the
// forgotten peripheral are ignored, so the disconnect is announced here.
func (r *run) releasePeripheral() {
	done := r.abortStage()
	p := r.peripheral
	r.peripheral = nil
	r.service = nil
	r.char = nil
	if p == nil {
		return
	}
	if r.lastStatus != device.Disconnected {
		r.lastStatus = device.Disconnected
		r.c.emit(notify.Event{Type: notify.StatusChanged, Status: device.Disconnected})
	}

	r.c.logger.WithField("address", p.ID()).Debug("Releasing peripheral")
	r.group.Go(context.Background(), "session-release", func(context.Context) {
		if done != nil {
			<-done
		}
		if err := p.Disconnect(); err != nil {
			r.c.logger.WithError(err).Warn("Failed to release peripheral")
		}
	})
}

func (r *run) teardown() {
	done := r.abortStage()
	if done != nil {
		<-done
	}
	r.group.Wait()

	reason := error(ErrDeactivated)
	if r.halted != nil {
		reason = r.halted
	}
	r.writes.FailAll(reason)

	if p := r.peripheral; p != nil {
		if err := p.Disconnect(); err != nil {
			r.c.logger.WithError(err).Warn("Peripheral disconnected with errors during teardown")
		}
		if r.lastStatus != device.Disconnected {
			r.lastStatus = device.Disconnected
			r.c.emit(notify.Event{Type: notify.StatusChanged, Status: device.Disconnected})
		}
		r.peripheral = nil
	}
	r.service = nil
	r.char = nil
	r.revokeWrites()

	r.c.logger.WithFields(logrus.Fields{
		"halted":       r.halted != nil,
		"deactivating": r.deactivating.Load(),
	}).Debug("Session loop stopped")
}
