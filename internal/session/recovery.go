package session

import (
	"context"

	"github.com/sirupsen/logrus"
)

// fail is the recovery dispatcher: every failure the loop observes ends up
// here and is handled according to its kind.
func (r *run) fail(e *Error) {
	switch e.Kind {
	case NameMismatch:
		// Not an error.
		return

	case AdapterPoweredOff, AdapterResetting:
		r.adapterDown(e)

	case AdapterUnknown:
		if r.reported == e.Kind {
			return
		}
		r.reported = e.Kind
		r.c.report(e)
		r.revokeWrites()

	case PeripheralDisconnected:
		r.peripheralDropped(e)

	case WriteTimeout, WriteFailed:
		// Scoped to the SendPayloads call; see onWriteDone.
		r.c.report(e)

	default:
		r.halt(e)
	}
}

// adapterDown handles PoweredOff and Resetting: the peripheral is discarded
// and the pipeline waits for the next PoweredOn to start over from the scan.
func (r *run) adapterDown(e *Error) {
	if e.Kind == AdapterResetting {
		r.c.logger.Info("Adapter is resetting, requesting recovery")
		r.group.Go(r.ctx, "session-adapter-reset", func(ctx context.Context) {
			if err := r.c.transport.Reset(ctx); err != nil && ctx.Err() == nil {
				r.c.logger.WithError(err).Warn("Adapter reset request failed")
			}
		})
	}

	if r.reported != e.Kind {
		r.reported = e.Kind
		r.c.report(e)
	}

	r.writes.FailAll(e)
	r.revokeWrites()
	r.releasePeripheral()
	r.setPhase(WaitingForAdapter)
}

// peripheralDropped handles an unsolicited disconnect: one automatic
// reconnect is allowed per Ready cycle, after which the drop halts the
// session as a discovery failure.
func (r *run) peripheralDropped(e *Error) {
	phase := r.phase()
	if !phase.connected() || r.peripheral == nil {
		r.c.logger.WithFields(logrus.Fields{
			"phase": phase.String(),
			"error": e,
		}).Debug("Ignoring disconnect outside a connected phase")
		return
	}

	r.writes.FailAll(e)
	r.revokeWrites()

	if r.reconnect <= 0 {
		r.halt(&Error{Kind: ServiceNotFound, Op: "reconnect", Err: e})
		return
	}
	r.reconnect--

	r.c.logger.WithFields(logrus.Fields{
		"address": r.peripheral.ID(),
		"phase":   phase.String(),
	}).Warn("Peripheral disconnected, reconnecting once")
	r.startConnect(true)
}

// halt reports e and ends the session in Faulted. The peripheral is released
// by the loop's teardown.
func (r *run) halt(e *Error) {
	if r.halted != nil {
		return
	}
	r.halted = e
	r.c.report(e)
	r.writes.FailAll(e)
	r.revokeWrites()
	r.abortStage()
	r.c.setFault(e)
	r.cancel()
}
