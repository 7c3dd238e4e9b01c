package session

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"
	"github.com/srg/blepwn/internal/notify"
)

type writeRequest struct {
	ctx     context.Context
	payload [2][]byte
	timeout time.Duration
	reply   chan error
}

type writeDone struct {
	id   uint64
	step int
	err  error
}

// pendingWrite is one SendPayloads call in flight.
type pendingWrite struct {
	id      uint64
	req     writeRequest
	step    int
	started time.Time
	replied atomic.Bool
}

func (w *pendingWrite) resolve(err error) {
	if w.replied.CompareAndSwap(false, true) {
		w.req.reply <- err
	}
}

// writeTracker correlates write completions with the SendPayloads call that
// issued them.
type writeTracker struct {
	next    atomic.Uint64
	pending *hashmap.Map[uint64, *pendingWrite]
}

func newWriteTracker() *writeTracker {
	return &writeTracker{pending: hashmap.New[uint64, *pendingWrite]()}
}

func (t *writeTracker) Begin(req writeRequest) *pendingWrite {
	w := &pendingWrite{
		id:      t.next.Add(1),
		req:     req,
		step:    1,
		started: time.Now(),
	}
	t.pending.Set(w.id, w)
	return w
}

func (t *writeTracker) Get(id uint64) (*pendingWrite, bool) {
	return t.pending.Get(id)
}

// Finish removes the write and answers its caller.
func (t *writeTracker) Finish(id uint64, err error) {
	if w, ok := t.pending.Get(id); ok {
		t.pending.Del(id)
		w.resolve(err)
	}
}

// FailAll answers every pending caller with err.
func (t *writeTracker) FailAll(err error) {
	var ids []uint64
	t.pending.Range(func(id uint64, _ *pendingWrite) bool {
		ids = append(ids, id)
		return true
	})
	for _, id := range ids {
		t.Finish(id, err)
	}
}

func (t *writeTracker) Len() int {
	return t.pending.Len()
}

// SendPayloads writes payload1 and, once the peripheral acknowledged it,
// payload2 to the target characteristic. Each write gets its own timeout
// (the configured write timeout when timeout <= 0). On success the sink
// receives PwnSuccess.
//
// It fails with ErrNotReady outside Ready, with a *Error of kind WriteTimeout
// or WriteFailed when a write fails (payload2 is then never sent), with
// ctx's error when the caller gives up, and with ErrDeactivated if the
// session is torn down meanwhile. Write failures leave the session Ready.
func (c *Controller) SendPayloads(ctx context.Context, payload1, payload2 []byte, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = c.opts.WriteTimeout
	}

	c.mu.Lock()
	r := c.run
	c.mu.Unlock()
	if r == nil || r.ctx.Err() != nil {
		return ErrNotReady
	}

	req := writeRequest{
		ctx:     ctx,
		payload: [2][]byte{payload1, payload2},
		timeout: timeout,
		reply:   make(chan error, 1),
	}

	select {
	case r.events <- req:
	case <-r.ctx.Done():
		return ErrDeactivated
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-req.reply:
		return err
	case <-r.loopDone:
		select {
		case err := <-req.reply:
			return err
		default:
			return ErrDeactivated
		}
	}
}

func (r *run) onWriteRequest(req writeRequest) {
	if r.phase() != Ready || !r.writeEnabled.Load() || r.char == nil {
		req.reply <- fmt.Errorf("%w (state: %s)", ErrNotReady, r.c.State())
		return
	}

	w := r.writes.Begin(req)
	r.c.logger.WithFields(logrus.Fields{
		"write_id":            w.id,
		"characteristic_uuid": r.char.UUID(),
		"timeout":             req.timeout,
	}).Info("Sending payloads...")

	r.setStep(1)
	r.issueWrite(w)
}

func (r *run) issueWrite(w *pendingWrite) {
	char := r.char
	step := w.step
	data := w.req.payload[step-1]
	timeout := w.req.timeout
	callerCtx := w.req.ctx

	r.group.Go(r.ctx, fmt.Sprintf("session-write-%d", step), func(ctx context.Context) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		stop := context.AfterFunc(callerCtx, cancel)
		defer stop()

		err := char.Write(ctx, data, timeout)
		if err != nil && callerCtx.Err() != nil {
			err = callerCtx.Err()
		}
		r.post(writeDone{id: w.id, step: step, err: err})
	})
}

func (r *run) onWriteDone(ev writeDone) {
	w, ok := r.writes.Get(ev.id)
	if !ok || w.step != ev.step {
		return
	}

	logger := r.c.logger.WithFields(logrus.Fields{
		"write_id": ev.id,
		"step":     ev.step,
	})

	if ev.err != nil {
		if r.phase() == Writing {
			r.setPhase(Ready)
		}
		if isCancellation(ev.err) || errors.Is(ev.err, context.DeadlineExceeded) && w.req.ctx.Err() != nil {
			logger.Debug("Write cancelled by caller")
			r.writes.Finish(ev.id, ev.err)
			return
		}

		e := classify(fmt.Sprintf("write payload %d", ev.step), ev.err)
		r.fail(e)
		r.writes.Finish(ev.id, e)
		return
	}

	if ev.step == 1 {
		logger.Debug("Payload 1 acknowledged")
		w.step = 2
		r.setStep(2)
		r.issueWrite(w)
		return
	}

	logger.WithField("elapsed", time.Since(w.started)).Info("Both payloads acknowledged")
	r.setPhase(Ready)
	r.c.emit(notify.Event{Type: notify.PwnSuccess})
	r.writes.Finish(ev.id, nil)
}
