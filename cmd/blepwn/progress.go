package main

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

const (
	progressUpdateInterval = 100 * time.Millisecond
	clearLineSequence      = "\r\033[K"
)

// ProgressPrinter keeps a single status line updated with the current phase
// and the elapsed (or remaining) seconds.
//
//	p := NewProgressPrinter(w, "Waiting for Dropcam", "scanning")
//	p.Start()
//	defer p.Stop()
//
// A ProgressPrinter is single-use: Start at most once, Stop any number of times.
type ProgressPrinter struct {
	w        io.Writer
	prefix   string
	phase    atomic.Value // string
	duration time.Duration

	mu      sync.Mutex // serializes writes to w
	started atomic.Bool
	stopped atomic.Bool
	stop    chan struct{}
	done    chan struct{}
}

// NewProgressPrinter creates a progress printer that counts up.
func NewProgressPrinter(w io.Writer, prefix, phase string) *ProgressPrinter {
	return NewCountdownProgressPrinter(w, prefix, phase, 0)
}

// NewCountdownProgressPrinter creates a progress printer that counts down
// from duration. A zero duration counts up.
func NewCountdownProgressPrinter(w io.Writer, prefix, phase string, duration time.Duration) *ProgressPrinter {
	p := &ProgressPrinter{
		w:        w,
		prefix:   prefix,
		duration: duration,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	p.phase.Store(phase)
	return p
}

// Start begins displaying progress updates in a background goroutine.
// Panics if called more than once.
func (p *ProgressPrinter) Start() {
	if !p.started.CompareAndSwap(false, true) {
		panic("ProgressPrinter.Start called more than once")
	}
	started := time.Now()
	p.print(p.phase.Load().(string), -1)

	go func() {
		defer close(p.done)
		ticker := time.NewTicker(progressUpdateInterval)
		defer ticker.Stop()

		for {
			select {
			case <-p.stop:
				return
			case <-ticker.C:
				elapsed := time.Since(started)
				seconds := int(elapsed.Seconds())
				if p.duration > 0 {
					seconds = max(0, int((p.duration-elapsed).Seconds()+0.5))
				}
				p.print(p.phase.Load().(string), seconds)
			}
		}
	}()
}

func (p *ProgressPrinter) print(phase string, seconds int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped.Load() {
		return
	}
	if seconds >= 0 {
		fmt.Fprintf(p.w, "\r%s (%s %ds)   ", p.prefix, phase, seconds)
	} else {
		fmt.Fprintf(p.w, "\r%s (%s...)   ", p.prefix, phase)
	}
}

// SetPhase updates the phase shown on the next tick.
func (p *ProgressPrinter) SetPhase(phase string) {
	p.phase.Store(phase)
}

// Clear erases the status line so other output can be written. The line is
// redrawn on the next tick.
func (p *ProgressPrinter) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.stopped.Load() {
		fmt.Fprint(p.w, clearLineSequence)
	}
}

// Stop stops the progress display and clears the line.
func (p *ProgressPrinter) Stop() {
	if !p.started.Load() || !p.stopped.CompareAndSwap(false, true) {
		return
	}
	close(p.stop)
	<-p.done

	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprint(p.w, clearLineSequence)
}
