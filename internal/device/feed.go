package device

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/blepwn/internal/groutine"
	"github.com/srg/blepwn/internal/ringchan"
)

// DefaultStateBuffer is the per-subscriber buffer of a StateFeed.
const DefaultStateBuffer = 8

// StateFeed is the observed adapter state.
//
// Subscribers get the current state first and then each transition; there is
// no replay of older history. A subscriber that falls behind loses its oldest
// pending transitions, never the latest one.
type StateFeed struct {
	mu      sync.Mutex
	current AdapterState
	subs    map[*ringchan.RingChannel[AdapterState]]struct{}
	logger  *logrus.Logger
}

// NewStateFeed creates a feed starting at initial.
func NewStateFeed(initial AdapterState, logger *logrus.Logger) *StateFeed {
	if logger == nil {
		logger = logrus.New()
	}
	return &StateFeed{
		current: initial,
		subs:    make(map[*ringchan.RingChannel[AdapterState]]struct{}),
		logger:  logger,
	}
}

// Current returns the latest published state.
func (f *StateFeed) Current() AdapterState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

// Publish records a transition and fans it out. Returns false if s equals the
// current state, in which case nothing is sent.
func (f *StateFeed) Publish(s AdapterState) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if s == f.current {
		return false
	}

	f.logger.WithFields(logrus.Fields{
		"from":        f.current.String(),
		"to":          s.String(),
		"subscribers": len(f.subs),
	}).Debug("Adapter state changed")

	f.current = s
	for rc := range f.subs {
		if rc.Send(s) {
			f.logger.WithField("state", s.String()).Warn("Adapter state subscriber is lagging, dropped oldest transition")
		}
	}
	return true
}

// Subscribe returns a channel that yields the current state, then every
// transition. The channel is closed once ctx ends.
func (f *StateFeed) Subscribe(ctx context.Context) <-chan AdapterState {
	rc := ringchan.New[AdapterState](DefaultStateBuffer)

	f.mu.Lock()
	rc.Send(f.current)
	f.subs[rc] = struct{}{}
	f.mu.Unlock()

	groutine.Go(ctx, "adapter-state-subscription", func(ctx context.Context) {
		<-ctx.Done()
		f.mu.Lock()
		delete(f.subs, rc)
		f.mu.Unlock()
		rc.Close()
	})

	return rc.C()
}
