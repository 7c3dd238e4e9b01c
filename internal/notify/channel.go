package notify

import "github.com/srg/blepwn/internal/ringchan"

// DefaultChannelBuffer is the buffer of a Channel created with a non-positive capacity.
const DefaultChannelBuffer = 64

// Channel is a Sink that hands events to another goroutine. It never blocks
// the producer: when the consumer falls behind the oldest pending event is
// dropped.
type Channel struct {
	rc *ringchan.RingChannel[Event]
}

// NewChannel creates a Channel buffering up to capacity events.
func NewChannel(capacity int) *Channel {
	if capacity <= 0 {
		capacity = DefaultChannelBuffer
	}
	return &Channel{rc: ringchan.New[Event](capacity)}
}

func (c *Channel) Notify(e Event) {
	c.rc.Send(e)
}

// C returns the event stream. It is closed by Close.
func (c *Channel) C() <-chan Event {
	return c.rc.C()
}

// Close ends the stream; later events are discarded.
func (c *Channel) Close() {
	c.rc.Close()
}

// Dropped returns how many events were discarded because the consumer lagged.
func (c *Channel) Dropped() int64 {
	return c.rc.GetMetrics().Overwritten
}
