package notify

import (
	"fmt"
	"sync/atomic"

	"github.com/cornelk/hashmap"
	"github.com/hedzr/go-ringbuf/v2/mpmc"
)

// DefaultHistorySize is the history of a Recorder created with size 0.
const DefaultHistorySize uint32 = 256

// Recorder is a Sink keeping a bounded history of events plus per-type
// counters and the latest event of each type. The history overwrites its
// oldest entries when full; counters are never reset.
//
// All methods are safe for concurrent use.
type Recorder struct {
	history     mpmc.RichOverlappedRingBuffer[Event]
	counts      *hashmap.Map[Type, *atomic.Int64]
	last        *hashmap.Map[Type, Event]
	total       atomic.Int64
	overwritten atomic.Uint64
	errors      atomic.Int64
}

// NewRecorder creates a Recorder holding up to size events.
func NewRecorder(size uint32) *Recorder {
	if size == 0 {
		size = DefaultHistorySize
	}
	return &Recorder{
		history: mpmc.NewOverlappedRingBuffer[Event](size),
		counts:  hashmap.New[Type, *atomic.Int64](),
		last:    hashmap.New[Type, Event](),
	}
}

func (r *Recorder) Notify(e Event) {
	counter, _ := r.counts.GetOrInsert(e.Type, new(atomic.Int64))
	counter.Add(1)
	r.last.Set(e.Type, e)
	r.total.Add(1)

	overwrites, err := r.history.EnqueueM(e)
	if err != nil {
		r.errors.Add(1)
		return
	}
	r.overwritten.Add(uint64(overwrites))
}

// Count returns how many events of type t were recorded.
func (r *Recorder) Count(t Type) int {
	counter, ok := r.counts.Get(t)
	if !ok {
		return 0
	}
	return int(counter.Load())
}

// Total returns how many events were recorded.
func (r *Recorder) Total() int {
	return int(r.total.Load())
}

// Last returns the most recent event of type t.
func (r *Recorder) Last(t Type) (Event, bool) {
	return r.last.Get(t)
}

// Drain removes and returns the buffered history, oldest first.
func (r *Recorder) Drain() []Event {
	var events []Event
	for !r.history.IsEmpty() {
		e, err := r.history.Dequeue()
		if err != nil {
			break
		}
		events = append(events, e)
	}
	return events
}

// Overwritten returns how many history entries were lost to overflow.
func (r *Recorder) Overwritten() uint64 {
	return r.overwritten.Load()
}

func (r *Recorder) String() string {
	return fmt.Sprintf("Recorder{total=%d ready=%d unavailable=%d failed=%d success=%d}",
		r.Total(), r.Count(CharacteristicReady), r.Count(CharacteristicUnavailable),
		r.Count(OperationFailed), r.Count(PwnSuccess))
}
