package notify

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/srg/blepwn/internal/device"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvent_MarshalJSON(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("status change carries status only", func(t *testing.T) {
		data, err := json.Marshal(Event{Type: StatusChanged, Status: device.Disconnected, Kind: "ignored", At: at})
		require.NoError(t, err)
		assert.JSONEq(t, `{"type":"status_changed","status":"disconnected","at":"2024-05-01T12:00:00Z"}`, string(data))
	})

	t.Run("failure carries kind and detail", func(t *testing.T) {
		data, err := json.Marshal(Event{
			Type:   OperationFailed,
			Kind:   "connect_timeout",
			Detail: "connect timeout: AA after 10s",
			Err:    errors.New("not serialized"),
			At:     at,
		})
		require.NoError(t, err)
		assert.JSONEq(t, `{"type":"operation_failed","kind":"connect_timeout","detail":"connect timeout: AA after 10s","at":"2024-05-01T12:00:00Z"}`, string(data))
	})
}

func TestMulti_FansOutInOrder(t *testing.T) {
	var got []string
	first := Func(func(e Event) { got = append(got, "first:"+e.Type.String()) })
	second := Func(func(e Event) { got = append(got, "second:"+e.Type.String()) })

	Multi{first, nil, second}.Notify(Event{Type: PwnSuccess})

	assert.Equal(t, []string{"first:pwn_success", "second:pwn_success"}, got)
}

func TestChannel_DropsOldestWhenLagging(t *testing.T) {
	ch := NewChannel(2)

	ch.Notify(Event{Type: StatusChanged})
	ch.Notify(Event{Type: CharacteristicReady})
	ch.Notify(Event{Type: PwnSuccess})
	ch.Close()
	ch.Notify(Event{Type: OperationFailed}) // discarded after close

	var types []Type
	for e := range ch.C() {
		types = append(types, e.Type)
	}
	assert.Equal(t, []Type{CharacteristicReady, PwnSuccess}, types)
	assert.EqualValues(t, 1, ch.Dropped())
}

func TestRecorder(t *testing.T) {
	t.Run("counts and keeps latest per type", func(t *testing.T) {
		r := NewRecorder(8)

		r.Notify(Event{Type: OperationFailed, Kind: "connect_timeout"})
		r.Notify(Event{Type: CharacteristicReady})
		r.Notify(Event{Type: OperationFailed, Kind: "write_timeout"})

		assert.Equal(t, 2, r.Count(OperationFailed))
		assert.Equal(t, 1, r.Count(CharacteristicReady))
		assert.Equal(t, 0, r.Count(PwnSuccess))
		assert.Equal(t, 3, r.Total())

		last, ok := r.Last(OperationFailed)
		require.True(t, ok)
		assert.Equal(t, "write_timeout", last.Kind)
	})

	t.Run("history is bounded and drained in order", func(t *testing.T) {
		r := NewRecorder(4)
		for i := 0; i < 10; i++ {
			r.Notify(Event{Type: StatusChanged, Detail: string(rune('a' + i))})
		}

		events := r.Drain()
		require.NotEmpty(t, events)
		assert.LessOrEqual(t, len(events), 4)
		assert.Equal(t, "j", events[len(events)-1].Detail, "newest event MUST survive overflow")
		assert.Positive(t, r.Overwritten())
		assert.Equal(t, 10, r.Count(StatusChanged), "counters MUST NOT be bounded by history")
		assert.Empty(t, r.Drain())
	})

	t.Run("safe for concurrent producers", func(t *testing.T) {
		r := NewRecorder(16)
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 50; j++ {
					r.Notify(Event{Type: StatusChanged})
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 400, r.Count(StatusChanged))
	})
}
