// Package notify carries session events to the presentation layer.
//
// The session never formats user-facing text; it emits Events to a Sink and
// leaves rendering to whoever consumes them.
package notify

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/srg/blepwn/internal/device"
)

// Type identifies an event.
type Type int

const (
	// StatusChanged reports a connection state change of the active peripheral.
	StatusChanged Type = iota + 1
	// CharacteristicReady reports that payload writes are now possible.
	CharacteristicReady
	// CharacteristicUnavailable revokes a previous CharacteristicReady.
	CharacteristicUnavailable
	// OperationFailed reports a classified failure.
	OperationFailed
	// PwnSuccess reports that both payloads were acknowledged.
	PwnSuccess
)

func (t Type) String() string {
	switch t {
	case StatusChanged:
		return "status_changed"
	case CharacteristicReady:
		return "characteristic_ready"
	case CharacteristicUnavailable:
		return "characteristic_unavailable"
	case OperationFailed:
		return "operation_failed"
	case PwnSuccess:
		return "pwn_success"
	default:
		return fmt.Sprintf("type(%d)", int(t))
	}
}

// Event is one discrete notification.
type Event struct {
	Type Type
	// Status is set for StatusChanged.
	Status device.ConnectionState
	// Kind and Detail are set for OperationFailed. Kind is the failure kind
	// name; Err carries the classified error for errors.Is / errors.As.
	Kind   string
	Detail string
	Err    error
	At     time.Time
}

func (e Event) String() string {
	switch e.Type {
	case StatusChanged:
		return fmt.Sprintf("%s(%s)", e.Type, e.Status)
	case OperationFailed:
		return fmt.Sprintf("%s(%s: %s)", e.Type, e.Kind, e.Detail)
	default:
		return e.Type.String()
	}
}

// MarshalJSON renders only the fields meaningful for the event type.
func (e Event) MarshalJSON() ([]byte, error) {
	out := struct {
		Type   string `json:"type"`
		Status string `json:"status,omitempty"`
		Kind   string `json:"kind,omitempty"`
		Detail string `json:"detail,omitempty"`
		At     string `json:"at"`
	}{
		Type: e.Type.String(),
		At:   e.At.UTC().Format(time.RFC3339Nano),
	}
	switch e.Type {
	case StatusChanged:
		out.Status = e.Status.String()
	case OperationFailed:
		out.Kind = e.Kind
		out.Detail = e.Detail
	}
	return json.Marshal(out)
}

// Sink receives events. Notify is called synchronously from the session's
// event loop and must not block for long or call back into the session.
type Sink interface {
	Notify(Event)
}

// Func adapts a function to Sink.
type Func func(Event)

func (f Func) Notify(e Event) { f(e) }

// Discard drops every event.
var Discard Sink = Func(func(Event) {})

// Multi fans each event out to every sink in order.
type Multi []Sink

func (m Multi) Notify(e Event) {
	for _, s := range m {
		if s != nil {
			s.Notify(e)
		}
	}
}
