package session

import "fmt"

// Phase is the step of the pipeline the controller is in.
type Phase int

const (
	Idle Phase = iota
	WaitingForAdapter
	Scanning
	Connecting
	DiscoveringServices
	DiscoveringCharacteristics
	Ready
	Writing
	Faulted
	Deactivated
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case WaitingForAdapter:
		return "waiting_for_adapter"
	case Scanning:
		return "scanning"
	case Connecting:
		return "connecting"
	case DiscoveringServices:
		return "discovering_services"
	case DiscoveringCharacteristics:
		return "discovering_characteristics"
	case Ready:
		return "ready"
	case Writing:
		return "writing"
	case Faulted:
		return "faulted"
	case Deactivated:
		return "deactivated"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// connected reports whether the active peripheral holds a link in this phase.
func (p Phase) connected() bool {
	switch p {
	case DiscoveringServices, DiscoveringCharacteristics, Ready, Writing:
		return true
	default:
		return false
	}
}

// State is a snapshot of the controller.
type State struct {
	Phase Phase
	// Peripheral is the address of the selected peripheral, if any.
	Peripheral string
	// Service and Characteristic are the normalized UUIDs found so far.
	Service        string
	Characteristic string
	// Step is the payload being written (1 or 2) while Writing.
	Step int
	// Fault is the halting kind while Faulted.
	Fault Kind
}

func (s State) String() string {
	switch s.Phase {
	case Writing:
		return fmt.Sprintf("%s(step %d)", s.Phase, s.Step)
	case Faulted:
		return fmt.Sprintf("%s(%s)", s.Phase, s.Fault)
	case Connecting, DiscoveringServices, Ready:
		return fmt.Sprintf("%s(%s)", s.Phase, s.Peripheral)
	case DiscoveringCharacteristics:
		return fmt.Sprintf("%s(%s, %s)", s.Phase, s.Peripheral, s.Service)
	default:
		return s.Phase.String()
	}
}
