package region

import "fmt"

// State selects one of the per-page bitmaps of a window.
type State uint8

const (
	// StateCPU marks pages written by the CPU that the GPU copy has not seen.
	StateCPU State = iota
	// StateGPU marks pages written by the GPU that the CPU copy has not seen.
	StateGPU
	// StatePending marks CPU writes recorded but not yet promoted to StateCPU.
	StatePending
	// StatePreflush marks pages that should be flushed ahead of an explicit request.
	StatePreflush

	numStates
)

// untracked is the internal bitmap of pages the device tracker is not
// counting. It is not a queryable State.
const untracked = numStates

func (s State) String() string {
	switch s {
	case StateCPU:
		return "cpu"
	case StateGPU:
		return "gpu"
	case StatePending:
		return "pending"
	case StatePreflush:
		return "preflush"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// notifies reports whether changes to s move pages in or out of the device's tracked set.
func (s State) notifies() bool {
	return s == StateCPU || s == StatePending
}

// States lists every queryable state in order.
var States = [...]State{StateCPU, StateGPU, StatePending, StatePreflush}

// ParseState returns the State whose String form is name.
func ParseState(name string) (State, error) {
	for _, s := range States {
		if s.String() == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("region: unknown state %q", name)
}
