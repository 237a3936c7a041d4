package turn

import "time"

type State int

const (
	StateIdle State = iota
	StateListening
	StateAwaitingEndpoint
	StateProcessing
	StateSpeaking
)

// String returns the string representation of a State
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateListening:
		return "LISTENING"
	case StateAwaitingEndpoint:
		return "AWAITING_ENDPOINT"
	case StateProcessing:
		return "PROCESSING"
	case StateSpeaking:
		return "SPEAKING"
	default:
		return "UNKNOWN"
	}
}

// StateChange represents a state transition event.
type StateChange struct {
	FromState State
	ToState   State
	Gen       uint64
	Timestamp time.Time
	Reason    string
}

// StateListener observes turn state changes.
type StateListener interface {
	OnStateChange(event StateChange)
}

// validTransitions is the sole authority on which transitions exist. A turn
// begins on AwaitingEndpoint -> Processing and ends whenever the state
// returns to Listening or Idle; turns are never nested.
var validTransitions = map[State][]State{
	StateIdle:             {StateListening},
	StateListening:        {StateAwaitingEndpoint, StateIdle},
	StateAwaitingEndpoint: {StateProcessing, StateIdle},
	StateProcessing:       {StateSpeaking, StateListening, StateIdle},
	StateSpeaking:         {StateListening, StateIdle},
}

func transitionValid(from, to State) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// InvalidTransitionError represents an invalid state transition attempt
type InvalidTransitionError struct {
	From State
	To   State
}

func (e *InvalidTransitionError) Error() string {
	return "invalid state transition from " + e.From.String() + " to " + e.To.String()
}
