package turn

import "testing"

func TestTransitionTable(t *testing.T) {
	cases := []struct {
		from, to State
		ok       bool
	}{
		{StateIdle, StateListening, true},
		{StateListening, StateAwaitingEndpoint, true},
		{StateListening, StateIdle, true},
		{StateAwaitingEndpoint, StateProcessing, true},
		{StateAwaitingEndpoint, StateIdle, true},
		{StateProcessing, StateSpeaking, true},
		{StateProcessing, StateListening, true},
		{StateProcessing, StateIdle, true},
		{StateSpeaking, StateListening, true},
		{StateSpeaking, StateIdle, true},

		{StateIdle, StateProcessing, false},
		{StateIdle, StateSpeaking, false},
		{StateListening, StateProcessing, false},
		{StateListening, StateSpeaking, false},
		{StateAwaitingEndpoint, StateSpeaking, false},
		{StateSpeaking, StateAwaitingEndpoint, false},
		{StateSpeaking, StateProcessing, false},
	}
	for _, c := range cases {
		if got := transitionValid(c.from, c.to); got != c.ok {
			t.Errorf("transitionValid(%s, %s) = %v, want %v", c.from, c.to, got, c.ok)
		}
	}
}

func TestInvalidTransitionErrorMessage(t *testing.T) {
	err := &InvalidTransitionError{From: StateIdle, To: StateSpeaking}
	want := "invalid state transition from IDLE to SPEAKING"
	if err.Error() != want {
		t.Fatalf("Error() = %q, want %q", err.Error(), want)
	}
}
