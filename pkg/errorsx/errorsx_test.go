package errorsx

import "testing"

func TestWrapAndReason(t *testing.T) {
	err := Wrap(assertErr{}, ReasonStream)
	if Reason(err) != ReasonStream {
		t.Fatalf("expected reason %s, got %s", ReasonStream, Reason(err))
	}
	if !HasReason(err, ReasonStream) {
		t.Fatalf("expected HasReason true")
	}
}

func TestWrapPreservesExistingReason(t *testing.T) {
	first := Wrap(assertErr{}, ReasonSynthesis)
	second := Wrap(first, ReasonStream)
	if Reason(second) != ReasonSynthesis {
		t.Fatalf("expected reason preserved, got %s", Reason(second))
	}
}

func TestTransient(t *testing.T) {
	if !Transient(Wrap(assertErr{}, ReasonRecognitionNoSpeech)) {
		t.Fatalf("no-speech should be transient")
	}
	if Transient(Wrap(assertErr{}, ReasonRecognition)) {
		t.Fatalf("persistent recognition error must not be transient")
	}
	if Transient(nil) {
		t.Fatalf("nil error must not be transient")
	}
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }
