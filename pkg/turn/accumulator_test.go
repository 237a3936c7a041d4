package turn

import (
	"testing"

	"github.com/voxa-ai/voxa/pkg/frames"
)

func TestAccumulatorJoinsFinalsWithSpace(t *testing.T) {
	a := NewAccumulator()
	a.Append(frames.NewTranscriptFrame(0, "hello", true, nil))
	a.Append(frames.NewTranscriptFrame(0, "there", true, nil))
	if got := a.Snapshot(); got != "hello there" {
		t.Fatalf("snapshot = %q, want %q", got, "hello there")
	}
	if a.Empty() {
		t.Fatalf("accumulator should not be empty")
	}
}

func TestAccumulatorIgnoresInterim(t *testing.T) {
	a := NewAccumulator()
	if a.Append(frames.NewTranscriptFrame(0, "hel", false, nil)) {
		t.Fatalf("interim fragment must not accumulate")
	}
	if !a.Empty() {
		t.Fatalf("buffer must stay empty after interim fragment")
	}
	if !a.LastFragmentAt().IsZero() {
		t.Fatalf("interim fragment must not touch lastFragmentAt")
	}
}

func TestAccumulatorIgnoresBlankFinals(t *testing.T) {
	a := NewAccumulator()
	if a.Append(frames.NewTranscriptFrame(0, "   ", true, nil)) {
		t.Fatalf("whitespace-only fragment must not accumulate")
	}
}

func TestAccumulatorSnapshotDoesNotMutate(t *testing.T) {
	a := NewAccumulator()
	a.Append(frames.NewTranscriptFrame(0, "keep", true, nil))
	_ = a.Snapshot()
	if got := a.Snapshot(); got != "keep" {
		t.Fatalf("snapshot mutated buffer: %q", got)
	}
}

func TestAccumulatorReset(t *testing.T) {
	a := NewAccumulator()
	a.Append(frames.NewTranscriptFrame(0, "gone", true, nil))
	a.Reset()
	if !a.Empty() || a.Snapshot() != "" {
		t.Fatalf("reset must clear the buffer")
	}
}
