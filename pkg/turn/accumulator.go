package turn

import (
	"strings"
	"sync"
	"time"

	"github.com/voxa-ai/voxa/pkg/frames"
)

// Accumulator collects ordered final transcript fragments into the pending
// utterance for the current turn. Interim fragments are display-only and are
// never accumulated.
type Accumulator struct {
	mu             sync.Mutex
	sb             strings.Builder
	lastFragmentAt time.Time
}

func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

// Append adds a final fragment to the pending utterance, joined with a single
// space. Non-final fragments are ignored and Append reports false.
func (a *Accumulator) Append(f frames.TranscriptFrame) bool {
	if !f.IsFinal() {
		return false
	}
	text := strings.TrimSpace(f.Text())
	if text == "" {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sb.Len() > 0 {
		a.sb.WriteByte(' ')
	}
	a.sb.WriteString(text)
	a.lastFragmentAt = f.ReceivedAt()
	return true
}

// Snapshot returns the current pending utterance without mutating it.
func (a *Accumulator) Snapshot() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sb.String()
}

// Reset clears the pending utterance.
func (a *Accumulator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sb.Reset()
	a.lastFragmentAt = time.Time{}
}

// Empty reports whether no final fragment is pending.
func (a *Accumulator) Empty() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sb.Len() == 0
}

// LastFragmentAt returns the arrival time of the newest accumulated fragment.
func (a *Accumulator) LastFragmentAt() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastFragmentAt
}
