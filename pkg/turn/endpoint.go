package turn

import (
	"sync"
	"time"
)

// Endpointer is a restartable single-shot silence timer. It fires its
// callback exactly once per arming; every Restart invalidates the previous
// timer identity, so a stale timer can never fire after a newer arming.
// Endpointing keys off recognizer finality alone, never audio level, so
// recognition latency cannot end a turn early.
type Endpointer struct {
	mu     sync.Mutex
	window time.Duration
	timer  *time.Timer
	epoch  uint64
	armed  bool
	fire   func(epoch uint64, at time.Time)
}

// DefaultSilenceWindow is the silence duration after the last final fragment
// before an utterance is considered finished.
const DefaultSilenceWindow = 1500 * time.Millisecond

func NewEndpointer(window time.Duration, fire func(epoch uint64, at time.Time)) *Endpointer {
	if window <= 0 {
		window = DefaultSilenceWindow
	}
	return &Endpointer{window: window, fire: fire}
}

// Restart cancels any pending timer and arms a new one for the silence window.
func (e *Endpointer) Restart() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.timer != nil {
		e.timer.Stop()
	}
	e.epoch++
	e.armed = true
	epoch := e.epoch
	e.timer = time.AfterFunc(e.window, func() {
		e.mu.Lock()
		if epoch != e.epoch || !e.armed {
			e.mu.Unlock()
			return
		}
		e.armed = false
		fire := e.fire
		e.mu.Unlock()
		if fire != nil {
			fire(epoch, time.Now())
		}
	})
}

// Cancel clears any pending timer with no effect. The epoch still advances so
// an already-queued expiry for the cancelled arming is recognizably stale.
func (e *Endpointer) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.epoch++
	e.armed = false
}

// Epoch returns the identity of the most recent arming or cancellation.
func (e *Endpointer) Epoch() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.epoch
}

// Window returns the configured silence window.
func (e *Endpointer) Window() time.Duration {
	return e.window
}
