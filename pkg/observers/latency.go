package observers

import (
	"log/slog"
	"sync"
	"time"

	"github.com/voxa-ai/voxa/pkg/metrics"
)

// LatencyObserver correlates the timing events of a single turn and logs a
// latency breakdown when the turn completes. Turns are keyed by session and
// generation; generations restart at 1 per session, so the session tag is
// what keeps concurrent conversations from sharing a trace.
type LatencyObserver struct {
	mu     sync.Mutex
	traces map[string]*trace
	log    *slog.Logger
}

type trace struct {
	finalized  time.Time
	firstDelta time.Time
	streamDone time.Time
	playStart  time.Time
	done       time.Time
}

func NewLatencyObserver(log *slog.Logger) *LatencyObserver {
	if log == nil {
		log = slog.Default()
	}
	return &LatencyObserver{
		traces: make(map[string]*trace),
		log:    log,
	}
}

func (o *LatencyObserver) RecordEvent(ev metrics.MetricsEvent) {
	gen := ""
	session := ""
	if ev.Tags != nil {
		gen = ev.Tags["gen"]
		session = ev.Tags["session_id"]
	}
	if gen == "" || gen == "0" {
		return
	}
	key := session + "/" + gen
	o.mu.Lock()
	t := o.traces[key]
	if t == nil {
		t = &trace{}
		o.traces[key] = t
	}
	switch ev.Name {
	case "turn_finalize":
		if t.finalized.IsZero() {
			t.finalized = ev.Time
		}
	case "stream_first_delta":
		if t.firstDelta.IsZero() {
			t.firstDelta = ev.Time
		}
	case "stream_done":
		if t.streamDone.IsZero() {
			t.streamDone = ev.Time
		}
	case "playback_start":
		if t.playStart.IsZero() {
			t.playStart = ev.Time
		}
	case "turn_complete":
		t.done = ev.Time
	}
	if !t.done.IsZero() {
		o.logTurnLocked(session, gen, t)
		delete(o.traces, key)
	}
	o.mu.Unlock()
}

func (o *LatencyObserver) logTurnLocked(session, gen string, t *trace) {
	o.log.Info("latency",
		"session_id", session,
		"gen", gen,
		"first_delta_ms", durationMs(t.finalized, t.firstDelta),
		"stream_ms", durationMs(t.finalized, t.streamDone),
		"speech_start_ms", durationMs(t.finalized, t.playStart),
		"turn_ms", durationMs(t.finalized, t.done),
	)
}

func durationMs(a, b time.Time) int64 {
	if a.IsZero() || b.IsZero() {
		return -1
	}
	return b.Sub(a).Milliseconds()
}
