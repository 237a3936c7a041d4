package observers

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/voxa-ai/voxa/pkg/metrics"
)

// UsageSummary aggregates billable activity for one session.
type UsageSummary struct {
	SessionID      string  `json:"session_id"`
	Turns          int     `json:"turns"`
	Interrupted    int     `json:"interrupted_turns"`
	UtteranceChars int     `json:"utterance_chars"`
	ReplyChars     int     `json:"reply_chars"`
	SpeechSec      float64 `json:"speech_seconds"`
	RecordedAtUTC  string  `json:"recorded_at_utc"`
}

// UsageObserver accumulates per-session usage and writes one summary file
// per session on Close.
type UsageObserver struct {
	dir   string
	mu    sync.Mutex
	stats map[string]*UsageSummary
}

func NewUsageObserver(dir string) *UsageObserver {
	return &UsageObserver{dir: dir, stats: make(map[string]*UsageSummary)}
}

func (o *UsageObserver) RecordEvent(ev metrics.MetricsEvent) {
	if strings.TrimSpace(o.dir) == "" {
		return
	}
	id := ""
	if ev.Tags != nil {
		id = ev.Tags["session_id"]
	}
	if id == "" {
		id = "session"
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	stat := o.stats[id]
	if stat == nil {
		stat = &UsageSummary{SessionID: id}
		o.stats[id] = stat
	}
	switch ev.Name {
	case "turn_finalize":
		stat.UtteranceChars += int(ev.Value)
	case "stream_done":
		stat.ReplyChars += int(ev.Value)
	case "playback_audible":
		stat.SpeechSec += ev.Value
	case "turn_complete":
		stat.Turns++
		if ev.Tags["interrupted"] == "true" {
			stat.Interrupted++
		}
	}
}

func (o *UsageObserver) Close() error {
	if strings.TrimSpace(o.dir) == "" {
		return nil
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := os.MkdirAll(o.dir, 0o755); err != nil {
		return err
	}
	var errOut error
	for id, stat := range o.stats {
		stat.RecordedAtUTC = time.Now().UTC().Format(time.RFC3339)
		b, err := json.MarshalIndent(stat, "", "  ")
		if err != nil {
			errOut = errors.Join(errOut, err)
			continue
		}
		path := filepath.Join(o.dir, sanitizeID(id)+".usage.json")
		if err := os.WriteFile(path, b, 0o644); err != nil {
			errOut = errors.Join(errOut, err)
		}
	}
	return errOut
}

var _ metrics.Observer = (*UsageObserver)(nil)
