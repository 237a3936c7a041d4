package observers

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/voxa-ai/voxa/pkg/metrics"
	"github.com/voxa-ai/voxa/pkg/redact"
)

func TestTimelineObserverWritesJSONL(t *testing.T) {
	dir := t.TempDir()
	obs := NewTimelineObserver(dir)

	obs.RecordEvent(metrics.MetricsEvent{
		Name: "turn_finalize",
		Time: time.Now(),
		Tags: map[string]string{
			"session_id": "sess-1",
			"gen":        "3",
		},
	})
	_ = obs.Close()

	path := filepath.Join(dir, "sess-1.jsonl")
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	if !strings.Contains(string(b), "turn_finalize") {
		t.Fatalf("expected turn_finalize event in file")
	}
	if !strings.Contains(string(b), `"gen":"3"`) {
		t.Fatalf("expected gen in entry: %s", b)
	}
}

func TestTimelineObserverRedactsStringFields(t *testing.T) {
	redact.SetEnabled(true)
	t.Cleanup(func() { redact.SetEnabled(false) })
	dir := t.TempDir()
	obs := NewTimelineObserver(dir)

	obs.RecordEvent(metrics.MetricsEvent{
		Name: "turn_finalize",
		Time: time.Now(),
		Tags: map[string]string{"session_id": "sess-2"},
		Fields: map[string]any{
			"utterance": "call me at 555-123-4567",
		},
	})
	_ = obs.Close()

	b, err := os.ReadFile(filepath.Join(dir, "sess-2.jsonl"))
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	if strings.Contains(string(b), "555-123-4567") {
		t.Fatalf("phone number leaked into timeline: %s", b)
	}
}

func TestUsageObserverAggregates(t *testing.T) {
	dir := t.TempDir()
	obs := NewUsageObserver(dir)

	tags := map[string]string{"session_id": "sess-3"}
	obs.RecordEvent(metrics.MetricsEvent{Name: "turn_finalize", Value: 20, Tags: tags})
	obs.RecordEvent(metrics.MetricsEvent{Name: "stream_done", Value: 80, Tags: tags})
	obs.RecordEvent(metrics.MetricsEvent{Name: "playback_audible", Value: 2.5, Tags: tags})
	obs.RecordEvent(metrics.MetricsEvent{Name: "turn_complete", Tags: map[string]string{
		"session_id": "sess-3", "interrupted": "true",
	}})
	if err := obs.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	b, err := os.ReadFile(filepath.Join(dir, "sess-3.usage.json"))
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	s := string(b)
	for _, want := range []string{`"turns": 1`, `"interrupted_turns": 1`, `"utterance_chars": 20`, `"reply_chars": 80`} {
		if !strings.Contains(s, want) {
			t.Fatalf("summary missing %s: %s", want, s)
		}
	}
}
