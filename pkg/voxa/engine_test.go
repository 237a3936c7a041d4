package voxa

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/voxa-ai/voxa/pkg/turn"
)

func mockConfig() Config {
	return Config{
		Turn: TurnConfig{
			SilenceWindowMS:    100,
			InterruptThreshold: 0.15,
			KeepRecognizerHot:  true,
			SpeechEnabled:      true,
			MaxHistory:         16,
		},
		Audio: AudioConfig{
			SampleRate:      16000,
			Channels:        1,
			LevelIntervalMS: 50,
			LevelGain:       4,
			SpectrumBins:    8,
		},
		Vendors: VendorsConfig{
			Recognizer: VendorConfig{
				Provider: "mock",
				Settings: map[string]any{
					"utterance":     "turn on the lights",
					"emit_on_start": true,
				},
			},
			Synth: VendorConfig{Provider: "mock", Settings: map[string]any{"bytes_per_char": 32}},
			Assistant: VendorConfig{
				Provider: "mock",
				Settings: map[string]any{"response_text": "The lights are on."},
			},
			Player: VendorConfig{Provider: "mock", Settings: map[string]any{"speed": 50}},
		},
		Assistant: AssistantConfig{
			StreamRetries:     1,
			RetryBackoffMS:    10,
			BreakerThreshold:  3,
			BreakerCooldownMS: 1000,
		},
		Personas: map[string]PersonaConfig{
			DefaultPersona: {Name: DefaultPersona, System: "You are a test assistant."},
		},
		Persona:     DefaultPersona,
		Environment: "test",
		LogLevel:    "error",
		LogFormat:   "text",
	}
}

func waitHistory(t *testing.T, sess *Session, n int) []turn.Turn {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		if h := sess.History(); len(h) >= n {
			return h
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %d completed turns, have %d", n, len(sess.History()))
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func TestEngineRunsScriptedTurnEndToEnd(t *testing.T) {
	engine := NewEngine(EngineOptions{Config: mockConfig()})
	if err := engine.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() { _ = engine.Stop() }()

	sess, err := engine.OpenSession(context.Background(), "")
	if err != nil {
		t.Fatalf("OpenSession: %v", err)
	}
	defer engine.CloseSession(sess.ID())

	var mu sync.Mutex
	var utterance string
	var reply strings.Builder
	sess.SetHooks(turn.Hooks{
		OnUtterance: func(text string) {
			mu.Lock()
			utterance = text
			mu.Unlock()
		},
		OnReplyDelta: func(delta string) {
			mu.Lock()
			reply.WriteString(delta)
			mu.Unlock()
		},
	})

	sess.ToggleMic(true)

	history := waitHistory(t, sess, 1)
	if history[0].Utterance != "turn on the lights" {
		t.Errorf("utterance = %q", history[0].Utterance)
	}
	if history[0].Reply != "The lights are on." {
		t.Errorf("reply = %q", history[0].Reply)
	}
	if history[0].Interrupted {
		t.Error("turn should not be interrupted")
	}

	mu.Lock()
	defer mu.Unlock()
	if utterance != "turn on the lights" {
		t.Errorf("hook utterance = %q", utterance)
	}
	if reply.String() != "The lights are on." {
		t.Errorf("hook reply = %q", reply.String())
	}
}

func TestOpenSessionUnknownProviderFails(t *testing.T) {
	cfg := mockConfig()
	cfg.Vendors.Recognizer.Provider = "nonexistent"
	engine := NewEngine(EngineOptions{Config: cfg})
	if _, err := engine.OpenSession(context.Background(), ""); err == nil {
		t.Fatal("expected error for unregistered recognizer provider")
	}
}

func TestCloseSessionIsIdempotent(t *testing.T) {
	engine := NewEngine(EngineOptions{Config: mockConfig()})
	sess, err := engine.OpenSession(context.Background(), "")
	if err != nil {
		t.Fatalf("OpenSession: %v", err)
	}
	engine.CloseSession(sess.ID())
	engine.CloseSession(sess.ID())
	if n := engine.SessionCount(); n != 0 {
		t.Errorf("session count = %d, want 0", n)
	}
}

func TestSessionUsesSelectedPersona(t *testing.T) {
	cfg := mockConfig()
	cfg.Personas["formal"] = PersonaConfig{Name: "formal", System: "Be formal.", VoiceID: "v-1"}
	engine := NewEngine(EngineOptions{Config: cfg})
	sess, err := engine.OpenSession(context.Background(), "formal")
	if err != nil {
		t.Fatalf("OpenSession: %v", err)
	}
	defer engine.CloseSession(sess.ID())
	if sess.Persona().Name != "formal" {
		t.Errorf("persona = %q, want formal", sess.Persona().Name)
	}
}

func TestProviderRegistryRejectsUnknownNames(t *testing.T) {
	r := NewProviderRegistry()
	cfg := mockConfig()
	if _, err := r.BuildRecognizer("missing", cfg, "s1"); err == nil {
		t.Error("expected recognizer build error")
	}
	if _, err := r.BuildSynth("missing", cfg, "s1", PersonaConfig{}); err == nil {
		t.Error("expected synth build error")
	}
	if _, err := r.BuildAssistant("missing", cfg); err == nil {
		t.Error("expected assistant build error")
	}
	if _, err := r.BuildPlayer("missing", cfg); err == nil {
		t.Error("expected player build error")
	}
}

func TestProviderNamesAreCaseInsensitive(t *testing.T) {
	r := NewProviderRegistry()
	cfg := mockConfig()
	if _, err := r.BuildRecognizer(" Mock ", cfg, "s1"); err != nil {
		t.Errorf("case-insensitive lookup failed: %v", err)
	}
}
