package voxa

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const minimalVendors = `
vendors:
  recognizer:
    provider: mock
  synth:
    provider: mock
  assistant:
    provider: mock
`

func TestLoadConfigAppliesDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, minimalVendors))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Turn.SilenceWindowMS != 1500 {
		t.Errorf("silence window = %d, want 1500", cfg.Turn.SilenceWindowMS)
	}
	if cfg.Turn.InterruptThreshold != 0.15 {
		t.Errorf("interrupt threshold = %v, want 0.15", cfg.Turn.InterruptThreshold)
	}
	if !cfg.Turn.KeepRecognizerHot {
		t.Error("keep_recognizer_hot should default to true")
	}
	if !cfg.Privacy.RedactPII {
		t.Error("redact_pii should default to true")
	}
	if cfg.Vendors.Player.Provider != "mock" {
		t.Errorf("player provider = %q, want mock", cfg.Vendors.Player.Provider)
	}
	if _, ok := cfg.Personas[DefaultPersona]; !ok {
		t.Error("default persona should be injected when personas are omitted")
	}
}

func TestLoadConfigExpandsEnvInSettings(t *testing.T) {
	t.Setenv("VOXA_TEST_API_KEY", "sk-test-123")
	body := `
vendors:
  recognizer:
    provider: deepgram
    settings:
      api_key: ${VOXA_TEST_API_KEY}
  synth:
    provider: mock
  assistant:
    provider: mock
`
	cfg, err := LoadConfig(writeConfig(t, body))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if got := cfg.Vendors.Recognizer.Settings["api_key"]; got != "sk-test-123" {
		t.Errorf("api_key = %v, want expanded env value", got)
	}
}

func TestLoadConfigRejectsMissingVendor(t *testing.T) {
	body := `
vendors:
  recognizer:
    provider: mock
  synth:
    provider: mock
`
	if _, err := LoadConfig(writeConfig(t, body)); err == nil {
		t.Fatal("expected error for missing assistant vendor")
	}
}

func TestLoadConfigRejectsBadThreshold(t *testing.T) {
	body := minimalVendors + `
turn:
  interrupt_threshold: 1.5
`
	if _, err := LoadConfig(writeConfig(t, body)); err == nil {
		t.Fatal("expected error for out-of-range interrupt threshold")
	}
}

func TestLoadConfigRejectsUnknownDefaultPersona(t *testing.T) {
	body := minimalVendors + `
persona: professor
personas:
  casual:
    system: be casual
`
	if _, err := LoadConfig(writeConfig(t, body)); err == nil {
		t.Fatal("expected error for undefined default persona")
	}
}

func TestPersonaByNameFallsBackToDefault(t *testing.T) {
	body := minimalVendors + `
personas:
  default:
    system: base persona
  pirate:
    system: talk like a pirate
    voice_id: v-pirate
`
	cfg, err := LoadConfig(writeConfig(t, body))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if p := cfg.PersonaByName("pirate"); p.VoiceID != "v-pirate" {
		t.Errorf("pirate voice = %q, want v-pirate", p.VoiceID)
	}
	if p := cfg.PersonaByName("pirate"); p.Name != "pirate" {
		t.Errorf("persona name = %q, want pirate", p.Name)
	}
	if p := cfg.PersonaByName("nonexistent"); p.System != "base persona" {
		t.Errorf("unknown persona should fall back to default, got %q", p.System)
	}
}
