package voxa

import (
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Turn          TurnConfig               `mapstructure:"turn"`
	Audio         AudioConfig              `mapstructure:"audio"`
	Vendors       VendorsConfig            `mapstructure:"vendors"`
	Assistant     AssistantConfig          `mapstructure:"assistant"`
	Personas      map[string]PersonaConfig `mapstructure:"personas"`
	Persona       string                   `mapstructure:"persona"`
	Environment   string                   `mapstructure:"environment"`
	LogLevel      string                   `mapstructure:"log_level"`
	LogFormat     string                   `mapstructure:"log_format"`
	Observability ObservabilityConfig      `mapstructure:"observability"`
	Privacy       PrivacyConfig            `mapstructure:"privacy"`
}

type TurnConfig struct {
	SilenceWindowMS    int     `mapstructure:"silence_window_ms"`
	InterruptThreshold float64 `mapstructure:"interrupt_threshold"`
	KeepRecognizerHot  bool    `mapstructure:"keep_recognizer_hot"`
	SpeechEnabled      bool    `mapstructure:"speech_enabled"`
	MaxHistory         int     `mapstructure:"max_history"`
	QueueSize          int     `mapstructure:"queue_size"`
}

type AudioConfig struct {
	SampleRate      int     `mapstructure:"sample_rate"`
	Channels        int     `mapstructure:"channels"`
	LevelIntervalMS int     `mapstructure:"level_interval_ms"`
	LevelGain       float64 `mapstructure:"level_gain"`
	SpectrumBins    int     `mapstructure:"spectrum_bins"`
}

type VendorConfig struct {
	Provider string         `mapstructure:"provider"`
	Settings map[string]any `mapstructure:"settings"`
}

type VendorsConfig struct {
	Recognizer VendorConfig `mapstructure:"recognizer"`
	Synth      VendorConfig `mapstructure:"synth"`
	Assistant  VendorConfig `mapstructure:"assistant"`
	Player     VendorConfig `mapstructure:"player"`
}

// AssistantConfig tunes the reply stream's resilience envelope, not the
// backend itself (that lives under vendors.assistant).
type AssistantConfig struct {
	StreamRetries     int `mapstructure:"stream_retries"`
	RetryBackoffMS    int `mapstructure:"retry_backoff_ms"`
	BreakerThreshold  int `mapstructure:"breaker_threshold"`
	BreakerCooldownMS int `mapstructure:"breaker_cooldown_ms"`
}

// PersonaConfig is one named assistant configuration. The map key under
// personas is the selectable name; Name is filled from it on load.
type PersonaConfig struct {
	Name    string `mapstructure:"-"`
	System  string `mapstructure:"system"`
	VoiceID string `mapstructure:"voice_id"`
}

type ObservabilityConfig struct {
	ArtifactsDir  string `mapstructure:"artifacts_dir"`
	RetentionDays int    `mapstructure:"retention_days"`
}

type PrivacyConfig struct {
	RedactPII bool `mapstructure:"redact_pii"`
}

const DefaultPersona = "default"

func LoadConfig(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetDefault("turn.silence_window_ms", 1500)
	v.SetDefault("turn.interrupt_threshold", 0.15)
	v.SetDefault("turn.keep_recognizer_hot", true)
	v.SetDefault("turn.speech_enabled", true)
	v.SetDefault("turn.max_history", 16)
	v.SetDefault("turn.queue_size", 256)
	v.SetDefault("audio.sample_rate", 16000)
	v.SetDefault("audio.channels", 1)
	v.SetDefault("audio.level_interval_ms", 50)
	v.SetDefault("audio.level_gain", 4.0)
	v.SetDefault("audio.spectrum_bins", 16)
	v.SetDefault("vendors.player.provider", "mock")
	v.SetDefault("assistant.stream_retries", 2)
	v.SetDefault("assistant.retry_backoff_ms", 250)
	v.SetDefault("assistant.breaker_threshold", 3)
	v.SetDefault("assistant.breaker_cooldown_ms", 30000)
	v.SetDefault("persona", DefaultPersona)
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("observability.artifacts_dir", "")
	v.SetDefault("observability.retention_days", 0)
	v.SetDefault("privacy.redact_pii", true)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal: %w", err)
	}

	expandEnvStrings(&cfg)
	normalizePersonas(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Vendors.Recognizer.Provider) == "" {
		return fmt.Errorf("vendors.recognizer.provider is required")
	}
	if strings.TrimSpace(c.Vendors.Synth.Provider) == "" {
		return fmt.Errorf("vendors.synth.provider is required")
	}
	if strings.TrimSpace(c.Vendors.Assistant.Provider) == "" {
		return fmt.Errorf("vendors.assistant.provider is required")
	}
	if c.Turn.SilenceWindowMS <= 0 {
		return fmt.Errorf("turn.silence_window_ms must be positive")
	}
	if c.Turn.InterruptThreshold <= 0 || c.Turn.InterruptThreshold > 1 {
		return fmt.Errorf("turn.interrupt_threshold must be in (0, 1]")
	}
	if _, ok := c.Personas[c.Persona]; !ok {
		return fmt.Errorf("persona %q not defined under personas", c.Persona)
	}
	return nil
}

// PersonaByName resolves a persona, falling back to the configured default
// when name is empty or unknown.
func (c *Config) PersonaByName(name string) PersonaConfig {
	if p, ok := c.Personas[strings.TrimSpace(name)]; ok {
		return p
	}
	return c.Personas[c.Persona]
}

// normalizePersonas fills each persona's Name from its map key and guarantees
// the default persona exists so a bare config still starts.
func normalizePersonas(cfg *Config) {
	if cfg.Personas == nil {
		cfg.Personas = map[string]PersonaConfig{}
	}
	if _, ok := cfg.Personas[cfg.Persona]; !ok && cfg.Persona == DefaultPersona {
		cfg.Personas[DefaultPersona] = PersonaConfig{}
	}
	for name, p := range cfg.Personas {
		p.Name = name
		cfg.Personas[name] = p
	}
}

func expandEnvStrings(cfg *Config) {
	expandValue(reflect.ValueOf(cfg))
	cfg.Vendors.Recognizer.Settings = expandSettings(cfg.Vendors.Recognizer.Settings)
	cfg.Vendors.Synth.Settings = expandSettings(cfg.Vendors.Synth.Settings)
	cfg.Vendors.Assistant.Settings = expandSettings(cfg.Vendors.Assistant.Settings)
	cfg.Vendors.Player.Settings = expandSettings(cfg.Vendors.Player.Settings)
}

func expandSettings(settings map[string]any) map[string]any {
	if settings == nil {
		return nil
	}
	for k, v := range settings {
		settings[k] = expandAny(v)
	}
	return settings
}

func expandAny(v any) any {
	switch val := v.(type) {
	case string:
		return os.ExpandEnv(val)
	case []any:
		for i := range val {
			val[i] = expandAny(val[i])
		}
		return val
	case map[string]any:
		for k, v := range val {
			val[k] = expandAny(v)
		}
		return val
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, v := range val {
			ks, ok := k.(string)
			if !ok {
				continue
			}
			out[ks] = expandAny(v)
		}
		return out
	default:
		return v
	}
}

func expandValue(v reflect.Value) {
	if !v.IsValid() {
		return
	}
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return
		}
		expandValue(v.Elem())
		return
	}
	switch v.Kind() {
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			expandValue(v.Field(i))
		}
	case reflect.String:
		if v.CanSet() {
			v.SetString(os.ExpandEnv(v.String()))
		}
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			expandValue(v.Index(i))
		}
	case reflect.Map:
		if v.Type().Key().Kind() == reflect.String && v.Type().Elem().Kind() == reflect.String {
			for _, key := range v.MapKeys() {
				val := v.MapIndex(key)
				expanded := os.ExpandEnv(val.String())
				v.SetMapIndex(key, reflect.ValueOf(expanded))
			}
		}
	}
}
