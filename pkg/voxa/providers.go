package voxa

import (
	"fmt"
	"strings"
	"time"

	"github.com/voxa-ai/voxa/pkg/adapters/stt"
	"github.com/voxa-ai/voxa/pkg/adapters/tts"
	"github.com/voxa-ai/voxa/pkg/assistant"
	"github.com/voxa-ai/voxa/pkg/configutil"
	"github.com/voxa-ai/voxa/pkg/playback"
	"github.com/voxa-ai/voxa/pkg/providers/deepgram"
	"github.com/voxa-ai/voxa/pkg/providers/elevenlabs"
	"github.com/voxa-ai/voxa/pkg/providers/mock"
	"github.com/voxa-ai/voxa/pkg/providers/openai"
)

func registerBuiltins(r *ProviderRegistry) {
	r.RegisterRecognizer("deepgram", buildDeepgram)
	r.RegisterRecognizer("mock", buildMockRecognizer)
	r.RegisterSynth("elevenlabs", buildElevenLabs)
	r.RegisterSynth("mock", buildMockSynth)
	r.RegisterAssistant("openai", buildOpenAI)
	r.RegisterAssistant("mock", buildMockAssistant)
	r.RegisterPlayer("mock", buildMockPlayer)
}

type deepgramSettings struct {
	APIKey     string `mapstructure:"api_key"`
	Model      string `mapstructure:"model"`
	Language   string `mapstructure:"language"`
	SampleRate int    `mapstructure:"sample_rate"`
	Interim    *bool  `mapstructure:"interim"`
}

func buildDeepgram(cfg Config, sessionID string) (stt.StreamingSTT, error) {
	if err := configutil.ValidateSettings(cfg.Vendors.Recognizer.Settings, configutil.Schema{
		Required: []string{"api_key"},
		Optional: []string{"model", "language", "sample_rate", "interim"},
	}); err != nil {
		return nil, fmt.Errorf("vendors.recognizer.settings: %w", err)
	}
	var s deepgramSettings
	if err := configutil.DecodeSettings(cfg.Vendors.Recognizer.Settings, &s); err != nil {
		return nil, err
	}
	rate := s.SampleRate
	if rate == 0 {
		rate = cfg.Audio.SampleRate
	}
	return deepgram.New(deepgram.Config{
		APIKey:     s.APIKey,
		Model:      s.Model,
		Language:   s.Language,
		SampleRate: rate,
		Interim:    configutil.BoolValue(s.Interim, true),
		SessionID:  sessionID,
	}), nil
}

type elevenLabsSettings struct {
	APIKey       string `mapstructure:"api_key"`
	VoiceID      string `mapstructure:"voice_id"`
	ModelID      string `mapstructure:"model_id"`
	OutputFormat string `mapstructure:"output_format"`
	SampleRate   int    `mapstructure:"sample_rate"`
}

func buildElevenLabs(cfg Config, sessionID string, persona PersonaConfig) (tts.Synthesizer, error) {
	if err := configutil.ValidateSettings(cfg.Vendors.Synth.Settings, configutil.Schema{
		Required: []string{"api_key"},
		Optional: []string{"voice_id", "model_id", "output_format", "sample_rate"},
	}); err != nil {
		return nil, fmt.Errorf("vendors.synth.settings: %w", err)
	}
	var s elevenLabsSettings
	if err := configutil.DecodeSettings(cfg.Vendors.Synth.Settings, &s); err != nil {
		return nil, err
	}
	voice := s.VoiceID
	if strings.TrimSpace(persona.VoiceID) != "" {
		voice = persona.VoiceID
	}
	return elevenlabs.New(elevenlabs.Config{
		APIKey:       s.APIKey,
		VoiceID:      voice,
		ModelID:      s.ModelID,
		OutputFormat: s.OutputFormat,
		SampleRate:   s.SampleRate,
		SessionID:    sessionID,
	}), nil
}

type openAISettings struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

func buildOpenAI(cfg Config) (assistant.Adapter, error) {
	if err := configutil.ValidateSettings(cfg.Vendors.Assistant.Settings, configutil.Schema{
		Required: []string{"api_key"},
		Optional: []string{"model"},
	}); err != nil {
		return nil, fmt.Errorf("vendors.assistant.settings: %w", err)
	}
	var s openAISettings
	if err := configutil.DecodeSettings(cfg.Vendors.Assistant.Settings, &s); err != nil {
		return nil, err
	}
	return openai.NewAdapter(s.APIKey, s.Model), nil
}

type mockRecognizerSettings struct {
	Utterance   string `mapstructure:"utterance"`
	DelayMS     int    `mapstructure:"delay_ms"`
	EmitOnStart bool   `mapstructure:"emit_on_start"`
}

func buildMockRecognizer(cfg Config, sessionID string) (stt.StreamingSTT, error) {
	var s mockRecognizerSettings
	if err := configutil.DecodeSettings(cfg.Vendors.Recognizer.Settings, &s); err != nil {
		return nil, err
	}
	var script []mock.ScriptedResult
	if s.Utterance != "" {
		script = []mock.ScriptedResult{{
			Text:  s.Utterance,
			Final: true,
			Delay: time.Duration(s.DelayMS) * time.Millisecond,
		}}
	}
	return mock.NewSTT(mock.STTConfig{
		SessionID:   sessionID,
		Script:      script,
		EmitOnStart: s.EmitOnStart,
	}), nil
}

type mockSynthSettings struct {
	SampleRate   int `mapstructure:"sample_rate"`
	BytesPerChar int `mapstructure:"bytes_per_char"`
}

func buildMockSynth(cfg Config, sessionID string, persona PersonaConfig) (tts.Synthesizer, error) {
	var s mockSynthSettings
	if err := configutil.DecodeSettings(cfg.Vendors.Synth.Settings, &s); err != nil {
		return nil, err
	}
	return mock.NewSynthesizer(mock.TTSConfig{
		SampleRate:   s.SampleRate,
		Channels:     cfg.Audio.Channels,
		BytesPerChar: s.BytesPerChar,
	}), nil
}

type mockAssistantSettings struct {
	ResponseText string `mapstructure:"response_text"`
	Title        string `mapstructure:"title"`
	ChunkDelayMS int    `mapstructure:"chunk_delay_ms"`
}

func buildMockAssistant(cfg Config) (assistant.Adapter, error) {
	var s mockAssistantSettings
	if err := configutil.DecodeSettings(cfg.Vendors.Assistant.Settings, &s); err != nil {
		return nil, err
	}
	return mock.NewAssistantAdapter(mock.AssistantConfig{
		ResponseText: s.ResponseText,
		Title:        s.Title,
		ChunkDelay:   time.Duration(s.ChunkDelayMS) * time.Millisecond,
	}), nil
}

type mockPlayerSettings struct {
	Speed float64 `mapstructure:"speed"`
}

func buildMockPlayer(cfg Config) (playback.Player, error) {
	var s mockPlayerSettings
	if err := configutil.DecodeSettings(cfg.Vendors.Player.Settings, &s); err != nil {
		return nil, err
	}
	return mock.NewPlayer(mock.PlayerConfig{Speed: s.Speed}), nil
}
