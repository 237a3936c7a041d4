package voxa

import (
	"fmt"
	"strings"

	"github.com/voxa-ai/voxa/pkg/adapters/stt"
	"github.com/voxa-ai/voxa/pkg/adapters/tts"
	"github.com/voxa-ai/voxa/pkg/assistant"
	"github.com/voxa-ai/voxa/pkg/playback"
)

type RecognizerFactory func(cfg Config, sessionID string) (stt.StreamingSTT, error)
type SynthFactory func(cfg Config, sessionID string, persona PersonaConfig) (tts.Synthesizer, error)
type AssistantFactory func(cfg Config) (assistant.Adapter, error)
type PlayerFactory func(cfg Config) (playback.Player, error)

// ProviderRegistry maps vendor names from config to provider constructors.
// NewProviderRegistry returns it pre-populated with the built-in providers;
// hosts register their own (a real audio device player, a custom backend)
// before handing it to the engine.
type ProviderRegistry struct {
	recognizers map[string]RecognizerFactory
	synths      map[string]SynthFactory
	assistants  map[string]AssistantFactory
	players     map[string]PlayerFactory
}

func NewProviderRegistry() *ProviderRegistry {
	r := &ProviderRegistry{
		recognizers: make(map[string]RecognizerFactory),
		synths:      make(map[string]SynthFactory),
		assistants:  make(map[string]AssistantFactory),
		players:     make(map[string]PlayerFactory),
	}
	registerBuiltins(r)
	return r
}

func (r *ProviderRegistry) RegisterRecognizer(name string, factory RecognizerFactory) {
	r.recognizers[providerKey(name)] = factory
}

func (r *ProviderRegistry) RegisterSynth(name string, factory SynthFactory) {
	r.synths[providerKey(name)] = factory
}

func (r *ProviderRegistry) RegisterAssistant(name string, factory AssistantFactory) {
	r.assistants[providerKey(name)] = factory
}

func (r *ProviderRegistry) RegisterPlayer(name string, factory PlayerFactory) {
	r.players[providerKey(name)] = factory
}

func (r *ProviderRegistry) BuildRecognizer(provider string, cfg Config, sessionID string) (stt.StreamingSTT, error) {
	fn := r.recognizers[providerKey(provider)]
	if fn == nil {
		return nil, fmt.Errorf("recognizer provider not registered: %s", provider)
	}
	return fn(cfg, sessionID)
}

func (r *ProviderRegistry) BuildSynth(provider string, cfg Config, sessionID string, persona PersonaConfig) (tts.Synthesizer, error) {
	fn := r.synths[providerKey(provider)]
	if fn == nil {
		return nil, fmt.Errorf("synth provider not registered: %s", provider)
	}
	return fn(cfg, sessionID, persona)
}

func (r *ProviderRegistry) BuildAssistant(provider string, cfg Config) (assistant.Adapter, error) {
	fn := r.assistants[providerKey(provider)]
	if fn == nil {
		return nil, fmt.Errorf("assistant provider not registered: %s", provider)
	}
	return fn(cfg)
}

func (r *ProviderRegistry) BuildPlayer(provider string, cfg Config) (playback.Player, error) {
	fn := r.players[providerKey(provider)]
	if fn == nil {
		return nil, fmt.Errorf("player provider not registered: %s", provider)
	}
	return fn(cfg)
}

func providerKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
