package mock

import (
	"context"

	"github.com/voxa-ai/voxa/pkg/adapters/tts"
)

type TTSConfig struct {
	SampleRate int
	Channels   int
	// BytesPerChar sizes the silent clip relative to the input text.
	BytesPerChar int
	Err          error
}

// Synthesizer returns deterministic silent PCM sized to the input text.
type Synthesizer struct {
	cfg TTSConfig
}

func NewSynthesizer(cfg TTSConfig) *Synthesizer {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels == 0 {
		cfg.Channels = 1
	}
	if cfg.BytesPerChar == 0 {
		cfg.BytesPerChar = 160
	}
	return &Synthesizer{cfg: cfg}
}

func (s *Synthesizer) Name() string { return "mock_tts" }

func (s *Synthesizer) Synthesize(ctx context.Context, text string) (tts.Audio, error) {
	if s.cfg.Err != nil {
		return tts.Audio{}, s.cfg.Err
	}
	n := len(text) * s.cfg.BytesPerChar
	if n%2 != 0 {
		n++
	}
	return tts.Audio{
		PCM:        make([]byte, n),
		SampleRate: s.cfg.SampleRate,
		Channels:   s.cfg.Channels,
	}, nil
}

var _ tts.Synthesizer = (*Synthesizer)(nil)
