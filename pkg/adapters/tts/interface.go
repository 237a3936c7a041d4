package tts

import "context"

// Audio is one synthesized clip of raw PCM.
type Audio struct {
	PCM        []byte
	SampleRate int
	Channels   int
}

// Duration in samples per channel.
func (a Audio) Samples() int {
	if a.Channels == 0 {
		return 0
	}
	return len(a.PCM) / 2 / a.Channels
}

// Synthesizer defines the contract for any text-to-speech vendor. Synthesis
// is per-utterance: one call, one complete clip.
type Synthesizer interface {
	// Name returns adapter name for logging/metrics.
	Name() string
	// Synthesize renders text to PCM. Cancelling ctx abandons the request.
	Synthesize(ctx context.Context, text string) (Audio, error)
}

// Config contains vendor-agnostic synthesis configuration.
type Config struct {
	SessionID  string
	VoiceID    string
	SampleRate int
	Channels   int
}
