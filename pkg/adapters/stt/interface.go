package stt

import (
	"context"

	"github.com/voxa-ai/voxa/pkg/frames"
)

// StreamingSTT defines the contract for any speech recognizer vendor.
type StreamingSTT interface {
	// Name returns adapter name for logging/metrics.
	Name() string
	// Start opens the recognizer connection.
	Start(ctx context.Context) error
	// Close shuts down the recognizer connection.
	Close() error
	// SendAudio pushes raw PCM captured from the microphone.
	SendAudio(pcm []byte) error
	// Results returns a channel of transcript and system frames.
	Results() <-chan frames.Frame
}

// Config contains vendor-agnostic recognizer configuration.
type Config struct {
	SessionID      string
	SampleRate     int
	Channels       int
	Language       string
	Model          string
	InterimResults bool
}
