package mock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/voxa-ai/voxa/pkg/adapters/stt"
	"github.com/voxa-ai/voxa/pkg/frames"
)

// ScriptedResult is one recognizer result in a mock script.
type ScriptedResult struct {
	Text  string
	Final bool
	Delay time.Duration
}

type STTConfig struct {
	SessionID string
	Script    []ScriptedResult
	// EmitOnStart plays the script as soon as Start is called instead of
	// waiting for the first SendAudio.
	EmitOnStart bool
}

// StreamingSTT replays a scripted transcript sequence. Used by tests and the
// offline example app.
type StreamingSTT struct {
	cfg     STTConfig
	out     chan frames.Frame
	ctx     context.Context
	cancel  context.CancelFunc
	mu      sync.Mutex
	started bool
	emitted bool
}

func NewSTT(cfg STTConfig) *StreamingSTT {
	if len(cfg.Script) == 0 {
		cfg.Script = []ScriptedResult{{Text: "mock transcript", Final: true}}
	}
	return &StreamingSTT{cfg: cfg, out: make(chan frames.Frame, 16)}
}

func (s *StreamingSTT) Name() string { return "mock_stt" }

func (s *StreamingSTT) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.started = true
	s.mu.Unlock()
	if s.cfg.EmitOnStart {
		s.replay()
	}
	return nil
}

func (s *StreamingSTT) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	s.started = false
	s.emitted = false
	return nil
}

func (s *StreamingSTT) SendAudio(pcm []byte) error {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if !started {
		return errors.New("not started")
	}
	s.replay()
	return nil
}

// replay emits the script once per Start.
func (s *StreamingSTT) replay() {
	s.mu.Lock()
	if s.emitted {
		s.mu.Unlock()
		return
	}
	s.emitted = true
	ctx := s.ctx
	s.mu.Unlock()

	go func() {
		for _, r := range s.cfg.Script {
			if r.Delay > 0 {
				select {
				case <-ctx.Done():
					return
				case <-time.After(r.Delay):
				}
			}
			f := frames.NewTranscriptFrame(0, r.Text, r.Final, map[string]string{
				frames.MetaSessionID: s.cfg.SessionID,
				frames.MetaSource:    "stt",
			})
			select {
			case s.out <- f:
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (s *StreamingSTT) Results() <-chan frames.Frame { return s.out }

var _ stt.StreamingSTT = (*StreamingSTT)(nil)
