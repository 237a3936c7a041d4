package voxa

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/voxa-ai/voxa/pkg/adapters/stt"
	"github.com/voxa-ai/voxa/pkg/assistant"
	"github.com/voxa-ai/voxa/pkg/audiolevel"
	"github.com/voxa-ai/voxa/pkg/frames"
	"github.com/voxa-ai/voxa/pkg/logging"
	"github.com/voxa-ai/voxa/pkg/metrics"
	"github.com/voxa-ai/voxa/pkg/playback"
	"github.com/voxa-ai/voxa/pkg/resilience"
	"github.com/voxa-ai/voxa/pkg/turn"
)

// Session is one conversation: a recognizer, a level monitor, the turn
// controller and the playback chain, all built from config for a single
// persona. Audio in arrives through WriteAudio; everything else is driven by
// the controller's event loop.
type Session struct {
	id      string
	persona PersonaConfig

	rec     stt.StreamingSTT
	monitor *audiolevel.Monitor
	ctrl    *turn.Controller
	play    *playback.Controller

	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once
}

func newSession(cfg Config, providers *ProviderRegistry, persona PersonaConfig, obs metrics.Observer) (*Session, error) {
	id := uuid.NewString()

	rec, err := providers.BuildRecognizer(cfg.Vendors.Recognizer.Provider, cfg, id)
	if err != nil {
		return nil, err
	}
	synth, err := providers.BuildSynth(cfg.Vendors.Synth.Provider, cfg, id, persona)
	if err != nil {
		return nil, err
	}
	adapter, err := providers.BuildAssistant(cfg.Vendors.Assistant.Provider, cfg)
	if err != nil {
		return nil, err
	}
	player, err := providers.BuildPlayer(cfg.Vendors.Player.Provider, cfg)
	if err != nil {
		return nil, err
	}

	breaker := resilience.NewCircuitBreaker(
		cfg.Assistant.BreakerThreshold,
		time.Duration(cfg.Assistant.BreakerCooldownMS)*time.Millisecond,
	)
	guarded := assistant.NewCircuitBreakerAdapter(adapter, breaker)
	guarded.SetObserver(obs)

	streamer := assistant.NewStreamer(guarded, resilience.NewRetryPolicy(
		cfg.Assistant.StreamRetries,
		time.Duration(cfg.Assistant.RetryBackoffMS)*time.Millisecond,
	))

	analyser := playback.NewAnalyser(playback.AnalyserConfig{
		Bins: cfg.Audio.SpectrumBins,
	}, cfg.Audio.SampleRate)
	play := playback.NewController(synth, player, analyser)
	play.SetObserver(obs)
	play.SetSessionID(id)

	monitor := audiolevel.NewMonitor(audiolevel.Config{
		Cadence: time.Duration(cfg.Audio.LevelIntervalMS) * time.Millisecond,
		Gain:    cfg.Audio.LevelGain,
	})

	ctrl := turn.NewController(turn.Config{
		SilenceWindow:      time.Duration(cfg.Turn.SilenceWindowMS) * time.Millisecond,
		InterruptThreshold: cfg.Turn.InterruptThreshold,
		KeepRecognizerHot:  cfg.Turn.KeepRecognizerHot,
		SpeechEnabled:      cfg.Turn.SpeechEnabled,
		MaxHistory:         cfg.Turn.MaxHistory,
		QueueSize:          cfg.Turn.QueueSize,
		SessionID:          id,
	}, turn.Deps{
		Recognizer: &recognizerHandle{rec: rec},
		Streamer:   streamer,
		Playback:   play,
		Levels:     monitor,
	})
	ctrl.SetObserver(obs)

	s := &Session{
		id:      id,
		persona: persona,
		rec:     rec,
		monitor: monitor,
		ctrl:    ctrl,
		play:    play,
		logger: logging.NewComponentLogger(slog.Default(), "session").With(
			slog.String("session_id", id)),
	}

	streamer.SetContextFunc(s.buildRequest)
	monitor.AddListener(ctrl.HandleLevel)

	return s, nil
}

func (s *Session) ID() string { return s.id }

func (s *Session) Persona() PersonaConfig { return s.persona }

// Start launches the controller's event loop and the recognizer bridge. The
// mic stays off until ToggleMic(true).
func (s *Session) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	if err := s.ctrl.Start(s.ctx); err != nil {
		return err
	}
	go s.bridge()
	s.logger.Info("session_started", slog.String("persona", s.persona.Name))
	return nil
}

func (s *Session) Close() {
	s.closeOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		_ = s.ctrl.Close()
		_ = s.rec.Close()
		s.monitor.Stop()
		s.logger.Info("session_closed")
	})
}

// WriteAudio feeds one microphone PCM chunk to both the recognizer and the
// level monitor so interrupt detection and transcription see the same audio.
func (s *Session) WriteAudio(pcm []byte) error {
	s.monitor.Write(pcm)
	return s.rec.SendAudio(pcm)
}

func (s *Session) ToggleMic(on bool) { s.ctrl.ToggleMic(on) }

func (s *Session) SetSpeechEnabled(on bool) { s.ctrl.SetSpeechEnabled(on) }

func (s *Session) SetHooks(h turn.Hooks) { s.ctrl.SetHooks(h) }

func (s *Session) AddStateListener(l turn.StateListener) { s.ctrl.AddListener(l) }

// SetBinListener wires the playback spectrum feed to a visualizer.
func (s *Session) SetBinListener(fn playback.BinListener) { s.play.SetBinListener(fn) }

func (s *Session) State() turn.State { return s.ctrl.State() }

func (s *Session) History() []turn.Turn { return s.ctrl.History() }

// bridge drains recognizer results into the controller queue for the life of
// the session. The recognizer's result channel survives its Start/Close
// cycles, so one drain loop covers every listening window.
func (s *Session) bridge() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case f, ok := <-s.rec.Results():
			if !ok {
				return
			}
			switch tf := f.(type) {
			case frames.TranscriptFrame:
				s.ctrl.HandleTranscript(tf)
			default:
				s.ctrl.Submit(f)
			}
		}
	}
}

// buildRequest shapes the assistant request from the persona and the
// completed-turn history.
func (s *Session) buildRequest(utterance string) assistant.Request {
	turns := s.ctrl.History()
	history := make([]assistant.Message, 0, len(turns)*2)
	for _, t := range turns {
		if t.Utterance != "" {
			history = append(history, assistant.Message{Role: assistant.RoleUser, Content: t.Utterance})
		}
		if t.Reply != "" {
			history = append(history, assistant.Message{Role: assistant.RoleAssistant, Content: t.Reply})
		}
	}
	return assistant.Request{
		ChatID:    s.id,
		Persona:   s.persona.Name,
		System:    s.persona.System,
		History:   history,
		Utterance: utterance,
	}
}

// recognizerHandle narrows a streaming recognizer to the start/stop pair the
// controller drives between turns.
type recognizerHandle struct {
	rec stt.StreamingSTT
}

func (h *recognizerHandle) Start(ctx context.Context) error { return h.rec.Start(ctx) }

func (h *recognizerHandle) Stop() error { return h.rec.Close() }
