package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/voxa-ai/voxa/pkg/adapters/tts"
	"github.com/voxa-ai/voxa/pkg/errorsx"
	"github.com/voxa-ai/voxa/pkg/logging"
	"github.com/voxa-ai/voxa/pkg/resilience"
)

type Config struct {
	APIKey       string
	VoiceID      string
	ModelID      string
	OutputFormat string
	SampleRate   int
	SessionID    string
}

// Synthesizer renders one clip per request over the ElevenLabs stream-input
// websocket. Each Synthesize call opens its own connection, collects the
// audio chunks for the utterance, and closes it; a stopped clip therefore
// never leaves buffered audio behind for the next one.
type Synthesizer struct {
	cfg    Config
	logger *slog.Logger
}

func New(cfg Config) *Synthesizer {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 44100
	}
	if cfg.OutputFormat == "" {
		cfg.OutputFormat = "pcm_44100"
	}
	return &Synthesizer{
		cfg:    cfg,
		logger: logging.NewComponentLogger(slog.Default(), "elevenlabs_tts"),
	}
}

func (s *Synthesizer) Name() string { return "elevenlabs_tts" }

func (s *Synthesizer) Synthesize(ctx context.Context, text string) (tts.Audio, error) {
	if s.cfg.APIKey == "" || s.cfg.VoiceID == "" {
		return tts.Audio{}, errorsx.Wrap(errors.New("missing elevenlabs config"), errorsx.ReasonSynthConnect)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return tts.Audio{}, nil
	}

	s.logger.Debug("connecting to ElevenLabs",
		slog.String("session_id", s.cfg.SessionID),
		slog.String("output_format", s.cfg.OutputFormat))

	dialer := websocket.Dialer{Proxy: http.ProxyFromEnvironment}
	conn, resp, err := dialer.DialContext(ctx, s.buildURL(), http.Header{
		"xi-api-key": []string{s.cfg.APIKey},
	})
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusTooManyRequests {
			s.logger.Error("ElevenLabs rate limit exceeded",
				slog.String("session_id", s.cfg.SessionID),
				slog.String("status", resp.Status))
			return tts.Audio{}, resilience.RateLimitError{Provider: "elevenlabs", Message: resp.Status}
		}
		s.logger.Error("failed to connect to ElevenLabs",
			slog.String("session_id", s.cfg.SessionID),
			slog.String("error", err.Error()))
		return tts.Audio{}, errorsx.Wrap(err, errorsx.ReasonSynthConnect)
	}
	defer func() {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = conn.Close()
	}()

	// Cancelled contexts unblock ReadMessage by closing the socket.
	readDone := make(chan struct{})
	defer close(readDone)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-readDone:
		}
	}()

	if err := s.writeJSON(conn, map[string]any{
		"text": " ",
		"voice_settings": map[string]any{
			"stability":        0.5,
			"similarity_boost": 0.8,
		},
		"generation_config": map[string]any{
			"chunk_length_schedule": []int{120, 160, 250, 290},
		},
	}); err != nil {
		return tts.Audio{}, errorsx.Wrap(err, errorsx.ReasonSynthesis)
	}
	if !strings.HasSuffix(text, " ") {
		text += " "
	}
	if err := s.writeJSON(conn, map[string]any{"text": text, "try_trigger_generation": true}); err != nil {
		return tts.Audio{}, errorsx.Wrap(err, errorsx.ReasonSynthesis)
	}
	// Empty text closes the input stream; the server answers with the
	// remaining audio and an isFinal marker.
	if err := s.writeJSON(conn, map[string]any{"text": ""}); err != nil {
		return tts.Audio{}, errorsx.Wrap(err, errorsx.ReasonSynthesis)
	}

	pcm, err := s.collect(ctx, conn)
	if err != nil {
		return tts.Audio{}, err
	}
	s.logger.Info("synthesis complete",
		slog.String("session_id", s.cfg.SessionID),
		slog.Int("size_bytes", len(pcm)))
	return tts.Audio{PCM: pcm, SampleRate: s.cfg.SampleRate, Channels: 1}, nil
}

func (s *Synthesizer) collect(ctx context.Context, conn *websocket.Conn) ([]byte, error) {
	var pcm []byte
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return pcm, nil
			}
			s.logger.Error("tts read error",
				slog.String("session_id", s.cfg.SessionID),
				slog.String("error", err.Error()))
			return nil, errorsx.Wrap(err, errorsx.ReasonSynthesis)
		}

		var msg map[string]any
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Warn("tts websocket raw data", slog.String("data", string(data)))
			continue
		}
		if errMsg, ok := msg["error"].(string); ok {
			return nil, errorsx.Wrap(errors.New(errMsg), errorsx.ReasonSynthesis)
		}
		if audio := audioPayload(msg); audio != "" {
			raw, err := base64.StdEncoding.DecodeString(audio)
			if err != nil {
				s.logger.Error("tts audio decode error", slog.String("error", err.Error()))
				continue
			}
			pcm = append(pcm, raw...)
			s.logger.Debug("tts audio chunk received",
				slog.String("session_id", s.cfg.SessionID),
				slog.Int("size_bytes", len(raw)))
		}
		if final, ok := msg["isFinal"].(bool); ok && final {
			return pcm, nil
		}
	}
}

func audioPayload(msg map[string]any) string {
	if a, ok := msg["audio"].(string); ok {
		return a
	}
	if a, ok := msg["audio_base_64"].(string); ok {
		return a
	}
	if a, ok := msg["audio_base64"].(string); ok {
		return a
	}
	return ""
}

func (s *Synthesizer) buildURL() string {
	base := "wss://api.elevenlabs.io/v1/text-to-speech/" + s.cfg.VoiceID + "/stream-input"
	q := url.Values{}
	if s.cfg.ModelID != "" {
		q.Set("model_id", s.cfg.ModelID)
	}
	q.Set("output_format", s.cfg.OutputFormat)
	q.Set("optimize_streaming_latency", "4")
	return base + "?" + q.Encode()
}

func (s *Synthesizer) writeJSON(conn *websocket.Conn, payload map[string]any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, b)
}

var _ tts.Synthesizer = (*Synthesizer)(nil)
