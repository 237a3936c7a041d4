package assistant

import (
	"context"
	"log/slog"
	"sync"

	"github.com/voxa-ai/voxa/pkg/errorsx"
	"github.com/voxa-ai/voxa/pkg/frames"
	"github.com/voxa-ai/voxa/pkg/logging"
	"github.com/voxa-ai/voxa/pkg/resilience"
)

// ContextFunc builds the backend request for an utterance. The session layer
// supplies it so the streamer stays ignorant of history and persona handling.
type ContextFunc func(utterance string) Request

// Streamer turns adapter reply streams into turn controller frames. Each
// Send opens one stream; the returned channel delivers delta frames and
// terminates with a stream_done or stream_error control frame before closing.
type Streamer struct {
	adapter Adapter
	retry   resilience.RetryPolicy
	logger  *slog.Logger

	mu      sync.Mutex
	buildFn ContextFunc
}

func NewStreamer(adapter Adapter, retry resilience.RetryPolicy) *Streamer {
	return &Streamer{
		adapter: adapter,
		retry:   retry,
		logger:  logging.NewComponentLogger(slog.Default(), "assistant_streamer"),
	}
}

func (s *Streamer) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logging.NewComponentLogger(logger, "assistant_streamer")
	}
}

// SetContextFunc installs the request builder. Until one is set, requests
// carry the bare utterance.
func (s *Streamer) SetContextFunc(fn ContextFunc) {
	s.mu.Lock()
	s.buildFn = fn
	s.mu.Unlock()
}

func (s *Streamer) buildRequest(utterance string) Request {
	s.mu.Lock()
	fn := s.buildFn
	s.mu.Unlock()
	if fn != nil {
		return fn(utterance)
	}
	return Request{Utterance: utterance}
}

// Send opens a reply stream for the utterance. Connection failures are
// retried per the policy; rate-limited backends fail fast.
func (s *Streamer) Send(ctx context.Context, utterance string) (<-chan frames.Frame, error) {
	req := s.buildRequest(utterance)

	var events <-chan Event
	err := s.retry.Do(func() error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		ch, err := s.adapter.Stream(ctx, req)
		if err != nil {
			if resilience.IsRateLimit(err) {
				return resilience.Permanent(errorsx.Wrap(err, errorsx.ReasonStreamRateLimit))
			}
			return errorsx.Wrap(err, errorsx.ReasonStreamConnect)
		}
		events = ch
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make(chan frames.Frame, 16)
	go s.pump(ctx, events, out)
	return out, nil
}

func (s *Streamer) pump(ctx context.Context, events <-chan Event, out chan<- frames.Frame) {
	defer close(out)
	terminal := false
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				if !terminal {
					// Adapter closed without a terminal event. Treat the
					// reply as complete rather than dropping it.
					s.emit(ctx, out, frames.NewControlFrame(0, frames.ControlStreamDone, nil))
				}
				return
			}
			switch ev.Type {
			case EventContent:
				if ev.Text == "" {
					continue
				}
				s.emit(ctx, out, frames.NewDeltaFrame(0, ev.Text, nil))
			case EventTitle:
				s.emit(ctx, out, frames.NewSystemFrame(0, "title", map[string]string{"title": ev.Text}))
			case EventDone:
				terminal = true
				s.emit(ctx, out, frames.NewControlFrame(0, frames.ControlStreamDone, nil))
				return
			case EventError:
				terminal = true
				msg := "stream aborted"
				if ev.Err != nil {
					msg = ev.Err.Error()
				}
				s.logger.Warn("stream_error", slog.String("error", msg))
				s.emit(ctx, out, frames.NewControlFrame(0, frames.ControlStreamError, map[string]string{
					frames.MetaReason: string(errorsx.ReasonStream),
					"error":           msg,
				}))
				return
			}
		}
	}
}

func (s *Streamer) emit(ctx context.Context, out chan<- frames.Frame, f frames.Frame) {
	select {
	case out <- f:
	case <-ctx.Done():
	}
}
