package turn

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/voxa-ai/voxa/pkg/errorsx"
	"github.com/voxa-ai/voxa/pkg/frames"
	"github.com/voxa-ai/voxa/pkg/logging"
	"github.com/voxa-ai/voxa/pkg/metrics"
	"github.com/voxa-ai/voxa/pkg/redact"
)

// Recognizer is the controller's view of the speech recognizer.
type Recognizer interface {
	Start(ctx context.Context) error
	Stop() error
}

// Streamer produces the assistant reply stream for a finalized utterance.
// The returned channel delivers delta frames in order, terminated by a
// stream_done or stream_error control frame, and is closed afterwards.
type Streamer interface {
	Send(ctx context.Context, utterance string) (<-chan frames.Frame, error)
}

// Playback speaks a finished reply. Speak returns an event channel that
// terminates with playback_done or playback_error; Stop halts audio with
// guaranteed silence before it returns.
type Playback interface {
	Speak(ctx context.Context, text string) (<-chan frames.Frame, error)
	Stop()
}

// LevelSource is the audio level monitor lifecycle as seen by the controller.
type LevelSource interface {
	Start(ctx context.Context)
	Stop()
}

// Hooks surface controller output to the enclosing UI layer. All hooks are
// invoked from the controller's event goroutine.
type Hooks struct {
	OnInterim    func(text string)
	OnUtterance  func(text string)
	OnReplyDelta func(delta string)
	OnTitle      func(title string)
	OnError      func(err error)
}

type Config struct {
	// SilenceWindow is how long the recognizer must stay silent after the
	// last final fragment before the utterance is finalized.
	SilenceWindow time.Duration
	// InterruptThreshold is the normalized level above which user speech
	// during playback triggers barge-in.
	InterruptThreshold float64
	// KeepRecognizerHot leaves the recognizer running through Processing
	// and Speaking. Barge-in requires a live recognizer, so turning this
	// off disables interruption and trades it for lower recognizer cost.
	KeepRecognizerHot bool
	// SpeechEnabled is the initial text-to-speech toggle.
	SpeechEnabled bool
	// MaxHistory bounds the retained completed-turn history.
	MaxHistory int
	// QueueSize bounds the internal event queue.
	QueueSize int
	// SessionID tags every recorded metric with the owning session so
	// per-session observers can separate concurrent conversations.
	SessionID string
}

const DefaultInterruptThreshold = 0.15

// Turn is one completed user utterance / assistant reply cycle.
type Turn struct {
	Gen         uint64
	Utterance   string
	Reply       string
	StartedAt   time.Time
	EndedAt     time.Time
	Interrupted bool
}

// Deps are the controller's collaborators. Recognizer, Streamer and Playback
// are required; Levels is optional (nil when level capture is wired
// externally).
type Deps struct {
	Recognizer Recognizer
	Streamer   Streamer
	Playback   Playback
	Levels     LevelSource
}

// Controller is the turn-taking state machine. All inputs arrive as frames on
// a single queue and are processed strictly in arrival order by one
// goroutine, so turn state never has concurrent writers.
type Controller struct {
	cfg  Config
	deps Deps

	queue chan frames.Frame
	gens  *frames.GenSeq

	// Owned by the event goroutine.
	gen            uint64
	pending        *Accumulator
	ep             *Endpointer
	reply          strings.Builder
	utterance      string
	turnStartedAt  time.Time
	finalizedAt    time.Time
	firstDeltaSeen bool
	micOn          bool
	speechOn       bool
	recognizerLive bool
	streamCancel   context.CancelFunc
	playCancel     context.CancelFunc

	mu        sync.RWMutex
	state     State
	history   []Turn
	listeners []StateListener

	hooks  Hooks
	obs    metrics.Observer
	logger *slog.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

func NewController(cfg Config, deps Deps) *Controller {
	if cfg.SilenceWindow <= 0 {
		cfg.SilenceWindow = DefaultSilenceWindow
	}
	if cfg.InterruptThreshold <= 0 {
		cfg.InterruptThreshold = DefaultInterruptThreshold
	}
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = 16
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	c := &Controller{
		cfg:      cfg,
		deps:     deps,
		queue:    make(chan frames.Frame, cfg.QueueSize),
		gens:     frames.NewGenSeq(),
		pending:  NewAccumulator(),
		state:    StateIdle,
		speechOn: cfg.SpeechEnabled,
		obs:      metrics.NoopObserver{},
		logger:   logging.NewComponentLogger(slog.Default(), "turn_controller"),
	}
	c.ep = NewEndpointer(cfg.SilenceWindow, func(epoch uint64, at time.Time) {
		c.Submit(frames.NewEndpointFrame(epoch, at))
	})
	return c
}

func (c *Controller) SetHooks(h Hooks) { c.hooks = h }

func (c *Controller) SetObserver(obs metrics.Observer) { c.obs = obs }

func (c *Controller) SetLogger(logger *slog.Logger) {
	if logger != nil {
		c.logger = logging.NewComponentLogger(logger, "turn_controller")
	}
}

// AddListener registers a listener for state change events.
func (c *Controller) AddListener(listener StateListener) {
	c.mu.Lock()
	c.listeners = append(c.listeners, listener)
	c.mu.Unlock()
}

// Start launches the event goroutine. It does not start listening; the mic
// toggle does that.
func (c *Controller) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if c.started {
		return errors.New("controller already started")
	}
	c.started = true
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})
	go c.loop()
	return nil
}

// Close stops the event goroutine and tears down any live turn.
func (c *Controller) Close() error {
	if !c.started {
		return nil
	}
	c.cancel()
	<-c.done
	c.ep.Cancel()
	c.deps.Playback.Stop()
	if c.recognizerLive {
		_ = c.deps.Recognizer.Stop()
	}
	if c.deps.Levels != nil {
		c.deps.Levels.Stop()
	}
	return nil
}

func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// History returns completed turns, oldest first.
func (c *Controller) History() []Turn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Turn, len(c.history))
	copy(out, c.history)
	return out
}

// Submit enqueues a frame for processing in arrival order.
func (c *Controller) Submit(f frames.Frame) {
	if c.ctx == nil {
		return
	}
	select {
	case c.queue <- f:
	case <-c.ctx.Done():
	}
}

// ToggleMic starts or stops listening.
func (c *Controller) ToggleMic(on bool) {
	code := frames.ControlMicOff
	if on {
		code = frames.ControlMicOn
	}
	c.Submit(frames.NewControlFrame(0, code, nil))
}

// SetSpeechEnabled toggles spoken replies. Takes effect per-turn at the
// Processing completion branch.
func (c *Controller) SetSpeechEnabled(on bool) {
	code := frames.ControlSpeechOff
	if on {
		code = frames.ControlSpeechOn
	}
	c.Submit(frames.NewControlFrame(0, code, nil))
}

// HandleTranscript feeds one recognizer result.
func (c *Controller) HandleTranscript(f frames.TranscriptFrame) {
	c.Submit(f)
}

// HandleLevel feeds one normalized level sample. Level samples are a
// continuous stream, so one is dropped rather than blocking the caller when
// the queue is full: the monitor's final sample on Stop arrives on the event
// goroutine itself, and a blocking enqueue there would deadlock the loop.
func (c *Controller) HandleLevel(f frames.LevelFrame) {
	if c.ctx == nil {
		return
	}
	select {
	case c.queue <- f:
	default:
	}
}

func (c *Controller) loop() {
	defer close(c.done)
	for {
		select {
		case <-c.ctx.Done():
			return
		case f := <-c.queue:
			c.dispatch(f)
		}
	}
}

func (c *Controller) dispatch(f frames.Frame) {
	switch v := f.(type) {
	case frames.TranscriptFrame:
		c.handleTranscript(v)
	case frames.LevelFrame:
		c.handleLevel(v)
	case frames.EndpointFrame:
		c.handleEndpoint(v)
	case frames.DeltaFrame:
		c.handleDelta(v)
	case frames.ControlFrame:
		c.handleControl(v)
	case frames.SystemFrame:
		c.handleSystem(v)
	}
}

func (c *Controller) handleTranscript(f frames.TranscriptFrame) {
	if !f.IsFinal() {
		if c.hooks.OnInterim != nil {
			c.hooks.OnInterim(f.Text())
		}
		return
	}
	switch c.State() {
	case StateListening, StateAwaitingEndpoint:
		if !c.pending.Append(f) {
			return
		}
		// Restart before anything else: a final fragment and a queued
		// expiry in the same batch must resolve in the fragment's favor.
		c.ep.Restart()
		if c.State() == StateListening {
			c.setState(StateAwaitingEndpoint, "final fragment arrived")
		}
		c.record("transcript_final", float64(len(f.Text())), nil)
	default:
		c.logger.Debug("transcript_discarded",
			slog.String("state", c.State().String()),
			slog.String("reason_code", string(errorsx.ReasonStaleTurn)))
	}
}

func (c *Controller) handleLevel(f frames.LevelFrame) {
	if c.State() != StateSpeaking {
		// While listening the level stream is visualization-only; acting on
		// it here would let the user's own voice interrupt the listener.
		return
	}
	if !c.recognizerLive || f.Value() <= c.cfg.InterruptThreshold {
		return
	}
	c.interrupt(f.Value())
}

// interrupt stops playback with guaranteed silence before any new turn
// processing begins, then returns the session to Listening with an empty
// accumulator so the interrupting speech starts a fresh turn.
func (c *Controller) interrupt(level float64) {
	c.deps.Playback.Stop()
	if c.playCancel != nil {
		c.playCancel()
		c.playCancel = nil
	}
	c.recordTurn(true)
	c.reply.Reset()
	c.pending.Reset()
	c.gen = c.gens.Next()
	c.record("barge_in", level, nil)
	c.setState(StateListening, "barge-in")
}

func (c *Controller) handleEndpoint(f frames.EndpointFrame) {
	if f.Epoch() != c.ep.Epoch() {
		c.record("endpoint_stale", 0, nil)
		return
	}
	if c.State() != StateAwaitingEndpoint {
		return
	}
	c.finalize("silence window elapsed")
}

// finalize closes the pending utterance and opens the Processing phase.
// A no-op on an empty buffer, which makes the endpoint-expiry/manual-stop
// race harmless.
func (c *Controller) finalize(trigger string) {
	if c.pending.Empty() {
		return
	}
	utterance := c.pending.Snapshot()
	c.pending.Reset()
	c.ep.Cancel()

	c.gen = c.gens.Next()
	c.utterance = utterance
	c.turnStartedAt = time.Now()
	c.finalizedAt = c.turnStartedAt
	c.firstDeltaSeen = false
	c.reply.Reset()

	if !c.cfg.KeepRecognizerHot {
		c.stopRecognizer()
	}
	c.setState(StateProcessing, trigger)
	c.record("turn_finalize", float64(len(utterance)), map[string]string{
		frames.MetaReason: trigger,
	})
	c.logger.Info("utterance_finalized",
		slog.Uint64("gen", c.gen),
		slog.String("trigger", trigger),
		slog.String("utterance", redact.Text(utterance)))
	if c.hooks.OnUtterance != nil {
		c.hooks.OnUtterance(utterance)
	}

	ctx, cancel := context.WithCancel(c.ctx)
	c.streamCancel = cancel
	gen := c.gen
	go func() {
		ch, err := c.deps.Streamer.Send(ctx, utterance)
		if err != nil {
			c.Submit(frames.NewControlFrame(gen, frames.ControlStreamError, map[string]string{
				frames.MetaReason: string(errorsx.Reason(err)),
				"error":           err.Error(),
			}))
			return
		}
		c.forward(ch, gen)
	}()
}

// forward retags producer frames with the turn generation they serve and
// pushes them onto the queue.
func (c *Controller) forward(ch <-chan frames.Frame, gen uint64) {
	for f := range ch {
		select {
		case c.queue <- frames.Retag(f, gen):
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Controller) handleDelta(f frames.DeltaFrame) {
	if f.Gen() != c.gen || c.State() != StateProcessing {
		c.discardStale("delta", f.Gen())
		return
	}
	if !c.firstDeltaSeen {
		c.firstDeltaSeen = true
		c.record("stream_first_delta", float64(time.Since(c.finalizedAt).Milliseconds()), nil)
	}
	c.reply.WriteString(f.Text())
	if c.hooks.OnReplyDelta != nil {
		c.hooks.OnReplyDelta(f.Text())
	}
}

func (c *Controller) handleControl(f frames.ControlFrame) {
	switch f.Code() {
	case frames.ControlMicOn:
		c.handleMicOn()
	case frames.ControlMicOff:
		c.handleMicOff()
	case frames.ControlSpeechOn:
		c.speechOn = true
	case frames.ControlSpeechOff:
		c.speechOn = false
	case frames.ControlStreamDone:
		c.handleStreamDone(f)
	case frames.ControlStreamError:
		c.handleStreamError(f)
	case frames.ControlPlaybackDone:
		c.handlePlaybackDone(f)
	case frames.ControlPlaybackError:
		c.handlePlaybackError(f)
	}
}

func (c *Controller) handleMicOn() {
	c.micOn = true
	switch c.State() {
	case StateIdle:
		c.startRecognizer()
		if c.deps.Levels != nil {
			c.deps.Levels.Start(c.ctx)
		}
		c.setState(StateListening, "mic toggled on")
	case StateSpeaking:
		if c.cfg.KeepRecognizerHot {
			c.startRecognizer()
		}
	}
	// In Processing the toggle is a queued-listening intent; the stream
	// completion branch resumes Listening.
}

func (c *Controller) handleMicOff() {
	c.micOn = false
	switch c.State() {
	case StateListening:
		c.stopRecognizer()
		c.stopLevels()
		c.setState(StateIdle, "mic toggled off")
	case StateAwaitingEndpoint:
		// Immediate finalize without waiting for the endpoint timer.
		c.finalize("mic toggled off")
		c.stopRecognizer()
	case StateSpeaking:
		c.deps.Playback.Stop()
		if c.playCancel != nil {
			c.playCancel()
			c.playCancel = nil
		}
		c.recordTurn(true)
		c.reply.Reset()
		c.stopRecognizer()
		c.stopLevels()
		c.setState(StateIdle, "mic toggled off")
	case StateProcessing:
		// Intent recorded; the completion branch lands on Idle.
		c.stopRecognizer()
	}
}

func (c *Controller) handleStreamDone(f frames.ControlFrame) {
	if f.Gen() != c.gen || c.State() != StateProcessing {
		c.discardStale("stream_done", f.Gen())
		return
	}
	c.streamCancel = nil
	text := strings.TrimSpace(c.reply.String())
	c.record("stream_done", float64(len(text)), nil)

	if c.micOn && c.speechOn && text != "" {
		c.speak(text)
		return
	}
	c.recordTurn(false)
	c.reply.Reset()
	c.afterTurn("reply complete")
}

func (c *Controller) handleStreamError(f frames.ControlFrame) {
	if f.Gen() != c.gen || c.State() != StateProcessing {
		c.discardStale("stream_error", f.Gen())
		return
	}
	c.streamCancel = nil
	c.reportError(errorsx.Wrap(errors.New(f.Meta()["error"]), errorsx.ReasonStream))
	c.reply.Reset()
	c.utterance = ""
	c.afterTurn("stream error")
}

func (c *Controller) speak(text string) {
	ctx, cancel := context.WithCancel(c.ctx)
	c.playCancel = cancel
	c.setState(StateSpeaking, "reply synthesis started")
	c.record("playback_start", float64(len(text)), nil)
	gen := c.gen
	go func() {
		ch, err := c.deps.Playback.Speak(ctx, text)
		if err != nil {
			c.Submit(frames.NewControlFrame(gen, frames.ControlPlaybackError, map[string]string{
				frames.MetaReason: string(errorsx.Reason(err)),
				"error":           err.Error(),
			}))
			return
		}
		c.forward(ch, gen)
	}()
}

func (c *Controller) handlePlaybackDone(f frames.ControlFrame) {
	if f.Gen() != c.gen || c.State() != StateSpeaking {
		c.discardStale("playback_done", f.Gen())
		return
	}
	c.playCancel = nil
	c.record("playback_done", 0, nil)
	c.recordTurn(false)
	c.reply.Reset()
	c.afterTurn("playback complete")
}

func (c *Controller) handlePlaybackError(f frames.ControlFrame) {
	if f.Gen() != c.gen || c.State() != StateSpeaking {
		c.discardStale("playback_error", f.Gen())
		return
	}
	c.playCancel = nil
	c.reportError(errorsx.Wrap(errors.New(f.Meta()["error"]), errorsx.ReasonPlayback))
	// Synthesis failure falls back to a silent completion of the turn.
	c.recordTurn(false)
	c.reply.Reset()
	c.afterTurn("playback error")
}

func (c *Controller) handleSystem(f frames.SystemFrame) {
	switch f.Name() {
	case "title":
		if c.hooks.OnTitle != nil {
			c.hooks.OnTitle(f.Meta()["title"])
		}
	case "recognizer_error":
		err := errorsx.Wrap(errors.New(f.Meta()["error"]), errorsx.ReasonCode(f.Meta()[frames.MetaReason]))
		if errorsx.Transient(err) {
			c.logger.Debug("recognizer_no_speech")
			return
		}
		c.reportError(err)
	}
}

// afterTurn returns the session to Listening when the mic is still toggled
// on, otherwise to Idle.
func (c *Controller) afterTurn(reason string) {
	if c.micOn {
		c.startRecognizer()
		c.setState(StateListening, reason)
		return
	}
	c.stopLevels()
	c.setState(StateIdle, reason)
}

func (c *Controller) startRecognizer() {
	if c.recognizerLive {
		return
	}
	if err := c.deps.Recognizer.Start(c.ctx); err != nil {
		c.reportError(errorsx.Wrap(err, errorsx.ReasonRecognizerConnect))
		return
	}
	c.recognizerLive = true
}

func (c *Controller) stopRecognizer() {
	if !c.recognizerLive {
		return
	}
	if err := c.deps.Recognizer.Stop(); err != nil {
		c.logger.Warn("recognizer_stop_error", slog.String("error", err.Error()))
	}
	c.recognizerLive = false
}

func (c *Controller) stopLevels() {
	if c.deps.Levels != nil {
		c.deps.Levels.Stop()
	}
}

func (c *Controller) setState(to State, reason string) {
	c.mu.Lock()
	from := c.state
	if from == to {
		c.mu.Unlock()
		return
	}
	if !transitionValid(from, to) {
		c.mu.Unlock()
		err := &InvalidTransitionError{From: from, To: to}
		c.logger.Error("invalid_transition",
			slog.String("error", err.Error()),
			slog.String("reason", reason))
		c.record("invalid_transition", 0, map[string]string{
			"from": from.String(),
			"to":   to.String(),
		})
		return
	}
	c.state = to
	listeners := make([]StateListener, len(c.listeners))
	copy(listeners, c.listeners)
	gen := c.gen
	c.mu.Unlock()

	event := StateChange{
		FromState: from,
		ToState:   to,
		Gen:       gen,
		Timestamp: time.Now(),
		Reason:    reason,
	}
	for _, l := range listeners {
		l.OnStateChange(event)
	}
}

func (c *Controller) recordTurn(interrupted bool) {
	if c.utterance == "" && c.reply.Len() == 0 {
		return
	}
	t := Turn{
		Gen:         c.gen,
		Utterance:   c.utterance,
		Reply:       strings.TrimSpace(c.reply.String()),
		StartedAt:   c.turnStartedAt,
		EndedAt:     time.Now(),
		Interrupted: interrupted,
	}
	c.utterance = ""
	c.mu.Lock()
	c.history = append(c.history, t)
	if len(c.history) > c.cfg.MaxHistory {
		c.history = c.history[len(c.history)-c.cfg.MaxHistory:]
	}
	c.mu.Unlock()
	c.record("turn_complete", time.Since(t.StartedAt).Seconds(), map[string]string{
		"interrupted": boolString(interrupted),
	})
}

// discardStale logs a frame tagged for an abandoned turn. These represent an
// already-handled interruption or cancellation race, not a fault, so they are
// never surfaced.
func (c *Controller) discardStale(source string, gen uint64) {
	c.record("stale_frame_discard", 0, map[string]string{frames.MetaSource: source})
	c.logger.Debug("stale_frame_discarded",
		slog.String("source", source),
		slog.Uint64("frame_gen", gen),
		slog.Uint64("turn_gen", c.gen),
		slog.String("reason_code", string(errorsx.ReasonStaleTurn)))
}

func (c *Controller) reportError(err error) {
	c.logger.Error("turn_error",
		slog.String("reason_code", string(errorsx.Reason(err))),
		slog.String("error", err.Error()))
	c.record("turn_error", 0, map[string]string{
		frames.MetaReason: string(errorsx.Reason(err)),
	})
	if c.hooks.OnError != nil {
		c.hooks.OnError(err)
	}
}

func (c *Controller) record(name string, value float64, tags map[string]string) {
	if c.obs == nil {
		return
	}
	if tags == nil {
		tags = map[string]string{}
	}
	tags["gen"] = strconv.FormatUint(c.gen, 10)
	if c.cfg.SessionID != "" {
		tags[frames.MetaSessionID] = c.cfg.SessionID
	}
	c.obs.RecordEvent(metrics.MetricsEvent{
		Name:  name,
		Time:  time.Now(),
		Value: value,
		Tags:  tags,
	})
}

func boolString(v bool) string {
	if v {
		return "true"
	}
	return "false"
}
