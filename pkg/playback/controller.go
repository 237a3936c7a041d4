package playback

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/voxa-ai/voxa/pkg/adapters/tts"
	"github.com/voxa-ai/voxa/pkg/errorsx"
	"github.com/voxa-ai/voxa/pkg/frames"
	"github.com/voxa-ai/voxa/pkg/logging"
	"github.com/voxa-ai/voxa/pkg/metrics"
	"github.com/voxa-ai/voxa/pkg/resilience"
)

// Player is an audio output device. Play blocks until the clip finishes or
// the context is cancelled; Stop silences output before it returns and makes
// any in-flight Play return promptly.
type Player interface {
	Name() string
	Play(ctx context.Context, clip tts.Audio) error
	Stop()
}

// Controller speaks assistant replies: it synthesizes the text to one PCM
// clip, plays it, and publishes spectrum samples for visualization while
// audio is audible. One clip is active at a time; Speak while a clip is
// active stops it first.
type Controller struct {
	synth  tts.Synthesizer
	player Player
	retry  resilience.RetryPolicy
	an     *Analyser

	mu       sync.Mutex
	active   *clipSession
	listener BinListener

	sessionID string
	obs       metrics.Observer
	logger    *slog.Logger
}

// clipSession tracks one playing clip. teardown runs exactly once whether
// the clip ends naturally, errors, or is stopped.
type clipSession struct {
	cancel    context.CancelFunc
	meterStop chan struct{}
	meterDone chan struct{}
	downOnce  sync.Once
	stopped   bool
	mu        sync.Mutex
}

func (s *clipSession) markStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	was := s.stopped
	s.stopped = true
	return !was
}

func (s *clipSession) wasStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

func NewController(synth tts.Synthesizer, player Player, an *Analyser) *Controller {
	if an == nil {
		an = NewAnalyser(AnalyserConfig{}, 16000)
	}
	return &Controller{
		synth:  synth,
		player: player,
		retry:  resilience.NewRetryPolicy(2, 200*time.Millisecond),
		an:     an,
		obs:    metrics.NoopObserver{},
		logger: logging.NewComponentLogger(slog.Default(), "playback_controller"),
	}
}

func (c *Controller) SetObserver(obs metrics.Observer) {
	if obs != nil {
		c.obs = obs
	}
}

func (c *Controller) SetLogger(logger *slog.Logger) {
	if logger != nil {
		c.logger = logging.NewComponentLogger(logger, "playback_controller")
	}
}

// SetSessionID tags every recorded metric with the owning session so
// per-session observers can separate concurrent conversations.
func (c *Controller) SetSessionID(id string) {
	c.sessionID = id
}

// SetBinListener installs the spectrum consumer. A zeroed spectrum is
// published once when playback goes silent.
func (c *Controller) SetBinListener(fn BinListener) {
	c.mu.Lock()
	c.listener = fn
	c.mu.Unlock()
}

// Speak synthesizes and plays text. The returned channel delivers exactly
// one playback_done or playback_error control frame and is then closed, or
// nothing at all when the clip is stopped.
func (c *Controller) Speak(ctx context.Context, text string) (<-chan frames.Frame, error) {
	var clip tts.Audio
	synthStart := time.Now()
	err := c.retry.Do(func() error {
		if ctx.Err() != nil {
			return resilience.Permanent(ctx.Err())
		}
		var serr error
		clip, serr = c.synth.Synthesize(ctx, text)
		return serr
	})
	if err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonSynthesis)
	}
	c.record("synth_complete", time.Since(synthStart).Seconds(), nil)

	c.Stop()

	playCtx, cancel := context.WithCancel(ctx)
	sess := &clipSession{
		cancel:    cancel,
		meterStop: make(chan struct{}),
		meterDone: make(chan struct{}),
	}
	c.mu.Lock()
	c.active = sess
	c.mu.Unlock()

	out := make(chan frames.Frame, 1)
	go c.run(playCtx, sess, clip, out)
	return out, nil
}

// Stop halts the active clip. Output is silent, the spectrum feed is zeroed
// and the session is released by the time Stop returns, so a following Speak
// never races a half-torn-down clip.
func (c *Controller) Stop() {
	c.mu.Lock()
	sess := c.active
	c.active = nil
	c.mu.Unlock()
	if sess == nil {
		return
	}
	if sess.markStopped() {
		c.player.Stop()
		sess.cancel()
	}
	c.teardown(sess)
}

// teardown halts the spectrum feed and publishes the zeroed bins exactly
// once per clip. It returns only after the meter goroutine has exited, so
// the zero is the last spectrum a listener sees for this clip and can never
// interleave after a newer clip's bins.
func (c *Controller) teardown(sess *clipSession) {
	sess.downOnce.Do(func() {
		close(sess.meterStop)
		<-sess.meterDone
		if fn := c.binListener(); fn != nil {
			fn(make([]float64, c.an.cfg.Bins))
		}
	})
}

func (c *Controller) run(ctx context.Context, sess *clipSession, clip tts.Audio, out chan<- frames.Frame) {
	defer close(out)

	go func() {
		defer close(sess.meterDone)
		c.meter(ctx, clip, sess.meterStop)
	}()

	started := time.Now()
	err := c.player.Play(ctx, clip)
	c.teardown(sess)

	c.mu.Lock()
	if c.active == sess {
		c.active = nil
	}
	c.mu.Unlock()

	if sess.wasStopped() {
		// The stop path owns the state transition; a completion frame here
		// would race it.
		return
	}
	if err != nil {
		c.logger.Error("playback_failed", slog.String("error", err.Error()))
		c.record("playback_fail", 0, nil)
		out <- frames.NewControlFrame(0, frames.ControlPlaybackError, map[string]string{
			frames.MetaReason: string(errorsx.ReasonPlayback),
			"error":           err.Error(),
		})
		return
	}
	c.record("playback_audible", time.Since(started).Seconds(), nil)
	out <- frames.NewControlFrame(0, frames.ControlPlaybackDone, nil)
}

// meter walks a virtual playhead through the clip and publishes one spectrum
// per cadence tick until playback ends.
func (c *Controller) meter(ctx context.Context, clip tts.Audio, stop <-chan struct{}) {
	listener := c.binListener()
	if listener == nil {
		return
	}
	samples := pcmToSamples(clip.PCM, clip.Channels)
	rate := clip.SampleRate
	if rate <= 0 {
		rate = 16000
	}

	ticker := time.NewTicker(c.an.Cadence())
	defer ticker.Stop()
	started := time.Now()
	windowLen := rate / 20

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			head := int(time.Since(started).Seconds() * float64(rate))
			if head >= len(samples) {
				continue
			}
			end := head + windowLen
			if end > len(samples) {
				end = len(samples)
			}
			listener(c.an.Analyze(samples[head:end]))
		}
	}
}

func (c *Controller) binListener() BinListener {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.listener
}

func (c *Controller) record(name string, value float64, tags map[string]string) {
	if tags == nil {
		tags = map[string]string{}
	}
	tags["component"] = "playback"
	tags["provider"] = c.synth.Name()
	if c.sessionID != "" {
		tags[frames.MetaSessionID] = c.sessionID
	}
	c.obs.RecordEvent(metrics.MetricsEvent{
		Name:  name,
		Time:  time.Now(),
		Value: value,
		Tags:  tags,
	})
}

// pcmToSamples downmixes interleaved 16-bit little-endian PCM to mono.
func pcmToSamples(pcm []byte, channels int) []int16 {
	if channels <= 0 {
		channels = 1
	}
	frameCount := len(pcm) / 2 / channels
	out := make([]int16, frameCount)
	for i := 0; i < frameCount; i++ {
		var sum int
		for ch := 0; ch < channels; ch++ {
			off := (i*channels + ch) * 2
			sum += int(int16(uint16(pcm[off]) | uint16(pcm[off+1])<<8))
		}
		out[i] = int16(sum / channels)
	}
	return out
}
