package playback

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/voxa-ai/voxa/pkg/adapters/tts"
	"github.com/voxa-ai/voxa/pkg/errorsx"
	"github.com/voxa-ai/voxa/pkg/frames"
	"github.com/voxa-ai/voxa/pkg/metrics"
)

type fakeSynth struct {
	mu    sync.Mutex
	calls int
	fails int
	err   error
	clip  tts.Audio
}

func (s *fakeSynth) Name() string { return "fakesynth" }

func (s *fakeSynth) Synthesize(ctx context.Context, text string) (tts.Audio, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.fails > 0 {
		s.fails--
		return tts.Audio{}, s.err
	}
	if s.err != nil && s.fails == 0 && len(s.clip.PCM) == 0 {
		return tts.Audio{}, s.err
	}
	return s.clip, nil
}

type fakePlayer struct {
	mu      sync.Mutex
	playing bool
	stops   int
	playErr error
	block   time.Duration
	release chan struct{}
}

func (p *fakePlayer) Name() string { return "fakeplayer" }

func (p *fakePlayer) Play(ctx context.Context, clip tts.Audio) error {
	p.mu.Lock()
	p.playing = true
	rel := p.release
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.playing = false
		p.mu.Unlock()
	}()
	if p.playErr != nil {
		return p.playErr
	}
	if rel != nil {
		select {
		case <-rel:
		case <-ctx.Done():
			return ctx.Err()
		}
		return nil
	}
	select {
	case <-time.After(p.block):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *fakePlayer) Stop() {
	p.mu.Lock()
	p.stops++
	p.mu.Unlock()
}

func (p *fakePlayer) stopCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stops
}

type captureObserver struct {
	mu     sync.Mutex
	events []metrics.MetricsEvent
}

func (o *captureObserver) RecordEvent(ev metrics.MetricsEvent) {
	o.mu.Lock()
	o.events = append(o.events, ev)
	o.mu.Unlock()
}

func (o *captureObserver) snapshot() []metrics.MetricsEvent {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]metrics.MetricsEvent, len(o.events))
	copy(out, o.events)
	return out
}

func shortClip() tts.Audio {
	return tts.Audio{PCM: make([]byte, 3200), SampleRate: 16000, Channels: 1}
}

func waitFrame(t *testing.T, ch <-chan frames.Frame) (frames.ControlFrame, bool) {
	t.Helper()
	select {
	case f, ok := <-ch:
		if !ok {
			return frames.ControlFrame{}, false
		}
		cf, isControl := f.(frames.ControlFrame)
		if !isControl {
			t.Fatalf("unexpected frame %#v", f)
		}
		return cf, true
	case <-time.After(2 * time.Second):
		t.Fatalf("no frame delivered")
	}
	return frames.ControlFrame{}, false
}

func TestSpeakCompletesWithDone(t *testing.T) {
	synth := &fakeSynth{clip: shortClip()}
	player := &fakePlayer{block: 10 * time.Millisecond}
	c := NewController(synth, player, nil)

	ch, err := c.Speak(context.Background(), "hello")
	if err != nil {
		t.Fatalf("speak: %v", err)
	}
	cf, ok := waitFrame(t, ch)
	if !ok || cf.Code() != frames.ControlPlaybackDone {
		t.Fatalf("frame = %#v ok=%v", cf, ok)
	}
	if _, open := <-ch; open {
		t.Fatalf("channel not closed after terminal frame")
	}
}

func TestSpeakSynthFailureReturnsError(t *testing.T) {
	synth := &fakeSynth{err: errors.New("voice not found")}
	player := &fakePlayer{}
	c := NewController(synth, player, nil)

	_, err := c.Speak(context.Background(), "hello")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !errorsx.HasReason(err, errorsx.ReasonSynthesis) {
		t.Fatalf("reason = %s", errorsx.Reason(err))
	}
}

func TestSpeakSynthRetriesTransientFailure(t *testing.T) {
	synth := &fakeSynth{fails: 1, err: errors.New("tls handshake"), clip: shortClip()}
	player := &fakePlayer{block: time.Millisecond}
	c := NewController(synth, player, nil)
	c.retry.Backoff = time.Millisecond

	ch, err := c.Speak(context.Background(), "hello")
	if err != nil {
		t.Fatalf("speak after retry: %v", err)
	}
	waitFrame(t, ch)
	synth.mu.Lock()
	calls := synth.calls
	synth.mu.Unlock()
	if calls != 2 {
		t.Fatalf("synth calls = %d, want 2", calls)
	}
}

func TestSpeakPlayerErrorEmitsPlaybackError(t *testing.T) {
	synth := &fakeSynth{clip: shortClip()}
	player := &fakePlayer{playErr: errors.New("device lost")}
	c := NewController(synth, player, nil)

	ch, err := c.Speak(context.Background(), "hello")
	if err != nil {
		t.Fatalf("speak: %v", err)
	}
	cf, ok := waitFrame(t, ch)
	if !ok || cf.Code() != frames.ControlPlaybackError {
		t.Fatalf("frame = %#v ok=%v", cf, ok)
	}
	if cf.Meta()["error"] != "device lost" {
		t.Fatalf("error meta = %q", cf.Meta()["error"])
	}
}

func TestStopSuppressesCompletionFrame(t *testing.T) {
	synth := &fakeSynth{clip: shortClip()}
	player := &fakePlayer{release: make(chan struct{})}
	c := NewController(synth, player, nil)

	ch, err := c.Speak(context.Background(), "hello")
	if err != nil {
		t.Fatalf("speak: %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	c.Stop()

	if player.stopCount() != 1 {
		t.Fatalf("player stops = %d, want 1", player.stopCount())
	}
	if _, ok := waitFrame(t, ch); ok {
		t.Fatalf("stopped clip emitted a completion frame")
	}
}

func TestStopWithoutActiveClipIsNoop(t *testing.T) {
	c := NewController(&fakeSynth{}, &fakePlayer{}, nil)
	c.Stop()
	c.Stop()
}

func TestMeterPublishesSpectrumAndFinalZero(t *testing.T) {
	clip := tts.Audio{PCM: make([]byte, 32000), SampleRate: 16000, Channels: 1}
	for i := 0; i < len(clip.PCM); i += 2 {
		clip.PCM[i] = 0x00
		clip.PCM[i+1] = 0x30
	}
	synth := &fakeSynth{clip: clip}
	player := &fakePlayer{block: 120 * time.Millisecond}
	an := NewAnalyser(AnalyserConfig{Bins: 4, Cadence: 20 * time.Millisecond}, 16000)
	c := NewController(synth, player, an)

	var mu sync.Mutex
	var published [][]float64
	c.SetBinListener(func(bins []float64) {
		cp := make([]float64, len(bins))
		copy(cp, bins)
		mu.Lock()
		published = append(published, cp)
		mu.Unlock()
	})

	ch, err := c.Speak(context.Background(), "hello")
	if err != nil {
		t.Fatalf("speak: %v", err)
	}
	waitFrame(t, ch)

	mu.Lock()
	defer mu.Unlock()
	if len(published) < 2 {
		t.Fatalf("published %d spectra, want at least 2", len(published))
	}
	last := published[len(published)-1]
	for i, b := range last {
		if b != 0 {
			t.Fatalf("final spectrum bin %d = %f, want 0", i, b)
		}
	}
}

func TestPlaybackEventsCarrySessionTag(t *testing.T) {
	synth := &fakeSynth{clip: shortClip()}
	player := &fakePlayer{block: time.Millisecond}
	c := NewController(synth, player, nil)
	obs := &captureObserver{}
	c.SetObserver(obs)
	c.SetSessionID("sess-42")

	ch, err := c.Speak(context.Background(), "hello")
	if err != nil {
		t.Fatalf("speak: %v", err)
	}
	waitFrame(t, ch)

	events := obs.snapshot()
	if len(events) == 0 {
		t.Fatal("no events recorded")
	}
	for _, ev := range events {
		if ev.Tags[frames.MetaSessionID] != "sess-42" {
			t.Fatalf("event %s session tag = %q", ev.Name, ev.Tags[frames.MetaSessionID])
		}
	}
}

func TestStopZeroesSpectrumBeforeReturning(t *testing.T) {
	samples := tone(1000, 16000, 32000, 0.8)
	clip := tts.Audio{PCM: make([]byte, len(samples)*2), SampleRate: 16000, Channels: 1}
	for i, s := range samples {
		clip.PCM[i*2] = byte(uint16(s))
		clip.PCM[i*2+1] = byte(uint16(s) >> 8)
	}
	synth := &fakeSynth{clip: clip}
	player := &fakePlayer{release: make(chan struct{})}
	an := NewAnalyser(AnalyserConfig{Bins: 4, Cadence: 10 * time.Millisecond}, 16000)
	c := NewController(synth, player, an)

	var mu sync.Mutex
	var published [][]float64
	c.SetBinListener(func(bins []float64) {
		cp := make([]float64, len(bins))
		copy(cp, bins)
		mu.Lock()
		published = append(published, cp)
		mu.Unlock()
	})

	ch, err := c.Speak(context.Background(), "hello")
	if err != nil {
		t.Fatalf("speak: %v", err)
	}

	nonZero := func(bins []float64) bool {
		for _, b := range bins {
			if b != 0 {
				return true
			}
		}
		return false
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		live := len(published) > 0 && nonZero(published[len(published)-1])
		mu.Unlock()
		if live {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("no live spectrum published before stop")
		}
		time.Sleep(time.Millisecond)
	}

	c.Stop()

	mu.Lock()
	atReturn := len(published)
	last := published[atReturn-1]
	mu.Unlock()
	for i, b := range last {
		if b != 0 {
			t.Fatalf("bin %d = %f at Stop return, want zeroed spectrum", i, b)
		}
	}

	if _, ok := waitFrame(t, ch); ok {
		t.Fatalf("stopped clip emitted a completion frame")
	}
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	after := len(published)
	mu.Unlock()
	if after != atReturn {
		t.Fatalf("%d spectra published after Stop returned", after-atReturn)
	}
}

func TestPcmToSamplesDownmixesStereo(t *testing.T) {
	// Left 1000, right 3000 per frame.
	pcm := []byte{0xE8, 0x03, 0xB8, 0x0B, 0xE8, 0x03, 0xB8, 0x0B}
	got := pcmToSamples(pcm, 2)
	if len(got) != 2 || got[0] != 2000 || got[1] != 2000 {
		t.Fatalf("samples = %v", got)
	}
}
