package audiolevel

import (
	"context"
	"encoding/binary"
	"math"
	"sync"
	"time"

	"github.com/voxa-ai/voxa/pkg/frames"
)

// Listener receives level samples at the monitor cadence.
type Listener func(frames.LevelFrame)

type Config struct {
	// Cadence between emitted samples.
	Cadence time.Duration
	// Gain applied to raw RMS before clamping to [0,1]. Speech RMS on a
	// normalized int16 scale rarely exceeds 0.25, so a gain above 1 maps
	// conversational volume into a useful range.
	Gain float64
}

// Monitor normalizes raw microphone amplitude into a 0-1 level and emits a
// continuous sample stream. It is the lone level source for both interrupt
// detection and visualization, so the two can never disagree.
type Monitor struct {
	mu        sync.Mutex
	cfg       Config
	listeners []Listener
	sumSq     float64
	count     int
	last      frames.LevelFrame
	active    bool
	cancel    context.CancelFunc
	done      chan struct{}
}

func NewMonitor(cfg Config) *Monitor {
	if cfg.Cadence <= 0 {
		cfg.Cadence = 50 * time.Millisecond
	}
	if cfg.Gain <= 0 {
		cfg.Gain = 4
	}
	return &Monitor{cfg: cfg}
}

// AddListener registers a sample consumer. Listeners added after Start still
// receive subsequent samples.
func (m *Monitor) AddListener(fn Listener) {
	if fn == nil {
		return
	}
	m.mu.Lock()
	m.listeners = append(m.listeners, fn)
	m.mu.Unlock()
}

func (m *Monitor) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	m.mu.Lock()
	if m.active {
		m.mu.Unlock()
		return
	}
	ctx, m.cancel = context.WithCancel(ctx)
	m.active = true
	m.done = make(chan struct{})
	m.mu.Unlock()
	go m.loop(ctx)
}

// Stop halts sample emission and waits for the loop to exit. A final zero
// sample is emitted so visualization consumers settle.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.active {
		m.mu.Unlock()
		return
	}
	m.active = false
	cancel := m.cancel
	done := m.done
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	<-done
	m.emit(frames.NewLevelFrame(0, 0, time.Now()))
}

// Write feeds raw 16-bit little-endian PCM into the running RMS window.
// Odd trailing bytes are ignored.
func (m *Monitor) Write(pcm []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := 0; i+1 < len(pcm); i += 2 {
		s := float64(int16(binary.LittleEndian.Uint16(pcm[i:]))) / 32768
		m.sumSq += s * s
		m.count++
	}
}

// WriteSamples feeds already-decoded PCM samples.
func (m *Monitor) WriteSamples(samples []int16) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range samples {
		s := float64(v) / 32768
		m.sumSq += s * s
		m.count++
	}
}

// Latest returns the most recently emitted sample.
func (m *Monitor) Latest() frames.LevelFrame {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

func (m *Monitor) loop(ctx context.Context) {
	defer close(m.done)
	ticker := time.NewTicker(m.cfg.Cadence)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.emit(frames.NewLevelFrame(0, m.drain(), now))
		}
	}
}

// drain computes the normalized level over the samples accumulated since the
// last tick and resets the window.
func (m *Monitor) drain() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.count == 0 {
		return 0
	}
	rms := math.Sqrt(m.sumSq / float64(m.count))
	m.sumSq = 0
	m.count = 0
	level := rms * m.cfg.Gain
	if level > 1 {
		level = 1
	}
	return level
}

func (m *Monitor) emit(f frames.LevelFrame) {
	m.mu.Lock()
	m.last = f
	listeners := make([]Listener, len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()
	for _, fn := range listeners {
		fn(f)
	}
}
