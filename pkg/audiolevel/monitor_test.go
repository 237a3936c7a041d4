package audiolevel

import (
	"context"
	"encoding/binary"
	"sync"
	"testing"
	"time"

	"github.com/voxa-ai/voxa/pkg/frames"
)

func pcmOf(amplitude int16, n int) []byte {
	out := make([]byte, n*2)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(amplitude))
	}
	return out
}

func TestMonitorNormalizesToUnitRange(t *testing.T) {
	m := NewMonitor(Config{Cadence: 10 * time.Millisecond, Gain: 4})

	var mu sync.Mutex
	var samples []frames.LevelFrame
	m.AddListener(func(f frames.LevelFrame) {
		mu.Lock()
		samples = append(samples, f)
		mu.Unlock()
	})

	m.Start(context.Background())
	m.Write(pcmOf(16384, 800)) // half scale, rms 0.5, gain 4 clamps to 1
	time.Sleep(30 * time.Millisecond)
	m.Stop()

	mu.Lock()
	defer mu.Unlock()
	if len(samples) == 0 {
		t.Fatalf("expected samples emitted")
	}
	var peak float64
	for _, s := range samples {
		if s.Value() < 0 || s.Value() > 1 {
			t.Fatalf("level out of range: %f", s.Value())
		}
		if s.Value() > peak {
			peak = s.Value()
		}
	}
	if peak != 1 {
		t.Fatalf("expected clamped peak of 1, got %f", peak)
	}
	if last := samples[len(samples)-1]; last.Value() != 0 {
		t.Fatalf("expected final zero sample after Stop, got %f", last.Value())
	}
}

func TestMonitorSilenceEmitsZero(t *testing.T) {
	m := NewMonitor(Config{Cadence: 10 * time.Millisecond})

	var mu sync.Mutex
	nonZero := false
	m.AddListener(func(f frames.LevelFrame) {
		mu.Lock()
		if f.Value() != 0 {
			nonZero = true
		}
		mu.Unlock()
	})

	m.Start(context.Background())
	time.Sleep(35 * time.Millisecond)
	m.Stop()

	mu.Lock()
	defer mu.Unlock()
	if nonZero {
		t.Fatalf("silence must produce zero levels")
	}
}

func TestMonitorLatestTracksEmission(t *testing.T) {
	m := NewMonitor(Config{Cadence: 10 * time.Millisecond, Gain: 1})
	m.Start(context.Background())
	m.Write(pcmOf(8192, 400))
	time.Sleep(25 * time.Millisecond)
	if m.Latest().At().IsZero() {
		t.Fatalf("expected Latest to carry a timestamp")
	}
	m.Stop()
}
