package mock

import (
	"context"
	"sync"
	"time"

	"github.com/voxa-ai/voxa/pkg/adapters/tts"
	"github.com/voxa-ai/voxa/pkg/playback"
)

type PlayerConfig struct {
	// Speed scales elapsed playback time. 10 plays a clip in a tenth of
	// its real duration; 0 means real time.
	Speed float64
}

// Player simulates an audio device by sleeping for the clip duration.
type Player struct {
	cfg    PlayerConfig
	mu     sync.Mutex
	cancel context.CancelFunc
	played []tts.Audio
	stops  int
}

func NewPlayer(cfg PlayerConfig) *Player {
	if cfg.Speed <= 0 {
		cfg.Speed = 1
	}
	return &Player{cfg: cfg}
}

func (p *Player) Name() string { return "mock_player" }

func (p *Player) Play(ctx context.Context, clip tts.Audio) error {
	ctx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.cancel = cancel
	p.played = append(p.played, clip)
	p.mu.Unlock()
	defer cancel()

	rate := clip.SampleRate
	if rate <= 0 {
		rate = 16000
	}
	d := time.Duration(float64(clip.Samples()) / float64(rate) / p.cfg.Speed * float64(time.Second))
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Player) Stop() {
	p.mu.Lock()
	p.stops++
	cancel := p.cancel
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Played returns every clip handed to the player.
func (p *Player) Played() []tts.Audio {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]tts.Audio, len(p.played))
	copy(out, p.played)
	return out
}

func (p *Player) StopCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stops
}

var _ playback.Player = (*Player)(nil)
