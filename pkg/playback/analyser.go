package playback

import (
	"math"
	"time"
)

// AnalyserConfig tunes the output spectrum analyser.
type AnalyserConfig struct {
	// Bins is the number of frequency bands reported per sample.
	Bins int
	// Cadence is how often bins are published during playback.
	Cadence time.Duration
	// MinFreq and MaxFreq bound the analysed band in Hz. MaxFreq is clamped
	// to the Nyquist frequency of the clip.
	MinFreq float64
	MaxFreq float64
	// Gain scales bin magnitudes before clamping to [0,1].
	Gain float64
}

const (
	DefaultBins    = 16
	DefaultCadence = 50 * time.Millisecond
)

func (c AnalyserConfig) withDefaults() AnalyserConfig {
	if c.Bins <= 0 {
		c.Bins = DefaultBins
	}
	if c.Cadence <= 0 {
		c.Cadence = DefaultCadence
	}
	if c.MinFreq <= 0 {
		c.MinFreq = 80
	}
	if c.MaxFreq <= c.MinFreq {
		c.MaxFreq = 8000
	}
	if c.Gain <= 0 {
		c.Gain = 4
	}
	return c
}

// BinListener receives one normalized spectrum per cadence tick. Values are
// in [0,1], low frequencies first. Invoked from the playback goroutine.
type BinListener func(bins []float64)

// Analyser computes per-band magnitudes from a PCM window using the Goertzel
// algorithm, one evaluation per band. Band centers are log-spaced so speech
// energy spreads across the display instead of piling into the bottom bins.
type Analyser struct {
	cfg    AnalyserConfig
	coeffs []float64
}

func NewAnalyser(cfg AnalyserConfig, sampleRate int) *Analyser {
	cfg = cfg.withDefaults()
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	nyquist := float64(sampleRate) / 2
	if cfg.MaxFreq > nyquist {
		cfg.MaxFreq = nyquist
	}

	a := &Analyser{cfg: cfg, coeffs: make([]float64, cfg.Bins)}
	ratio := math.Log(cfg.MaxFreq / cfg.MinFreq)
	for i := 0; i < cfg.Bins; i++ {
		frac := (float64(i) + 0.5) / float64(cfg.Bins)
		freq := cfg.MinFreq * math.Exp(ratio*frac)
		a.coeffs[i] = 2 * math.Cos(2*math.Pi*freq/float64(sampleRate))
	}
	return a
}

func (a *Analyser) Cadence() time.Duration { return a.cfg.Cadence }

// Analyze returns one normalized magnitude per band for the window.
func (a *Analyser) Analyze(window []int16) []float64 {
	bins := make([]float64, a.cfg.Bins)
	if len(window) == 0 {
		return bins
	}
	n := float64(len(window))
	for i, coeff := range a.coeffs {
		var s1, s2 float64
		for _, sample := range window {
			s0 := float64(sample)/32768 + coeff*s1 - s2
			s2 = s1
			s1 = s0
		}
		power := s1*s1 + s2*s2 - coeff*s1*s2
		mag := math.Sqrt(math.Max(power, 0)) / n * a.cfg.Gain
		if mag > 1 {
			mag = 1
		}
		bins[i] = mag
	}
	return bins
}
