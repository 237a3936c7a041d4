package playback

import (
	"math"
	"testing"
)

func tone(freq float64, sampleRate, n int, amp float64) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(amp * 32767 * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate)))
	}
	return out
}

func TestAnalyzeSilenceIsZero(t *testing.T) {
	a := NewAnalyser(AnalyserConfig{Bins: 8}, 16000)
	bins := a.Analyze(make([]int16, 512))
	for i, b := range bins {
		if b != 0 {
			t.Fatalf("bin %d = %f for silence", i, b)
		}
	}
}

func TestAnalyzeToneConcentratesEnergy(t *testing.T) {
	a := NewAnalyser(AnalyserConfig{Bins: 8, MinFreq: 100, MaxFreq: 6400}, 16000)
	bins := a.Analyze(tone(1000, 16000, 1024, 0.8))

	peak, peakVal := 0, 0.0
	var total float64
	for i, b := range bins {
		total += b
		if b > peakVal {
			peak, peakVal = i, b
		}
	}
	if peakVal == 0 {
		t.Fatalf("no energy detected in tone")
	}
	// 1 kHz sits in the upper-middle of a log-spaced 100-6400 Hz split.
	if peak == 0 || peak == len(bins)-1 {
		t.Fatalf("peak in edge bin %d: %v", peak, bins)
	}
	if peakVal < total/float64(len(bins))*2 {
		t.Fatalf("energy not concentrated: peak %f of total %f", peakVal, total)
	}
}

func TestAnalyzeClampsToOne(t *testing.T) {
	a := NewAnalyser(AnalyserConfig{Bins: 4, Gain: 100}, 16000)
	bins := a.Analyze(tone(440, 16000, 2048, 1))
	for i, b := range bins {
		if b > 1 {
			t.Fatalf("bin %d = %f exceeds 1", i, b)
		}
	}
}

func TestAnalyzeEmptyWindow(t *testing.T) {
	a := NewAnalyser(AnalyserConfig{}, 16000)
	bins := a.Analyze(nil)
	if len(bins) != DefaultBins {
		t.Fatalf("bin count = %d, want %d", len(bins), DefaultBins)
	}
}

func TestMaxFreqClampedToNyquist(t *testing.T) {
	a := NewAnalyser(AnalyserConfig{MaxFreq: 40000}, 16000)
	if a.cfg.MaxFreq != 8000 {
		t.Fatalf("max freq = %f, want nyquist 8000", a.cfg.MaxFreq)
	}
}
