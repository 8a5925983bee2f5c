// SPDX-License-Identifier: MIT
package analysis

import (
	"fmt"
	"sync"
	"sync/atomic"

	"eqplayer/internal/fft"

	"github.com/tphakala/simd/f64"
)

// SpectrumConfig controls how magnitude spectra become display bars.
type SpectrumConfig struct {
	Bars          int        // number of display bars
	Smoothing     float64    // weight of the previous bar height, in [0, 1)
	DisplayHeight float64    // bars are clamped to DisplayHeight-10
	DisplayGain   float64    // multiplier applied to the mean bucket magnitude
	PeakHoldTicks int        // blocks a peak is held before it starts falling
	PeakDecay     float64    // amount a released peak falls per block
	Window        fft.Window // taper applied before the transform
}

// DefaultSpectrumConfig returns the classic 32-bar visualizer settings.
func DefaultSpectrumConfig() SpectrumConfig {
	return SpectrumConfig{
		Bars:          32,
		Smoothing:     0.8,
		DisplayHeight: 100,
		DisplayGain:   1000,
		PeakHoldTicks: 10,
		PeakDecay:     2,
		Window:        fft.None,
	}
}

// Validate reports settings the analyzer cannot work with.
func (c SpectrumConfig) Validate() error {
	switch {
	case c.Bars < 1:
		return fmt.Errorf("spectrum: bars must be >= 1, got %d", c.Bars)
	case c.Smoothing < 0 || c.Smoothing >= 1:
		return fmt.Errorf("spectrum: smoothing must be in [0, 1), got %v", c.Smoothing)
	case c.DisplayHeight <= 10:
		return fmt.Errorf("spectrum: display height must be > 10, got %v", c.DisplayHeight)
	case c.DisplayGain <= 0:
		return fmt.Errorf("spectrum: display gain must be positive, got %v", c.DisplayGain)
	case c.PeakHoldTicks < 0 || c.PeakDecay < 0:
		return fmt.Errorf("spectrum: peak hold (%d) and decay (%v) must not be negative", c.PeakHoldTicks, c.PeakDecay)
	}
	return nil
}

// Spectrum buckets the magnitude spectrum of each block into display bars
// with exponential smoothing and falling peak markers.
//
// Blocks shorter than the frame size (the prepared block size, or the
// longest block seen) are zero-padded to it, so the bar layout stays fixed
// and a track's final partial block reuses the same transform.
//
// Analyze/Process run on the audio callback. Bars, Peaks and Reset may be
// called from any goroutine.
type Spectrum struct {
	cfg      SpectrumConfig
	analyzer *fft.Analyzer
	maxBar   float64

	// working state, owned by the processing goroutine
	frame   []float64 // zero-padded copy of short blocks
	mags    []float64
	raw     []float64
	bars    []float64
	peaks   []float64
	counter []int

	pending atomic.Bool

	mu       sync.Mutex
	pubBars  []float64
	pubPeaks []float64
}

var _ Processor = (*Spectrum)(nil)
var _ Resetter = (*Spectrum)(nil)
var _ Preparer = (*Spectrum)(nil)

// NewSpectrum returns an analyzer for cfg. The config is assumed valid; see
// SpectrumConfig.Validate.
func NewSpectrum(cfg SpectrumConfig) *Spectrum {
	n := cfg.Bars
	return &Spectrum{
		cfg:      cfg,
		analyzer: fft.NewAnalyzer(cfg.Window),
		maxBar:   cfg.DisplayHeight - 10,
		raw:      make([]float64, n),
		bars:     make([]float64, n),
		peaks:    make([]float64, n),
		counter:  make([]int, n),
		pubBars:  make([]float64, n),
		pubPeaks: make([]float64, n),
	}
}

// Len returns the number of bars.
func (s *Spectrum) Len() int {
	return s.cfg.Bars
}

// Config returns the settings in use.
func (s *Spectrum) Config() SpectrumConfig {
	return s.cfg
}

// Prepare sizes the FFT plan and magnitude scratch for blockSize so that the
// first callback does not allocate.
func (s *Spectrum) Prepare(blockSize int) {
	if blockSize <= len(s.frame) {
		return
	}
	s.frame = make([]float64, blockSize)
	s.analyzer.Prepare(blockSize)
	if half := blockSize / 2; cap(s.mags) < half {
		s.mags = make([]float64, half)
	}
}

// Process implements Processor.
func (s *Spectrum) Process(block []float64) {
	s.Analyze(block)
}

// Analyze updates the bars from block and returns them. The returned slice
// belongs to the analyzer and is overwritten by the next call.
func (s *Spectrum) Analyze(block []float64) []float64 {
	if s.pending.CompareAndSwap(true, false) {
		clear(s.bars)
		clear(s.peaks)
		clear(s.counter)
	}

	if n := len(block); n > len(s.frame) {
		s.Prepare(n)
	} else if n < len(s.frame) {
		copy(s.frame, block)
		clear(s.frame[n:])
		block = s.frame
	}
	s.mags = s.analyzer.Magnitudes(s.mags, block)
	s.bucket(s.raw, s.mags)

	smooth := s.cfg.Smoothing
	for i, raw := range s.raw {
		s.bars[i] = smooth*s.bars[i] + (1-smooth)*raw

		if raw > s.peaks[i] {
			s.peaks[i] = raw
			s.counter[i] = 0
			continue
		}
		s.counter[i]++
		if s.counter[i] > s.cfg.PeakHoldTicks {
			s.peaks[i] = max(0, s.peaks[i]-s.cfg.PeakDecay)
		}
	}

	s.mu.Lock()
	copy(s.pubBars, s.bars)
	copy(s.pubPeaks, s.peaks)
	s.mu.Unlock()

	return s.bars
}

// bucket splits mags into len(dst) contiguous buckets of equal width, the
// last absorbing the remainder, and stores each bucket's scaled, clamped mean.
// Buckets that start beyond the data are 0.
func (s *Spectrum) bucket(dst, mags []float64) {
	n := len(dst)
	width := max(1, len(mags)/n)

	for i := range dst {
		start := i * width
		end := start + width
		if i == n-1 {
			end = len(mags)
		}
		if start >= len(mags) || end <= start {
			dst[i] = 0
			continue
		}
		mean := f64.Sum(mags[start:end]) / float64(end-start)
		dst[i] = min(max(mean*s.cfg.DisplayGain, 0), s.maxBar)
	}
}

// Reset zeroes every bar, peak and hold counter. The published snapshot is
// cleared immediately; the working state at the start of the next block.
func (s *Spectrum) Reset() {
	s.pending.Store(true)
	s.mu.Lock()
	clear(s.pubBars)
	clear(s.pubPeaks)
	s.mu.Unlock()
}

// Bars copies the latest smoothed bar heights into dst and returns it.
func (s *Spectrum) Bars(dst []float64) []float64 {
	return s.snapshot(dst, s.pubBars)
}

// Peaks copies the latest peak-hold heights into dst and returns it.
func (s *Spectrum) Peaks(dst []float64) []float64 {
	return s.snapshot(dst, s.pubPeaks)
}

func (s *Spectrum) snapshot(dst, src []float64) []float64 {
	if cap(dst) < len(src) {
		dst = make([]float64, len(src))
	}
	dst = dst[:len(src)]
	s.mu.Lock()
	copy(dst, src)
	s.mu.Unlock()
	return dst
}
