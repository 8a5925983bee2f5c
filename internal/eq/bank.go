// SPDX-License-Identifier: MIT
//
// Package eq implements the graphic equalizer: a parallel bank of Butterworth
// sections whose outputs are weighted by per-band gains and summed.
//
// The band table is built off the audio thread and published with a single
// atomic pointer swap, so Process never sees a half-built table. Gains live in
// a fixed array of atomics and survive reconfiguration.
package eq

import (
	"math"
	"sync/atomic"

	"github.com/cwbudde/algo-vecmath"
)

// MaxBands bounds the number of bands a bank can hold.
const MaxBands = 32

// DefaultFrequencies are the eight band centers used when no table is
// configured.
var DefaultFrequencies = []float64{60, 170, 310, 600, 1000, 3000, 6000, 12000}

type table struct {
	sampleRate float64
	bands      []Band

	// scratch, owned by the processing goroutine
	work []float64
	sum  []float64
}

func (t *table) resetState() {
	for i := range t.bands {
		t.bands[i].reset()
	}
}

// Bank is the parallel filter bank. Configure, SetGain and Reset may be
// called from any goroutine; Process must only be called from one goroutine
// at a time (the audio callback).
type Bank struct {
	table   atomic.Pointer[table]
	gains   [MaxBands]atomic.Uint64
	pending atomic.Bool
	faults  atomic.Uint64
}

// NewBank returns an unconfigured bank with every gain at 0 dB. Until
// Configure succeeds, Process copies its input through unchanged.
func NewBank() *Bank {
	return &Bank{}
}

// Configure designs a new band table for sampleRate and frequencies and
// publishes it atomically. blockSize pre-sizes the scratch buffers so that
// Process does not allocate for blocks up to that length.
//
// Band 0 is a low-pass, the last band a high-pass and every band in between
// a band-pass. On error the previous table stays in effect.
func (b *Bank) Configure(sampleRate float64, frequencies []float64, blockSize int) error {
	if !(sampleRate > 0) || math.IsInf(sampleRate, 0) {
		return configErrorf(sampleRate, "sample rate must be positive")
	}
	n := len(frequencies)
	if n < 2 {
		return configErrorf(sampleRate, "need at least 2 bands, got %d", n)
	}
	if n > MaxBands {
		return configErrorf(sampleRate, "at most %d bands supported, got %d", MaxBands, n)
	}

	t := &table{
		sampleRate: sampleRate,
		bands:      make([]Band, n),
	}
	if blockSize > 0 {
		t.work = make([]float64, blockSize)
		t.sum = make([]float64, blockSize)
	}
	for i, f := range frequencies {
		band, err := designBand(i, n, f, sampleRate)
		if err != nil {
			return err
		}
		t.bands[i] = band
	}

	b.table.Store(t)
	return nil
}

// Configured reports whether a band table is in effect.
func (b *Bank) Configured() bool {
	return b.table.Load() != nil
}

// SampleRate returns the rate of the active table, or 0 if unconfigured.
func (b *Bank) SampleRate() float64 {
	if t := b.table.Load(); t != nil {
		return t.sampleRate
	}
	return 0
}

// Len returns the number of bands in the active table.
func (b *Bank) Len() int {
	if t := b.table.Load(); t != nil {
		return len(t.bands)
	}
	return 0
}

// Bands returns a copy of the active band descriptions.
func (b *Bank) Bands() []Band {
	t := b.table.Load()
	if t == nil {
		return nil
	}
	out := make([]Band, len(t.bands))
	for i := range t.bands {
		// The delay line belongs to Process; copy the design only.
		src := &t.bands[i]
		out[i] = Band{
			Kind:         src.Kind,
			Frequency:    src.Frequency,
			Low:          src.Low,
			High:         src.High,
			Coefficients: src.Coefficients,
		}
	}
	return out
}

// SetGain stores the gain in dB for band index. Indices outside the bank are
// ignored, as are NaN gains. The change is picked up by the next block.
func (b *Bank) SetGain(index int, gainDB float64) {
	if index < 0 || index >= MaxBands || math.IsNaN(gainDB) {
		return
	}
	if t := b.table.Load(); t != nil && index >= len(t.bands) {
		return
	}
	b.gains[index].Store(math.Float64bits(gainDB))
}

// SetGains applies gains[i] to band i for every index both sides have.
func (b *Bank) SetGains(gains []float64) {
	for i, g := range gains {
		b.SetGain(i, g)
	}
}

// Gain returns the stored dB gain of band index.
func (b *Bank) Gain(index int) float64 {
	if index < 0 || index >= MaxBands {
		return 0
	}
	return math.Float64frombits(b.gains[index].Load())
}

// Gains returns the dB gains of every band in the active table.
func (b *Bank) Gains() []float64 {
	n := b.Len()
	out := make([]float64, n)
	for i := range out {
		out[i] = b.Gain(i)
	}
	return out
}

// ApplyPreset looks up name and applies its gains.
func (b *Bank) ApplyPreset(name string) error {
	gains, err := Preset(name)
	if err != nil {
		return err
	}
	b.SetGains(gains)
	return nil
}

// Reset clears every band's delay line before the next block is processed.
func (b *Bank) Reset() {
	b.pending.Store(true)
}

// Faults returns how many blocks produced a non-finite sum and were passed
// through unfiltered.
func (b *Bank) Faults() uint64 {
	return b.faults.Load()
}

// linearGain converts a stored dB gain to an amplitude factor.
func (b *Bank) linearGain(index int) float64 {
	db := math.Float64frombits(b.gains[index].Load())
	if math.IsInf(db, -1) {
		return 0
	}
	return math.Pow(10, db/20)
}

// Process filters src through every band, sums the weighted outputs into
// dst and returns dst resized to len(src). dst may alias src.
//
// If the summed block's peak exceeds 1 the whole block is scaled down so the
// peak is exactly 1. If any sample of the sum is NaN or infinite the block
// is replaced by src, the filter state is cleared and the fault counter is
// incremented.
func (b *Bank) Process(dst, src []float64) []float64 {
	n := len(src)
	if cap(dst) < n {
		dst = make([]float64, n)
	}
	dst = dst[:n]
	if n == 0 {
		return dst
	}

	t := b.table.Load()
	if t == nil {
		copy(dst, src)
		return dst
	}
	if b.pending.CompareAndSwap(true, false) {
		t.resetState()
	}

	if n > len(t.work) {
		t.work = make([]float64, n)
		t.sum = make([]float64, n)
	}
	work := t.work[:n]
	sum := t.sum[:n]
	clear(sum)

	for i := range t.bands {
		copy(work, src)
		t.bands[i].processBlock(work)
		vecmath.ScaleBlock(work, work, b.linearGain(i))
		vecmath.AddBlockInPlace(sum, work)
	}

	peak := 0.0
	for _, v := range sum {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			copy(dst, src)
			t.resetState()
			b.faults.Add(1)
			return dst
		}
		if a := math.Abs(v); a > peak {
			peak = a
		}
	}

	if peak > 1 {
		vecmath.ScaleBlock(dst, sum, 1/peak)
	} else {
		copy(dst, sum)
	}
	return dst
}

// Response returns the linear magnitude of the combined bank (weighted sum
// of all bands at their current gains) at freqHz. Normalization is not
// included because it depends on the signal.
func (b *Bank) Response(freqHz float64) float64 {
	t := b.table.Load()
	if t == nil {
		return 1
	}
	w := 2 * math.Pi * freqHz / t.sampleRate
	var re, im float64
	for i := range t.bands {
		g := b.linearGain(i)
		r, m := t.bands[i].complexResponse(w)
		re += g * r
		im += g * m
	}
	return math.Hypot(re, im)
}

// Frequencies returns the configured band frequencies.
func (b *Bank) Frequencies() []float64 {
	t := b.table.Load()
	if t == nil {
		return nil
	}
	out := make([]float64, len(t.bands))
	for i := range t.bands {
		out[i] = t.bands[i].Frequency
	}
	return out
}
