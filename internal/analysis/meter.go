// SPDX-License-Identifier: MIT
package analysis

import (
	"math"
	"sync/atomic"

	"github.com/tphakala/simd/f64"
)

// Meter tracks the RMS and absolute peak of the most recent block.
type Meter struct {
	rms  atomic.Uint64
	peak atomic.Uint64
}

var _ Processor = (*Meter)(nil)
var _ Resetter = (*Meter)(nil)

// Process stores the level of block. Empty blocks leave the last level.
func (m *Meter) Process(block []float64) {
	if len(block) == 0 {
		return
	}
	m.rms.Store(math.Float64bits(calculateRMS(block)))

	var peak float64
	for _, v := range block {
		if a := math.Abs(v); a > peak {
			peak = a
		}
	}
	m.peak.Store(math.Float64bits(peak))
}

// Level returns the RMS and peak of the last processed block.
func (m *Meter) Level() (rms, peak float64) {
	return math.Float64frombits(m.rms.Load()), math.Float64frombits(m.peak.Load())
}

// Reset drops the levels back to silence.
func (m *Meter) Reset() {
	m.rms.Store(0)
	m.peak.Store(0)
}

// calculateRMS calculates the Root Mean Square energy of the buffer.
func calculateRMS(buffer []float64) float64 {
	if len(buffer) == 0 {
		return 0.0
	}
	meanSquare := f64.DotProduct(buffer, buffer) / float64(len(buffer))
	return math.Sqrt(meanSquare)
}

// Decibels converts a linear level to dBFS, flooring silence at -120.
func Decibels(level float64) float64 {
	if level <= 1e-6 {
		return -120
	}
	return 20 * math.Log10(level)
}
