// SPDX-License-Identifier: MIT
//
// Package fft computes magnitude spectra of real blocks. Plans for prepared
// block lengths are kept for the analyzer's lifetime; any other length shares
// a single spare plan that is rebuilt whenever the length changes.
package fft

import (
	"fmt"
	"strings"

	"github.com/cwbudde/algo-vecmath"
	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
)

// Window selects the taper applied before the transform.
type Window int

const (
	None Window = iota
	Hann
	Hamming
	Blackman
	BlackmanNuttall
	BartlettHann
	Lanczos
	Nuttall
)

var windowNames = map[Window]string{
	None:            "none",
	Hann:            "hann",
	Hamming:         "hamming",
	Blackman:        "blackman",
	BlackmanNuttall: "blackmannuttall",
	BartlettHann:    "bartletthann",
	Lanczos:         "lanczos",
	Nuttall:         "nuttall",
}

func (w Window) String() string {
	if name, ok := windowNames[w]; ok {
		return name
	}
	return fmt.Sprintf("window(%d)", int(w))
}

// ParseWindow converts a case-insensitive name into a Window. The empty
// string and "rectangular" both mean None.
func ParseWindow(name string) (Window, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	switch key {
	case "", "rectangular":
		return None, nil
	case "hanning":
		return Hann, nil
	}
	for w, n := range windowNames {
		if n == key {
			return w, nil
		}
	}
	return None, fmt.Errorf("unknown FFT window function name: '%s'", name)
}

// coefficients returns the taper for n points, or nil for None.
func (w Window) coefficients(n int) []float64 {
	if w == None {
		return nil
	}
	coeffs := make([]float64, n)
	for i := range coeffs {
		coeffs[i] = 1.0
	}
	switch w {
	case Hann:
		window.Hann(coeffs)
	case Hamming:
		window.Hamming(coeffs)
	case Blackman:
		window.Blackman(coeffs)
	case BlackmanNuttall:
		window.BlackmanNuttall(coeffs)
	case BartlettHann:
		window.BartlettHann(coeffs)
	case Lanczos:
		window.Lanczos(coeffs)
	case Nuttall:
		window.Nuttall(coeffs)
	default:
		return nil
	}
	return coeffs
}

// plan holds the pre-allocated buffers for one block length.
type plan struct {
	fft    *fourier.FFT
	input  []float64    // windowed copy of the block
	coeffs []complex128 // n/2+1 complex outputs
	re, im []float64    // split first n/2 coefficients
	window []float64
}

func newPlan(n int, w Window) *plan {
	return &plan{
		fft:    fourier.NewFFT(n),
		input:  make([]float64, n),
		coeffs: make([]complex128, n/2+1),
		re:     make([]float64, n/2),
		im:     make([]float64, n/2),
		window: w.coefficients(n),
	}
}

// Analyzer turns real blocks into magnitude spectra. It is not safe for
// concurrent use; the owner (normally the audio callback) serializes calls.
type Analyzer struct {
	window Window
	plans  map[int]*plan // prepared lengths
	spare  *plan         // last unprepared length
}

// NewAnalyzer returns an analyzer that tapers every block with w.
func NewAnalyzer(w Window) *Analyzer {
	return &Analyzer{
		window: w,
		plans:  make(map[int]*plan),
	}
}

// Window returns the taper in use.
func (a *Analyzer) Window() Window {
	return a.window
}

// Prepare builds the plan for blocks of n samples ahead of time and keeps it.
func (a *Analyzer) Prepare(n int) {
	if n < 2 {
		return
	}
	if _, ok := a.plans[n]; ok {
		return
	}
	if a.spare != nil && len(a.spare.input) == n {
		a.plans[n], a.spare = a.spare, nil
		return
	}
	a.plans[n] = newPlan(n, a.window)
}

// Plans returns the number of plans held, the spare included.
func (a *Analyzer) Plans() int {
	if a.spare != nil {
		return len(a.plans) + 1
	}
	return len(a.plans)
}

func (a *Analyzer) plan(n int) *plan {
	if p, ok := a.plans[n]; ok {
		return p
	}
	if a.spare == nil || len(a.spare.input) != n {
		a.spare = newPlan(n, a.window)
	}
	return a.spare
}

// Magnitudes writes |X[k]| for k in [0, len(block)/2) into dst and returns
// it resized. Blocks shorter than two samples yield an empty result.
func (a *Analyzer) Magnitudes(dst, block []float64) []float64 {
	n := len(block)
	half := n / 2
	if cap(dst) < half {
		dst = make([]float64, half)
	}
	dst = dst[:half]
	if n < 2 {
		return dst
	}

	p := a.plan(n)
	copy(p.input, block)
	if p.window != nil {
		vecmath.MulBlockInPlace(p.input, p.window)
	}
	p.fft.Coefficients(p.coeffs, p.input)

	for k := range half {
		p.re[k] = real(p.coeffs[k])
		p.im[k] = imag(p.coeffs[k])
	}
	vecmath.Magnitude(dst, p.re, p.im)
	return dst
}

// BinFrequency returns the center frequency in Hz of bin k for an n-point
// transform at sampleRate.
func BinFrequency(k, n int, sampleRate float64) float64 {
	if n <= 0 || k < 0 || k > n/2 {
		return 0
	}
	return float64(k) * sampleRate / float64(n)
}
