// SPDX-License-Identifier: MIT
package eq

import (
	"math"
	"math/cmplx"
)

// Kind selects the filter topology of a band.
type Kind int

const (
	Lowpass Kind = iota
	Bandpass
	Highpass
)

func (k Kind) String() string {
	switch k {
	case Lowpass:
		return "lowpass"
	case Bandpass:
		return "bandpass"
	case Highpass:
		return "highpass"
	default:
		return "unknown"
	}
}

// Bandwidth is the relative half-width of every interior band-pass band: the
// corners of a band centered on f sit at f/(1+Bandwidth) and f*(1+Bandwidth).
const Bandwidth = 0.5

// Coefficients holds one second-order section normalized so that a0 == 1.
//
//	y  = B0*x + d0
//	d0 = B1*x - A1*y + d1
//	d1 = B2*x - A2*y
type Coefficients struct {
	B0, B1, B2 float64
	A1, A2     float64
}

// Band is a single equalizer band: its design parameters, coefficients and
// the Direct Form II Transposed delay line.
type Band struct {
	Kind      Kind
	Frequency float64 // configured center (or corner) frequency in Hz
	Low, High float64 // -3 dB corners in Hz; only one is meaningful for low/high-pass
	Coefficients

	d0, d1 float64
}

// processBlock filters buf in place, carrying the delay line across calls.
func (b *Band) processBlock(buf []float64) {
	b0, b1, b2 := b.B0, b.B1, b.B2
	a1, a2 := b.A1, b.A2
	d0, d1 := b.d0, b.d1

	for i, x := range buf {
		y := b0*x + d0
		d0 = b1*x - a1*y + d1
		d1 = b2*x - a2*y
		buf[i] = y
	}

	b.d0, b.d1 = d0, d1
}

func (b *Band) reset() {
	b.d0, b.d1 = 0, 0
}

// Response returns the linear magnitude of the band's transfer function at
// freqHz for the given sample rate.
func (b *Band) Response(freqHz, sampleRate float64) float64 {
	re, im := b.complexResponse(2 * math.Pi * freqHz / sampleRate)
	return math.Hypot(re, im)
}

// complexResponse evaluates H(e^jw) for the normalized angular frequency w.
func (b *Band) complexResponse(w float64) (re, im float64) {
	z1 := cmplx.Exp(complex(0, -w))
	z2 := z1 * z1

	num := complex(b.B0, 0) + complex(b.B1, 0)*z1 + complex(b.B2, 0)*z2
	den := 1 + complex(b.A1, 0)*z1 + complex(b.A2, 0)*z2
	h := num / den

	return real(h), imag(h)
}

// prewarp maps a digital frequency onto the analog axis so the bilinear
// transform places the corner exactly at freq.
func prewarp(freq, sampleRate float64) float64 {
	return 2 * sampleRate * math.Tan(math.Pi*freq/sampleRate)
}

// bilinear converts the analog section num(s)/den(s), each given as
// c0*s^2 + c1*s + c2, into digital coefficients with a0 normalized to 1.
func bilinear(num, den [3]float64, sampleRate float64) Coefficients {
	k := 2 * sampleRate
	kk := k * k

	n0 := num[0]*kk + num[1]*k + num[2]
	n1 := -2*num[0]*kk + 2*num[2]
	n2 := num[0]*kk - num[1]*k + num[2]

	d0 := den[0]*kk + den[1]*k + den[2]
	d1 := -2*den[0]*kk + 2*den[2]
	d2 := den[0]*kk - den[1]*k + den[2]

	return Coefficients{
		B0: n0 / d0,
		B1: n1 / d0,
		B2: n2 / d0,
		A1: d1 / d0,
		A2: d2 / d0,
	}
}

// butterworthLowpass designs a 2nd-order Butterworth low-pass with its -3 dB
// corner at freq.
func butterworthLowpass(freq, sampleRate float64) Coefficients {
	wc := prewarp(freq, sampleRate)
	return bilinear(
		[3]float64{0, 0, wc * wc},
		[3]float64{1, math.Sqrt2 * wc, wc * wc},
		sampleRate,
	)
}

// butterworthHighpass designs a 2nd-order Butterworth high-pass with its
// -3 dB corner at freq.
func butterworthHighpass(freq, sampleRate float64) Coefficients {
	wc := prewarp(freq, sampleRate)
	return bilinear(
		[3]float64{1, 0, 0},
		[3]float64{1, math.Sqrt2 * wc, wc * wc},
		sampleRate,
	)
}

// butterworthBandpass designs the second-order band-pass obtained from the
// first-order Butterworth prototype, with -3 dB corners at low and high and
// unity gain at their (prewarped) geometric center.
func butterworthBandpass(low, high, sampleRate float64) Coefficients {
	w1 := prewarp(low, sampleRate)
	w2 := prewarp(high, sampleRate)
	bw := w2 - w1

	return bilinear(
		[3]float64{0, bw, 0},
		[3]float64{1, bw, w1 * w2},
		sampleRate,
	)
}

// designBand builds band index of n for the table, validating the corner
// placement against the Nyquist limit.
func designBand(index, n int, freq, sampleRate float64) (Band, error) {
	nyquist := sampleRate / 2
	if !(freq > 0) || freq >= nyquist || math.IsInf(freq, 0) {
		return Band{}, configErrorf(sampleRate, "band %d frequency %.2f Hz outside (0, %.2f)", index, freq, nyquist)
	}

	switch {
	case index == 0:
		return Band{
			Kind:         Lowpass,
			Frequency:    freq,
			High:         freq,
			Coefficients: butterworthLowpass(freq, sampleRate),
		}, nil
	case index == n-1:
		return Band{
			Kind:         Highpass,
			Frequency:    freq,
			Low:          freq,
			Coefficients: butterworthHighpass(freq, sampleRate),
		}, nil
	default:
		low := freq / (1 + Bandwidth)
		high := freq * (1 + Bandwidth)
		if high >= nyquist {
			return Band{}, configErrorf(sampleRate, "band %d upper corner %.2f Hz reaches Nyquist %.2f", index, high, nyquist)
		}
		return Band{
			Kind:         Bandpass,
			Frequency:    freq,
			Low:          low,
			High:         high,
			Coefficients: butterworthBandpass(low, high, sampleRate),
		}, nil
	}
}
