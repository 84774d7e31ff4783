package eeg

import (
	"math"

	"gonum.org/v1/gonum/dsp/window"
	"gonum.org/v1/gonum/floats"
)

// bandpassTaps designs a linear-phase FIR band-pass with a Hamming window.
// Transition bands follow the usual EEG defaults: min(max(0.25*low, 2), low)
// below and min(max(0.25*high, 2), nyquist-high) above, with a length of
// 3.3 cycles of the narrower transition. The length is odd and never exceeds
// maxLen.
func bandpassTaps(fs, low, high float64, maxLen int) []float64 {
	lowTrans := math.Min(math.Max(0.25*low, 2), low)
	highTrans := math.Min(math.Max(0.25*high, 2), fs/2-high)

	length := int(math.Ceil(3.3 / math.Min(lowTrans, highTrans) * fs))
	if length%2 == 0 {
		length++
	}
	if length > maxLen {
		length = maxLen
		if length%2 == 0 {
			length--
		}
	}
	if length < 1 {
		length = 1
	}

	f1 := (low - lowTrans/2) / fs
	f2 := math.Min(high+highTrans/2, fs/2) / fs

	taps := make([]float64, length)
	mid := float64(length-1) / 2
	for i := range taps {
		m := float64(i) - mid
		taps[i] = 2*f2*sinc(2*f2*m) - 2*f1*sinc(2*f1*m)
	}
	if length > 1 {
		coeffs := make([]float64, length)
		for i := range coeffs {
			coeffs[i] = 1
		}
		floats.Mul(taps, window.Hamming(coeffs))
	}

	// Unity gain at the passband centre.
	centre := (f1 + f2) / 2
	var gain float64
	for i, h := range taps {
		gain += h * math.Cos(2*math.Pi*centre*(float64(i)-mid))
	}
	if gain != 0 {
		floats.Scale(1/gain, taps)
	}
	return taps
}

func sinc(x float64) float64 {
	if x == 0 {
		return 1
	}
	return math.Sin(math.Pi*x) / (math.Pi * x)
}

// applyZeroPhase filters x with symmetric taps, keeping the output aligned
// with the input. Edges are extended by reflection.
func applyZeroPhase(taps, x []float64) []float64 {
	n := len(x)
	out := make([]float64, n)
	if n == 0 {
		return out
	}
	half := len(taps) / 2

	padded := make([]float64, n+2*half)
	for i := range padded {
		padded[i] = x[reflectIndex(i-half, n)]
	}
	for i := range out {
		out[i] = floats.Dot(taps, padded[i:i+len(taps)])
	}
	return out
}

func reflectIndex(i, n int) int {
	if n == 1 {
		return 0
	}
	for i < 0 || i >= n {
		if i < 0 {
			i = -i
		}
		if i >= n {
			i = 2*(n-1) - i
		}
	}
	return i
}
