package eeg

import (
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// welch estimates the one-sided power spectral density of x using
// non-overlapping Hamming-windowed segments of nfft samples, each with its
// mean removed. It returns the bin frequencies in Hz and the density.
type welch struct {
	fs    float64
	nfft  int
	fft   *fourier.FFT
	win   []float64
	scale float64
}

func newWelch(fs float64, nfft int) *welch {
	win := make([]float64, nfft)
	for i := range win {
		win[i] = 1
	}
	window.Hamming(win)

	return &welch{
		fs:    fs,
		nfft:  nfft,
		fft:   fourier.NewFFT(nfft),
		win:   win,
		scale: 1 / (fs * floats.Dot(win, win)),
	}
}

func (w *welch) freqs() []float64 {
	freqs := make([]float64, w.nfft/2+1)
	for i := range freqs {
		freqs[i] = w.fft.Freq(i) * w.fs
	}
	return freqs
}

func (w *welch) psd(x []float64) []float64 {
	bins := w.nfft/2 + 1
	out := make([]float64, bins)
	segments := len(x) / w.nfft
	if segments == 0 {
		return out
	}

	seg := make([]float64, w.nfft)
	coeffs := make([]complex128, bins)
	for s := 0; s < segments; s++ {
		copy(seg, x[s*w.nfft:(s+1)*w.nfft])
		mean := stat.Mean(seg, nil)
		floats.AddConst(-mean, seg)
		floats.Mul(seg, w.win)

		coeffs = w.fft.Coefficients(coeffs, seg)
		for k, c := range coeffs {
			a := cmplx.Abs(c)
			out[k] += a * a
		}
	}

	floats.Scale(w.scale/float64(segments), out)

	// Fold the negative frequencies in; DC and (for even nfft) Nyquist are unique.
	last := bins - 1
	if w.nfft%2 != 0 {
		last = bins
	}
	for k := 1; k < last; k++ {
		out[k] *= 2
	}
	return out
}
