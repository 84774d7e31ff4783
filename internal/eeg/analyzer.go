package eeg

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Analyzer computes band powers for sliding EEG windows. It keeps no state
// between calls, so one Analyzer may serve overlapping windows.
type Analyzer struct {
	cfg Config
}

// NewAnalyzer validates cfg and returns an Analyzer for it.
func NewAnalyzer(cfg Config) (*Analyzer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Analyzer{cfg: cfg}, nil
}

// Config returns the analysis parameters.
func (a *Analyzer) Config() Config {
	return a.cfg
}

// Analyze band-pass filters the last WindowDuration of w, estimates the
// channel-averaged PSD and aggregates it into alpha, beta and total power.
// A window shorter than the analysis duration yields *InsufficientDataError.
func (a *Analyzer) Analyze(w Window) (BandPower, error) {
	fs := w.SampleRate
	if fs <= 0 {
		fs = a.cfg.SampleRate
	}
	need := int(fs*a.cfg.WindowDuration.Seconds() + 0.5)

	if len(w.Data) == 0 {
		return BandPower{}, &InsufficientDataError{Have: 0, Need: need}
	}
	have := len(w.Data[0])
	for i, ch := range w.Data {
		if len(ch) != have {
			return BandPower{}, fmt.Errorf("%w: channel %d has %d samples, channel 0 has %d", ErrInvalidWindow, i, len(ch), have)
		}
	}
	if have < need || need < 1 {
		return BandPower{}, &InsufficientDataError{Have: have, Need: need}
	}
	if a.cfg.FilterHigh >= fs/2 {
		return BandPower{}, fmt.Errorf("%w: filter high edge %.1f Hz above Nyquist of %.1f Hz", ErrInvalidConfig, a.cfg.FilterHigh, fs/2)
	}

	w = w.Tail(need)
	taps := bandpassTaps(fs, a.cfg.FilterLow, a.cfg.FilterHigh, need)

	nfft := a.cfg.MaxFFT
	if need < nfft {
		nfft = need
	}
	if nfft < 2 {
		return BandPower{}, fmt.Errorf("%w: window of %d samples", ErrEmptySpectrum, need)
	}
	est := newWelch(fs, nfft)
	freqs := est.freqs()

	avg := make([]float64, len(freqs))
	for _, ch := range w.Data {
		floats.Add(avg, est.psd(applyZeroPhase(taps, ch)))
	}
	floats.Scale(1/float64(len(w.Data)), avg)

	var alpha, beta, total float64
	bins := 0
	for k, f := range freqs {
		if f < a.cfg.FilterLow || f > a.cfg.FilterHigh {
			continue
		}
		bins++
		p := avg[k]
		if a.cfg.Alpha.Contains(f) {
			alpha += p
		}
		if a.cfg.Beta.Contains(f) {
			beta += p
		}
		if a.cfg.Total.Contains(f) {
			total += p
		}
	}
	if bins == 0 {
		return BandPower{}, fmt.Errorf("%w: %d-point spectrum at %.0f Hz has no bins in %.1f-%.1f Hz",
			ErrEmptySpectrum, nfft, fs, a.cfg.FilterLow, a.cfg.FilterHigh)
	}
	if !finite(alpha) || !finite(beta) || !finite(total) {
		return BandPower{}, fmt.Errorf("%w: alpha=%v beta=%v total=%v", ErrNumerical, alpha, beta, total)
	}

	return newBandPower(alpha, beta, total), nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
