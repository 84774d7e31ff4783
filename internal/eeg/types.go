// Package eeg turns windows of multi-channel EEG samples into band-power
// ratios and a coarse mood label.
package eeg

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInsufficientData means the window does not yet cover the analysis duration.
	// Callers should wait and retry; it is not a fault.
	ErrInsufficientData = errors.New("insufficient EEG data")
	ErrInvalidWindow    = errors.New("invalid EEG window")
	ErrInvalidConfig    = errors.New("invalid analyzer config")
	ErrEmptySpectrum    = errors.New("no spectral bins in analysis range")
	ErrNumerical        = errors.New("non-finite spectral result")
)

// InsufficientDataError reports how many samples per channel were available.
type InsufficientDataError struct {
	Have int
	Need int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient EEG data: have %d samples, need %d", e.Have, e.Need)
}

func (e *InsufficientDataError) Unwrap() error { return ErrInsufficientData }

// Mood is the categorical reading of the beta/alpha ratio.
type Mood string

const (
	MoodRelax      Mood = "RELAX"
	MoodFocus      Mood = "FOCUS"
	MoodHighStress Mood = "HIGH_STRESS"
)

// Label returns the human readable form used by the console panel.
func (m Mood) Label() string {
	if m == MoodHighStress {
		return "HIGH STRESS"
	}
	return string(m)
}

const (
	highStressRatio = 1.5
	focusRatio      = 1.0
	minTotalPower   = 1e-9
)

// ClassifyMood maps a beta/alpha ratio onto a mood. Both thresholds are exclusive.
func ClassifyMood(ratio float64) Mood {
	switch {
	case ratio > highStressRatio:
		return MoodHighStress
	case ratio > focusRatio:
		return MoodFocus
	default:
		return MoodRelax
	}
}

// Band is an inclusive frequency range in Hz.
type Band struct {
	Low  float64 `mapstructure:"low" yaml:"low" json:"low"`
	High float64 `mapstructure:"high" yaml:"high" json:"high"`
}

// Contains reports whether f lies in the band, edges included.
func (b Band) Contains(f float64) bool {
	return f >= b.Low && f <= b.High
}

// Window is a channels × samples block recorded at SampleRate Hz.
type Window struct {
	SampleRate float64
	Data       [][]float64
}

// Samples returns the per-channel sample count, or 0 for an empty window.
func (w Window) Samples() int {
	if len(w.Data) == 0 {
		return 0
	}
	return len(w.Data[0])
}

// Tail returns a window holding the last n samples of every channel.
// The channel slices alias the receiver's storage.
func (w Window) Tail(n int) Window {
	out := Window{SampleRate: w.SampleRate, Data: make([][]float64, len(w.Data))}
	for i, ch := range w.Data {
		if n < len(ch) {
			ch = ch[len(ch)-n:]
		}
		out.Data[i] = ch
	}
	return out
}

// BandPower is the result of one analysis cycle.
type BandPower struct {
	AlphaPower  float64 `json:"alpha_power"`
	BetaPower   float64 `json:"beta_power"`
	TotalPower  float64 `json:"total_power"`
	StressRatio float64 `json:"stress_ratio"`
	AlphaRel    float64 `json:"alpha_rel"`
	BetaRel     float64 `json:"beta_rel"`
	Mood        Mood    `json:"mood"`
}

func newBandPower(alpha, beta, total float64) BandPower {
	if total <= 0 {
		total = minTotalPower
	}
	ratio := 0.0
	if alpha > 0 {
		ratio = beta / alpha
	}
	return BandPower{
		AlphaPower:  alpha,
		BetaPower:   beta,
		TotalPower:  total,
		StressRatio: ratio,
		AlphaRel:    alpha / total,
		BetaRel:     beta / total,
		Mood:        ClassifyMood(ratio),
	}
}

// Config holds the analysis parameters.
type Config struct {
	SampleRate     float64       `mapstructure:"sample_rate" yaml:"sample_rate"`
	WindowDuration time.Duration `mapstructure:"window_duration" yaml:"window_duration"`
	FilterLow      float64       `mapstructure:"filter_low" yaml:"filter_low"`
	FilterHigh     float64       `mapstructure:"filter_high" yaml:"filter_high"`
	MaxFFT         int           `mapstructure:"max_fft" yaml:"max_fft"`
	Alpha          Band          `mapstructure:"alpha" yaml:"alpha"`
	Beta           Band          `mapstructure:"beta" yaml:"beta"`
	Total          Band          `mapstructure:"total" yaml:"total"`
}

// DefaultConfig matches an 8-channel headset at 250 Hz with a 4 s window.
func DefaultConfig() Config {
	return Config{
		SampleRate:     250,
		WindowDuration: 4 * time.Second,
		FilterLow:      4,
		FilterHigh:     40,
		MaxFFT:         256,
		Alpha:          Band{Low: 8, High: 13},
		Beta:           Band{Low: 13, High: 30},
		Total:          Band{Low: 4, High: 40},
	}
}

// WindowSamples is the number of samples per channel one analysis needs.
func (c Config) WindowSamples() int {
	return int(c.SampleRate*c.WindowDuration.Seconds() + 0.5)
}

// Validate checks the parameters against each other.
func (c Config) Validate() error {
	switch {
	case c.SampleRate <= 0:
		return fmt.Errorf("%w: sample rate must be positive", ErrInvalidConfig)
	case c.WindowDuration <= 0 || c.WindowSamples() < 1:
		return fmt.Errorf("%w: window duration too short", ErrInvalidConfig)
	case c.FilterLow <= 0 || c.FilterHigh <= c.FilterLow:
		return fmt.Errorf("%w: filter band %.1f-%.1f Hz", ErrInvalidConfig, c.FilterLow, c.FilterHigh)
	case c.FilterHigh >= c.SampleRate/2:
		return fmt.Errorf("%w: filter high edge %.1f Hz above Nyquist", ErrInvalidConfig, c.FilterHigh)
	case c.MaxFFT < 2:
		return fmt.Errorf("%w: max fft %d", ErrInvalidConfig, c.MaxFFT)
	}
	return nil
}
