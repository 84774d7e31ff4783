package eeg

import (
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// toneWindow builds channels of alpha (10 Hz) and beta (20 Hz) sinusoids
// with a little seeded noise.
func toneWindow(channels, samples int, fs, alphaAmp, betaAmp float64) Window {
	rng := rand.New(rand.NewSource(7))
	data := make([][]float64, channels)
	for c := range data {
		phase := float64(c) * 0.3
		ch := make([]float64, samples)
		for i := range ch {
			t := float64(i) / fs
			ch[i] = alphaAmp*math.Sin(2*math.Pi*10*t+phase) +
				betaAmp*math.Sin(2*math.Pi*20*t+2*phase) +
				0.01*rng.NormFloat64()
		}
		data[c] = ch
	}
	return Window{SampleRate: fs, Data: data}
}

func newTestAnalyzer(t *testing.T) *Analyzer {
	t.Helper()
	a, err := NewAnalyzer(DefaultConfig())
	require.NoError(t, err)
	return a
}

func TestClassifyMood(t *testing.T) {
	tests := []struct {
		ratio float64
		want  Mood
	}{
		{2.0, MoodHighStress},
		{1.5, MoodFocus},
		{1.2, MoodFocus},
		{1.0, MoodRelax},
		{0.5, MoodRelax},
		{0, MoodRelax},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, ClassifyMood(tc.ratio), "ClassifyMood(%v)", tc.ratio)
	}
	assert.Equal(t, "HIGH STRESS", MoodHighStress.Label())
}

func TestAnalyze_InsufficientData(t *testing.T) {
	a := newTestAnalyzer(t)

	_, err := a.Analyze(toneWindow(8, 999, 250, 1, 1))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInsufficientData))

	var insufficient *InsufficientDataError
	require.True(t, errors.As(err, &insufficient))
	assert.Equal(t, 999, insufficient.Have)
	assert.Equal(t, 1000, insufficient.Need)

	_, err = a.Analyze(Window{SampleRate: 250})
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestAnalyze_RaggedWindow(t *testing.T) {
	a := newTestAnalyzer(t)
	w := toneWindow(2, 1000, 250, 1, 1)
	w.Data[1] = w.Data[1][:900]

	_, err := a.Analyze(w)
	assert.ErrorIs(t, err, ErrInvalidWindow)
}

func TestAnalyze_BetaDominant(t *testing.T) {
	a := newTestAnalyzer(t)

	result, err := a.Analyze(toneWindow(8, 1000, 250, 1, 2))
	require.NoError(t, err)

	assert.InDelta(t, 4.0, result.StressRatio, 0.6)
	assert.Equal(t, MoodHighStress, result.Mood)
	assert.Greater(t, result.BetaRel, result.AlphaRel)
	assert.LessOrEqual(t, result.AlphaRel+result.BetaRel, 1.0+1e-9)
}

func TestAnalyze_AlphaDominant(t *testing.T) {
	a := newTestAnalyzer(t)

	result, err := a.Analyze(toneWindow(8, 1000, 250, 2, 1))
	require.NoError(t, err)

	assert.InDelta(t, 0.25, result.StressRatio, 0.05)
	assert.Equal(t, MoodRelax, result.Mood)
	assert.Greater(t, result.AlphaRel, 0.5)
}

func TestAnalyze_UsesTrailingWindow(t *testing.T) {
	a := newTestAnalyzer(t)

	relaxed := toneWindow(4, 1000, 250, 2, 1)
	stressed := toneWindow(4, 1000, 250, 1, 2)
	joined := Window{SampleRate: 250, Data: make([][]float64, 4)}
	for c := range joined.Data {
		joined.Data[c] = append(append([]float64{}, relaxed.Data[c]...), stressed.Data[c]...)
	}

	direct, err := a.Analyze(stressed)
	require.NoError(t, err)
	sliding, err := a.Analyze(joined)
	require.NoError(t, err)

	assert.InDelta(t, direct.StressRatio, sliding.StressRatio, 1e-9)

	// Analyzing must not mutate the caller's window.
	again, err := a.Analyze(joined)
	require.NoError(t, err)
	assert.Equal(t, sliding, again)
}

func TestAnalyze_SilentWindowHasZeroRatio(t *testing.T) {
	a := newTestAnalyzer(t)
	w := Window{SampleRate: 250, Data: [][]float64{make([]float64, 1000), make([]float64, 1000)}}

	result, err := a.Analyze(w)
	require.NoError(t, err)
	assert.Equal(t, 0.0, result.AlphaPower)
	assert.Equal(t, 0.0, result.StressRatio)
	assert.Equal(t, 1e-9, result.TotalPower)
	assert.Equal(t, MoodRelax, result.Mood)
}

func TestAnalyze_NaNIsAnError(t *testing.T) {
	a := newTestAnalyzer(t)
	w := toneWindow(2, 1000, 250, 1, 1)
	w.Data[0][500] = math.NaN()

	_, err := a.Analyze(w)
	assert.ErrorIs(t, err, ErrNumerical)
}

func TestAnalyze_EmptySpectrum(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WindowDuration = 8 * time.Millisecond
	a, err := NewAnalyzer(cfg)
	require.NoError(t, err)

	_, err = a.Analyze(toneWindow(2, 2, 250, 1, 1))
	assert.ErrorIs(t, err, ErrEmptySpectrum)
}

func TestNewBandPower(t *testing.T) {
	bp := newBandPower(0, 3, 0)
	assert.Equal(t, 0.0, bp.StressRatio)
	assert.Equal(t, 1e-9, bp.TotalPower)

	bp = newBandPower(2, 3, 10)
	assert.InDelta(t, 1.5, bp.StressRatio, 1e-12)
	assert.Equal(t, MoodFocus, bp.Mood)
	assert.InDelta(t, 0.2, bp.AlphaRel, 1e-12)
	assert.InDelta(t, 0.3, bp.BetaRel, 1e-12)
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	bad := DefaultConfig()
	bad.FilterHigh = 200
	assert.ErrorIs(t, bad.Validate(), ErrInvalidConfig)

	bad = DefaultConfig()
	bad.SampleRate = 0
	assert.ErrorIs(t, bad.Validate(), ErrInvalidConfig)

	_, err := NewAnalyzer(bad)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestBandpassTaps_PassesAlphaRejectsDrift(t *testing.T) {
	taps := bandpassTaps(250, 4, 40, 1000)
	require.Equal(t, 1, len(taps)%2)
	require.InDelta(t, 413, len(taps), 2)

	response := func(f float64) float64 {
		mid := float64(len(taps)-1) / 2
		var re float64
		for i, h := range taps {
			re += h * math.Cos(2*math.Pi*f/250*(float64(i)-mid))
		}
		return math.Abs(re)
	}

	assert.InDelta(t, 1.0, response(10), 0.02)
	assert.InDelta(t, 1.0, response(20), 0.02)
	assert.Less(t, response(0), 0.01)
	assert.Less(t, response(80), 0.01)
}

func TestReflectIndex(t *testing.T) {
	assert.Equal(t, 2, reflectIndex(-2, 10))
	assert.Equal(t, 7, reflectIndex(11, 10))
	assert.Equal(t, 0, reflectIndex(5, 1))
}
