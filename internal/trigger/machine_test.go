package trigger

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countKind(effects []Effect, kind EffectKind) int {
	n := 0
	for _, e := range effects {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

// feed runs normalized levels through the machine, completing any
// intervention immediately when complete is set.
func feed(m *Machine, levels []float64, complete bool) (Status, []Effect) {
	s := InitialStatus()
	var all []Effect
	now := time.Unix(0, 0)
	for _, n := range levels {
		var effects []Effect
		s, effects = m.Step(s, Input{Ratio: n * m.Thresholds().Ceiling, Now: now})
		all = append(all, effects...)
		if complete && s.Locked {
			s = Complete(s)
		}
		now = now.Add(200 * time.Millisecond)
	}
	return s, all
}

func TestNormalize_Clamps(t *testing.T) {
	m := NewMachine(DefaultThresholds())

	tests := []struct {
		raw  float64
		want float64
	}{
		{0, 0},
		{1.5, 0.5},
		{3, 1},
		{100, 1},
		{-2, 0},
		{math.NaN(), 0},
		{math.Inf(1), 1},
	}
	for _, tc := range tests {
		got := m.Normalize(tc.raw)
		assert.InDelta(t, tc.want, got, 1e-12, "Normalize(%v)", tc.raw)
		assert.GreaterOrEqual(t, got, 0.0)
		assert.LessOrEqual(t, got, 1.0)
	}
}

func TestClassify_Bands(t *testing.T) {
	m := NewMachine(DefaultThresholds())

	tests := []struct {
		level float64
		want  State
	}{
		{0, StateZen},
		{0.19, StateZen},
		{0.20, StateFocus},
		{0.49, StateFocus},
		{0.50, StateWorry},
		{0.79, StateWorry},
		{0.80, StateStoic},
		{1, StateStoic},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, m.Classify(tc.level), "Classify(%v)", tc.level)
	}
}

func TestStep_StateChangeIsEdgeTriggered(t *testing.T) {
	m := NewMachine(DefaultThresholds())
	s := InitialStatus()

	s, effects := m.Step(s, Input{Ratio: 0.3})
	assert.Empty(t, effects)
	assert.Equal(t, StateZen, s.State)

	s, effects = m.Step(s, Input{Ratio: 0.9})
	require.Len(t, effects, 1)
	assert.Equal(t, EffectStateChanged, effects[0].Kind)
	assert.Equal(t, StateZen, effects[0].From)
	assert.Equal(t, StateFocus, effects[0].To)

	_, effects = m.Step(s, Input{Ratio: 1.0})
	assert.Empty(t, effects)
}

func TestStep_FiresOncePerStoicEntry(t *testing.T) {
	m := NewMachine(DefaultThresholds())

	_, effects := feed(m, []float64{0.1, 0.9, 0.9, 0.9, 0.1}, false)
	assert.Equal(t, 1, countKind(effects, EffectIntervene))

	// Even with instant completion the machine stays in stoic mode until
	// the level falls below the recovery line.
	_, effects = feed(m, []float64{0.1, 0.9, 0.9, 0.9, 0.1}, true)
	assert.Equal(t, 1, countKind(effects, EffectIntervene))
	assert.Equal(t, 1, countKind(effects, EffectRecovered))
}

func TestStep_Hysteresis(t *testing.T) {
	m := NewMachine(DefaultThresholds())

	s, effects := feed(m, []float64{0.9, 0.5, 0.9}, false)
	assert.Equal(t, 1, countKind(effects, EffectIntervene))
	assert.True(t, s.StoicMode)

	s, effects = feed(m, []float64{0.9, 0.5, 0.9}, true)
	assert.Equal(t, 1, countKind(effects, EffectIntervene))
	assert.Zero(t, countKind(effects, EffectRecovered))
	assert.True(t, s.StoicMode)

	// Falling below 0.3 re-arms the trigger.
	_, effects = feed(m, []float64{0.9, 0.29, 0.9}, true)
	assert.Equal(t, 2, countKind(effects, EffectIntervene))
	assert.Equal(t, 1, countKind(effects, EffectRecovered))
}

func TestStep_FiringSetsFlags(t *testing.T) {
	m := NewMachine(DefaultThresholds())
	now := time.Unix(1700000000, 0)

	s, effects := m.Step(InitialStatus(), Input{Ratio: 2.7, Now: now})
	assert.True(t, s.StoicMode)
	assert.True(t, s.Locked)
	assert.Equal(t, now, s.LastIntervention)
	assert.Equal(t, StateStoic, s.State)

	require.Len(t, effects, 2)
	assert.Equal(t, EffectStateChanged, effects[0].Kind)
	assert.Equal(t, EffectIntervene, effects[1].Kind)
	assert.True(t, effects[1].Forced)
	assert.InDelta(t, 0.9, effects[1].Level, 1e-9)
}

func TestStep_LockedPinsLevelAndSkipsTransitions(t *testing.T) {
	m := NewMachine(DefaultThresholds())
	s := Lock(InitialStatus(), time.Now())
	s.StoicMode = true

	s, effects := m.Step(s, Input{Ratio: 0})
	assert.Equal(t, 0.95, s.Level)
	assert.Equal(t, 0.0, s.Normalized)
	assert.Equal(t, StateStoic, s.State)
	assert.Zero(t, countKind(effects, EffectRecovered))
	assert.True(t, s.StoicMode)

	s = Complete(s)
	s, effects = m.Step(s, Input{Ratio: 0})
	assert.Equal(t, 0.0, s.Level)
	assert.Equal(t, StateZen, s.State)
	assert.Equal(t, 1, countKind(effects, EffectRecovered))
	assert.False(t, s.StoicMode)
}

func TestStep_SpeakingBlocksRecoveryAndPins(t *testing.T) {
	m := NewMachine(DefaultThresholds())
	s := InitialStatus()
	s.StoicMode = true

	s, effects := m.Step(s, Input{Ratio: 0, Speaking: true})
	assert.Equal(t, 0.95, s.Level)
	assert.Zero(t, countKind(effects, EffectRecovered))
	assert.True(t, s.StoicMode)

	s, effects = m.Step(s, Input{Ratio: 0})
	assert.Equal(t, 1, countKind(effects, EffectRecovered))
	assert.False(t, s.StoicMode)
}

func TestStep_DoesNotMutateInput(t *testing.T) {
	m := NewMachine(DefaultThresholds())
	before := InitialStatus()
	snapshot := before

	_, _ = m.Step(before, Input{Ratio: 3})
	assert.Equal(t, snapshot, before)
}

func TestThresholds_Validate(t *testing.T) {
	require.NoError(t, DefaultThresholds().Validate())

	bad := DefaultThresholds()
	bad.Worry = 0.1
	assert.Error(t, bad.Validate())

	bad = DefaultThresholds()
	bad.Recover = 0.9
	assert.Error(t, bad.Validate())

	bad = DefaultThresholds()
	bad.Ceiling = 0
	assert.Error(t, bad.Validate())
}
