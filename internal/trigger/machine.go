// Package trigger maps the stress index onto the duck's discrete states and
// decides when the mentor should step in.
package trigger

import (
	"fmt"
	"math"
	"time"
)

// State is the discrete stress band shown by the avatar.
type State string

const (
	StateZen   State = "ZEN"
	StateFocus State = "FOCUS"
	StateWorry State = "WORRY"
	StateStoic State = "STOIC"
)

// Thresholds configures normalization and banding. Bands are half-open and
// each boundary belongs to the higher band.
type Thresholds struct {
	Ceiling float64 `mapstructure:"ceiling" yaml:"ceiling" json:"ceiling"`
	Focus   float64 `mapstructure:"focus" yaml:"focus" json:"focus"`
	Worry   float64 `mapstructure:"worry" yaml:"worry" json:"worry"`
	Stoic   float64 `mapstructure:"stoic" yaml:"stoic" json:"stoic"`
	Recover float64 `mapstructure:"recover" yaml:"recover" json:"recover"`
	Pin     float64 `mapstructure:"pin" yaml:"pin" json:"pin"`
}

// DefaultThresholds returns the tuned defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Ceiling: 3.0,
		Focus:   0.2,
		Worry:   0.5,
		Stoic:   0.8,
		Recover: 0.3,
		Pin:     0.95,
	}
}

// Validate checks ordering: 0 < Focus < Worry < Stoic <= 1 and Recover < Stoic.
func (t Thresholds) Validate() error {
	switch {
	case t.Ceiling <= 0:
		return fmt.Errorf("trigger ceiling must be positive, got %v", t.Ceiling)
	case !(0 < t.Focus && t.Focus < t.Worry && t.Worry < t.Stoic && t.Stoic <= 1):
		return fmt.Errorf("trigger bands must satisfy 0 < focus < worry < stoic <= 1, got %v/%v/%v", t.Focus, t.Worry, t.Stoic)
	case t.Recover <= 0 || t.Recover >= t.Stoic:
		return fmt.Errorf("trigger recover level %v must lie in (0, stoic)", t.Recover)
	case t.Pin < 0 || t.Pin > 1:
		return fmt.Errorf("trigger pin level %v must lie in [0, 1]", t.Pin)
	}
	return nil
}

// Status is everything the controller remembers between ticks.
type Status struct {
	// Level is the displayed value, pinned high while an intervention runs.
	Level float64 `json:"level"`
	// Normalized is the clamped stress index of the last tick.
	Normalized       float64   `json:"normalized"`
	State            State     `json:"state"`
	StoicMode        bool      `json:"stoic_mode_active"`
	Locked           bool      `json:"conversation_locked"`
	LastIntervention time.Time `json:"last_intervention_time"`
}

// InitialStatus is the calm state the avatar boots into.
func InitialStatus() Status {
	return Status{State: StateZen}
}

// Input is one poll of the outside world.
type Input struct {
	Ratio    float64
	Speaking bool
	Now      time.Time
}

// EffectKind names a side effect the caller must carry out.
type EffectKind string

const (
	EffectStateChanged EffectKind = "state_changed"
	EffectIntervene    EffectKind = "intervene"
	EffectRecovered    EffectKind = "recovered"
)

// Effect is a side effect requested by Step.
type Effect struct {
	Kind     EffectKind
	From     State
	To       State
	Level    float64
	Forced   bool
	Occurred time.Time
}

// Machine is the pure transition function. It holds only configuration.
type Machine struct {
	th Thresholds
}

// NewMachine returns a Machine using th.
func NewMachine(th Thresholds) *Machine {
	return &Machine{th: th}
}

// Thresholds returns the active configuration.
func (m *Machine) Thresholds() Thresholds { return m.th }

// Normalize clamps raw/ceiling into [0, 1]. NaN and negative ratios read as 0.
func (m *Machine) Normalize(raw float64) float64 {
	if math.IsNaN(raw) || raw <= 0 {
		return 0
	}
	return math.Min(raw/m.th.Ceiling, 1)
}

// Classify bands a normalized level.
func (m *Machine) Classify(level float64) State {
	switch {
	case level < m.th.Focus:
		return StateZen
	case level < m.th.Worry:
		return StateFocus
	case level < m.th.Stoic:
		return StateWorry
	default:
		return StateStoic
	}
}

// Step advances s by one poll and lists the effects to execute, in order.
// It never mutates its arguments.
func (m *Machine) Step(s Status, in Input) (Status, []Effect) {
	var effects []Effect

	n := m.Normalize(in.Ratio)
	s.Normalized = n
	s.Level = n
	if s.Locked || in.Speaking {
		s.Level = math.Max(n, m.th.Pin)
	}

	if next := m.Classify(s.Level); next != s.State {
		effects = append(effects, Effect{Kind: EffectStateChanged, From: s.State, To: next, Level: s.Level, Occurred: in.Now})
		s.State = next
	}

	if s.Locked {
		return s, effects
	}

	switch {
	case n >= m.th.Stoic && !s.StoicMode:
		s.StoicMode = true
		s.Locked = true
		s.LastIntervention = in.Now
		effects = append(effects, Effect{Kind: EffectIntervene, To: s.State, Level: n, Forced: true, Occurred: in.Now})
	case n < m.th.Recover && s.StoicMode && !in.Speaking:
		s.StoicMode = false
		effects = append(effects, Effect{Kind: EffectRecovered, To: s.State, Level: n, Occurred: in.Now})
	}

	return s, effects
}

// Lock marks a conversation in progress, as when the user opens a chat.
func Lock(s Status, now time.Time) Status {
	s.Locked = true
	s.LastIntervention = now
	return s
}

// Complete clears the conversation lock once an intervention has finished.
func Complete(s Status) Status {
	s.Locked = false
	return s
}
