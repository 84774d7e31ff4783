package acquisition

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/OskarRg/neurohackathon/internal/eeg"
)

// Phase holds a target stress ratio until the given offset from start.
// The last phase may leave Until at zero to mean "forever".
type Phase struct {
	Until time.Duration `yaml:"until"`
	Ratio float64       `yaml:"ratio"`
	Mood  eeg.Mood      `yaml:"mood"`
}

// Scenario is a piecewise-constant stress script used by the mock sources.
type Scenario struct {
	Phases []Phase `yaml:"phases"`
	Jitter float64 `yaml:"jitter"`
	Final  *Phase  `yaml:"final,omitempty"`
}

// DefaultScenario relaxes, focuses, spikes into high stress and relaxes again.
func DefaultScenario() Scenario {
	return Scenario{
		Phases: []Phase{
			{Until: 2 * time.Second, Ratio: 0.2, Mood: eeg.MoodRelax},
			{Until: 5 * time.Second, Ratio: 1.0, Mood: eeg.MoodFocus},
			{Until: 10 * time.Second, Ratio: 2.5, Mood: eeg.MoodHighStress},
		},
		Final:  &Phase{Ratio: 0.2, Mood: eeg.MoodRelax},
		Jitter: 0.1,
	}
}

// LoadScenario reads a YAML scenario file.
func LoadScenario(path string) (Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Scenario{}, fmt.Errorf("read scenario: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates YAML scenario bytes.
func ParseScenario(data []byte) (Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return Scenario{}, fmt.Errorf("parse scenario: %w", err)
	}
	if err := sc.Validate(); err != nil {
		return Scenario{}, err
	}
	return sc, nil
}

// Validate checks that phases are ordered and ratios are non-negative.
func (s Scenario) Validate() error {
	if len(s.Phases) == 0 && s.Final == nil {
		return fmt.Errorf("scenario has no phases")
	}
	if s.Jitter < 0 {
		return fmt.Errorf("scenario jitter %v is negative", s.Jitter)
	}
	if !sort.SliceIsSorted(s.Phases, func(i, j int) bool { return s.Phases[i].Until < s.Phases[j].Until }) {
		return fmt.Errorf("scenario phases must be ordered by until")
	}
	for i, p := range s.Phases {
		if p.Ratio < 0 {
			return fmt.Errorf("phase %d: negative ratio %v", i, p.Ratio)
		}
	}
	return nil
}

// At returns the phase active at elapsed. Boundaries are exclusive, so a
// phase with Until 2s covers [previous, 2s).
func (s Scenario) At(elapsed time.Duration) Phase {
	for _, p := range s.Phases {
		if elapsed < p.Until {
			return p
		}
	}
	if s.Final != nil {
		return *s.Final
	}
	return s.Phases[len(s.Phases)-1]
}

// Duration is the offset at which the final phase begins.
func (s Scenario) Duration() time.Duration {
	if len(s.Phases) == 0 {
		return 0
	}
	return s.Phases[len(s.Phases)-1].Until
}
