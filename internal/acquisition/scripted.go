package acquisition

import (
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/OskarRg/neurohackathon/internal/eeg"
)

// ScriptedReader is a snapshot-level stand-in for the headset service. It
// skips signal processing and reports the scenario ratio directly.
type ScriptedReader struct {
	scenario Scenario
	logger   zerolog.Logger
	now      func() time.Time

	mu      sync.Mutex
	rng     *rand.Rand
	running bool
	startAt time.Time
	phase   int
}

// NewScriptedReader returns a reader that follows scenario once started.
func NewScriptedReader(scenario Scenario, logger zerolog.Logger) *ScriptedReader {
	return &ScriptedReader{
		scenario: scenario,
		logger:   logger.With().Str("component", "scripted-eeg").Logger(),
		now:      time.Now,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		phase:    -1,
	}
}

func (r *ScriptedReader) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return
	}
	r.running = true
	r.startAt = r.now()
	r.phase = -1
	r.logger.Info().Msg("Scripted EEG session started")
}

func (r *ScriptedReader) Stop() error {
	r.mu.Lock()
	r.running = false
	r.mu.Unlock()
	return nil
}

// GetData returns the scripted reading for the current offset.
func (r *ScriptedReader) GetData() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if !r.running {
		return Snapshot{Status: StatusDisconnected, UpdatedAt: now}
	}

	elapsed := now.Sub(r.startAt)
	p := r.scenario.At(elapsed)
	if idx := r.phaseIndex(elapsed); idx != r.phase {
		r.phase = idx
		r.logger.Debug().Str("mood", string(p.Mood)).Float64("ratio", p.Ratio).Msg("Scenario phase")
	}

	ratio := p.Ratio
	if r.scenario.Jitter > 0 {
		ratio += (r.rng.Float64()*2 - 1) * r.scenario.Jitter
	}
	if ratio < 0 {
		ratio = 0
	}

	return Snapshot{
		StressIndex: ratio,
		AlphaRel:    0.5,
		BetaRel:     0.5,
		Status:      StatusSimulated,
		Connected:   true,
		IsReady:     true,
		Mood:        eeg.ClassifyMood(ratio),
		UpdatedAt:   now,
	}
}

func (r *ScriptedReader) phaseIndex(elapsed time.Duration) int {
	for i, p := range r.scenario.Phases {
		if elapsed < p.Until {
			return i
		}
	}
	return len(r.scenario.Phases)
}
