// Package acquisition owns the EEG device connection and publishes the
// latest analysis result for pollers.
package acquisition

import (
	"time"

	"github.com/OskarRg/neurohackathon/internal/eeg"
)

// Status is the acquisition lifecycle state.
type Status string

const (
	StatusDisconnected Status = "DISCONNECTED"
	StatusConnecting   Status = "CONNECTING"
	StatusBuffering    Status = "BUFFERING"
	StatusComputed     Status = "COMPUTED"
	StatusError        Status = "ERROR"
	StatusSimulated    Status = "SIMULATED"
)

// Snapshot is one complete, immutable published reading. Field names on the
// wire match the headset service's dictionary so GUI code can consume either.
type Snapshot struct {
	StressIndex float64   `json:"stress_index"`
	AlphaRel    float64   `json:"alpha_rel"`
	BetaRel     float64   `json:"beta_rel"`
	Status      Status    `json:"status"`
	Connected   bool      `json:"connected"`
	IsReady     bool      `json:"is_ready"`
	Mood        eeg.Mood  `json:"mood,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Reader is anything that can hand out the latest snapshot without blocking.
type Reader interface {
	GetData() Snapshot
}

// Runner is a Reader with a start/stop lifecycle.
type Runner interface {
	Reader
	Start()
	Stop() error
}

func computedSnapshot(bp eeg.BandPower, at time.Time) Snapshot {
	return Snapshot{
		StressIndex: bp.StressRatio,
		AlphaRel:    bp.AlphaRel,
		BetaRel:     bp.BetaRel,
		Status:      StatusComputed,
		Connected:   true,
		IsReady:     true,
		Mood:        bp.Mood,
		UpdatedAt:   at,
	}
}
