package acquisition

import (
	"context"
	"errors"

	"github.com/OskarRg/neurohackathon/internal/eeg"
)

// MiniCapChannels is the electrode layout of the 8-channel headset.
var MiniCapChannels = []string{"F3", "F4", "C3", "C4", "P3", "P4", "O1", "O2"}

var (
	ErrNotConnected = errors.New("source not connected")
	ErrNotStarted   = errors.New("acquisition not started")
)

// Source is the device (or stand-in) that produces raw samples.
type Source interface {
	// Connect performs the device handshake.
	Connect(ctx context.Context) error
	// Start begins streaming samples.
	Start() error
	// Latest returns up to samples of the most recent data per channel.
	// Fewer samples are returned while the device buffer is filling.
	Latest(samples int) (eeg.Window, error)
	// Stop halts streaming.
	Stop() error
	// Close releases the device handle.
	Close() error
	// SampleRate is the declared sampling frequency in Hz.
	SampleRate() float64
}
