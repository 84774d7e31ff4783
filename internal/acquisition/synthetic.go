package acquisition

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/OskarRg/neurohackathon/internal/eeg"
)

const (
	alphaFreq = 10.0
	betaFreq  = 20.0
	driftFreq = 0.5
)

// SyntheticSource generates headset-shaped data whose beta/alpha power ratio
// follows a Scenario. Every sample is a pure function of its index, so two
// overlapping reads agree on the samples they share.
type SyntheticSource struct {
	fs       float64
	channels []string
	scenario Scenario
	noise    float64
	now      func() time.Time

	mu        sync.Mutex
	connected bool
	started   bool
	startAt   time.Time
}

// SyntheticOption tunes a SyntheticSource.
type SyntheticOption func(*SyntheticSource)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) SyntheticOption {
	return func(s *SyntheticSource) { s.now = now }
}

// WithNoise sets the white noise amplitude (default 0.05).
func WithNoise(amp float64) SyntheticOption {
	return func(s *SyntheticSource) { s.noise = amp }
}

// NewSyntheticSource returns an 8-channel mock headset at fs Hz.
func NewSyntheticSource(fs float64, scenario Scenario, opts ...SyntheticOption) *SyntheticSource {
	s := &SyntheticSource{
		fs:       fs,
		channels: MiniCapChannels,
		scenario: scenario,
		noise:    0.05,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *SyntheticSource) SampleRate() float64 { return s.fs }

// Channels returns the electrode names in data order.
func (s *SyntheticSource) Channels() []string { return s.channels }

func (s *SyntheticSource) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.connected = true
	s.mu.Unlock()
	return nil
}

func (s *SyntheticSource) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return ErrNotConnected
	}
	s.started = true
	s.startAt = s.now()
	return nil
}

// Latest returns the trailing samples generated since Start, at most n.
func (s *SyntheticSource) Latest(n int) (eeg.Window, error) {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return eeg.Window{}, ErrNotStarted
	}
	elapsed := s.now().Sub(s.startAt)
	s.mu.Unlock()

	end := int(elapsed.Seconds() * s.fs)
	begin := end - n
	if begin < 0 {
		begin = 0
	}
	return s.Generate(begin, end), nil
}

// Generate renders samples [begin, end) for every channel.
func (s *SyntheticSource) Generate(begin, end int) eeg.Window {
	w := eeg.Window{SampleRate: s.fs, Data: make([][]float64, len(s.channels))}
	for c := range w.Data {
		ch := make([]float64, 0, max(end-begin, 0))
		for i := begin; i < end; i++ {
			ch = append(ch, s.sample(c, i))
		}
		w.Data[c] = ch
	}
	return w
}

// sample keeps alpha at unit amplitude and scales beta by sqrt(ratio) so the
// band power ratio tracks the scenario.
func (s *SyntheticSource) sample(channel, index int) float64 {
	t := float64(index) / s.fs
	phase := float64(channel) * 0.35
	ratio := s.ratioAt(index)

	v := math.Sin(2*math.Pi*alphaFreq*t+phase) +
		math.Sqrt(ratio)*math.Sin(2*math.Pi*betaFreq*t+2*phase) +
		2*math.Sin(2*math.Pi*driftFreq*t)
	return v + s.noise*hashNoise(uint64(channel), uint64(index))
}

// ratioAt applies jitter per 200 ms block to the scenario ratio.
func (s *SyntheticSource) ratioAt(index int) float64 {
	elapsed := time.Duration(float64(index) / s.fs * float64(time.Second))
	ratio := s.scenario.At(elapsed).Ratio
	if s.scenario.Jitter > 0 {
		block := uint64(float64(index) / (s.fs / 5))
		ratio += s.scenario.Jitter * hashNoise(0xB10C, block)
	}
	return math.Max(ratio, 0)
}

func (s *SyntheticSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return ErrNotStarted
	}
	s.started = false
	return nil
}

func (s *SyntheticSource) Close() error {
	s.mu.Lock()
	s.connected = false
	s.started = false
	s.mu.Unlock()
	return nil
}

// hashNoise maps (a, b) to a deterministic value in [-1, 1) using splitmix64.
func hashNoise(a, b uint64) float64 {
	z := a*0x9E3779B97F4A7C15 + b + 0x632BE59BD9B4E019
	z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
	z = (z ^ (z >> 27)) * 0x94D049BB133111EB
	z ^= z >> 31
	return float64(z>>11)/float64(1<<52) - 1
}
