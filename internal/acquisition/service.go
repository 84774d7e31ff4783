package acquisition

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/OskarRg/neurohackathon/internal/eeg"
)

// ErrStopTimeout is returned by Stop when the loop did not exit in time.
var ErrStopTimeout = errors.New("acquisition loop did not stop in time")

// ServiceConfig controls the loop cadence.
type ServiceConfig struct {
	// CycleInterval is the pause between analysis cycles (default 200ms).
	CycleInterval time.Duration `mapstructure:"cycle_interval" yaml:"cycle_interval"`
	// RetryDelay is the pause after a window that is not yet full (default 100ms).
	RetryDelay time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`
	// StopTimeout bounds how long Stop waits for the loop (default 5s).
	StopTimeout time.Duration `mapstructure:"stop_timeout" yaml:"stop_timeout"`
	// BufferDelay is the initial fill wait; zero means one analysis window.
	BufferDelay time.Duration `mapstructure:"buffer_delay" yaml:"buffer_delay"`
}

// DefaultServiceConfig returns the headset defaults.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		CycleInterval: 200 * time.Millisecond,
		RetryDelay:    100 * time.Millisecond,
		StopTimeout:   5 * time.Second,
	}
}

// Service runs the acquire-analyze-publish loop on its own goroutine.
// Readers see whole snapshots only: every publish swaps a pointer to a
// freshly built value.
type Service struct {
	source   Source
	analyzer *eeg.Analyzer
	cfg      ServiceConfig
	logger   zerolog.Logger

	latest atomic.Pointer[Snapshot]
	pubMu  sync.Mutex

	onPublish func(Snapshot)
	onResult  func(eeg.BandPower)
	onError   func(error)

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	// stale is the done channel of a loop that was told to stop but had not
	// exited when Stop gave up on it.
	stale chan struct{}
}

// NewService wires a source to an analyzer.
func NewService(source Source, analyzer *eeg.Analyzer, cfg ServiceConfig, logger zerolog.Logger) *Service {
	def := DefaultServiceConfig()
	if cfg.CycleInterval <= 0 {
		cfg.CycleInterval = def.CycleInterval
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = def.RetryDelay
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = def.StopTimeout
	}
	if cfg.BufferDelay <= 0 {
		cfg.BufferDelay = analyzer.Config().WindowDuration
	}

	s := &Service{
		source:   source,
		analyzer: analyzer,
		cfg:      cfg,
		logger:   logger.With().Str("component", "eeg-service").Logger(),
	}
	s.latest.Store(&Snapshot{Status: StatusDisconnected, UpdatedAt: time.Now()})
	return s
}

// SetPublishHandler registers a callback invoked after each publish, on the
// loop goroutine. Set it before Start.
func (s *Service) SetPublishHandler(fn func(Snapshot)) { s.onPublish = fn }

// SetResultHandler registers a callback for each successful analysis.
func (s *Service) SetResultHandler(fn func(eeg.BandPower)) { s.onResult = fn }

// SetErrorHandler registers a callback for terminal loop errors.
func (s *Service) SetErrorHandler(fn func(error)) { s.onError = fn }

// GetData returns the latest published snapshot. It never blocks.
func (s *Service) GetData() Snapshot {
	return *s.latest.Load()
}

// IsRunning reports whether the loop goroutine is alive.
func (s *Service) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runningLocked()
}

// runningLocked reports a live loop that has not been told to stop.
func (s *Service) runningLocked() bool {
	if s.cancel == nil || s.done == nil {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// Start launches the loop. Calling it while the loop is alive is a no-op.
// After a fault the loop has exited and Start launches a fresh one.
func (s *Service) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.runningLocked() {
		s.logger.Info().Msg("Acquisition already running")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	prev := s.stale
	s.stale = nil

	s.logger.Info().Float64("sampleRate", s.source.SampleRate()).Msg("Starting acquisition loop")
	go s.run(ctx, s.done, prev)
}

// Stop signals the loop, waits up to StopTimeout for it to release the
// source and publishes a disconnected snapshot. It is valid in any state.
func (s *Service) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	if s.cancel != nil {
		s.logger.Info().Msg("Stopping acquisition loop")
		s.cancel()
		select {
		case <-s.done:
		case <-time.After(s.cfg.StopTimeout):
			err = ErrStopTimeout
			s.stale = s.done
			s.logger.Warn().Dur("timeout", s.cfg.StopTimeout).Msg("Acquisition loop did not stop in time")
		}
		s.cancel = nil
	}

	s.store(Snapshot{Status: StatusDisconnected, UpdatedAt: time.Now()})
	return err
}

// publish replaces the snapshot unless ctx belongs to a loop that has been
// told to stop.
func (s *Service) publish(ctx context.Context, snap Snapshot) {
	s.pubMu.Lock()
	if ctx.Err() != nil {
		s.pubMu.Unlock()
		return
	}
	s.latest.Store(&snap)
	s.pubMu.Unlock()

	if s.onPublish != nil {
		s.onPublish(snap)
	}
}

func (s *Service) store(snap Snapshot) {
	s.pubMu.Lock()
	s.latest.Store(&snap)
	s.pubMu.Unlock()

	if s.onPublish != nil {
		s.onPublish(snap)
	}
}

// run owns the source until it returns. A loop started while a stopped one
// is still exiting waits for it first, so the source never has two owners.
func (s *Service) run(ctx context.Context, done, prev chan struct{}) {
	defer close(done)

	if prev != nil {
		s.publish(ctx, Snapshot{Status: StatusConnecting, UpdatedAt: time.Now()})
		s.logger.Info().Msg("Waiting for the previous loop to release the source")
		select {
		case <-prev:
		case <-ctx.Done():
			return
		}
	}
	s.loop(ctx)
}

func (s *Service) loop(ctx context.Context) {
	defer s.release()
	defer func() {
		if r := recover(); r != nil {
			s.fail(ctx, "panic", fmt.Errorf("acquisition panic: %v", r))
		}
	}()

	s.publish(ctx, Snapshot{Status: StatusConnecting, UpdatedAt: time.Now()})
	s.logger.Info().Msg("Connecting to EEG source")

	if err := s.source.Connect(ctx); err != nil {
		s.fail(ctx, "connect", err)
		return
	}
	if err := s.source.Start(); err != nil {
		s.fail(ctx, "start", err)
		return
	}

	s.publish(ctx, Snapshot{Status: StatusBuffering, Connected: true, UpdatedAt: time.Now()})
	s.logger.Info().Dur("buffer", s.cfg.BufferDelay).Msg("Connected, buffering")
	if !sleepCtx(ctx, s.cfg.BufferDelay) {
		return
	}
	s.publish(ctx, Snapshot{Status: StatusBuffering, Connected: true, IsReady: true, UpdatedAt: time.Now()})

	need := int(s.source.SampleRate()*s.analyzer.Config().WindowDuration.Seconds() + 0.5)

	for ctx.Err() == nil {
		window, err := s.source.Latest(need)
		if err != nil {
			s.fail(ctx, "read", err)
			return
		}

		result, err := s.analyzer.Analyze(window)
		if errors.Is(err, eeg.ErrInsufficientData) {
			s.logger.Debug().Int("have", window.Samples()).Int("need", need).Msg("Window not full yet")
			if !sleepCtx(ctx, s.cfg.RetryDelay) {
				return
			}
			continue
		}
		if err != nil {
			s.fail(ctx, "analyze", err)
			return
		}

		s.publish(ctx, computedSnapshot(result, time.Now()))
		if s.onResult != nil {
			s.onResult(result)
		}

		if !sleepCtx(ctx, s.cfg.CycleInterval) {
			return
		}
	}
}

func (s *Service) fail(ctx context.Context, stage string, err error) {
	s.logger.Error().Err(err).Str("stage", stage).Msg("Acquisition failed")
	s.publish(ctx, Snapshot{Status: StatusError, UpdatedAt: time.Now()})
	if s.onError != nil {
		s.onError(fmt.Errorf("%s: %w", stage, err))
	}
}

// release always runs when the loop exits, including after a fault.
func (s *Service) release() {
	s.logger.Info().Msg("Closing EEG source")
	if err := s.source.Stop(); err != nil && !errors.Is(err, ErrNotStarted) {
		s.logger.Warn().Err(err).Msg("Stopping source failed")
	}
	if err := s.source.Close(); err != nil {
		s.logger.Warn().Err(err).Msg("Closing source failed")
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
