// Package mentor runs interventions: it asks the brain for advice and lets
// the voice speak it, one conversation at a time.
package mentor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/OskarRg/neurohackathon/internal/brain"
)

// ConversationStarter opens every stress intervention.
const ConversationStarter = "I sense deep distress in you, young padawan."

var (
	// ErrBusy rejects a request while another intervention is speaking.
	ErrBusy = errors.New("mentor is already speaking")
	// ErrCooldown rejects an unforced request inside the cooldown window.
	ErrCooldown = errors.New("mentor is cooling down")
	// ErrClosed rejects requests after Close.
	ErrClosed = errors.New("mentor is closed")
)

// Trigger names why an intervention started.
type Trigger string

const (
	TriggerStress Trigger = "stress"
	TriggerChat   Trigger = "chat"
	TriggerNudge  Trigger = "nudge"
)

// Speaker is the voice collaborator. Both calls block until playback ends.
type Speaker interface {
	Speak(ctx context.Context, text string)
	PlayFile(ctx context.Context, path string)
}

// Config tunes pacing and sounds.
type Config struct {
	Cooldown         time.Duration `mapstructure:"cooldown" yaml:"cooldown"`
	Linger           time.Duration `mapstructure:"linger" yaml:"linger"`
	Timeout          time.Duration `mapstructure:"timeout" yaml:"timeout"`
	GongPath         string        `mapstructure:"gong_path" yaml:"gong_path"`
	GongPause        time.Duration `mapstructure:"gong_pause" yaml:"gong_pause"`
	StarterAudioPath string        `mapstructure:"starter_audio_path" yaml:"starter_audio_path"`
	Opening          string        `mapstructure:"opening" yaml:"opening"`
}

// DefaultConfig returns the pacing used on stage.
func DefaultConfig() Config {
	return Config{
		Cooldown:  60 * time.Second,
		Linger:    3 * time.Second,
		Timeout:   90 * time.Second,
		GongPause: 1500 * time.Millisecond,
		Opening:   ConversationStarter,
	}
}

// Request describes one intervention.
type Request struct {
	Trigger Trigger
	// Opening is said verbatim before any advice. Empty skips it.
	Opening string
	// Prompt is sent to the brain. Empty skips the advice step.
	Prompt string
	// Force bypasses the cooldown, never the busy check.
	Force bool
	// OnResponse receives each line the mentor is about to say.
	OnResponse func(text string)
	// OnDone runs exactly once after the worker finishes, even after a panic.
	OnDone func(Result)
}

// Result summarizes a finished intervention.
type Result struct {
	Trigger  Trigger
	Prompt   string
	Response string
	Started  time.Time
	Finished time.Time
	Err      error
}

// Mentor guards the single in-flight intervention and the cooldown.
type Mentor struct {
	advisor brain.Advisor
	voice   Speaker
	logger  zerolog.Logger
	now     func() time.Time

	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu               sync.Mutex
	cfg              Config
	speaking         bool
	closed           bool
	lastIntervention time.Time
}

// New returns a Mentor. A nil voice keeps the mentor silent.
func New(advisor brain.Advisor, voice Speaker, cfg Config, logger zerolog.Logger) *Mentor {
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultConfig().Cooldown
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if voice == nil {
		voice = silent{}
	}
	base, cancel := context.WithCancel(context.Background())
	return &Mentor{
		advisor: advisor,
		voice:   voice,
		logger:  logger.With().Str("component", "mentor").Logger(),
		now:     time.Now,
		base:    base,
		cancel:  cancel,
		cfg:     cfg,
	}
}

// IsSpeaking reports whether an intervention is in flight.
func (m *Mentor) IsSpeaking() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.speaking
}

// CooldownRemaining is how long unforced requests will still be refused.
func (m *Mentor) CooldownRemaining() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastIntervention.IsZero() {
		return 0
	}
	left := m.cfg.Cooldown - m.now().Sub(m.lastIntervention)
	if left < 0 {
		return 0
	}
	return left
}

// SetCooldown changes the cooldown for subsequent requests.
func (m *Mentor) SetCooldown(d time.Duration) {
	if d <= 0 {
		return
	}
	m.mu.Lock()
	m.cfg.Cooldown = d
	m.mu.Unlock()
}

// Intervene accepts req and runs it on its own goroutine. Busy or cooling
// down requests are rejected, never queued.
func (m *Mentor) Intervene(ctx context.Context, req Request) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	switch {
	case m.closed:
		m.mu.Unlock()
		return ErrClosed
	case m.speaking:
		m.mu.Unlock()
		return ErrBusy
	case !req.Force && !m.lastIntervention.IsZero() && m.now().Sub(m.lastIntervention) < m.cfg.Cooldown:
		m.mu.Unlock()
		return ErrCooldown
	}
	now := m.now()
	m.lastIntervention = now
	m.speaking = true
	cfg := m.cfg
	m.wg.Add(1)
	m.mu.Unlock()

	m.logger.Info().Str("trigger", string(req.Trigger)).Bool("force", req.Force).Msg("Intervention started")
	go m.run(req, cfg, now)
	return nil
}

func (m *Mentor) run(req Request, cfg Config, started time.Time) {
	res := Result{Trigger: req.Trigger, Prompt: req.Prompt, Started: started}

	defer m.wg.Done()
	defer func() {
		m.mu.Lock()
		m.speaking = false
		m.mu.Unlock()

		res.Finished = m.now()
		if req.OnDone != nil {
			req.OnDone(res)
		}
	}()
	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("intervention panic: %v", r)
			m.logger.Error().Err(res.Err).Msg("AI module error")
		}
	}()

	ctx, cancel := context.WithTimeout(m.base, cfg.Timeout)
	defer cancel()

	if req.Opening != "" {
		m.respond(req, req.Opening)
		m.opening(ctx, cfg, req.Opening)
		res.Response = req.Opening
	}

	if req.Prompt != "" {
		advice := m.advisor.GenerateAdvice(ctx, req.Prompt)
		if advice == "" {
			advice = brain.FallbackAdvice
		}
		m.respond(req, advice)
		m.voice.Speak(ctx, advice)
		res.Response = advice
		sleep(ctx, cfg.Linger)
	}

	res.Err = ctx.Err()
	m.logger.Info().Str("trigger", string(req.Trigger)).Dur("took", m.now().Sub(started)).Msg("Intervention finished")
}

// opening plays the gong, then the recorded starter if present, else speaks it.
func (m *Mentor) opening(ctx context.Context, cfg Config, text string) {
	if cfg.GongPath != "" {
		m.voice.PlayFile(ctx, cfg.GongPath)
		sleep(ctx, cfg.GongPause)
	}
	if cfg.StarterAudioPath != "" {
		if _, err := os.Stat(cfg.StarterAudioPath); err == nil {
			m.voice.PlayFile(ctx, cfg.StarterAudioPath)
			return
		}
		m.logger.Warn().Str("path", cfg.StarterAudioPath).Msg("Could not find starter audio, synthesizing")
	}
	m.voice.Speak(ctx, text)
}

func (m *Mentor) respond(req Request, text string) {
	if req.OnResponse == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error().Interface("panic", r).Msg("Callback to GUI error")
		}
	}()
	req.OnResponse(text)
}

// Close refuses new requests, cancels in-flight work and waits for it.
func (m *Mentor) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.cancel()
	m.wg.Wait()
}

// wait blocks until no intervention is running.
func (m *Mentor) wait() { m.wg.Wait() }

func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

type silent struct{}

func (silent) Speak(context.Context, string) {}
func (silent) PlayFile(context.Context, string) {}
