package trigger

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/OskarRg/neurohackathon/internal/acquisition"
	"github.com/OskarRg/neurohackathon/internal/eeg"
	"github.com/OskarRg/neurohackathon/internal/mentor"
)

// ErrNotRunning is returned by requests made while the loop is stopped.
var ErrNotRunning = errors.New("trigger controller is not running")

// Dispatcher hands interventions to the mentor.
type Dispatcher interface {
	Intervene(ctx context.Context, req mentor.Request) error
	IsSpeaking() bool
}

// Phase is the step of an intervention being reported.
type Phase string

const (
	PhaseStarted  Phase = "started"
	PhaseText     Phase = "text"
	PhaseDone     Phase = "done"
	PhaseRejected Phase = "rejected"
)

// Intervention is one notification about an intervention's progress.
type Intervention struct {
	ID      string         `json:"id"`
	Trigger mentor.Trigger `json:"trigger"`
	Phase   Phase          `json:"phase"`
	Prompt  string         `json:"prompt,omitempty"`
	Text    string         `json:"text,omitempty"`
	Error   string         `json:"error,omitempty"`
	At      time.Time      `json:"at"`
	Took    time.Duration  `json:"took,omitempty"`
}

// View is what the GUI polls: the latest reading plus trigger state.
type View struct {
	Ratio            float64            `json:"ratio"`
	Mood             eeg.Mood           `json:"mood"`
	Connected        bool               `json:"connected"`
	Ready            bool               `json:"ready"`
	SourceStatus     acquisition.Status `json:"source_status"`
	AlphaRel         float64            `json:"alpha_rel"`
	BetaRel          float64            `json:"beta_rel"`
	Level            float64            `json:"level"`
	Normalized       float64            `json:"normalized"`
	State            State              `json:"state"`
	StoicMode        bool               `json:"stoic_mode_active"`
	Locked           bool               `json:"conversation_locked"`
	Speaking         bool               `json:"speaking"`
	LastIntervention time.Time          `json:"last_intervention_time,omitempty"`
	UpdatedAt        time.Time          `json:"updated_at"`
}

// Notifier receives everything the controller wants the outside to know.
// Calls happen on the controller goroutine and must not block.
type Notifier interface {
	NotifyTick(v View)
	NotifyStateChange(v View, e Effect)
	NotifyRecovered(v View, e Effect)
	NotifyIntervention(i Intervention)
}

// ControllerConfig tunes the polling loop.
type ControllerConfig struct {
	Interval     time.Duration `mapstructure:"interval" yaml:"interval"`
	Opening      string        `mapstructure:"opening" yaml:"opening"`
	StressPrompt string        `mapstructure:"stress_prompt" yaml:"stress_prompt"`
	NudgePrompt  string        `mapstructure:"nudge_prompt" yaml:"nudge_prompt"`
}

// DefaultControllerConfig polls at 5 Hz.
func DefaultControllerConfig() ControllerConfig {
	return ControllerConfig{
		Interval:     200 * time.Millisecond,
		Opening:      mentor.ConversationStarter,
		StressPrompt: "My stress index just spiked to %.2f. I am overwhelmed. Help me regain my calm.",
		NudgePrompt:  "I could use a word of wisdom right now.",
	}
}

// Controller polls the acquisition reader and executes the machine's
// effects. The loop goroutine is the only writer of the trigger Status;
// mentor callbacks are posted back onto it.
type Controller struct {
	reader   acquisition.Reader
	mentor   Dispatcher
	notifier Notifier
	cfg      ControllerConfig
	logger   zerolog.Logger
	now      func() time.Time

	machine atomic.Pointer[Machine]
	view    atomic.Pointer[View]
	running atomic.Bool

	inbox chan func()
	done  chan struct{}

	// owned by the loop goroutine
	status Status
	active string
}

// NewController wires the loop. notifier may be nil.
func NewController(reader acquisition.Reader, dispatcher Dispatcher, notifier Notifier, th Thresholds, cfg ControllerConfig, logger zerolog.Logger) (*Controller, error) {
	if err := th.Validate(); err != nil {
		return nil, err
	}
	def := DefaultControllerConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.StressPrompt == "" {
		cfg.StressPrompt = def.StressPrompt
	}
	if cfg.NudgePrompt == "" {
		cfg.NudgePrompt = def.NudgePrompt
	}
	if notifier == nil {
		notifier = nopNotifier{}
	}

	c := &Controller{
		reader:   reader,
		mentor:   dispatcher,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger.With().Str("component", "trigger").Logger(),
		now:      time.Now,
		inbox:    make(chan func(), 64),
		done:     make(chan struct{}),
		status:   InitialStatus(),
	}
	c.machine.Store(NewMachine(th))
	c.view.Store(&View{State: StateZen})
	return c, nil
}

// SetThresholds swaps the banding used from the next tick on.
func (c *Controller) SetThresholds(th Thresholds) error {
	if err := th.Validate(); err != nil {
		return err
	}
	c.machine.Store(NewMachine(th))
	c.logger.Info().Interface("thresholds", th).Msg("Trigger thresholds updated")
	return nil
}

// Thresholds returns the active thresholds.
func (c *Controller) Thresholds() Thresholds {
	return c.machine.Load().Thresholds()
}

// Snapshot returns the last published view. It never blocks.
func (c *Controller) Snapshot() View {
	return *c.view.Load()
}

// Run polls until ctx is cancelled. It may be called once.
func (c *Controller) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return errors.New("trigger controller already started")
	}
	defer close(c.done)

	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	c.logger.Info().Dur("interval", c.cfg.Interval).Msg("Trigger loop started")
	c.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			c.logger.Info().Msg("Trigger loop stopped")
			return nil
		case fn := <-c.inbox:
			fn()
		case <-ticker.C:
			c.tick(ctx)
		}
	}
}

func (c *Controller) tick(ctx context.Context) {
	snap := c.reader.GetData()
	speaking := c.mentor.IsSpeaking()
	now := c.now()

	next, effects := c.machine.Load().Step(c.status, Input{Ratio: snap.StressIndex, Speaking: speaking, Now: now})
	c.status = next
	v := c.publish(snap, speaking, now)

	for _, e := range effects {
		switch e.Kind {
		case EffectStateChanged:
			c.logger.Debug().Str("from", string(e.From)).Str("to", string(e.To)).Float64("level", e.Level).Msg("State changed")
			c.notifier.NotifyStateChange(v, e)
		case EffectIntervene:
			c.logger.Info().Float64("ratio", snap.StressIndex).Msg("High stress detected, running stoic")
			c.dispatch(ctx, mentor.Request{
				Trigger: mentor.TriggerStress,
				Opening: c.cfg.Opening,
				Prompt:  fmt.Sprintf(c.cfg.StressPrompt, snap.StressIndex),
				Force:   e.Forced,
			})
		case EffectRecovered:
			c.logger.Info().Msg("The distress is gone and the mentor is silent. Welcome to ZEN state")
			c.notifier.NotifyRecovered(v, e)
		}
	}
	c.notifier.NotifyTick(c.Snapshot())
}

func (c *Controller) publish(snap acquisition.Snapshot, speaking bool, now time.Time) View {
	v := View{
		Ratio:            snap.StressIndex,
		Mood:             snap.Mood,
		Connected:        snap.Connected,
		Ready:            snap.IsReady,
		SourceStatus:     snap.Status,
		AlphaRel:         snap.AlphaRel,
		BetaRel:          snap.BetaRel,
		Level:            c.status.Level,
		Normalized:       c.status.Normalized,
		State:            c.status.State,
		StoicMode:        c.status.StoicMode,
		Locked:           c.status.Locked,
		Speaking:         speaking,
		LastIntervention: c.status.LastIntervention,
		UpdatedAt:        now,
	}
	c.view.Store(&v)
	return v
}

// refresh republishes the view after a status change between ticks.
func (c *Controller) refresh() {
	v := c.Snapshot()
	v.Locked = c.status.Locked
	v.StoicMode = c.status.StoicMode
	v.LastIntervention = c.status.LastIntervention
	c.view.Store(&v)
}

// dispatch runs on the loop goroutine. The lock is taken before the call so
// a synchronous rejection can release it at once.
func (c *Controller) dispatch(ctx context.Context, req mentor.Request) error {
	id := uuid.NewString()
	started := c.now()

	req.OnResponse = func(text string) {
		c.post(func() {
			c.notifier.NotifyIntervention(Intervention{ID: id, Trigger: req.Trigger, Phase: PhaseText, Text: text, At: c.now()})
		})
	}
	req.OnDone = func(res mentor.Result) {
		c.post(func() {
			if c.active == id {
				c.active = ""
				c.status = Complete(c.status)
				c.refresh()
			}
			i := Intervention{ID: id, Trigger: req.Trigger, Phase: PhaseDone, Text: res.Response, At: c.now(), Took: res.Finished.Sub(res.Started)}
			if res.Err != nil {
				i.Error = res.Err.Error()
			}
			c.logger.Info().Str("trigger", string(req.Trigger)).Msg("My job here is done. Back to monitoring EEG")
			c.notifier.NotifyIntervention(i)
		})
	}

	c.status = Lock(c.status, started)
	c.active = id
	if err := c.mentor.Intervene(ctx, req); err != nil {
		c.active = ""
		c.status = Complete(c.status)
		c.refresh()
		c.logger.Warn().Err(err).Str("trigger", string(req.Trigger)).Msg("Intervention rejected")
		c.notifier.NotifyIntervention(Intervention{ID: id, Trigger: req.Trigger, Phase: PhaseRejected, Prompt: req.Prompt, Error: err.Error(), At: started})
		return err
	}

	c.refresh()
	c.notifier.NotifyIntervention(Intervention{ID: id, Trigger: req.Trigger, Phase: PhaseStarted, Prompt: req.Prompt, At: started})
	return nil
}

// post queues fn for the loop goroutine. After the loop exits fn is dropped.
func (c *Controller) post(fn func()) {
	select {
	case c.inbox <- fn:
	case <-c.done:
	}
}

// call runs fn on the loop goroutine and returns its error.
func (c *Controller) call(ctx context.Context, fn func() error) error {
	if !c.running.Load() {
		return ErrNotRunning
	}
	result := make(chan error, 1)
	select {
	case c.inbox <- func() { result <- fn() }:
	case <-c.done:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-result:
		return err
	case <-c.done:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SubmitUserMessage answers a chat message. It bypasses the cooldown but is
// rejected with mentor.ErrBusy while the mentor is speaking.
func (c *Controller) SubmitUserMessage(ctx context.Context, text string) error {
	if text == "" {
		return errors.New("empty message")
	}
	return c.call(ctx, func() error {
		if c.mentor.IsSpeaking() {
			return mentor.ErrBusy
		}
		return c.dispatch(context.WithoutCancel(ctx), mentor.Request{Trigger: mentor.TriggerChat, Prompt: text, Force: true})
	})
}

// RequestNudge asks for unprompted advice, subject to the mentor cooldown.
func (c *Controller) RequestNudge(ctx context.Context) error {
	return c.call(ctx, func() error {
		if c.mentor.IsSpeaking() {
			return mentor.ErrBusy
		}
		return c.dispatch(context.WithoutCancel(ctx), mentor.Request{Trigger: mentor.TriggerNudge, Prompt: c.cfg.NudgePrompt})
	})
}

type nopNotifier struct{}

func (nopNotifier) NotifyTick(View) {}
func (nopNotifier) NotifyStateChange(View, Effect) {}
func (nopNotifier) NotifyRecovered(View, Effect) {}
func (nopNotifier) NotifyIntervention(Intervention) {}
