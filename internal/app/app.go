// Package app wires acquisition, trigger, mentor and their surfaces into
// one running companion.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/OskarRg/neurohackathon/internal/acquisition"
	"github.com/OskarRg/neurohackathon/internal/avatar"
	"github.com/OskarRg/neurohackathon/internal/brain"
	"github.com/OskarRg/neurohackathon/internal/bus"
	"github.com/OskarRg/neurohackathon/internal/config"
	"github.com/OskarRg/neurohackathon/internal/logging"
	"github.com/OskarRg/neurohackathon/internal/mentor"
	"github.com/OskarRg/neurohackathon/internal/metrics"
	"github.com/OskarRg/neurohackathon/internal/scheduler"
	"github.com/OskarRg/neurohackathon/internal/server"
	"github.com/OskarRg/neurohackathon/internal/store"
	"github.com/OskarRg/neurohackathon/internal/trigger"
	"github.com/OskarRg/neurohackathon/internal/tts"
)

// LogFeed is the session logger's recent history and live stream.
type LogFeed interface {
	server.LogHistory
	SetOnLog(fn func(logging.LogEntry))
}

// Options are the runtime knobs that do not live in the config file.
type Options struct {
	ConfigPath string
	Watch      bool
	Version    string
	// Logs, when set, is served at /api/logs and streamed to websocket clients.
	Logs LogFeed
}

// App is the assembled companion.
type App struct {
	cfg    *config.Config
	opts   Options
	logger zerolog.Logger

	bus        *bus.EventBus
	reader     acquisition.Runner
	mentor     *mentor.Mentor
	controller *trigger.Controller
	avatar     *avatar.Controller
	journal    *store.Store
	recorder   *journalRecorder
	scheduler  *scheduler.Scheduler
	server     *server.Server
	watcher    *config.Watcher
}

// New builds every component from cfg. Nothing runs until Run.
func New(cfg *config.Config, opts Options, logger zerolog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &App{
		cfg:    cfg,
		opts:   opts,
		logger: logger.With().Str("component", "app").Logger(),
		bus:    bus.NewEventBus(),
		avatar: avatar.NewController(),
	}

	reader, err := NewReader(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("acquisition: %w", err)
	}
	a.reader = reader

	a.mentor = mentor.New(a.newAdvisor(), a.newVoice(), cfg.Mentor, logger)

	a.controller, err = trigger.NewController(reader, a.mentor, newBusNotifier(a.bus), cfg.Trigger.Thresholds, cfg.Trigger.Controller, logger)
	if err != nil {
		a.mentor.Close()
		return nil, fmt.Errorf("trigger: %w", err)
	}

	if cfg.Store.Enabled {
		a.journal, err = store.Open(cfg.Store.DataDir)
		if err != nil {
			a.mentor.Close()
			return nil, fmt.Errorf("journal: %w", err)
		}
		a.recorder = newJournalRecorder(a.journal, cfg.Store.SampleEvery, logger)
		a.recorder.attach(a.bus)

		a.scheduler, err = scheduler.New(a.journal, cfg.Scheduler, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
	}

	attachMetrics(a.bus)
	attachAvatar(a.bus, a.avatar)

	if cfg.Server.Enabled {
		deps := server.Deps{
			Controller: a.controller,
			Cooldown:   a.mentor,
			Avatar:     a.avatar,
			Version:    opts.Version,
			Checks:     map[string]server.HealthChecker{},
		}
		if a.journal != nil {
			deps.Journal = a.journal
			deps.Checks["journal"] = a.journal
		}
		if opts.Logs != nil {
			deps.Logs = opts.Logs
		}
		a.server = server.New(cfg.Server, deps, logger)
		a.server.Hub().Attach(a.bus)
		if opts.Logs != nil {
			opts.Logs.SetOnLog(a.server.Hub().Log)
		}
	}

	if opts.Watch {
		a.watcher, err = config.NewWatcher(opts.ConfigPath, logger)
		if err != nil {
			a.logger.Warn().Err(err).Msg("Config hot reload disabled")
			a.watcher = nil
		} else {
			a.watcher.OnChange(a.applyConfig)
		}
	}

	return a, nil
}

func (a *App) newAdvisor() brain.Advisor {
	g, err := brain.NewGemini(a.cfg.Brain, a.logger)
	if err != nil {
		a.logger.Warn().Err(err).Msg("Language model unavailable, using fixed advice")
		return brain.Static(brain.FallbackAdvice)
	}
	g.SetLatencyHandler(metrics.ObserveBrain)
	return g
}

func (a *App) newVoice() mentor.Speaker {
	if !a.cfg.TTS.Enabled {
		return nil
	}
	player := tts.NewCommandPlayer(a.cfg.TTS.PlayCommand, a.logger)
	if !player.Available() {
		a.logger.Warn().Strs("command", a.cfg.TTS.PlayCommand).Msg("Audio player not found, the duck stays silent")
		return nil
	}

	provider := tts.NewElevenLabsProvider(a.logger, tts.ElevenLabsConfigFrom(a.cfg.TTS, ""))
	if !provider.IsAvailable() {
		a.logger.Warn().Msg("ELEVENLABS_API_KEY not set, only prerecorded audio will play")
		return tts.NewVoice(nil, player, "", a.logger)
	}
	return tts.NewVoice(provider, player, a.cfg.TTS.VoiceID, a.logger)
}

func (a *App) applyConfig(cfg *config.Config) {
	if err := a.controller.SetThresholds(cfg.Trigger.Thresholds); err != nil {
		a.logger.Warn().Err(err).Msg("Rejected reloaded thresholds")
		return
	}
	a.mentor.SetCooldown(cfg.Mentor.Cooldown)
	a.bus.Publish(bus.NewEvent(bus.EventTypeConfigReloaded, map[string]any{
		"thresholds": cfg.Trigger.Thresholds,
		"cooldown":   cfg.Mentor.Cooldown.String(),
	}))
}

// Bus exposes the event bus for extra subscribers.
func (a *App) Bus() *bus.EventBus { return a.bus }

// Controller exposes the trigger controller.
func (a *App) Controller() *trigger.Controller { return a.controller }

// Run starts everything and blocks until ctx is cancelled or a component
// fails. All components are stopped before it returns.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.reader.Start()
	a.avatar.Start()
	if a.scheduler != nil {
		a.scheduler.Start()
	}

	var (
		wg   sync.WaitGroup
		errs = make(chan error, 2)
	)
	if a.watcher != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.watcher.Run(ctx)
		}()
	}
	if a.server != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := a.server.Start(ctx); err != nil {
				errs <- fmt.Errorf("server: %w", err)
				cancel()
			}
		}()
	}

	a.logger.Info().Str("source", a.cfg.Source.Kind).Msg("Companion running")
	err := a.controller.Run(ctx)
	cancel()
	wg.Wait()
	close(errs)
	for e := range errs {
		err = errors.Join(err, e)
	}

	a.Close()
	return err
}

// Close stops every component. It is safe after a failed New.
func (a *App) Close() {
	if a.opts.Logs != nil && a.server != nil {
		a.opts.Logs.SetOnLog(nil)
	}
	if a.reader != nil {
		if err := a.reader.Stop(); err != nil {
			a.logger.Warn().Err(err).Msg("Stopping acquisition failed")
		}
	}
	a.avatar.Stop()
	if a.mentor != nil {
		a.mentor.Close()
	}
	if a.scheduler != nil {
		a.scheduler.Stop()
	}
	if a.watcher != nil {
		a.watcher.Close()
	}
	if a.recorder != nil {
		a.recorder.close()
	}
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("Closing journal failed")
		}
		a.journal = nil
	}
}
