package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher reloads the config file when it changes on disk.
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	debounce time.Duration
	logger   zerolog.Logger

	mu       sync.Mutex
	onChange func(*Config)
}

// NewWatcher watches path's directory so editors that replace the file
// are still seen.
func NewWatcher(path string, logger zerolog.Logger) (*Watcher, error) {
	if path == "" {
		path = DefaultPath()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return nil, err
	}

	return &Watcher{
		path:     abs,
		watcher:  fw,
		debounce: 200 * time.Millisecond,
		logger:   logger.With().Str("component", "config-watcher").Logger(),
	}, nil
}

// OnChange registers the callback for valid reloads.
func (w *Watcher) OnChange(fn func(*Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChange = fn
}

// Run watches until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	var timer *time.Timer
	fire := make(chan struct{}, 1)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})
		case <-fire:
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn().Err(err).Msg("Config watcher error")
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		w.logger.Warn().Err(err).Str("path", w.path).Msg("Ignoring invalid config change")
		return
	}

	w.logger.Info().Str("path", w.path).Msg("Configuration reloaded")
	w.mu.Lock()
	fn := w.onChange
	w.mu.Unlock()
	if fn != nil {
		fn(cfg)
	}
}

// Close stops the underlying watcher
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
