// Package config provides configuration management for neuroduck
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/OskarRg/neurohackathon/internal/acquisition"
	"github.com/OskarRg/neurohackathon/internal/brain"
	"github.com/OskarRg/neurohackathon/internal/eeg"
	"github.com/OskarRg/neurohackathon/internal/mentor"
	"github.com/OskarRg/neurohackathon/internal/scheduler"
	"github.com/OskarRg/neurohackathon/internal/server"
	"github.com/OskarRg/neurohackathon/internal/trigger"
	"github.com/OskarRg/neurohackathon/internal/tts"
)

// EnvPrefix prefixes every environment override, e.g. NEURODUCK_TRIGGER_THRESHOLDS_STOIC.
const EnvPrefix = "NEURODUCK"

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Source kinds.
const (
	SourceSynthetic = "synthetic"
	SourceScripted  = "scripted"
	SourceReplay    = "replay"
)

// Config holds all application configuration
type Config struct {
	Source      SourceConfig              `mapstructure:"source" yaml:"source"`
	EEG         eeg.Config                `mapstructure:"eeg" yaml:"eeg"`
	Acquisition acquisition.ServiceConfig `mapstructure:"acquisition" yaml:"acquisition"`
	Trigger     TriggerConfig             `mapstructure:"trigger" yaml:"trigger"`
	Mentor      mentor.Config             `mapstructure:"mentor" yaml:"mentor"`
	Brain       brain.Config              `mapstructure:"brain" yaml:"brain"`
	TTS         tts.Config                `mapstructure:"tts" yaml:"tts"`
	Server      server.Config             `mapstructure:"server" yaml:"server"`
	Store       StoreConfig               `mapstructure:"store" yaml:"store"`
	Scheduler   scheduler.Config          `mapstructure:"scheduler" yaml:"scheduler"`
	Logging     LoggingConfig             `mapstructure:"logging" yaml:"logging"`
}

// SourceConfig selects where samples come from
type SourceConfig struct {
	Kind      string  `mapstructure:"kind" yaml:"kind"` // synthetic, scripted, replay
	Device    string  `mapstructure:"device" yaml:"device"`
	Scenario  string  `mapstructure:"scenario" yaml:"scenario"`   // YAML phases; empty uses the built-in demo
	Recording string  `mapstructure:"recording" yaml:"recording"` // CSV for replay
	Loop      bool    `mapstructure:"loop" yaml:"loop"`
	Noise     float64 `mapstructure:"noise" yaml:"noise"`
}

// TriggerConfig combines banding with loop tuning
type TriggerConfig struct {
	Thresholds trigger.Thresholds       `mapstructure:"thresholds" yaml:"thresholds"`
	Controller trigger.ControllerConfig `mapstructure:"controller" yaml:"controller"`
}

// StoreConfig configures the session journal
type StoreConfig struct {
	Enabled     bool          `mapstructure:"enabled" yaml:"enabled"`
	DataDir     string        `mapstructure:"data_dir" yaml:"data_dir"`
	SampleEvery time.Duration `mapstructure:"sample_every" yaml:"sample_every"`
}

// LoggingConfig configures the logger
type LoggingConfig struct {
	Level   string `mapstructure:"level" yaml:"level"`
	Dir     string `mapstructure:"dir" yaml:"dir"`
	Console bool   `mapstructure:"console" yaml:"console"`
}

// Dir returns ~/.neuroduck.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".neuroduck"
	}
	return filepath.Join(home, ".neuroduck")
}

// DefaultPath returns ~/.neuroduck/config.yaml.
func DefaultPath() string {
	return filepath.Join(Dir(), "config.yaml")
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() *Config {
	dir := Dir()
	return &Config{
		Source: SourceConfig{
			Kind:   SourceSynthetic,
			Device: "BA MINI 052",
			Noise:  0.05,
		},
		EEG:         eeg.DefaultConfig(),
		Acquisition: acquisition.DefaultServiceConfig(),
		Trigger: TriggerConfig{
			Thresholds: trigger.DefaultThresholds(),
			Controller: trigger.DefaultControllerConfig(),
		},
		Mentor:  mentor.DefaultConfig(),
		Brain:   brain.DefaultConfig(),
		TTS:     tts.DefaultConfig(),
		Server:  server.DefaultConfig(),
		Store: StoreConfig{
			Enabled:     true,
			DataDir:     dir,
			SampleEvery: time.Second,
		},
		Scheduler: scheduler.DefaultConfig(),
		Logging: LoggingConfig{
			Level:   "info",
			Dir:     filepath.Join(dir, "logs"),
			Console: true,
		},
	}
}

// Load reads path (or the default path when empty) over the defaults and
// applies NEURODUCK_* environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	v := viper.New()
	v.SetConfigType("yaml")

	// Seeding viper with the defaults registers every key, which is what
	// lets AutomaticEnv override keys absent from the file.
	base, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("encode defaults: %w", err)
	}
	if err := v.ReadConfig(bytes.NewReader(base)); err != nil {
		return nil, fmt.Errorf("read defaults: %w", err)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("brain.api_key", EnvPrefix+"_BRAIN_API_KEY", "GEMINI_API_KEY")

	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// Save writes cfg as YAML to path (or the default path when empty). API keys
// are not written.
func Save(cfg *Config, path string) error {
	if path == "" {
		path = DefaultPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	out := *cfg
	out.Brain.APIKey = ""
	data, err := yaml.Marshal(&out)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// Validate checks every section.
func (c *Config) Validate() error {
	switch c.Source.Kind {
	case SourceSynthetic, SourceScripted:
	case SourceReplay:
		if c.Source.Recording == "" {
			return fmt.Errorf("%w: replay source needs source.recording", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown source kind %q", ErrInvalid, c.Source.Kind)
	}
	if c.Source.Noise < 0 {
		return fmt.Errorf("%w: source.noise must not be negative", ErrInvalid)
	}
	if err := c.EEG.Validate(); err != nil {
		return err
	}
	if err := c.Trigger.Thresholds.Validate(); err != nil {
		return err
	}
	if c.Mentor.Cooldown < 0 {
		return fmt.Errorf("%w: mentor.cooldown must not be negative", ErrInvalid)
	}
	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		return fmt.Errorf("%w: server.port %d out of range", ErrInvalid, c.Server.Port)
	}
	if c.Store.Enabled && c.Store.DataDir == "" {
		return fmt.Errorf("%w: store.data_dir is required", ErrInvalid)
	}
	return nil
}
