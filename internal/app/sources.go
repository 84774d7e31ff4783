package app

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/OskarRg/neurohackathon/internal/acquisition"
	"github.com/OskarRg/neurohackathon/internal/config"
	"github.com/OskarRg/neurohackathon/internal/eeg"
	"github.com/OskarRg/neurohackathon/internal/metrics"
)

// Scenario returns the configured scenario or the built-in demo.
func Scenario(cfg config.SourceConfig) (acquisition.Scenario, error) {
	if cfg.Scenario == "" {
		return acquisition.DefaultScenario(), nil
	}
	return acquisition.LoadScenario(cfg.Scenario)
}

// NewReader builds the acquisition side for cfg.Source.Kind. Synthetic and
// replay sources run through the full analysis loop; the scripted reader
// bypasses it.
func NewReader(cfg *config.Config, logger zerolog.Logger) (acquisition.Runner, error) {
	switch cfg.Source.Kind {
	case config.SourceScripted:
		sc, err := Scenario(cfg.Source)
		if err != nil {
			return nil, err
		}
		return acquisition.NewScriptedReader(sc, logger), nil

	case config.SourceSynthetic, config.SourceReplay:
		source, err := newSource(cfg)
		if err != nil {
			return nil, err
		}
		ecfg := cfg.EEG
		ecfg.SampleRate = source.SampleRate()
		analyzer, err := eeg.NewAnalyzer(ecfg)
		if err != nil {
			return nil, err
		}
		svc := acquisition.NewService(source, analyzer, cfg.Acquisition, logger)
		svc.SetResultHandler(func(eeg.BandPower) { metrics.AnalysisCycles.Inc() })
		svc.SetErrorHandler(func(error) { metrics.AnalysisErrors.Inc() })
		return svc, nil
	}
	return nil, fmt.Errorf("%w: unknown source kind %q", config.ErrInvalid, cfg.Source.Kind)
}

func newSource(cfg *config.Config) (acquisition.Source, error) {
	if cfg.Source.Kind == config.SourceReplay {
		rec, err := acquisition.LoadRecording(cfg.Source.Recording, cfg.EEG.SampleRate)
		if err != nil {
			return nil, err
		}
		return acquisition.NewReplaySource(rec, cfg.Source.Loop), nil
	}

	sc, err := Scenario(cfg.Source)
	if err != nil {
		return nil, err
	}
	return acquisition.NewSyntheticSource(cfg.EEG.SampleRate, sc, acquisition.WithNoise(cfg.Source.Noise)), nil
}
