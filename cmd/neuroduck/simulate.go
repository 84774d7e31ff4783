package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/OskarRg/neurohackathon/internal/acquisition"
	"github.com/OskarRg/neurohackathon/internal/app"
	"github.com/OskarRg/neurohackathon/internal/config"
)

func simulateCmd() *cobra.Command {
	var (
		duration time.Duration
		out      string
	)
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Write a synthetic session as a CSV recording",
		Long:  "Renders the configured scenario through the synthetic headset. The output can be replayed with --recording or read by analyze.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if out != "" {
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			if err := simulateRecording(w, cfg, duration); err != nil {
				return err
			}
			if out != "" {
				fmt.Fprintln(cmd.ErrOrStderr(), "Wrote", out)
			}
			return nil
		},
	}
	cmd.Flags().DurationVarP(&duration, "duration", "d", 20*time.Second, "length of the session")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default stdout)")
	return cmd
}

func simulateRecording(w io.Writer, cfg *config.Config, duration time.Duration) error {
	sc, err := app.Scenario(cfg.Source)
	if err != nil {
		return err
	}
	src := acquisition.NewSyntheticSource(cfg.EEG.SampleRate, sc, acquisition.WithNoise(cfg.Source.Noise))
	n := int(duration.Seconds() * cfg.EEG.SampleRate)
	if n < 1 {
		return fmt.Errorf("duration %s is shorter than one sample", duration)
	}
	return acquisition.WriteRecording(w, src.Channels(), src.Generate(0, n))
}
