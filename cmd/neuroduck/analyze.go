package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/OskarRg/neurohackathon/internal/acquisition"
	"github.com/OskarRg/neurohackathon/internal/eeg"
)

func analyzeCmd() *cobra.Command {
	var (
		file   string
		step   time.Duration
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Compute the stress index over a recorded session",
		Long:  "Slides the analysis window over a CSV recording and prints one row per window.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if file == "" {
				file = cfg.Source.Recording
			}
			if file == "" {
				return errors.New("--file is required")
			}

			analyzer, err := eeg.NewAnalyzer(cfg.EEG)
			if err != nil {
				return err
			}
			rec, err := acquisition.LoadRecording(file, cfg.EEG.SampleRate)
			if err != nil {
				return err
			}
			return analyzeRecording(cmd.OutOrStdout(), rec, analyzer, step, asJSON)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "CSV recording (defaults to source.recording)")
	cmd.Flags().DurationVar(&step, "step", time.Second, "distance between consecutive windows")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print one JSON object per window")
	return cmd
}

// windowRow is one analyzed window.
type windowRow struct {
	Offset time.Duration `json:"offset"`
	eeg.BandPower
}

// analyzeRecording writes one row per window. Windows the analyzer rejects
// are reported and skipped.
func analyzeRecording(w io.Writer, rec *acquisition.Recording, analyzer *eeg.Analyzer, step time.Duration, asJSON bool) error {
	size := analyzer.Config().WindowSamples()
	stepSamples := int(step.Seconds() * rec.SampleRate)
	if stepSamples < 1 {
		stepSamples = 1
	}
	if rec.Samples() < size {
		return &eeg.InsufficientDataError{Have: rec.Samples(), Need: size}
	}

	enc := json.NewEncoder(w)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if !asJSON {
		fmt.Fprintln(tw, "OFFSET\tRATIO\tALPHA%\tBETA%\tMOOD")
	}

	err := rec.Windows(size, stepSamples, func(off int, win eeg.Window) error {
		offset := time.Duration(float64(off) / rec.SampleRate * float64(time.Second))
		bp, err := analyzer.Analyze(win)
		if err != nil {
			if asJSON {
				return enc.Encode(map[string]string{"offset": offset.String(), "error": err.Error()})
			}
			_, werr := fmt.Fprintf(tw, "%s\t-\t-\t-\t%v\n", offset, err)
			return werr
		}
		if asJSON {
			return enc.Encode(windowRow{Offset: offset, BandPower: bp})
		}
		_, werr := fmt.Fprintf(tw, "%s\t%.2f\t%.1f\t%.1f\t%s\n",
			offset, bp.StressRatio, bp.AlphaRel*100, bp.BetaRel*100, bp.Mood.Label())
		return werr
	})
	if err != nil {
		return err
	}
	return tw.Flush()
}
