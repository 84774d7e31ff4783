package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/OskarRg/neurohackathon/internal/store"
)

func historyCmd() *cobra.Command {
	var (
		limit int
		since time.Duration
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent interventions from the journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			s, err := store.Open(cfg.Store.DataDir)
			if err != nil {
				return err
			}
			defer s.Close()
			return printHistory(cmd.Context(), cmd.OutOrStdout(), s, limit, time.Now().Add(-since))
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of interventions to show")
	cmd.Flags().DurationVar(&since, "since", 24*time.Hour, "summary window")
	return cmd
}

func printHistory(ctx context.Context, w io.Writer, s *store.Store, limit int, since time.Time) error {
	sum, err := s.Summarize(ctx, since)
	if err != nil {
		return err
	}
	ivs, err := s.RecentInterventions(ctx, limit)
	if err != nil {
		return err
	}

	fmt.Fprintln(w, titleStyle.Render("Summary"))
	fmt.Fprintf(w, "  samples        %d\n", sum.Samples)
	fmt.Fprintf(w, "  mean ratio     %.2f\n", sum.MeanRatio)
	fmt.Fprintf(w, "  max ratio      %.2f\n", sum.MaxRatio)
	fmt.Fprintf(w, "  transitions    %d\n", sum.Transitions)
	fmt.Fprintf(w, "  interventions  %d (%d rejected)\n", sum.Interventions, sum.Rejected)

	states := make([]string, 0, len(sum.StateSamples))
	for st := range sum.StateSamples {
		states = append(states, st)
	}
	sort.Strings(states)
	for _, st := range states {
		fmt.Fprintf(w, "  %-14s %d\n", st, sum.StateSamples[st])
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, titleStyle.Render("Interventions"))
	if len(ivs) == 0 {
		fmt.Fprintln(w, dimStyle.Render("  none yet"))
		return nil
	}
	for _, iv := range ivs {
		fmt.Fprintf(w, "  %s  %-6s  %-9s  %s\n",
			iv.StartedAt.Format("2006-01-02 15:04:05"), iv.Trigger, iv.Outcome, iv.Response)
	}
	return nil
}
