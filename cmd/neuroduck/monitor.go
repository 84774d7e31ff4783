package main

import (
	"github.com/spf13/cobra"

	"github.com/OskarRg/neurohackathon/internal/app"
	"github.com/OskarRg/neurohackathon/internal/monitor"
)

func monitorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "monitor",
		Short: "Show the live stress index in the terminal",
		Long:  "Runs acquisition only and draws the stress gauge. Press q to quit.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			// The panel owns the terminal; logs go to the file only.
			logger, err := initLogging(cfg, false)
			if err != nil {
				return err
			}
			defer logger.Close()

			reader, err := app.NewReader(cfg, logger.Zerolog())
			if err != nil {
				return err
			}
			reader.Start()
			defer func() {
				if err := reader.Stop(); err != nil {
					logger.Warn("main", "Error disconnecting", map[string]interface{}{"error": err.Error()})
				}
			}()

			ctx, stop := signalContext(cmd.Context())
			defer stop()
			return monitor.Run(ctx, reader, cfg.Source.Device)
		},
	}
}
