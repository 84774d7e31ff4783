package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/OskarRg/neurohackathon/internal/app"
)

func runCmd() *cobra.Command {
	var (
		noServer bool
		noWatch  bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the full companion",
		Long:  "Starts acquisition, the stress trigger, the mentor, the GUI server, the journal and its retention job.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if noServer {
				cfg.Server.Enabled = false
			}

			logger, err := initLogging(cfg, true)
			if err != nil {
				return err
			}
			defer logger.Close()

			path := configPath()
			logger.Info("main", "neuroduck starting", map[string]interface{}{
				"version": version,
				"source":  cfg.Source.Kind,
				"config":  path,
				"logFile": logger.GetLogPath(),
			})

			a, err := app.New(cfg, app.Options{ConfigPath: path, Watch: !noWatch, Version: version, Logs: logger}, logger.Zerolog())
			if err != nil {
				logger.Error("main", "Failed to start", err, nil)
				return err
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			err = a.Run(ctx)
			logger.Info("main", "neuroduck stopped", nil)
			return err
		},
	}
	cmd.Flags().BoolVar(&noServer, "no-server", false, "do not serve the GUI API")
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "do not reload the config file on change")
	return cmd
}

// signalContext is shared by the long-running commands.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}
