// Command neuroduck runs the EEG stress companion.
package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/OskarRg/neurohackathon/internal/config"
	"github.com/OskarRg/neurohackathon/internal/logging"
)

var (
	// Version information (set at build time)
	version = "dev"

	cfgPath   string
	source    string
	recording string
	verbose   bool

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#0d7377"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6B7280"))
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "neuroduck",
		Short: "neuroduck - a Stoic rubber duck that listens to your brainwaves",
		Long: titleStyle.Render("neuroduck") + `

Reads EEG, estimates a beta/alpha stress index and lets a Stoic mentor
speak up when stress spikes.

Run the companion:     neuroduck run
Watch the raw index:   neuroduck monitor
Record a mock session: neuroduck simulate -o session.csv
Analyze a recording:   neuroduck analyze --file session.csv
` + dimStyle.Render("Use 'neuroduck [command] --help' for more information."),
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file path (default ~/.neuroduck/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&source, "source", "", "sample source: synthetic, scripted or replay")
	rootCmd.PersistentFlags().StringVar(&recording, "recording", "", "CSV recording for the replay source")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "neuroduck %s\n", version)
		},
	})
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(monitorCmd())
	rootCmd.AddCommand(analyzeCmd())
	rootCmd.AddCommand(simulateCmd())
	rootCmd.AddCommand(historyCmd())
	rootCmd.AddCommand(configCmd())

	return rootCmd
}

// loadConfig reads the config file, applies flag overrides and validates.
func loadConfig() (*config.Config, error) {
	config.LoadEnvFiles(config.EnvFiles()...)

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	if source != "" {
		cfg.Source.Kind = source
	}
	if recording != "" {
		cfg.Source.Recording = recording
		if source == "" {
			cfg.Source.Kind = config.SourceReplay
		}
	}
	if verbose {
		cfg.Logging.Level = string(logging.LevelDebug)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// initLogging opens the session logger. console=false keeps the terminal
// free for full-screen views.
func initLogging(cfg *config.Config, console bool) (*logging.Logger, error) {
	l, err := logging.New(&logging.Config{
		LogDir:  cfg.Logging.Dir,
		Level:   logging.ParseLevel(cfg.Logging.Level),
		Console: console && cfg.Logging.Console,
	})
	if err != nil {
		return nil, err
	}
	return l, nil
}
