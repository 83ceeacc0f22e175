package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"flakereport/internal/config"
	"flakereport/internal/observability"
	"flakereport/internal/ui"
	"flakereport/pkg/errors"
	"flakereport/pkg/models"
)

var (
	cfgFile  string
	logLevel string
	noColor  bool

	rootCmd = &cobra.Command{
		Use:   "flakereport",
		Short: "Period-bucketed warehouse reports",
		Long: `FlakeReport - Aggregates warehouse facts into prior-year, year-to-date, quarter,
month and rolling-week buckets and writes dashboard-ready long rows.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if noColor {
				ui.SetColor(false)
			}
		},
	}
)

// Execute runs the root command and exits non-zero on failure
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		ui.ShowError(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./flakereport.yaml or ~/.flakereport/flakereport.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log.level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
}

// loadConfig reads the configuration and installs the default logger. The
// result is not validated; callers validate what they need.
func loadConfig() (*models.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	logger := observability.NewLogger(config.LoggerConfig(cfg, Version))
	observability.SetDefaultLogger(logger)
	return cfg, nil
}

// exitCode maps errors to process exit codes: 2 for rejected records after
// a completed run, 1 otherwise.
func exitCode(err error) int {
	if errors.GetErrorCode(err) == errors.ErrCodeRejectedRecords {
		return 2
	}
	return 1
}
