package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"flakereport/internal/config"
	"flakereport/internal/observability"
	"flakereport/internal/performance"
	"flakereport/internal/period"
	"flakereport/internal/privacy"
	"flakereport/internal/reports"
	"flakereport/internal/sink"
	"flakereport/internal/ui"
	"flakereport/internal/warehouse"
	"flakereport/pkg/errors"
	"flakereport/pkg/models"
)

var (
	runAsOf             string
	runSinks            []string
	runWorkers          int
	runFailOnRejections bool
	runMetricsFile      string
)

var runCmd = &cobra.Command{
	Use:   "run [report...]",
	Short: "Run reports and write their rows to the configured sinks",
	Long: `Run one or more reports for the reference date and write the long output rows to
every sink. Without arguments every registered report runs.

Sinks: stdout, csv:<path>, json:<path>, sqlite:<path>, warehouse:<table>, s3://bucket/prefix`,
	RunE: runReports,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runAsOf, "as-of", "", "reference date: yesterday, today or YYYY-MM-DD (default from engine.as_of)")
	runCmd.Flags().StringArrayVar(&runSinks, "sink", nil, "output sink, repeatable (default from output.sinks)")
	runCmd.Flags().IntVar(&runWorkers, "workers", 0, "parallel aggregation workers (default from engine.workers)")
	runCmd.Flags().BoolVar(&runFailOnRejections, "fail-on-rejections", false, "exit with status 2 when any record was rejected")
	runCmd.Flags().StringVar(&runMetricsFile, "metrics-file", "", "write prometheus metrics to this textfile after the run")
}

func runReports(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyRunFlags(cfg)
	if err := config.Validate(cfg); err != nil {
		return err
	}
	logger := observability.GetDefaultLogger()

	registry := reports.Builtin()
	if err := registry.CheckSettings(cfg.Reports); err != nil {
		return err
	}
	selected, err := registry.Select(args)
	if err != nil {
		return err
	}

	loc, err := config.Location(cfg)
	if err != nil {
		return err
	}
	reportDate, err := period.ReferenceDate(cfg.Engine.AsOf, time.Now(), loc)
	if err != nil {
		return err
	}

	var hasher *privacy.Hasher
	if cfg.Privacy.Salt != "" {
		if hasher, err = privacy.NewHasher(cfg.Privacy.Salt); err != nil {
			return err
		}
	}

	wc, err := config.WarehouseConfig(cfg)
	if err != nil {
		return err
	}
	svc := warehouse.NewService(wc)

	metrics := observability.NewMetrics()
	runner := reports.NewRunner(reports.RunnerConfig{
		Source: svc,
		Executor: performance.ExecutorConfig{
			MaxWorkers:    cfg.Engine.Workers,
			PartitionSize: cfg.Engine.PartitionSize,
		},
		Logger:   logger,
		Metrics:  metrics,
		Hasher:   hasher,
		Settings: cfg.Reports,
	})

	// every report must plan cleanly before the warehouse is touched
	for _, report := range selected {
		if _, _, err := runner.Prepare(report, reportDate); err != nil {
			return err
		}
	}

	if err := svc.Connect(ctx); err != nil {
		return err
	}
	defer svc.Close()

	sinks, err := openSinks(ctx, cfg, svc, cmd)
	if err != nil {
		return err
	}
	defer closeSinks(sinks, logger)

	rejected := 0
	for _, report := range selected {
		result, err := runner.Run(ctx, report, reportDate)
		if err != nil {
			return err
		}

		for _, s := range sinks {
			if err := s.Write(ctx, result.Rows); err != nil {
				return err
			}
			metrics.ObserveWrite(report.Name(), s.Name(), len(result.Rows))
		}

		rejected += result.Rejected
		summarize(cmd, result)
	}

	if cfg.Metrics.Textfile != "" {
		if err := metrics.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			return errors.Wrap(err, errors.ErrCodeSinkWriteFailed, "Failed to write metrics textfile").
				WithContext("path", cfg.Metrics.Textfile)
		}
	}

	if runFailOnRejections && rejected > 0 {
		return errors.New(errors.ErrCodeRejectedRecords, fmt.Sprintf("%d records were rejected", rejected)).
			WithSuggestions("Check the rejection reasons in the run log")
	}
	return nil
}

func applyRunFlags(cfg *models.Config) {
	if runAsOf != "" {
		cfg.Engine.AsOf = runAsOf
	}
	if len(runSinks) > 0 {
		cfg.Output.Sinks = runSinks
	}
	if runWorkers > 0 {
		cfg.Engine.Workers = runWorkers
	}
	if runMetricsFile != "" {
		cfg.Metrics.Textfile = runMetricsFile
	}
}

func openSinks(ctx context.Context, cfg *models.Config, svc *warehouse.Service, cmd *cobra.Command) ([]sink.Sink, error) {
	opts := sink.Options{
		Stdout:    cmd.OutOrStdout(),
		Warehouse: svc,
		S3: sink.S3Config{
			Endpoint:  cfg.Output.S3.Endpoint,
			Region:    cfg.Output.S3.Region,
			AccessKey: cfg.Output.S3.AccessKey,
			SecretKey: cfg.Output.S3.SecretKey,
		},
	}

	var sinks []sink.Sink
	for _, spec := range cfg.Output.Sinks {
		s, err := sink.Open(ctx, spec, opts)
		if err != nil {
			closeSinks(sinks, observability.GetDefaultLogger())
			return nil, err
		}
		sinks = append(sinks, s)
	}
	return sinks, nil
}

func closeSinks(sinks []sink.Sink, logger *observability.Logger) {
	for _, s := range sinks {
		if err := s.Close(); err != nil {
			logger.Warnf("Failed to close %s sink: %v", s.Name(), err)
		}
	}
}

func summarize(cmd *cobra.Command, result *reports.RunResult) {
	out := cmd.ErrOrStderr()
	ui.ShowSuccess(out, fmt.Sprintf("%s %s: %d rows from %d records, %s rejected",
		result.Report,
		result.ReportDate.Format("2006-01-02"),
		len(result.Rows),
		result.Records,
		ui.FormatCount(result.Rejected),
	))
	for _, reason := range result.Rejections.Reasons() {
		ui.ShowWarning(out, fmt.Sprintf("  %s: %d", reason, result.Rejections[reason]))
	}
	if n := result.Fallbacks.Total(); n > 0 {
		ui.ShowInfo(out, fmt.Sprintf("  keys filled from fallback: %d", n))
	}
}
