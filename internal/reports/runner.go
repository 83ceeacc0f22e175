package reports

import (
	"context"
	"time"

	"github.com/google/uuid"

	"flakereport/internal/aggregate"
	"flakereport/internal/observability"
	"flakereport/internal/performance"
	"flakereport/internal/period"
	"flakereport/internal/privacy"
	"flakereport/internal/reshape"
	"flakereport/internal/warehouse"
	"flakereport/pkg/models"
)

// Source opens a consistent read of the warehouse
type Source interface {
	Snapshot(ctx context.Context, fn func(*warehouse.Snapshot) error) error
}

// RunnerConfig wires a Runner
type RunnerConfig struct {
	Source   Source
	Executor performance.ExecutorConfig
	Logger   *observability.Logger
	Metrics  *observability.Metrics
	Hasher   *privacy.Hasher
	// Settings holds configured per-report overrides keyed by report name.
	Settings map[string]models.Report
}

// Runner executes reports against one source
type Runner struct {
	config RunnerConfig
	logger *observability.Logger
}

// RunResult is the outcome of one report run
type RunResult struct {
	RunID      string
	Report     string
	ReportDate time.Time
	Rows       []reshape.Row
	Rejections aggregate.Tally
	Fallbacks  aggregate.Tally
	Records    int
	// Rejected is the number of records with at least one rejection reason.
	Rejected int
	Filtered int
	Duration time.Duration
	Exec     performance.ExecutorMetrics
}

// NewRunner creates a runner
func NewRunner(config RunnerConfig) *Runner {
	logger := config.Logger
	if logger == nil {
		logger = observability.GetDefaultLogger()
	}
	if config.Executor.MaxWorkers <= 0 {
		config.Executor = performance.DefaultExecutorConfig()
	}
	return &Runner{config: config, logger: logger}
}

// Run resolves the report's windows for reportDate, reads one snapshot and
// returns the stamped long rows. Any configuration error is returned before
// the warehouse is touched.
func (r *Runner) Run(ctx context.Context, report Report, reportDate time.Time) (*RunResult, error) {
	start := time.Now()
	runID := uuid.New().String()
	logger := r.logger.WithFields(map[string]interface{}{
		"run_id":      runID,
		"report":      report.Name(),
		"report_date": reportDate.Format("2006-01-02"),
	})

	params, plan, err := r.prepare(report, reportDate, logger)
	if err != nil {
		return nil, err
	}
	agg, err := aggregate.New(plan)
	if err != nil {
		return nil, err
	}

	logger.InfoWithFields("Reading snapshot", map[string]interface{}{
		"periods":     params.Windows.Names(),
		"lower_bound": params.LowerBound(),
	})

	var data *Dataset
	err = r.config.Source.Snapshot(ctx, func(sn *warehouse.Snapshot) error {
		var loadErr error
		data, loadErr = report.Load(sn, params)
		if loadErr == nil {
			logger.Debugf("Snapshot read with %d queries", sn.Queries())
		}
		return loadErr
	})
	if err != nil {
		return nil, err
	}

	for reason, n := range data.Rejections {
		for i := 0; i < n; i++ {
			agg.Reject(reason)
		}
	}

	exec, err := performance.ParallelAggregate(ctx, agg, data.Records, r.config.Executor)
	if err != nil {
		return nil, err
	}

	res := agg.Result()
	rows := reshape.Stamp(report.Reshape(res, data, params), report.Name(), params.ReportDate)

	result := &RunResult{
		RunID:      runID,
		Report:     report.Name(),
		ReportDate: params.ReportDate,
		Rows:       rows,
		Rejections: res.Rejections,
		Fallbacks:  res.Fallbacks,
		Records:    res.Records,
		Rejected:   res.Rejected,
		Filtered:   data.Filtered,
		Duration:   time.Since(start),
		Exec:       exec,
	}

	if r.config.Metrics != nil {
		r.config.Metrics.ObserveRun(report.Name(), result.Records, result.Rejections, result.Fallbacks.Total(), result.Duration)
	}

	fields := map[string]interface{}{
		"records":    result.Records,
		"filtered":   result.Filtered,
		"rejected":   result.Rejected,
		"fallbacks":  result.Fallbacks.Total(),
		"rows":       len(rows),
		"partitions": exec.Partitions,
		"duration":   result.Duration.String(),
	}
	if result.Rejected > 0 {
		fields["rejections"] = map[string]int(result.Rejections)
		logger.WarnWithFields("Report completed with rejected records", fields)
	} else {
		logger.InfoWithFields("Report completed", fields)
	}

	return result, nil
}

// Prepare resolves a report's settings, windows and plan without reading
// anything, so configuration errors surface before connecting.
func (r *Runner) Prepare(report Report, reportDate time.Time) (Params, aggregate.Plan, error) {
	return r.prepare(report, reportDate, r.logger)
}

func (r *Runner) prepare(report Report, reportDate time.Time, logger *observability.Logger) (Params, aggregate.Plan, error) {
	settings := MergeSettings(report.Defaults(), r.config.Settings[report.Name()])
	if err := validateTables(report.Name(), settings); err != nil {
		return Params{}, aggregate.Plan{}, err
	}

	names, err := period.ParseNames(settings.Periods)
	if err != nil {
		return Params{}, aggregate.Plan{}, err
	}
	windows, err := period.Resolve(reportDate, names)
	if err != nil {
		return Params{}, aggregate.Plan{}, err
	}

	params := Params{
		ReportDate: period.Truncate(reportDate),
		Windows:    windows,
		Settings:   settings,
		Hasher:     r.config.Hasher,
		Logger:     logger,
	}

	plan, err := report.Plan(params)
	if err != nil {
		return Params{}, aggregate.Plan{}, err
	}
	if err := plan.Validate(); err != nil {
		return Params{}, aggregate.Plan{}, err
	}
	return params, plan, nil
}
