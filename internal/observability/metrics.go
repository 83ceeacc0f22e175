package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"flakereport/internal/common"
)

// Metrics holds the run counters exported after each invocation
type Metrics struct {
	registry *prometheus.Registry

	Records     *prometheus.CounterVec
	Rejections  *prometheus.CounterVec
	Fallbacks   *prometheus.CounterVec
	RowsWritten *prometheus.CounterVec
	RunDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers the run metrics on a private registry
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flakereport_records_total",
			Help: "Fact records read from the warehouse",
		}, []string{"report"}),
		Rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flakereport_rejections_total",
			Help: "Records rejected from one or more aggregations",
		}, []string{"report", "reason"}),
		Fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flakereport_fallbacks_total",
			Help: "Group keys filled from a fallback dimension",
		}, []string{"report"}),
		RowsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flakereport_rows_written_total",
			Help: "Output rows written to sinks",
		}, []string{"report", "sink"}),
		RunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "flakereport_run_duration_seconds",
			Help:    "Wall time of one report run",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 300, 900},
		}, []string{"report"}),
	}

	m.registry.MustRegister(m.Records, m.Rejections, m.Fallbacks, m.RowsWritten, m.RunDuration)
	return m
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveRun records the outcome of one report run
func (m *Metrics) ObserveRun(report string, records int, rejections map[string]int, fallbacks int, elapsed time.Duration) {
	m.Records.WithLabelValues(report).Add(float64(records))
	for reason, n := range rejections {
		m.Rejections.WithLabelValues(report, reason).Add(float64(n))
	}
	m.Fallbacks.WithLabelValues(report).Add(float64(fallbacks))
	m.RunDuration.WithLabelValues(report).Observe(elapsed.Seconds())
}

// ObserveWrite records rows delivered to a sink
func (m *Metrics) ObserveWrite(report, sink string, rows int) {
	m.RowsWritten.WithLabelValues(report, sink).Add(float64(rows))
}

// WriteTextfile writes the registry in the node_exporter textfile format
func (m *Metrics) WriteTextfile(path string) error {
	cleaned, err := common.OutputPath(path)
	if err != nil {
		return err
	}
	return prometheus.WriteToTextfile(cleaned, m.registry)
}
