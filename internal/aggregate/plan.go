package aggregate

import (
	"fmt"
	"strings"

	"flakereport/internal/period"
	"flakereport/pkg/errors"
)

// AllGroup labels every key part of rollup rows. Rollups are told apart from a
// group that happens to carry this value by Cell.Rollup.
const AllGroup = "All"

// Kind selects the reduction applied by a metric
type Kind int

const (
	// Sum adds the Field measure
	Sum Kind = iota
	// Count counts qualifying records
	Count
	// Distinct counts distinct values of the Field dimension
	Distinct
	// HourlyQuantile estimates quantiles over per-hour counts of qualifying records
	HourlyQuantile
)

func (k Kind) String() string {
	switch k {
	case Sum:
		return "sum"
	case Count:
		return "count"
	case Distinct:
		return "distinct"
	case HourlyQuantile:
		return "hourly_quantile"
	default:
		return "unknown"
	}
}

// Metric describes one aggregated value
type Metric struct {
	Name  string
	Kind  Kind
	Field string
	// Where lists predicate names that must all hold.
	Where     []string
	Quantiles []float64
}

// OutputNames lists the cell metric names the metric produces
func (m Metric) OutputNames() []string {
	if m.Kind != HourlyQuantile {
		return []string{m.Name}
	}
	names := make([]string, len(m.Quantiles))
	for i, q := range m.Quantiles {
		names[i] = QuantileName(m.Name, q)
	}
	return names
}

// QuantileName formats the cell name of one quantile, e.g. hourly_calls_p95.
func QuantileName(metric string, q float64) string {
	s := strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.3f", q*100), "0"), ".")
	return metric + "_p" + strings.ReplaceAll(s, ".", "_")
}

// Grouping is one aggregation level
type Grouping struct {
	Level string
	Dims  []string
	// Fallbacks maps a key dimension to a surrogate dimension read when the
	// key is null. At most one entry is allowed per level.
	Fallbacks map[string]string
	Rollup    bool
}

// Plan is the full aggregation configuration for a report run
type Plan struct {
	Windows    period.Windows
	Predicates Predicates
	Metrics    []Metric
	Levels     []Grouping
}

// Validate fails fast on configuration errors before any record is read.
func (p Plan) Validate() error {
	if len(p.Windows) == 0 {
		return errors.ConfigError("No period boundaries configured", "periods")
	}
	if len(p.Levels) == 0 {
		return errors.ConfigError("No grouping level configured", "levels")
	}
	if len(p.Metrics) == 0 {
		return errors.ConfigError("No metrics configured", "metrics")
	}

	levels := make(map[string]bool)
	for _, g := range p.Levels {
		if g.Level == "" {
			return errors.ConfigError("Grouping level without a name", "levels")
		}
		if levels[g.Level] {
			return errors.ConfigError(fmt.Sprintf("Duplicate grouping level %q", g.Level), "levels")
		}
		levels[g.Level] = true
		if len(g.Dims) == 0 {
			return errors.ConfigError(fmt.Sprintf("Grouping level %q has no key dimensions", g.Level), "levels."+g.Level)
		}
		if len(g.Fallbacks) > 1 {
			return errors.ConfigError(fmt.Sprintf("Grouping level %q defines more than one fallback", g.Level), "levels."+g.Level)
		}
		for dim := range g.Fallbacks {
			if !contains(g.Dims, dim) {
				return errors.ConfigError(fmt.Sprintf("Fallback for %q is not a key of level %q", dim, g.Level), "levels."+g.Level)
			}
		}
	}

	names := make(map[string]bool)
	for _, m := range p.Metrics {
		for _, out := range m.OutputNames() {
			if out == "" || names[out] {
				return errors.ConfigError(fmt.Sprintf("Duplicate or empty metric name %q", out), "metrics")
			}
			names[out] = true
		}
		if (m.Kind == Sum || m.Kind == Distinct) && m.Field == "" {
			return errors.ConfigError(fmt.Sprintf("Metric %q needs a field", m.Name), "metrics."+m.Name)
		}
		if m.Kind == HourlyQuantile {
			if len(m.Quantiles) == 0 {
				return errors.ConfigError(fmt.Sprintf("Metric %q needs quantiles", m.Name), "metrics."+m.Name)
			}
			for _, q := range m.Quantiles {
				if q <= 0 || q > 1 {
					return errors.ConfigError(fmt.Sprintf("Metric %q has quantile %v outside (0,1]", m.Name, q), "metrics."+m.Name)
				}
			}
		}
		for _, w := range m.Where {
			if _, ok := p.Predicates[w]; !ok {
				return errors.ConfigError(fmt.Sprintf("Metric %q references unknown predicate %q", m.Name, w), "metrics."+m.Name)
			}
		}
	}

	return nil
}

// MetricNames lists every output metric name in declaration order
func (p Plan) MetricNames() []string {
	var names []string
	for _, m := range p.Metrics {
		names = append(names, m.OutputNames()...)
	}
	return names
}

func contains(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}
