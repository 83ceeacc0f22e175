package reshape

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"flakereport/internal/aggregate"
)

// Row is one long-format output row
type Row struct {
	Report      string
	ReportDate  time.Time
	Level       string
	Group       []string
	Rollup      bool
	Period      string
	PeriodStart time.Time
	PeriodEnd   time.Time
	Metric      string
	Value       decimal.NullDecimal
}

// GroupLabel joins the group values for display and flat sinks
func (r Row) GroupLabel() string {
	return strings.Join(r.Group, " > ")
}

// Table is the long output of one grouping level
type Table struct {
	Level string
	Rows  []Row
}

// Wide is one (level, group, period) row holding every metric as a column
type Wide struct {
	Level       string
	Group       []string
	Rollup      bool
	Period      string
	PeriodStart time.Time
	PeriodEnd   time.Time
	Values      map[string]decimal.NullDecimal
}

// Get returns a metric value, null when absent
func (w Wide) Get(metric string) decimal.NullDecimal {
	return w.Values[metric]
}

// Wides is an ordered set of wide rows
type Wides []Wide

// Find locates the wide row of the same group as w in another period
func (ws Wides) Find(w Wide, period string) (Wide, bool) {
	for _, o := range ws {
		if o.Period == period && o.Rollup == w.Rollup && sameGroup(o.Group, w.Group) {
			return o, true
		}
	}
	return Wide{}, false
}

// Widen pivots aggregated cells of one level into wide rows, keeping the
// order in which (group, period) pairs first appear.
func Widen(cells []aggregate.Cell, level string) Wides {
	var rows Wides
	index := make(map[string]int)
	for _, c := range cells {
		if c.Level != level {
			continue
		}
		key := strings.Join(c.Group, "\x1f") + "\x1e" + c.Period
		if c.Rollup {
			key = "\x00" + key
		}
		i, ok := index[key]
		if !ok {
			i = len(rows)
			index[key] = i
			rows = append(rows, Wide{
				Level:       c.Level,
				Group:       c.Group,
				Rollup:      c.Rollup,
				Period:      c.Period,
				PeriodStart: c.PeriodStart,
				PeriodEnd:   c.PeriodEnd,
				Values:      make(map[string]decimal.NullDecimal),
			})
		}
		rows[i].Values[c.Metric] = c.Value
	}
	return rows
}

// Unpivot emits one long row per wide row and metric, in metric order.
// Metrics missing from a wide row are emitted as null.
func Unpivot(rows []Wide, metrics []string) Table {
	t := Table{Rows: make([]Row, 0, len(rows)*len(metrics))}
	for _, w := range rows {
		if t.Level == "" {
			t.Level = w.Level
		}
		for _, m := range metrics {
			t.Rows = append(t.Rows, Row{
				Level:       w.Level,
				Group:       w.Group,
				Rollup:      w.Rollup,
				Period:      w.Period,
				PeriodStart: w.PeriodStart,
				PeriodEnd:   w.PeriodEnd,
				Metric:      m,
				Value:       w.Values[m],
			})
		}
	}
	return t
}

// Stack concatenates per-level tables in order, tagging every row with its
// table's aggregation level. The output holds exactly the sum of the input
// row counts.
func Stack(tables ...Table) []Row {
	total := 0
	for _, t := range tables {
		total += len(t.Rows)
	}

	rows := make([]Row, 0, total)
	for _, t := range tables {
		for _, r := range t.Rows {
			r.Level = t.Level
			rows = append(rows, r)
		}
	}
	return rows
}

// Stamp sets the report name and reference date on every row
func Stamp(rows []Row, report string, reportDate time.Time) []Row {
	for i := range rows {
		rows[i].Report = report
		rows[i].ReportDate = reportDate
	}
	return rows
}

func sameGroup(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
