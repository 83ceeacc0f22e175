package aggregate

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Cell is one aggregated value for (level, group, period, metric)
type Cell struct {
	Level       string
	Group       []string
	Rollup      bool
	Period      string
	PeriodStart time.Time
	PeriodEnd   time.Time
	Metric      string
	Value       decimal.NullDecimal
}

// IsRollup reports whether the cell is the grand total of its level
func (c Cell) IsRollup() bool {
	return c.Rollup
}

// Result holds the finalized output of an aggregation
type Result struct {
	Cells []Cell
	// Rejections counts reasons; a record rejected on several levels appears
	// once per level here and once in Rejected.
	Rejections Tally
	Rejected   int
	// Fallbacks counts keys filled from a surrogate dimension.
	Fallbacks Tally
	Records   int

	lookup map[string]int
}

func cellKey(level string, rollup bool, group []string, period, metric string) string {
	if rollup {
		group = []string{"\x00rollup"}
	}
	return strings.Join([]string{level, strings.Join(group, keySep), period, metric}, "\x1e")
}

func (r *Result) index() {
	r.lookup = make(map[string]int, len(r.Cells))
	for i, c := range r.Cells {
		r.lookup[cellKey(c.Level, c.Rollup, c.Group, c.Period, c.Metric)] = i
	}
}

// Value looks up a single cell value of a concrete group. ok is false when
// the bucket never received a record.
func (r Result) Value(level string, group []string, period, metric string) (decimal.NullDecimal, bool) {
	return r.lookupValue(cellKey(level, false, group, period, metric))
}

// Total looks up the rollup value of a level
func (r Result) Total(level, period, metric string) (decimal.NullDecimal, bool) {
	return r.lookupValue(cellKey(level, true, nil, period, metric))
}

func (r Result) lookupValue(key string) (decimal.NullDecimal, bool) {
	i, ok := r.lookup[key]
	if !ok {
		return decimal.NullDecimal{}, false
	}
	return r.Cells[i].Value, true
}

// Level returns the cells of one level in result order
func (r Result) Level(level string) []Cell {
	var cells []Cell
	for _, c := range r.Cells {
		if c.Level == level {
			cells = append(cells, c)
		}
	}
	return cells
}

// Groups returns the distinct groups of a level in result order
func (r Result) Groups(level string) [][]string {
	seen := make(map[string]bool)
	var groups [][]string
	for _, c := range r.Cells {
		if c.Level != level {
			continue
		}
		key := cellKey(c.Level, c.Rollup, c.Group, "", "")
		if !seen[key] {
			seen[key] = true
			groups = append(groups, c.Group)
		}
	}
	return groups
}
