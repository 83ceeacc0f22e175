package reports

import (
	"github.com/shopspring/decimal"

	"flakereport/internal/aggregate"
	"flakereport/internal/period"
	"flakereport/internal/reshape"
)

// deriver adds derived metrics to one wide row; rows holds every row of the
// same level for cross-period lookups.
type deriver func(w reshape.Wide, rows reshape.Wides)

// levelTable widens one level, derives metrics on every row and unpivots in
// base-then-derived metric order.
func levelTable(res aggregate.Result, level string, base, derived []string, derive deriver) reshape.Table {
	rows := reshape.Widen(res.Cells, level)
	if derive != nil {
		for _, w := range rows {
			derive(w, rows)
		}
	}

	metrics := make([]string, 0, len(base)+len(derived))
	metrics = append(metrics, base...)
	metrics = append(metrics, derived...)

	t := reshape.Unpivot(rows, metrics)
	t.Level = level
	return t
}

// yoyGrowth compares current_year with the same span of the prior year.
// Other periods have no growth value.
func yoyGrowth(w reshape.Wide, rows reshape.Wides, metric string) decimal.NullDecimal {
	if w.Period != string(period.CurrentYear) {
		return reshape.Null
	}
	prior, ok := rows.Find(w, string(period.PriorYearToDate))
	if !ok {
		return reshape.Null
	}
	return reshape.Growth(w.Get(metric), prior.Get(metric))
}
