package sink

import (
	"context"
	"io"

	"flakereport/internal/reshape"
	"flakereport/internal/ui"
)

// Stdout prints rows as an aligned table
type Stdout struct {
	out io.Writer
}

// NewStdout creates a table sink
func NewStdout(out io.Writer) *Stdout {
	return &Stdout{out: out}
}

func (s *Stdout) Name() string { return "stdout" }

func (s *Stdout) Write(_ context.Context, rows []reshape.Row) error {
	if len(rows) == 0 {
		return nil
	}

	table := ui.NewTable(s.out)
	table.AddHeader("report", "date", "level", "grouping", "period", "metric", "value")
	for _, r := range rows {
		value := FormatValue(r)
		if !r.Value.Valid {
			value = ui.FormatNull()
		}
		table.AddRow(
			r.Report,
			formatDate(r.ReportDate),
			r.Level,
			ui.FormatGroup(r.GroupLabel(), r.Rollup),
			r.Period,
			r.Metric,
			value,
		)
	}
	table.Render()
	return nil
}

func (s *Stdout) Close() error { return nil }
