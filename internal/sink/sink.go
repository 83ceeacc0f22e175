// Package sink delivers long report rows to their destinations.
package sink

import (
	"context"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"flakereport/internal/reshape"
	"flakereport/internal/warehouse"
	"flakereport/pkg/errors"
)

// Columns is the flat layout shared by every tabular sink
var Columns = []string{
	"report",
	"report_date",
	"aggregation_level",
	"grouping",
	"period",
	"period_start",
	"period_end",
	"metric",
	"value",
	"is_rollup",
}

const dateLayout = "2006-01-02"

// Sink receives the rows of one or more report runs
type Sink interface {
	Name() string
	Write(ctx context.Context, rows []reshape.Row) error
	Close() error
}

// Options carries the collaborators some sinks need
type Options struct {
	Stdout    io.Writer
	Warehouse *warehouse.Service
	S3        S3Config
}

// Open parses a sink spec: stdout, csv:<path>, json:<path>, sqlite:<path>,
// warehouse:<table> or s3://bucket/prefix.
func Open(ctx context.Context, spec string, opts Options) (Sink, error) {
	spec = strings.TrimSpace(spec)

	if spec == "" || spec == "stdout" {
		out := opts.Stdout
		if out == nil {
			out = os.Stdout
		}
		return NewStdout(out), nil
	}

	if strings.HasPrefix(spec, "s3://") {
		bucket, prefix, _ := strings.Cut(strings.TrimPrefix(spec, "s3://"), "/")
		if bucket == "" {
			return nil, invalid(spec, "missing bucket")
		}
		return NewS3(ctx, bucket, prefix, opts.S3)
	}

	kind, target, ok := strings.Cut(spec, ":")
	if !ok || target == "" {
		return nil, invalid(spec, "expected <kind>:<target>")
	}

	switch kind {
	case "csv":
		return NewCSV(target)
	case "json":
		return NewJSON(target)
	case "sqlite":
		return NewSQLite(ctx, target)
	case "warehouse":
		if opts.Warehouse == nil {
			return nil, invalid(spec, "no warehouse connection")
		}
		return NewTable(ctx, opts.Warehouse, target, false)
	default:
		return nil, invalid(spec, "unknown sink kind "+kind)
	}
}

func invalid(spec, reason string) error {
	return errors.New(errors.ErrCodeSinkInvalid, "Invalid sink "+spec+": "+reason).
		WithContext("sink", spec).
		WithSuggestions("Use stdout, csv:<path>, json:<path>, sqlite:<path>, warehouse:<table> or s3://bucket/prefix")
}

func writeFailed(name string, err error) *errors.AppError {
	return errors.Wrap(err, errors.ErrCodeSinkWriteFailed, "Failed to write to "+name).
		WithContext("sink", name)
}

// Record renders a row in Columns order. Null values are empty.
func Record(r reshape.Row) []string {
	return []string{
		r.Report,
		formatDate(r.ReportDate),
		r.Level,
		r.GroupLabel(),
		r.Period,
		formatDate(r.PeriodStart),
		formatDate(r.PeriodEnd),
		r.Metric,
		FormatValue(r),
		strconv.FormatBool(r.Rollup),
	}
}

// FormatValue renders a value, empty when null
func FormatValue(r reshape.Row) string {
	if !r.Value.Valid {
		return ""
	}
	return r.Value.Decimal.String()
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dateLayout)
}
