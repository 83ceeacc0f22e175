package sink

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"

	"flakereport/internal/common"
	"flakereport/internal/reshape"
	"flakereport/internal/warehouse"
	"flakereport/pkg/errors"
)

// tableColumns mirrors Columns; grouping is reserved in some dialects
var tableColumns = []string{
	"report",
	"report_date",
	"aggregation_level",
	"grouping_label",
	"period",
	"period_start",
	"period_end",
	"metric",
	"value",
	"is_rollup",
}

var tableNameRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*){0,2}$`)

// DefaultTable is the table used by the sqlite sink
const DefaultTable = "report_rows"

// Table writes rows into a SQL table. Rows of a (report, report_date) pair
// replace any previously written rows for that pair in one transaction.
type Table struct {
	svc   *warehouse.Service
	table string
	owned bool
}

// NewTable writes through an existing warehouse connection. When create is
// set the table is created if missing.
func NewTable(ctx context.Context, svc *warehouse.Service, table string, create bool) (*Table, error) {
	if !tableNameRegex.MatchString(table) {
		return nil, invalid("warehouse:"+table, "invalid table name")
	}

	t := &Table{svc: svc, table: table}
	if create {
		if err := t.ensure(ctx); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// NewSQLite opens a local sqlite file and writes into report_rows
func NewSQLite(ctx context.Context, path string) (*Table, error) {
	if !strings.HasPrefix(path, "file:") && path != ":memory:" {
		cleaned, err := common.OutputPath(path)
		if err != nil {
			return nil, writeFailed("sqlite:"+path, err)
		}
		path = cleaned
	}

	db, err := sql.Open(warehouse.DriverSQLite, path)
	if err != nil {
		return nil, writeFailed("sqlite:"+path, err)
	}
	svc := warehouse.NewServiceWithDB(db, warehouse.Config{Driver: warehouse.DriverSQLite, DSN: path})

	t := &Table{svc: svc, table: DefaultTable, owned: true}
	if err := t.ensure(ctx); err != nil {
		_ = svc.Close()
		return nil, err
	}
	return t, nil
}

func (t *Table) ensure(ctx context.Context) error {
	err := t.svc.Write(ctx, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, t.createStatement())
		return err
	})
	if err != nil {
		return writeFailed(t.Name(), err).WithContext("table", t.table)
	}
	return nil
}

func (t *Table) Name() string {
	if t.owned {
		return "sqlite"
	}
	return "warehouse"
}

func (t *Table) Write(ctx context.Context, rows []reshape.Row) error {
	if len(rows) == 0 {
		return nil
	}

	type runKey struct {
		report string
		date   time.Time
	}
	runs := lo.Uniq(lo.Map(rows, func(r reshape.Row, _ int) runKey {
		return runKey{report: r.Report, date: r.ReportDate}
	}))

	driver := t.svc.Driver()
	deleteSQL := warehouse.Rebind(driver, fmt.Sprintf("DELETE FROM %s WHERE report = ? AND report_date = ?", t.table))
	insertSQL := warehouse.Rebind(driver, fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		t.table,
		strings.Join(tableColumns, ", "),
		strings.TrimSuffix(strings.Repeat("?, ", len(tableColumns)), ", "),
	))

	err := t.svc.Write(ctx, func(ctx context.Context, tx *sql.Tx) error {
		for _, run := range runs {
			if _, err := tx.ExecContext(ctx, deleteSQL, run.report, formatDate(run.date)); err != nil {
				return err
			}
		}

		stmt, err := tx.PrepareContext(ctx, insertSQL)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, r := range rows {
			if _, err := stmt.ExecContext(ctx,
				r.Report,
				formatDate(r.ReportDate),
				r.Level,
				r.GroupLabel(),
				r.Period,
				formatDate(r.PeriodStart),
				formatDate(r.PeriodEnd),
				r.Metric,
				r.Value,
				strconv.FormatBool(r.Rollup),
			); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.GetErrorCode(err) == errors.ErrCodeSinkWriteFailed {
			return err
		}
		return writeFailed(t.Name(), err).WithContext("table", t.table).WithContext("rows", len(rows))
	}
	return nil
}

// Close releases the connection when the sink opened it
func (t *Table) Close() error {
	if t.owned {
		return t.svc.Close()
	}
	return nil
}

func (t *Table) createStatement() string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	report TEXT NOT NULL,
	report_date TEXT NOT NULL,
	aggregation_level TEXT NOT NULL,
	grouping_label TEXT NOT NULL,
	period TEXT NOT NULL,
	period_start TEXT,
	period_end TEXT,
	metric TEXT NOT NULL,
	value TEXT,
	is_rollup TEXT NOT NULL
)`, t.table)
}
