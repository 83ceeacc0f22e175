package sink

import (
	"bufio"
	"bytes"
	"context"
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flakereport/internal/reshape"
	"flakereport/internal/ui"
	"flakereport/internal/warehouse"
	"flakereport/pkg/errors"
)

var reportDate = time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

func testRows(report string) []reshape.Row {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	return []reshape.Row{
		{
			Report: report, ReportDate: reportDate, Level: "priority_tier", Group: []string{"Enterprise"},
			Period: "current_month", PeriodStart: start, PeriodEnd: reportDate,
			Metric: "closed_won_acv", Value: reshape.Valid(decimal.RequireFromString("1500.25")),
		},
		{
			Report: report, ReportDate: reportDate, Level: "priority_tier", Group: []string{"All"}, Rollup: true,
			Period: "current_month", PeriodStart: start, PeriodEnd: reportDate,
			Metric: "pct_to_target", Value: reshape.Null,
		},
	}
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name     string
		spec     string
		wantName string
		wantCode errors.ErrorCode
	}{
		{name: "default", spec: "", wantName: "stdout"},
		{name: "stdout", spec: "stdout", wantName: "stdout"},
		{name: "csv", spec: "csv:" + filepath.Join(dir, "out", "rows.csv"), wantName: "csv"},
		{name: "json", spec: "json:" + filepath.Join(dir, "rows.jsonl"), wantName: "json"},
		{name: "sqlite", spec: "sqlite:" + filepath.Join(dir, "rows.db"), wantName: "sqlite"},
		{name: "warehouse without connection", spec: "warehouse:report_rows", wantCode: errors.ErrCodeSinkInvalid},
		{name: "unknown kind", spec: "parquet:rows.parquet", wantCode: errors.ErrCodeSinkInvalid},
		{name: "missing target", spec: "csv:", wantCode: errors.ErrCodeSinkInvalid},
		{name: "missing bucket", spec: "s3:///prefix", wantCode: errors.ErrCodeSinkInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Open(context.Background(), tt.spec, Options{Stdout: io.Discard})
			if tt.wantCode != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantCode, errors.GetErrorCode(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, s.Name())
			assert.NoError(t, s.Close())
		})
	}
}

func TestRecord(t *testing.T) {
	rows := testRows("opportunity_acv")
	assert.Equal(t, []string{
		"opportunity_acv", "2024-03-15", "priority_tier", "Enterprise",
		"current_month", "2024-03-01", "2024-03-15", "closed_won_acv", "1500.25", "false",
	}, Record(rows[0]))
	assert.Equal(t, "", Record(rows[1])[8])
	assert.Equal(t, "true", Record(rows[1])[9])
}

func TestCSVSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rows.csv")
	s, err := NewCSV(path)
	require.NoError(t, err)

	require.NoError(t, s.Write(context.Background(), testRows("opportunity_acv")))
	require.NoError(t, s.Write(context.Background(), testRows("feature_usage")[:1]))
	require.NoError(t, s.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.Equal(t, Columns, records[0])
	assert.Equal(t, "1500.25", records[1][8])
	assert.Equal(t, "", records[2][8])
	assert.Equal(t, "feature_usage", records[3][0])
}

func TestJSONSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rows.jsonl")
	s, err := NewJSON(path)
	require.NoError(t, err)
	require.NoError(t, s.Write(context.Background(), testRows("opportunity_acv")))
	require.NoError(t, s.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines []map[string]any
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var m map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &m))
		lines = append(lines, m)
	}
	require.Len(t, lines, 2)
	assert.Equal(t, "1500.25", lines[0]["value"])
	assert.Equal(t, []any{"Enterprise"}, lines[0]["grouping"])
	assert.Equal(t, false, lines[0]["rollup"])
	assert.Equal(t, true, lines[1]["rollup"])
	assert.Nil(t, lines[1]["value"])
	assert.Equal(t, "priority_tier", lines[1]["aggregation_level"])
}

func TestSQLiteSinkReplacesRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rows.db")
	ctx := context.Background()

	s, err := NewSQLite(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.Write(ctx, testRows("opportunity_acv")))
	require.NoError(t, s.Write(ctx, testRows("opportunity_acv")))
	require.NoError(t, s.Write(ctx, testRows("feature_usage")))
	require.NoError(t, s.Close())

	db, err := sql.Open(warehouse.DriverSQLite, path)
	require.NoError(t, err)
	defer db.Close()

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM report_rows WHERE report = 'opportunity_acv'").Scan(&count))
	assert.Equal(t, 2, count)

	var value sql.NullString
	var rollup string
	require.NoError(t, db.QueryRow("SELECT value, is_rollup FROM report_rows WHERE report = 'feature_usage' AND metric = 'pct_to_target'").Scan(&value, &rollup))
	assert.False(t, value.Valid)
	assert.Equal(t, "true", rollup)

	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM report_rows").Scan(&count))
	assert.Equal(t, 4, count)
}

func TestWarehouseTableSink(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	svc := warehouse.NewServiceWithDB(db, warehouse.Config{Driver: warehouse.DriverSnowflake, Timeout: 5 * time.Second})
	s, err := NewTable(context.Background(), svc, "ANALYTICS.MART.REPORT_ROWS", false)
	require.NoError(t, err)
	assert.Equal(t, "warehouse", s.Name())

	rows := testRows("revenue_hierarchy")
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM ANALYTICS.MART.REPORT_ROWS").
		WithArgs("revenue_hierarchy", "2024-03-15").
		WillReturnResult(sqlmock.NewResult(0, 0))
	prep := mock.ExpectPrepare("INSERT INTO ANALYTICS.MART.REPORT_ROWS")
	prep.ExpectExec().
		WithArgs("revenue_hierarchy", "2024-03-15", "priority_tier", "Enterprise", "current_month", "2024-03-01", "2024-03-15", "closed_won_acv", "1500.25", "false").
		WillReturnResult(sqlmock.NewResult(1, 1))
	prep.ExpectExec().
		WithArgs("revenue_hierarchy", "2024-03-15", "priority_tier", "All", "current_month", "2024-03-01", "2024-03-15", "pct_to_target", nil, "true").
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	require.NoError(t, s.Write(context.Background(), rows))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWarehouseTableSinkFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	svc := warehouse.NewServiceWithDB(db, warehouse.Config{Driver: warehouse.DriverSnowflake})
	s, err := NewTable(context.Background(), svc, "report_rows", false)
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM report_rows").WillReturnError(fmt.Errorf("insufficient privileges"))
	mock.ExpectRollback()

	err = s.Write(context.Background(), testRows("revenue_hierarchy"))
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeSinkWriteFailed, errors.GetErrorCode(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTableNameValidation(t *testing.T) {
	svc := warehouse.NewService(warehouse.Config{})
	_, err := NewTable(context.Background(), svc, "rows; DROP TABLE x", false)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeSinkInvalid, errors.GetErrorCode(err))
}

type fakePutter struct {
	inputs []*s3.PutObjectInput
	bodies [][]byte
	err    error
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, _ := io.ReadAll(in.Body)
	f.inputs = append(f.inputs, in)
	f.bodies = append(f.bodies, body)
	return &s3.PutObjectOutput{}, nil
}

func TestS3Sink(t *testing.T) {
	putter := &fakePutter{}
	s := newS3WithClient(putter, "reports", "daily")

	rows := append(testRows("opportunity_acv"), testRows("feature_usage")...)
	require.NoError(t, s.Write(context.Background(), rows))

	assert.Equal(t, []string{"daily/opportunity_acv/2024-03-15.csv", "daily/feature_usage/2024-03-15.csv"}, s.Keys())
	require.Len(t, putter.inputs, 2)
	assert.Equal(t, "reports", *putter.inputs[0].Bucket)
	assert.Equal(t, "text/csv", *putter.inputs[0].ContentType)
	assert.Equal(t, "2", putter.inputs[0].Metadata["rows"])
	assert.Len(t, putter.inputs[0].Metadata["checksum"], 64)

	records, err := csv.NewReader(bytes.NewReader(putter.bodies[1])).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "feature_usage", records[1][0])
}

func TestS3SinkFailure(t *testing.T) {
	s := newS3WithClient(&fakePutter{err: fmt.Errorf("access denied")}, "reports", "")
	err := s.Write(context.Background(), testRows("opportunity_acv"))
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeSinkWriteFailed, errors.GetErrorCode(err))
	assert.Contains(t, err.Error(), "opportunity_acv/2024-03-15.csv")
}

func TestStdoutSink(t *testing.T) {
	ui.SetColor(false)

	var buf bytes.Buffer
	s := NewStdout(&buf)
	require.NoError(t, s.Write(context.Background(), testRows("opportunity_acv")))

	output := buf.String()
	assert.Contains(t, output, "closed_won_acv")
	assert.Contains(t, output, "1500.25")
	assert.Contains(t, output, "null")
	assert.Contains(t, output, "Enterprise")

	buf.Reset()
	require.NoError(t, s.Write(context.Background(), nil))
	assert.Empty(t, buf.String())
}
