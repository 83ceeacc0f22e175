package sink

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"os"

	"github.com/shopspring/decimal"

	"flakereport/internal/common"
	"flakereport/internal/reshape"
)

// CSV writes rows to a local CSV file with a single header
type CSV struct {
	path   string
	file   *os.File
	writer *csv.Writer
}

// NewCSV creates (or truncates) the file at path
func NewCSV(path string) (*CSV, error) {
	file, err := create(path)
	if err != nil {
		return nil, writeFailed("csv:"+path, err)
	}

	w := csv.NewWriter(file)
	if err := w.Write(Columns); err != nil {
		_ = file.Close()
		return nil, writeFailed("csv:"+path, err)
	}
	return &CSV{path: path, file: file, writer: w}, nil
}

func (c *CSV) Name() string { return "csv" }

func (c *CSV) Write(_ context.Context, rows []reshape.Row) error {
	for _, r := range rows {
		if err := c.writer.Write(Record(r)); err != nil {
			return writeFailed("csv:"+c.path, err)
		}
	}
	c.writer.Flush()
	if err := c.writer.Error(); err != nil {
		return writeFailed("csv:"+c.path, err)
	}
	return nil
}

func (c *CSV) Close() error {
	c.writer.Flush()
	if err := c.writer.Error(); err != nil {
		_ = c.file.Close()
		return err
	}
	return c.file.Close()
}

// jsonRow is the JSON lines shape of a row; null values encode as null
type jsonRow struct {
	Report      string              `json:"report"`
	ReportDate  string              `json:"report_date"`
	Level       string              `json:"aggregation_level"`
	Grouping    []string            `json:"grouping"`
	Rollup      bool                `json:"rollup"`
	Period      string              `json:"period"`
	PeriodStart string              `json:"period_start,omitempty"`
	PeriodEnd   string              `json:"period_end,omitempty"`
	Metric      string              `json:"metric"`
	Value       decimal.NullDecimal `json:"value"`
}

// JSON writes one JSON object per row
type JSON struct {
	path    string
	file    *os.File
	buf     *bufio.Writer
	encoder *json.Encoder
}

// NewJSON creates (or truncates) the file at path
func NewJSON(path string) (*JSON, error) {
	file, err := create(path)
	if err != nil {
		return nil, writeFailed("json:"+path, err)
	}
	buf := bufio.NewWriter(file)
	return &JSON{path: path, file: file, buf: buf, encoder: json.NewEncoder(buf)}, nil
}

func (j *JSON) Name() string { return "json" }

func (j *JSON) Write(_ context.Context, rows []reshape.Row) error {
	for _, r := range rows {
		row := jsonRow{
			Report:      r.Report,
			ReportDate:  formatDate(r.ReportDate),
			Level:       r.Level,
			Grouping:    r.Group,
			Rollup:      r.Rollup,
			Period:      r.Period,
			PeriodStart: formatDate(r.PeriodStart),
			PeriodEnd:   formatDate(r.PeriodEnd),
			Metric:      r.Metric,
			Value:       r.Value,
		}
		if err := j.encoder.Encode(row); err != nil {
			return writeFailed("json:"+j.path, err)
		}
	}
	if err := j.buf.Flush(); err != nil {
		return writeFailed("json:"+j.path, err)
	}
	return nil
}

func (j *JSON) Close() error {
	if err := j.buf.Flush(); err != nil {
		_ = j.file.Close()
		return err
	}
	return j.file.Close()
}

func create(path string) (*os.File, error) {
	cleaned, err := common.OutputPath(path)
	if err != nil {
		return nil, err
	}
	return os.OpenFile(cleaned, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, common.FilePermissionNormal) // #nosec G304 - path comes from the operator's sink flag
}
