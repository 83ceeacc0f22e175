package reports

import (
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"flakereport/internal/warehouse"
	"flakereport/pkg/errors"
)

// text trims a nullable column; null becomes ""
func text(ns sql.NullString) string {
	if !ns.Valid {
		return ""
	}
	return strings.TrimSpace(ns.String)
}

// flag reads boolean-ish column values of any driver
func flag(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case int:
		return b != 0
	case int64:
		return b != 0
	case float64:
		return b != 0
	case []byte:
		return flag(string(b))
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(b))
		if err == nil {
			return parsed
		}
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "y", "yes":
			return true
		}
	}
	return false
}

func flagString(v any) string {
	return strconv.FormatBool(flag(v))
}

// eventTime parses a date column; zero marks a missing or malformed value
func eventTime(v any) time.Time {
	t, ok := warehouse.ParseDate(v)
	if !ok {
		return time.Time{}
	}
	return t
}

// measure wraps a single nullable measure; null measures are left absent
func measure(name string, v decimal.NullDecimal) map[string]decimal.Decimal {
	if !v.Valid {
		return nil
	}
	return map[string]decimal.Decimal{name: v.Decimal}
}

func scanError(table string, err error) error {
	return errors.Wrap(err, errors.ErrCodeResultParsing, "Failed to scan "+table+" row").
		WithContext("table", table)
}
