package aggregate

import (
	"strings"

	"github.com/shopspring/decimal"
)

// DimensionRow is one row of reference data keyed by its join key
type DimensionRow struct {
	Key    string
	Attrs  map[string]string
	Values map[string]decimal.Decimal
}

// Dimension is a read-only lookup of reference rows. Records are joined on
// the JoinOn dimension.
type Dimension struct {
	Name   string
	JoinOn string
	rows   map[string]DimensionRow
}

// NewDimension indexes rows by key. Later rows with the same key win.
func NewDimension(name, joinOn string, rows []DimensionRow) *Dimension {
	index := make(map[string]DimensionRow, len(rows))
	for _, row := range rows {
		key := strings.TrimSpace(row.Key)
		if key == "" {
			continue
		}
		index[key] = row
	}
	return &Dimension{Name: name, JoinOn: joinOn, rows: index}
}

// Lookup finds a row by key
func (d *Dimension) Lookup(key string) (DimensionRow, bool) {
	row, ok := d.rows[strings.TrimSpace(key)]
	return row, ok
}

// Len returns the number of indexed rows
func (d *Dimension) Len() int {
	return len(d.rows)
}

// Rows returns every indexed row in no particular order
func (d *Dimension) Rows() []DimensionRow {
	rows := make([]DimensionRow, 0, len(d.rows))
	for _, row := range d.rows {
		rows = append(rows, row)
	}
	return rows
}

// Enrich copies the matching row's attributes onto the record. It returns
// false when the join key is null or has no match.
func (d *Dimension) Enrich(r Record) (Record, bool) {
	key, ok := r.Dim(d.JoinOn)
	if !ok {
		return r, false
	}
	row, ok := d.rows[key]
	if !ok {
		return r, false
	}
	return r.With(row.Attrs), true
}

// RejectReason is the tally key used when Enrich fails
func (d *Dimension) RejectReason() string {
	return "missing_dimension:" + d.Name
}
