package aggregate

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Record is one immutable fact row read from the warehouse.
type Record struct {
	ID string
	// EventTime is zero when the source value was missing or malformed.
	EventTime time.Time
	Dims      map[string]string
	Measures  map[string]decimal.Decimal
}

// Dim returns a dimension value; blank values count as null.
func (r Record) Dim(name string) (string, bool) {
	v, ok := r.Dims[name]
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

// Measure returns a measure or zero when absent
func (r Record) Measure(name string) decimal.Decimal {
	return r.Measures[name]
}

// With returns a copy of the record carrying extra dimensions. The receiver
// is left untouched.
func (r Record) With(dims map[string]string) Record {
	merged := make(map[string]string, len(r.Dims)+len(dims))
	for k, v := range r.Dims {
		merged[k] = v
	}
	for k, v := range dims {
		merged[k] = v
	}
	r.Dims = merged
	return r
}

// Predicate decides whether a record qualifies for a metric
type Predicate func(Record) bool

// Predicates is a named predicate set
type Predicates map[string]Predicate

// DimEquals matches records whose dimension equals one of values, case-insensitively.
func DimEquals(dim string, values ...string) Predicate {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[strings.ToLower(v)] = struct{}{}
	}
	return func(r Record) bool {
		v, ok := r.Dim(dim)
		if !ok {
			return false
		}
		_, hit := set[strings.ToLower(v)]
		return hit
	}
}

// DimTrue matches boolean-ish dimension values ("true", "1", "yes", "y").
func DimTrue(dim string) Predicate {
	return DimEquals(dim, "true", "1", "yes", "y", "t")
}

// Not negates a predicate
func Not(p Predicate) Predicate {
	return func(r Record) bool { return !p(r) }
}
