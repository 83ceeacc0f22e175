// Package reshape computes derived ratios and turns per-level aggregate
// tables into the long row format written to sinks.
package reshape

import (
	"github.com/shopspring/decimal"
)

// DivisionPrecision is the number of decimal places kept by SafeDivide.
const DivisionPrecision = 6

// Null is the absent value
var Null = decimal.NullDecimal{}

// Valid wraps a decimal as a present value
func Valid(d decimal.Decimal) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: d, Valid: true}
}

// SafeDivide returns num/den, or null when either side is null or den is zero.
func SafeDivide(num, den decimal.NullDecimal) decimal.NullDecimal {
	if !num.Valid || !den.Valid || den.Decimal.IsZero() {
		return Null
	}
	return Valid(num.Decimal.DivRound(den.Decimal, DivisionPrecision))
}

// Growth returns (current-prior)/prior with SafeDivide semantics.
func Growth(current, prior decimal.NullDecimal) decimal.NullDecimal {
	if !current.Valid || !prior.Valid {
		return Null
	}
	return SafeDivide(Valid(current.Decimal.Sub(prior.Decimal)), prior)
}

// Sum adds present values; the result is null only when every input is null.
func Sum(values ...decimal.NullDecimal) decimal.NullDecimal {
	total := Null
	for _, v := range values {
		if !v.Valid {
			continue
		}
		total = Valid(total.Decimal.Add(v.Decimal))
	}
	return total
}
