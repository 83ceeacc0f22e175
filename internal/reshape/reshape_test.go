package reshape

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flakereport/internal/aggregate"
)

func dec(v int64) decimal.NullDecimal {
	return Valid(decimal.NewFromInt(v))
}

func TestSafeDivide(t *testing.T) {
	tests := []struct {
		name     string
		num      decimal.NullDecimal
		den      decimal.NullDecimal
		expected decimal.NullDecimal
	}{
		{"zero denominator", dec(500), dec(0), Null},
		{"zero over zero", dec(0), dec(0), Null},
		{"null denominator", dec(10), Null, Null},
		{"null numerator", Null, dec(10), Null},
		{"zero numerator", dec(0), dec(7), dec(0)},
		{"plain ratio", dec(1), dec(4), Valid(decimal.RequireFromString("0.25"))},
		{"rounded", dec(1), dec(3), Valid(decimal.RequireFromString("0.333333"))},
		{"negative", dec(-50), dec(200), Valid(decimal.RequireFromString("-0.25"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SafeDivide(tt.num, tt.den)
			require.Equal(t, tt.expected.Valid, got.Valid)
			if got.Valid {
				assert.True(t, tt.expected.Decimal.Equal(got.Decimal), got.Decimal.String())
			}
		})
	}
}

func TestSafeDivideByZeroForManyNumerators(t *testing.T) {
	for _, x := range []int64{-1000, -1, 0, 1, 999999} {
		assert.False(t, SafeDivide(dec(x), dec(0)).Valid)
	}
}

func TestGrowth(t *testing.T) {
	g := Growth(dec(150), dec(100))
	require.True(t, g.Valid)
	assert.True(t, decimal.RequireFromString("0.5").Equal(g.Decimal))

	g = Growth(dec(50), dec(100))
	require.True(t, g.Valid)
	assert.True(t, decimal.RequireFromString("-0.5").Equal(g.Decimal))

	assert.False(t, Growth(dec(150), dec(0)).Valid)
	assert.False(t, Growth(Null, dec(100)).Valid)
	assert.False(t, Growth(dec(1), Null).Valid)
}

func TestSum(t *testing.T) {
	assert.False(t, Sum().Valid)
	assert.False(t, Sum(Null, Null).Valid)
	s := Sum(dec(1), Null, dec(2))
	require.True(t, s.Valid)
	assert.True(t, decimal.NewFromInt(3).Equal(s.Decimal))
}

func TestWidenAndUnpivot(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cells := []aggregate.Cell{
		{Level: "family", Group: []string{"Cloud"}, Period: "current_year", PeriodStart: start, Metric: "revenue", Value: dec(10)},
		{Level: "family", Group: []string{"Cloud"}, Period: "current_year", PeriodStart: start, Metric: "customers", Value: dec(2)},
		{Level: "family", Group: []string{"Cloud"}, Period: "prior_year", Metric: "revenue", Value: dec(5)},
		{Level: "line", Group: []string{"Compute"}, Period: "current_year", Metric: "revenue", Value: dec(7)},
		{Level: "family", Group: []string{"All"}, Period: "current_year", Metric: "revenue", Value: dec(10)},
	}

	wides := Widen(cells, "family")
	require.Len(t, wides, 3)
	assert.Equal(t, "current_year", wides[0].Period)
	assert.True(t, decimal.NewFromInt(2).Equal(wides[0].Get("customers").Decimal))
	assert.False(t, wides[1].Get("customers").Valid)

	w, ok := wides.Find(Wide{Group: []string{"Cloud"}}, "prior_year")
	require.True(t, ok)
	assert.True(t, decimal.NewFromInt(5).Equal(w.Get("revenue").Decimal))
	_, ok = wides.Find(Wide{Group: []string{"Cloud", "x"}}, "prior_year")
	assert.False(t, ok)

	table := Unpivot(wides, []string{"revenue", "customers"})
	assert.Equal(t, "family", table.Level)
	require.Len(t, table.Rows, 6)
	assert.Equal(t, "revenue", table.Rows[0].Metric)
	assert.Equal(t, "customers", table.Rows[1].Metric)
	assert.Equal(t, start, table.Rows[0].PeriodStart)
	assert.False(t, table.Rows[3].Value.Valid, "prior_year customers was never aggregated")
}

func TestStackRowCountLaw(t *testing.T) {
	sizes := []int{0, 3, 7, 1, 12}
	var tables []Table
	want := 0
	for i, n := range sizes {
		table := Table{Level: fmt.Sprintf("level_%d", i)}
		for j := 0; j < n; j++ {
			table.Rows = append(table.Rows, Row{Group: []string{fmt.Sprint(j)}, Metric: "m", Value: dec(int64(j))})
		}
		tables = append(tables, table)
		want += n
	}

	rows := Stack(tables...)
	require.Len(t, rows, want)

	// order preserving, tagged with the source level
	offset := 0
	for i, n := range sizes {
		for j := 0; j < n; j++ {
			assert.Equal(t, fmt.Sprintf("level_%d", i), rows[offset+j].Level)
			assert.Equal(t, []string{fmt.Sprint(j)}, rows[offset+j].Group)
		}
		offset += n
	}
}

func TestStamp(t *testing.T) {
	day := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	rows := Stamp([]Row{{Metric: "a"}, {Metric: "b"}}, "revenue_hierarchy", day)
	for _, r := range rows {
		assert.Equal(t, "revenue_hierarchy", r.Report)
		assert.Equal(t, day, r.ReportDate)
	}
	assert.Equal(t, "Cloud > Compute", Row{Group: []string{"Cloud", "Compute"}}.GroupLabel())
}
