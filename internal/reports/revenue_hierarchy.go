package reports

import (
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"flakereport/internal/aggregate"
	"flakereport/internal/period"
	"flakereport/internal/reshape"
	"flakereport/internal/warehouse"
	"flakereport/pkg/models"
)

// RevenueHierarchy reports revenue and customers at every level of the
// product hierarchy, stacked into one long table.
type RevenueHierarchy struct{}

const (
	familyLevel  = "product_family"
	lineLevel    = "product_line"
	productLevel = "product_name"
)

var hierarchyLevels = []aggregate.Grouping{
	{Level: familyLevel, Dims: []string{"product_family"}, Rollup: true},
	{Level: lineLevel, Dims: []string{"product_family", "product_line"}},
	{Level: productLevel, Dims: []string{"product_family", "product_line", "product_name"}},
}

func (RevenueHierarchy) Name() string { return "revenue_hierarchy" }

func (RevenueHierarchy) Description() string {
	return "Revenue and distinct customers by product family, line and product with YoY growth"
}

func (RevenueHierarchy) Defaults() models.Report {
	return models.Report{
		Periods: []string{
			string(period.PriorYear),
			string(period.PriorYearToDate),
			string(period.CurrentYear),
			string(period.CurrentQuarter),
			string(period.CurrentMonth),
		},
		Tables: map[string]string{
			"revenue":  "REVENUE_LINES",
			"products": "PRODUCT_HIERARCHY",
		},
	}
}

func (RevenueHierarchy) Plan(p Params) (aggregate.Plan, error) {
	return aggregate.Plan{
		Windows: p.Windows,
		Metrics: []aggregate.Metric{
			{Name: "revenue", Kind: aggregate.Sum, Field: "amount"},
			{Name: "customers", Kind: aggregate.Distinct, Field: "customer_id"},
		},
		Levels: hierarchyLevels,
	}, nil
}

func (RevenueHierarchy) Load(sn *warehouse.Snapshot, p Params) (*Dataset, error) {
	data := newDataset()

	products, err := loadProducts(sn, p.Table("products"))
	if err != nil {
		return nil, err
	}
	data.Dimensions["products"] = products

	table := p.Table("revenue")
	query := fmt.Sprintf(`SELECT line_id, revenue_date, product_id, customer_id, amount
FROM %s
WHERE (revenue_date >= ? OR revenue_date IS NULL)`, table)

	err = sn.Each(query, []any{p.LowerBound()}, func(rows *sql.Rows) error {
		var (
			id, productID, customerID sql.NullString
			day                       any
			amount                    decimal.NullDecimal
		)
		if err := rows.Scan(&id, &day, &productID, &customerID, &amount); err != nil {
			return scanError(table, err)
		}

		rec := aggregate.Record{
			ID:        text(id),
			EventTime: eventTime(day),
			Dims: map[string]string{
				"product_id":  text(productID),
				"customer_id": text(customerID),
			},
			Measures: measure("amount", amount),
		}

		enriched, ok := products.Enrich(rec)
		if !ok {
			data.Rejections.Add(products.RejectReason())
			return nil
		}
		data.Records = append(data.Records, enriched)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (RevenueHierarchy) Reshape(res aggregate.Result, _ *Dataset, _ Params) []reshape.Row {
	base := []string{"revenue", "customers"}
	derived := []string{"yoy_growth"}
	growth := func(w reshape.Wide, rows reshape.Wides) {
		w.Values["yoy_growth"] = yoyGrowth(w, rows, "revenue")
	}

	tables := make([]reshape.Table, len(hierarchyLevels))
	for i, g := range hierarchyLevels {
		tables[i] = levelTable(res, g.Level, base, derived, growth)
	}
	return reshape.Stack(tables...)
}

func loadProducts(sn *warehouse.Snapshot, table string) (*aggregate.Dimension, error) {
	query := fmt.Sprintf("SELECT product_id, product_family, product_line, product_name FROM %s", table)

	var rows []aggregate.DimensionRow
	err := sn.Each(query, nil, func(r *sql.Rows) error {
		var id, family, line, name sql.NullString
		if err := r.Scan(&id, &family, &line, &name); err != nil {
			return scanError(table, err)
		}
		rows = append(rows, aggregate.DimensionRow{
			Key: text(id),
			Attrs: map[string]string{
				"product_family": text(family),
				"product_line":   text(line),
				"product_name":   text(name),
			},
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return aggregate.NewDimension("products", "product_id", rows), nil
}
