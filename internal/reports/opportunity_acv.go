package reports

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"flakereport/internal/aggregate"
	"flakereport/internal/period"
	"flakereport/internal/reshape"
	"flakereport/internal/warehouse"
	"flakereport/pkg/models"
)

// OpportunityACV reports won and open annual contract value per account
// priority tier against sales targets.
type OpportunityACV struct{}

const (
	acvLevel      = "priority_tier"
	targetGrainYr = "year"
	targetGrainQt = "quarter"
	targetGrainMo = "month"
)

// target grain of each current period
var targetGrains = map[string]string{
	string(period.CurrentYear):    targetGrainYr,
	string(period.CurrentQuarter): targetGrainQt,
	string(period.CurrentMonth):   targetGrainMo,
}

func (OpportunityACV) Name() string { return "opportunity_acv" }

func (OpportunityACV) Description() string {
	return "Closed-won and pipeline ACV by account priority tier, with target attainment and YoY growth"
}

func (OpportunityACV) Defaults() models.Report {
	return models.Report{
		Periods: []string{
			string(period.PriorYear),
			string(period.PriorYearToDate),
			string(period.CurrentYear),
			string(period.CurrentQuarter),
			string(period.CurrentMonth),
		},
		Tables: map[string]string{
			"opportunities": "OPPORTUNITIES",
			"accounts":      "ACCOUNTS",
			"targets":       "SALES_TARGETS",
		},
		Filters: models.Filters{
			OpportunityTypes: []string{"New Business", "Expansion"},
			ActiveOnly:       boolPtr(false),
		},
	}
}

func (OpportunityACV) Plan(p Params) (aggregate.Plan, error) {
	qualifying := func(aggregate.Record) bool { return true }
	if types := p.Settings.Filters.OpportunityTypes; len(types) > 0 {
		qualifying = aggregate.DimEquals("opportunity_type", types...)
	}

	return aggregate.Plan{
		Windows: p.Windows,
		Predicates: aggregate.Predicates{
			"won":             aggregate.DimTrue("is_won"),
			"open_pipeline":   aggregate.Not(aggregate.DimTrue("is_closed")),
			"qualifying_type": qualifying,
		},
		Metrics: []aggregate.Metric{
			{Name: "closed_won_acv", Kind: aggregate.Sum, Field: "acv", Where: []string{"won", "qualifying_type"}},
			{Name: "won_deals", Kind: aggregate.Count, Where: []string{"won", "qualifying_type"}},
			{Name: "won_accounts", Kind: aggregate.Distinct, Field: "account_id", Where: []string{"won", "qualifying_type"}},
			{Name: "pipeline_acv", Kind: aggregate.Sum, Field: "acv", Where: []string{"open_pipeline", "qualifying_type"}},
		},
		Levels: []aggregate.Grouping{
			{Level: acvLevel, Dims: []string{"priority_tier"}, Rollup: true},
		},
	}, nil
}

func (r OpportunityACV) Load(sn *warehouse.Snapshot, p Params) (*Dataset, error) {
	data := newDataset()

	accounts, err := loadAccounts(sn, p.Table("accounts"), "priority_tier")
	if err != nil {
		return nil, err
	}
	data.Dimensions["accounts"] = accounts

	targets, err := loadTargets(sn, p.Table("targets"), p.LowerBound())
	if err != nil {
		return nil, err
	}
	data.Dimensions["targets"] = targets

	table := p.Table("opportunities")
	query := fmt.Sprintf(`SELECT opportunity_id, account_id, opportunity_type, stage, is_won, close_date, acv
FROM %s
WHERE (close_date >= ? OR close_date IS NULL)`, table)

	activeOnly := boolValue(p.Settings.Filters.ActiveOnly)
	err = sn.Each(query, []any{p.LowerBound()}, func(rows *sql.Rows) error {
		var (
			id, accountID, oppType, stage sql.NullString
			isWon, closeDate              any
			acv                           decimal.NullDecimal
		)
		if err := rows.Scan(&id, &accountID, &oppType, &stage, &isWon, &closeDate, &acv); err != nil {
			return scanError(table, err)
		}

		won := flag(isWon)
		closed := won || strings.HasPrefix(strings.ToLower(text(stage)), "closed")
		rec := aggregate.Record{
			ID:        text(id),
			EventTime: eventTime(closeDate),
			Dims: map[string]string{
				"account_id":       text(accountID),
				"opportunity_type": text(oppType),
				"stage":            text(stage),
				"is_won":           fmt.Sprint(won),
				"is_closed":        fmt.Sprint(closed),
			},
			Measures: measure("acv", acv),
		}

		enriched, ok := accounts.Enrich(rec)
		if !ok {
			data.Rejections.Add(accounts.RejectReason())
			return nil
		}
		if activeOnly && !aggregate.DimTrue("is_active")(enriched) {
			data.Filtered++
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

func (OpportunityACV) Reshape(res aggregate.Result, data *Dataset, p Params) []reshape.Row {
	targets := data.Dimensions["targets"]
	base := []string{"closed_won_acv", "won_deals", "won_accounts", "pipeline_acv"}
	derived := []string{"target_acv", "pct_to_target", "yoy_growth"}

	table := levelTable(res, acvLevel, base, derived, func(w reshape.Wide, rows reshape.Wides) {
		target := reshape.Null
		if grain, ok := targetGrains[w.Period]; ok {
			target = targetFor(targets, w.Group[0], w.Rollup, grain, w.PeriodStart)
		}
		w.Values["target_acv"] = target
		w.Values["pct_to_target"] = reshape.SafeDivide(w.Get("closed_won_acv"), target)
		w.Values["yoy_growth"] = yoyGrowth(w, rows, "closed_won_acv")
	})

	return reshape.Stack(table)
}

func targetKey(tier, grain, start string) string {
	return strings.ToLower(tier) + "|" + strings.ToLower(grain) + "|" + start
}

// targetFor returns the tier's target for a grain and period start. The
// rollup's target is the sum of every tier's target.
func targetFor(targets *aggregate.Dimension, tier string, rollup bool, grain string, start time.Time) decimal.NullDecimal {
	if targets == nil {
		return reshape.Null
	}
	day := start.Format("2006-01-02")
	if !rollup {
		row, ok := targets.Lookup(targetKey(tier, grain, day))
		if !ok {
			return reshape.Null
		}
		return reshape.Valid(row.Values["target_acv"])
	}

	total := reshape.Null
	suffix := "|" + strings.ToLower(grain) + "|" + day
	for _, row := range targets.Rows() {
		if strings.HasSuffix(row.Key, suffix) {
			total = reshape.Sum(total, reshape.Valid(row.Values["target_acv"]))
		}
	}
	return total
}

// loadAccounts reads the account dimension with the given grouping attribute
func loadAccounts(sn *warehouse.Snapshot, table, attr string) (*aggregate.Dimension, error) {
	query := fmt.Sprintf("SELECT account_id, %s, is_active FROM %s", attr, table)

	var rows []aggregate.DimensionRow
	err := sn.Each(query, nil, func(r *sql.Rows) error {
		var id, value sql.NullString
		var active any
		if err := r.Scan(&id, &value, &active); err != nil {
			return scanError(table, err)
		}
		rows = append(rows, aggregate.DimensionRow{
			Key:   text(id),
			Attrs: map[string]string{attr: text(value), "is_active": flagString(active)},
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return aggregate.NewDimension("accounts", "account_id", rows), nil
}

func loadTargets(sn *warehouse.Snapshot, table, lowerBound string) (*aggregate.Dimension, error) {
	query := fmt.Sprintf("SELECT priority_tier, grain, period_start, target_acv FROM %s WHERE period_start >= ?", table)

	var rows []aggregate.DimensionRow
	err := sn.Each(query, []any{lowerBound}, func(r *sql.Rows) error {
		var tier, grain sql.NullString
		var start any
		var target decimal.NullDecimal
		if err := r.Scan(&tier, &grain, &start, &target); err != nil {
			return scanError(table, err)
		}
		day := eventTime(start)
		if day.IsZero() || !target.Valid {
			return nil
		}
		rows = append(rows, aggregate.DimensionRow{
			Key:    targetKey(text(tier), text(grain), day.Format("2006-01-02")),
			Values: map[string]decimal.Decimal{"target_acv": target.Decimal},
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return aggregate.NewDimension("targets", "priority_tier", rows), nil
}
