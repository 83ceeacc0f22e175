package reports

import (
	"database/sql"
	"fmt"

	"flakereport/internal/aggregate"
	"flakereport/internal/period"
	"flakereport/internal/reshape"
	"flakereport/internal/warehouse"
	"flakereport/pkg/models"
)

// FeatureUsage reports weekly feature adoption per subscription plan over the
// last full month.
type FeatureUsage struct{}

const (
	planLevel        = "subscription_plan"
	planFeatureLevel = "subscription_plan_feature"
)

func (FeatureUsage) Name() string { return "feature_usage" }

func (FeatureUsage) Description() string {
	return "Feature events, active accounts and users per plan for each week of the last full month"
}

func (FeatureUsage) Defaults() models.Report {
	return models.Report{
		Periods: []string{string(period.LastFullMonthWeeks), string(period.LastFullMonth)},
		Tables: map[string]string{
			"events":   "FEATURE_EVENTS",
			"accounts": "ACCOUNTS",
		},
		Filters: models.Filters{ActiveOnly: boolPtr(true)},
	}
}

func (FeatureUsage) Plan(p Params) (aggregate.Plan, error) {
	return aggregate.Plan{
		Windows: p.Windows,
		Metrics: []aggregate.Metric{
			{Name: "events", Kind: aggregate.Count},
			{Name: "active_accounts", Kind: aggregate.Distinct, Field: "account_id"},
			{Name: "active_users", Kind: aggregate.Distinct, Field: "user_id"},
		},
		Levels: []aggregate.Grouping{
			{Level: planLevel, Dims: []string{"subscription_plan"}, Rollup: true},
			{Level: planFeatureLevel, Dims: []string{"subscription_plan", "feature_name"}},
		},
	}, nil
}

func (FeatureUsage) Load(sn *warehouse.Snapshot, p Params) (*Dataset, error) {
	data := newDataset()

	accounts, err := loadAccounts(sn, p.Table("accounts"), "subscription_plan")
	if err != nil {
		return nil, err
	}
	data.Dimensions["accounts"] = accounts

	table := p.Table("events")
	query := fmt.Sprintf(`SELECT event_id, event_ts, account_id, user_id, feature_name
FROM %s
WHERE (event_ts >= ? OR event_ts IS NULL)`, table)

	activeOnly := boolValue(p.Settings.Filters.ActiveOnly)
	active := aggregate.DimTrue("is_active")
	err = sn.Each(query, []any{p.LowerBound()}, func(rows *sql.Rows) error {
		var (
			id, accountID, userID, feature sql.NullString
			ts                             any
		)
		if err := rows.Scan(&id, &ts, &accountID, &userID, &feature); err != nil {
			return scanError(table, err)
		}

		rec := aggregate.Record{
			ID:        text(id),
			EventTime: eventTime(ts),
			Dims: map[string]string{
				"account_id":   text(accountID),
				"user_id":      text(userID),
				"feature_name": text(feature),
			},
		}

		enriched, ok := accounts.Enrich(rec)
		if !ok {
			data.Rejections.Add(accounts.RejectReason())
			return nil
		}
		if activeOnly && !active(enriched) {
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

func (FeatureUsage) Reshape(res aggregate.Result, _ *Dataset, _ Params) []reshape.Row {
	base := []string{"events", "active_accounts", "active_users"}
	derived := []string{"events_per_account"}
	perAccount := func(w reshape.Wide, _ reshape.Wides) {
		w.Values["events_per_account"] = reshape.SafeDivide(w.Get("events"), w.Get("active_accounts"))
	}

	return reshape.Stack(
		levelTable(res, planLevel, base, derived, perAccount),
		levelTable(res, planFeatureLevel, base, derived, perAccount),
	)
}
