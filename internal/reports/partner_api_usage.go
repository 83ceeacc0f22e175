package reports

import (
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"flakereport/internal/aggregate"
	"flakereport/internal/period"
	"flakereport/internal/reshape"
	"flakereport/internal/warehouse"
	"flakereport/pkg/errors"
	"flakereport/pkg/models"
)

// PartnerAPIUsage reports partner API calls, tokens and hourly load per
// organization and model.
type PartnerAPIUsage struct{}

const (
	orgModelLevel = "organization_model"
	modelLevel    = "model_name"
)

var hourlyQuantiles = []float64{0.5, 0.95, 0.99}

func (PartnerAPIUsage) Name() string { return "partner_api_usage" }

func (PartnerAPIUsage) Description() string {
	return "Partner API calls, tokens and hourly call quantiles per organization and model"
}

func (PartnerAPIUsage) Defaults() models.Report {
	return models.Report{
		Periods: []string{
			string(period.CurrentMonth),
			string(period.LastFullMonth),
			string(period.CurrentYear),
		},
		Tables: map[string]string{"calls": "API_CALLS"},
		Filters: models.Filters{
			SuccessStatuses: []string{"success"},
		},
		OrgFallbackToAccount: boolPtr(true),
	}
}

func (PartnerAPIUsage) Plan(p Params) (aggregate.Plan, error) {
	if p.Hasher == nil {
		return aggregate.Plan{}, errors.ConfigError("Partner usage hashes identifiers but no salt is configured", "privacy.salt").
			WithSuggestions("Set privacy.salt or FLAKEREPORT_PRIVACY_SALT")
	}

	orgModel := aggregate.Grouping{Level: orgModelLevel, Dims: []string{"organization_id", "model_name"}}
	if boolValue(p.Settings.OrgFallbackToAccount) {
		orgModel.Fallbacks = map[string]string{"organization_id": "account_id"}
	}

	successful := []string{"successful"}
	return aggregate.Plan{
		Windows: p.Windows,
		Predicates: aggregate.Predicates{
			"successful": aggregate.DimEquals("status", p.Settings.Filters.SuccessStatuses...),
		},
		Metrics: []aggregate.Metric{
			{Name: "calls", Kind: aggregate.Count, Where: successful},
			{Name: "tokens", Kind: aggregate.Sum, Field: "tokens", Where: successful},
			{Name: "accounts", Kind: aggregate.Distinct, Field: "account_id"},
			{Name: "hourly_calls", Kind: aggregate.HourlyQuantile, Where: successful, Quantiles: hourlyQuantiles},
		},
		Levels: []aggregate.Grouping{
			orgModel,
			{Level: modelLevel, Dims: []string{"model_name"}, Rollup: true},
		},
	}, nil
}

func (PartnerAPIUsage) Load(sn *warehouse.Snapshot, p Params) (*Dataset, error) {
	data := newDataset()

	table := p.Table("calls")
	query := fmt.Sprintf(`SELECT call_id, call_ts, account_id, organization_id, model_name, status, tokens
FROM %s
WHERE (call_ts >= ? OR call_ts IS NULL)`, table)
	args := []any{p.LowerBound()}
	if pattern := p.Settings.Filters.ModelPattern; pattern != "" {
		query += " AND model_name LIKE ?"
		args = append(args, pattern)
	}

	if boolValue(p.Settings.OrgFallbackToAccount) && p.Logger != nil {
		p.Logger.Info("Calls without an organization are grouped under their hashed account id")
	}

	err := sn.Each(query, args, func(rows *sql.Rows) error {
		var (
			id, accountID, orgID, model, status sql.NullString
			ts                                  any
			tokens                              decimal.NullDecimal
		)
		if err := rows.Scan(&id, &ts, &accountID, &orgID, &model, &status, &tokens); err != nil {
			return scanError(table, err)
		}

		dims := map[string]string{
			"account_id":      text(accountID),
			"organization_id": text(orgID),
			"model_name":      text(model),
			"status":          text(status),
		}
		p.Hasher.HashDims(dims, "account_id", "organization_id")

		data.Records = append(data.Records, aggregate.Record{
			ID:        text(id),
			EventTime: eventTime(ts),
			Dims:      dims,
			Measures:  measure("tokens", tokens),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (PartnerAPIUsage) Reshape(res aggregate.Result, _ *Dataset, _ Params) []reshape.Row {
	base := []string{"calls", "tokens", "accounts"}
	for _, q := range hourlyQuantiles {
		base = append(base, aggregate.QuantileName("hourly_calls", q))
	}
	derived := []string{"tokens_per_call"}
	perCall := func(w reshape.Wide, _ reshape.Wides) {
		w.Values["tokens_per_call"] = reshape.SafeDivide(w.Get("tokens"), w.Get("calls"))
	}

	return reshape.Stack(
		levelTable(res, orgModelLevel, base, derived, perCall),
		levelTable(res, modelLevel, base, derived, perCall),
	)
}
