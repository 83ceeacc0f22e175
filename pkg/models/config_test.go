package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const sampleConfig = `
warehouse:
  driver: snowflake
  account: xy12345.us-east-1
  username: reporter
  role: REPORTING
  warehouse: REPORTING_WH
  timeout: 5m
engine:
  as_of: yesterday
  timezone: America/Los_Angeles
  workers: 4
privacy:
  salt: pepper
output:
  sinks: [stdout, "csv:out/rows.csv"]
reports:
  partner_api_usage:
    org_fallback_to_account: false
    filters:
      model_pattern: "claude-%"
      success_statuses: [success, ok]
  opportunity_acv:
    tables:
      opportunities: CRM.OPPORTUNITIES
    filters:
      active_only: true
`

func TestConfigYAML(t *testing.T) {
	var cfg Config
	require.NoError(t, yaml.Unmarshal([]byte(sampleConfig), &cfg))

	assert.Equal(t, "snowflake", cfg.Warehouse.Driver)
	assert.Equal(t, "5m", cfg.Warehouse.Timeout)
	assert.Equal(t, 4, cfg.Engine.Workers)
	assert.Equal(t, "America/Los_Angeles", cfg.Engine.Timezone)
	assert.Equal(t, []string{"stdout", "csv:out/rows.csv"}, cfg.Output.Sinks)

	partner := cfg.Reports["partner_api_usage"]
	require.NotNil(t, partner.OrgFallbackToAccount)
	assert.False(t, *partner.OrgFallbackToAccount)
	assert.Equal(t, "claude-%", partner.Filters.ModelPattern)
	assert.Equal(t, []string{"success", "ok"}, partner.Filters.SuccessStatuses)

	acv := cfg.Reports["opportunity_acv"]
	assert.Nil(t, acv.OrgFallbackToAccount)
	assert.Equal(t, "CRM.OPPORTUNITIES", acv.Tables["opportunities"])
	require.NotNil(t, acv.Filters.ActiveOnly)
	assert.True(t, *acv.Filters.ActiveOnly)
}

func TestReportOmitsEmptyOverrides(t *testing.T) {
	data, err := yaml.Marshal(Report{})
	require.NoError(t, err)
	assert.Equal(t, "{}\n", string(data))
}
