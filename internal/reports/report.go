// Package reports defines the warehouse reports and the runner that resolves
// their windows, loads a consistent snapshot and produces long output rows.
package reports

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"

	"flakereport/internal/aggregate"
	"flakereport/internal/observability"
	"flakereport/internal/period"
	"flakereport/internal/privacy"
	"flakereport/internal/reshape"
	"flakereport/internal/warehouse"
	"flakereport/pkg/errors"
	"flakereport/pkg/models"
)

// Report is one parameterized aggregation over warehouse facts
type Report interface {
	Name() string
	Description() string
	// Defaults returns the built-in settings; configuration overrides them.
	Defaults() models.Report
	// Plan builds the aggregation plan. Configuration problems surface here,
	// before anything is read.
	Plan(p Params) (aggregate.Plan, error)
	Load(sn *warehouse.Snapshot, p Params) (*Dataset, error)
	Reshape(res aggregate.Result, data *Dataset, p Params) []reshape.Row
}

// Params carries the per-run inputs of a report
type Params struct {
	ReportDate time.Time
	Windows    period.Windows
	Settings   models.Report
	Hasher     *privacy.Hasher
	Logger     *observability.Logger
}

// LowerBound is the earliest date any window needs, formatted for SQL
func (p Params) LowerBound() string {
	return p.Windows.Earliest().Format("2006-01-02")
}

// Table returns the physical name of a logical table
func (p Params) Table(logical string) string {
	return p.Settings.Tables[logical]
}

// Dataset is everything a report read from one snapshot
type Dataset struct {
	Records []aggregate.Record
	// Rejections counts records dropped before aggregation, e.g. failed joins.
	Rejections aggregate.Tally
	Dimensions map[string]*aggregate.Dimension
	// Filtered counts records excluded by report filters; they are not errors.
	Filtered int
}

func newDataset() *Dataset {
	return &Dataset{
		Rejections: make(aggregate.Tally),
		Dimensions: make(map[string]*aggregate.Dimension),
	}
}

// Registry resolves reports by name
type Registry struct {
	reports map[string]Report
}

// NewRegistry indexes reports by name
func NewRegistry(reports ...Report) *Registry {
	r := &Registry{reports: make(map[string]Report, len(reports))}
	for _, report := range reports {
		r.reports[report.Name()] = report
	}
	return r
}

// Builtin returns the registry of shipped reports
func Builtin() *Registry {
	return NewRegistry(
		OpportunityACV{},
		FeatureUsage{},
		RevenueHierarchy{},
		PartnerAPIUsage{},
	)
}

// Get finds a report by name
func (r *Registry) Get(name string) (Report, error) {
	report, ok := r.reports[name]
	if !ok {
		return nil, errors.New(errors.ErrCodeUnknownReport, fmt.Sprintf("Unknown report %q", name)).
			WithContext("report", name).
			WithSuggestions("Available reports: " + strings.Join(r.Names(), ", "))
	}
	return report, nil
}

// Names lists registered report names in order
func (r *Registry) Names() []string {
	names := lo.Keys(r.reports)
	sort.Strings(names)
	return names
}

// Select resolves names, or every report when names is empty
func (r *Registry) Select(names []string) ([]Report, error) {
	if len(names) == 0 {
		names = r.Names()
	}
	selected := make([]Report, 0, len(names))
	for _, name := range lo.Uniq(names) {
		report, err := r.Get(name)
		if err != nil {
			return nil, err
		}
		selected = append(selected, report)
	}
	return selected, nil
}

// CheckSettings fails on configured reports the registry does not know
func (r *Registry) CheckSettings(settings map[string]models.Report) error {
	for name := range settings {
		if _, err := r.Get(name); err != nil {
			return err
		}
	}
	return nil
}

var identifierRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*(\.[A-Za-z_][A-Za-z0-9_$]*){0,2}$`)

// MergeSettings overlays configured settings on a report's defaults
func MergeSettings(def, override models.Report) models.Report {
	out := def
	if len(override.Periods) > 0 {
		out.Periods = override.Periods
	}
	out.Tables = lo.Assign(def.Tables, override.Tables)

	f := override.Filters
	if len(f.OpportunityTypes) > 0 {
		out.Filters.OpportunityTypes = f.OpportunityTypes
	}
	if f.ActiveOnly != nil {
		out.Filters.ActiveOnly = f.ActiveOnly
	}
	if f.ModelPattern != "" {
		out.Filters.ModelPattern = f.ModelPattern
	}
	if len(f.SuccessStatuses) > 0 {
		out.Filters.SuccessStatuses = f.SuccessStatuses
	}
	if override.OrgFallbackToAccount != nil {
		out.OrgFallbackToAccount = override.OrgFallbackToAccount
	}
	return out
}

// validateTables rejects table names that are not plain identifiers
func validateTables(report string, settings models.Report) error {
	for logical, table := range settings.Tables {
		if !identifierRegex.MatchString(table) {
			return errors.ConfigError(
				fmt.Sprintf("Invalid table name %q for %s", table, logical),
				fmt.Sprintf("reports.%s.tables.%s", report, logical),
			)
		}
	}
	return nil
}

func boolValue(b *bool) bool {
	return b != nil && *b
}

func boolPtr(b bool) *bool {
	return &b
}
