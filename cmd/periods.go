package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"flakereport/internal/config"
	"flakereport/internal/period"
	"flakereport/internal/reports"
	"flakereport/internal/ui"
)

var periodsAsOf string

var periodsCmd = &cobra.Command{
	Use:   "periods [report...]",
	Short: "Show the resolved period windows of each report",
	Long: `Resolve every report's period windows for the reference date without reading
the warehouse. Useful to check what a run will aggregate.`,
	RunE: showPeriods,
}

func init() {
	rootCmd.AddCommand(periodsCmd)
	periodsCmd.Flags().StringVar(&periodsAsOf, "as-of", "", "reference date: yesterday, today or YYYY-MM-DD (default from engine.as_of)")
}

func showPeriods(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if periodsAsOf != "" {
		cfg.Engine.AsOf = periodsAsOf
	}

	loc, err := config.Location(cfg)
	if err != nil {
		return err
	}
	reportDate, err := period.ReferenceDate(cfg.Engine.AsOf, time.Now(), loc)
	if err != nil {
		return err
	}

	registry := reports.Builtin()
	selected, err := registry.Select(args)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Reference date: %s\n\n", reportDate.Format("2006-01-02"))

	table := ui.NewTable(out)
	table.AddHeader("report", "period", "start", "end", "days")
	for _, report := range selected {
		settings := reports.MergeSettings(report.Defaults(), cfg.Reports[report.Name()])
		names, err := period.ParseNames(settings.Periods)
		if err != nil {
			return err
		}
		windows, err := period.Resolve(reportDate, names)
		if err != nil {
			return err
		}
		for _, w := range windows {
			end := w.End.Format("2006-01-02")
			if w.OpenEnded {
				end += " (open)"
			}
			table.AddRow(report.Name(), w.Name, w.Start.Format("2006-01-02"), end, fmt.Sprint(w.Days()))
		}
	}
	table.Render()
	return nil
}
