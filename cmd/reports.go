package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"flakereport/internal/reports"
	"flakereport/internal/ui"
)

var reportsCmd = &cobra.Command{
	Use:   "reports",
	Short: "List available reports",
	Run: func(cmd *cobra.Command, args []string) {
		registry := reports.Builtin()

		table := ui.NewTable(cmd.OutOrStdout())
		table.AddHeader("report", "periods", "description")
		for _, name := range registry.Names() {
			report, _ := registry.Get(name)
			table.AddRow(name, strings.Join(report.Defaults().Periods, ", "), report.Description())
		}
		table.Render()
	},
}

func init() {
	rootCmd.AddCommand(reportsCmd)
}
