package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/mgutz/ansi"
	"github.com/olekukonko/tablewriter"
)

var (
	// Check if output supports colors
	supportsColor = isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())

	// Color functions
	ColorSuccess = colorFunc(ansi.Green)
	ColorError   = colorFunc(ansi.Red)
	ColorWarning = colorFunc(ansi.Yellow)
	ColorInfo    = colorFunc(ansi.Cyan)
	ColorBold    = colorFunc("default+b")
	ColorDim     = colorFunc("default+h")
)

// colorFunc returns a function that colors text if supported
func colorFunc(style string) func(string) string {
	return func(text string) string {
		if supportsColor {
			return ansi.Color(text, style)
		}
		return text
	}
}

// SupportsColor reports whether stdout is a terminal
func SupportsColor() bool {
	return supportsColor
}

// SetColor forces colored output on or off
func SetColor(enabled bool) {
	supportsColor = enabled
	color.NoColor = !enabled
}

// ShowError displays a formatted error message
func ShowError(w io.Writer, err error) {
	fmt.Fprintf(w, "\n%s\n", ColorError("ERROR:"))

	message := err.Error()
	for i, line := range strings.Split(message, "\n") {
		if i == 0 {
			fmt.Fprintf(w, "  %s\n", line)
		} else {
			fmt.Fprintf(w, "  %s\n", ColorDim(line))
		}
	}

	if suggestion := getSuggestion(message); suggestion != "" {
		fmt.Fprintf(w, "\n  %s %s\n", ColorInfo("TIP:"), ColorInfo(suggestion))
	}
}

// ShowSuccess displays a success message
func ShowSuccess(w io.Writer, message string) {
	fmt.Fprintf(w, "%s %s\n", ColorSuccess("SUCCESS:"), message)
}

// ShowWarning displays a warning message
func ShowWarning(w io.Writer, message string) {
	fmt.Fprintf(w, "%s %s\n", ColorWarning("WARNING:"), ColorWarning(message))
}

// ShowInfo displays an info message
func ShowInfo(w io.Writer, message string) {
	fmt.Fprintf(w, "%s %s\n", ColorInfo("INFO:"), message)
}

// Table renders aligned rows through tablewriter
type Table struct {
	writer *tablewriter.Table
}

// NewTable creates a new borderless table writing to w
func NewTable(w io.Writer) *Table {
	t := tablewriter.NewWriter(w)
	t.SetBorder(false)
	t.SetAutoWrapText(false)
	t.SetAutoFormatHeaders(false)
	t.SetAlignment(tablewriter.ALIGN_LEFT)
	return &Table{writer: t}
}

// AddHeader sets the header row
func (t *Table) AddHeader(columns ...string) {
	t.writer.SetHeader(columns)
}

// AddRow adds a data row to the table
func (t *Table) AddRow(values ...string) {
	t.writer.Append(values)
}

// Render displays the table
func (t *Table) Render() {
	t.writer.Render()
}

// FormatNull renders an absent value
func FormatNull() string {
	if supportsColor {
		return color.New(color.Faint).Sprint("null")
	}
	return "null"
}

// FormatGroup highlights rollup groups
func FormatGroup(label string, rollup bool) string {
	if rollup && supportsColor {
		return color.New(color.Bold).Sprint(label)
	}
	return label
}

// FormatCount colors a tally: green when zero, yellow otherwise
func FormatCount(n int) string {
	if n == 0 {
		return ColorSuccess("0")
	}
	return ColorWarning(fmt.Sprintf("%d", n))
}

// getSuggestion returns helpful suggestions based on error messages
func getSuggestion(message string) string {
	lower := strings.ToLower(message)

	switch {
	case strings.Contains(lower, "authentication failed"):
		return "Check the warehouse credentials in the configuration"
	case strings.Contains(lower, "connection refused"):
		return "Verify the warehouse address and network connectivity"
	case strings.Contains(lower, "permission denied"):
		return "Ensure the reporting role can read the source tables"
	case strings.Contains(lower, "does not exist"):
		return "Verify the source table names in the report configuration"
	case strings.Contains(lower, "unknown report"):
		return "Run 'flakereport reports' to list available reports"
	default:
		return ""
	}
}
