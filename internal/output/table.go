package output

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"github.com/buemura/jarhunter/pkg/types"
)

// TableFormatter renders the report as a colored terminal table.
type TableFormatter struct{}

func (f *TableFormatter) Format(w io.Writer, report *types.Report) error {
	if len(report.Entries) == 0 {
		fmt.Fprintln(w, "\n  No vulnerable files found.")
	} else {
		table := tablewriter.NewWriter(w)
		table.SetHeader([]string{"Status", "Path", "Product", "Version", "CVE", "Fixed"})
		table.SetAutoWrapText(false)
		table.SetBorder(false)
		table.SetColumnSeparator("│")

		for _, e := range report.Entries {
			table.Append([]string{colorStatus(e.Status), e.Location(), e.Product, e.Version, e.CVE, fixedLabel(e)})
		}
		fmt.Fprintln(w)
		table.Render()
	}

	if n := len(report.Errors); n > 0 {
		fmt.Fprintf(w, "\n  %s\n", color.YellowString("%d files could not be scanned", n))
		for _, e := range report.Errors {
			fmt.Fprintf(w, "  %s\n", e.Message)
		}
	}

	fmt.Fprintf(w, "\n  Summary: %s\n", formatSummary(statusCounts(report)))
	return nil
}

func colorStatus(s types.Status) string {
	switch s {
	case types.StatusVulnerable:
		return color.RedString(s.String())
	case types.StatusPotentiallyVulnerable:
		return color.YellowString(s.String())
	case types.StatusMitigated:
		return color.CyanString(s.String())
	default:
		return color.GreenString(s.String())
	}
}

func formatSummary(counts map[types.Status]int) string {
	return fmt.Sprintf("%d vulnerable, %d potentially vulnerable, %d mitigated files",
		counts[types.StatusVulnerable],
		counts[types.StatusPotentiallyVulnerable],
		counts[types.StatusMitigated],
	)
}
