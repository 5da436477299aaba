package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/buemura/jarhunter/pkg/types"
)

// MarkdownFormatter renders the report as Markdown tables suitable for
// pasting into docs, issues, or pull-request descriptions.
type MarkdownFormatter struct{}

func (f *MarkdownFormatter) Format(w io.Writer, report *types.Report) error {
	title := "Scan report"
	if report.Hostname != "" {
		title += " for " + report.Hostname
	}
	fmt.Fprintf(w, "## %s\n\n", title)

	m := report.Metrics
	fmt.Fprintf(w, "Scanned %d directories and %d files.\n\n", m.ScanDirCount, m.ScanFileCount)

	if len(report.Entries) == 0 {
		fmt.Fprintln(w, "_No vulnerable files found._")
	} else {
		fmt.Fprintln(w, "| Status | Path | Entry | Product | Version | CVE | Fixed |")
		fmt.Fprintln(w, "|--------|------|-------|---------|---------|-----|-------|")
		for _, e := range report.Entries {
			fmt.Fprintf(w, "| **%s** | %s | %s | %s | %s | %s | %s |\n",
				e.Status,
				escapeMarkdown(e.Path),
				escapeMarkdown(e.Entry()),
				e.Product,
				escapeMarkdown(e.Version),
				e.CVE,
				fixedLabel(e),
			)
		}
	}

	if len(report.Errors) > 0 {
		fmt.Fprintln(w, "\n### Errors")
		fmt.Fprintln(w)
		for _, e := range report.Errors {
			fmt.Fprintf(w, "- %s\n", escapeMarkdown(e.Message))
		}
	}

	fmt.Fprintf(w, "\n**Summary:** %s\n", formatSummary(statusCounts(report)))
	return nil
}

// escapeMarkdown escapes pipe characters that would break Markdown tables.
func escapeMarkdown(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}
