package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/buemura/jarhunter/pkg/types"
)

// Formatter renders a scan report to a writer.
type Formatter interface {
	Format(w io.Writer, report *types.Report) error
}

// Formats lists the accepted output format names.
var Formats = []string{"table", "json", "csv", "markdown", "html"}

// GetFormatter returns the appropriate formatter for the given format string.
func GetFormatter(format string) (Formatter, error) {
	switch format {
	case "table":
		return &TableFormatter{}, nil
	case "json":
		return &JSONFormatter{}, nil
	case "csv":
		return &CSVFormatter{}, nil
	case "markdown":
		return &MarkdownFormatter{}, nil
	case "html":
		return &HTMLFormatter{}, nil
	default:
		return nil, fmt.Errorf("unknown output format %q (supported: %s)", format, strings.Join(Formats, ", "))
	}
}

// detectedAtLayout is the timestamp layout used in csv and json reports.
const detectedAtLayout = "2006-01-02 15:04:05"

func fixedLabel(e types.ReportEntry) string {
	if e.Fixed {
		return "true"
	}
	return "false"
}

// statusCounts tallies files, not entries, by their worst status.
func statusCounts(r *types.Report) map[types.Status]int {
	worst := make(map[string]types.Status)
	for _, e := range r.Entries {
		if s, ok := worst[e.Path]; !ok || e.Status > s {
			worst[e.Path] = e.Status
		}
	}
	counts := make(map[types.Status]int)
	for _, s := range worst {
		counts[s]++
	}
	return counts
}
