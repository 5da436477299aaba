package output

import (
	"encoding/csv"
	"io"

	"github.com/buemura/jarhunter/pkg/types"
)

var csvHeader = []string{"Hostname", "Path", "Entry", "Product", "Version", "CVE", "Status", "Fixed", "Detected at"}

// CSVFormatter renders one row per report entry.
type CSVFormatter struct{}

func (f *CSVFormatter) Format(w io.Writer, report *types.Report) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, e := range report.Entries {
		row := []string{
			report.Hostname,
			e.Path,
			e.Entry(),
			e.Product,
			e.Version,
			e.CVE,
			e.Status.String(),
			fixedLabel(e),
			e.DetectedAt.Format(detectedAtLayout),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
