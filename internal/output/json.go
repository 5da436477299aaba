package output

import (
	"encoding/json"
	"io"

	"github.com/buemura/jarhunter/pkg/types"
)

// JSONFormatter renders the report as indented JSON.
type JSONFormatter struct{}

type jsonReport struct {
	Metrics types.Metrics      `json:"metrics"`
	Files   []jsonFile         `json:"files"`
	Errors  []types.ErrorEntry `json:"errors,omitempty"`
}

type jsonFile struct {
	Path       string       `json:"path"`
	Entry      string       `json:"entry"`
	Product    string       `json:"product"`
	Version    string       `json:"version"`
	CVE        string       `json:"cve"`
	Status     types.Status `json:"status"`
	Fixed      bool         `json:"fixed"`
	DetectedAt string       `json:"detectedAt"`
	Hostname   string       `json:"hostname,omitempty"`
}

func (f *JSONFormatter) Format(w io.Writer, report *types.Report) error {
	out := jsonReport{
		Metrics: report.Metrics,
		Files:   make([]jsonFile, 0, len(report.Entries)),
		Errors:  report.Errors,
	}
	for _, e := range report.Entries {
		out.Files = append(out.Files, jsonFile{
			Path:       e.Path,
			Entry:      e.Entry(),
			Product:    e.Product,
			Version:    e.Version,
			CVE:        e.CVE,
			Status:     e.Status,
			Fixed:      e.Fixed,
			DetectedAt: e.DetectedAt.Format(detectedAtLayout),
			Hostname:   report.Hostname,
		})
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(out)
}
