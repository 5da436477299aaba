package output

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/multierr"

	"github.com/buemura/jarhunter/pkg/types"
)

// ReportOptions selects which report files are written.
type ReportOptions struct {
	CSV  bool
	JSON bool
	// Path names the first selected report explicitly.
	Path string
	// Dir holds the default named reports. Empty means the working directory.
	Dir string
	// NoEmpty suppresses reports without findings.
	NoEmpty bool
}

// ReportFileName returns the default report name for a run at t.
func ReportFileName(t time.Time, ext string) string {
	return "log4j2_scan_report_" + t.Format("20060102_150405") + ext
}

// WriteReportFiles writes the selected report files and returns their paths.
// An existing target is never overwritten.
func WriteReportFiles(report *types.Report, opts ReportOptions, now time.Time) ([]string, error) {
	if !opts.CSV && !opts.JSON {
		return nil, nil
	}
	if opts.NoEmpty && len(report.Entries) == 0 {
		return nil, nil
	}

	type target struct {
		ext string
		f   Formatter
	}
	var targets []target
	if opts.CSV {
		targets = append(targets, target{".csv", &CSVFormatter{}})
	}
	if opts.JSON {
		targets = append(targets, target{".json", &JSONFormatter{}})
	}

	var written []string
	for i, t := range targets {
		path := filepath.Join(opts.Dir, ReportFileName(now, t.ext))
		if i == 0 && opts.Path != "" {
			path = opts.Path
		}
		if err := writeReport(path, report, t.f); err != nil {
			return written, err
		}
		written = append(written, path)
	}
	return written, nil
}

func writeReport(path string, report *types.Report, f Formatter) (err error) {
	out, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			abs, _ := filepath.Abs(path)
			return fmt.Errorf("cannot write report file, file already exists: %s", abs)
		}
		return fmt.Errorf("cannot open report file: %w", err)
	}
	defer func() { err = multierr.Append(err, out.Close()) }()
	return f.Format(out, report)
}
