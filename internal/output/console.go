package output

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/buemura/jarhunter/pkg/types"
)

var productLabels = map[string]struct{ family, name string }{
	types.ProductLog4j2:      {"log4j 2.x", "log4j"},
	types.ProductLog4j1:      {"log4j 1.2", "log4j"},
	types.ProductLogback:     {"logback 1.2.7", "logback"},
	types.ProductCommonsText: {"commons-text", "commons-text"},
}

// Console prints detections as they are recorded and the final summary.
// It implements scanner.Listener.
type Console struct {
	mu     sync.Mutex
	out    io.Writer
	silent bool
}

// NewConsole returns a printer writing to out. A silent console only
// prints the summary.
func NewConsole(out io.Writer, silent bool) *Console {
	return &Console{out: out, silent: silent}
}

// DetectionLine formats one report entry the way it is printed.
func DetectionLine(e types.ReportEntry) string {
	label, ok := productLabels[e.Product]
	if !ok {
		label.family, label.name = e.Product, e.Product
	}

	switch e.Status {
	case types.StatusNotVulnerable:
		return fmt.Sprintf("[-] Found safe %s %s version in %s", label.name, e.Version, e.Location())
	case types.StatusPotentiallyVulnerable:
		return fmt.Sprintf("[?] Found %s (%s) vulnerability in %s, %s %s", e.CVE, label.family, e.Location(), label.name, e.Version)
	}

	msg := fmt.Sprintf("[*] Found %s (%s) vulnerability in %s, %s %s", e.CVE, label.family, e.Location(), label.name, e.Version)
	if e.Status == types.StatusMitigated {
		msg += " (mitigated)"
	}
	return msg
}

func (c *Console) OnDetect(e types.ReportEntry) {
	if c.silent {
		return
	}
	line := DetectionLine(e)
	switch e.Status {
	case types.StatusVulnerable:
		line = color.RedString(line)
	case types.StatusPotentiallyVulnerable:
		line = color.YellowString(line)
	case types.StatusNotVulnerable:
		line = color.GreenString(line)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, line)
}

func (c *Console) OnError(e types.ErrorEntry) {
	if c.silent {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, e.Message)
}

// Summary prints the end-of-run counters.
func (c *Console) Summary(m types.Metrics, fix bool, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintln(c.out)
	fmt.Fprintf(c.out, "Scanned %d directories and %d files\n", m.ScanDirCount, m.ScanFileCount)
	fmt.Fprintf(c.out, "Found %d vulnerable files\n", m.VulnerableFileCount)
	fmt.Fprintf(c.out, "Found %d potentially vulnerable files\n", m.PotentiallyVulnerableFileCount)
	fmt.Fprintf(c.out, "Found %d mitigated files\n", m.MitigatedFileCount)
	if fix {
		fmt.Fprintf(c.out, "Fixed %d vulnerable files\n", m.FixedFileCount)
	}
	fmt.Fprintf(c.out, "Completed in %.2f seconds\n", now.Sub(m.ScanStartTime).Seconds())
}
