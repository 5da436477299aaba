package scanner

import (
	"sort"
	"sync"
	"time"

	"github.com/buemura/jarhunter/pkg/types"
)

// MaxErrorEntries bounds how many error entries are kept. Errors beyond it
// are still counted.
const MaxErrorEntries = 100000

// Listener is notified of every detection and error as results are added.
// Calls are serialized.
type Listener interface {
	OnDetect(types.ReportEntry)
	OnError(types.ErrorEntry)
}

// Aggregator collects per-file results from concurrent scans.
type Aggregator struct {
	mu        sync.Mutex
	fix       bool
	metrics   types.Metrics
	reports   map[string][]types.ReportEntry
	errors    []types.ErrorEntry
	queue     map[string]VulnerableFile
	listeners []Listener
	now       func() time.Time
}

// NewAggregator creates an aggregator. When fix is set, files that need
// fixing are queued.
func NewAggregator(fix bool, start time.Time) *Aggregator {
	return &Aggregator{
		fix:     fix,
		metrics: types.Metrics{ScanStartTime: start},
		reports: make(map[string][]types.ReportEntry),
		queue:   make(map[string]VulnerableFile),
		now:     time.Now,
	}
}

// AddListener registers l for subsequent results.
func (a *Aggregator) AddListener(l Listener) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.listeners = append(a.listeners, l)
}

// VisitDir counts a traversed directory.
func (a *Aggregator) VisitDir(path string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.metrics.ScanDirCount++
	a.metrics.LastVisitDirectory = path
}

// VisitFile counts a traversed file and returns the new total.
func (a *Aggregator) VisitFile() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.metrics.ScanFileCount++
	return a.metrics.ScanFileCount
}

// ShouldLogStatus reports whether a progress line is due. One is due after
// every new files and no sooner than interval after the previous line. A
// true result records the line as logged.
func (a *Aggregator) ShouldLogStatus(every int64, interval time.Duration) (types.Metrics, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	now := a.now()
	m := &a.metrics
	if m.ScanFileCount-m.LastStatusLoggingCount < every {
		return *m, false
	}
	last := m.LastStatusLoggingTime
	if last.IsZero() {
		last = m.ScanStartTime
	}
	if now.Sub(last) < interval {
		return *m, false
	}
	m.LastStatusLoggingCount = m.ScanFileCount
	m.LastStatusLoggingTime = now
	return *m, true
}

// AddResult records one scanned file.
func (a *Aggregator) AddResult(fr *FileResult) {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch fr.Result.Status() {
	case types.StatusVulnerable:
		a.metrics.VulnerableFileCount++
	case types.StatusPotentiallyVulnerable:
		a.metrics.PotentiallyVulnerableFileCount++
	case types.StatusMitigated:
		a.metrics.MitigatedFileCount++
	}

	if len(fr.Entries) > 0 {
		a.reports[fr.Path] = append(a.reports[fr.Path], fr.Entries...)
		for _, e := range fr.Entries {
			for _, l := range a.listeners {
				l.OnDetect(e)
			}
		}
	}

	if a.fix && fr.Result.IsFixRequired() {
		a.queue[fr.Path] = VulnerableFile{
			Path:      fr.Path,
			NestedJar: fr.Result.NestedJar,
			Charset:   fr.Charset,
		}
	}
}

// AddError records a per-file failure.
func (a *Aggregator) AddError(path, msg string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.metrics.ErrorCount++
	entry := types.ErrorEntry{Path: path, Message: msg, ReportedAt: a.now()}
	if len(a.errors) < MaxErrorEntries {
		a.errors = append(a.errors, entry)
	}
	for _, l := range a.listeners {
		l.OnError(entry)
	}
}

// Queue returns the files to fix, ordered by path.
func (a *Aggregator) Queue() []VulnerableFile {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]VulnerableFile, 0, len(a.queue))
	for _, vf := range a.queue {
		out = append(out, vf)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Entries returns a copy of the report entries recorded for path.
func (a *Aggregator) Entries(path string) []types.ReportEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]types.ReportEntry(nil), a.reports[path]...)
}

// MarkFixed flags the entries of path as fixed, except those whose CVE is in
// keep, and counts the file as fixed.
func (a *Aggregator) MarkFixed(path string, keep map[string]bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	entries := a.reports[path]
	for i := range entries {
		if !keep[entries[i].CVE] {
			entries[i].Fixed = true
		}
	}
	a.metrics.FixedFileCount++
}

// Metrics returns a snapshot of the counters.
func (a *Aggregator) Metrics() types.Metrics {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.metrics
}

// Report assembles everything collected so far, ordered by path.
func (a *Aggregator) Report(hostname string) *types.Report {
	a.mu.Lock()
	defer a.mu.Unlock()

	paths := make([]string, 0, len(a.reports))
	for p := range a.reports {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	r := &types.Report{
		Hostname: hostname,
		Metrics:  a.metrics,
		Entries:  make([]types.ReportEntry, 0),
		Errors:   append([]types.ErrorEntry(nil), a.errors...),
	}
	for _, p := range paths {
		r.Entries = append(r.Entries, a.reports[p]...)
	}
	sort.SliceStable(r.Errors, func(i, j int) bool { return r.Errors[i].Path < r.Errors[j].Path })
	return r
}
