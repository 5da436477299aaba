package jobs

import (
	"context"
	"time"

	"github.com/buemura/jarhunter/internal/scanner"
	"github.com/buemura/jarhunter/pkg/types"
)

// JobStatus represents the current state of a scan job.
type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
	StatusCanceled  JobStatus = "canceled"
)

// ScanOptions are the per-job knobs accepted over HTTP. Fixing is not one of
// them.
type ScanOptions struct {
	ScanZip         bool     `json:"scan_zip"`
	ScanLog4j1      bool     `json:"scan_log4j1"`
	ScanLogback     bool     `json:"scan_logback"`
	ScanCommonsText bool     `json:"scan_commons_text"`
	ReportSafe      bool     `json:"report_safe"`
	MaxDepth        int      `json:"max_depth"`
	Exclude         []string `json:"exclude,omitempty"`
}

// JobProgress mirrors the aggregator counters while a job runs.
type JobProgress struct {
	Directories int64  `json:"directories"`
	Files       int64  `json:"files"`
	Vulnerable  int    `json:"vulnerable"`
	Potential   int    `json:"potentially_vulnerable"`
	Mitigated   int    `json:"mitigated"`
	Errors      int    `json:"errors"`
	LastVisit   string `json:"last_visit,omitempty"`
}

// Job represents an async scan job.
type Job struct {
	ID          string        `json:"id"`
	Paths       []string      `json:"paths"`
	Options     ScanOptions   `json:"options"`
	Status      JobStatus     `json:"status"`
	Report      *types.Report `json:"report,omitempty"`
	RunID       string        `json:"run_id,omitempty"`
	Error       string        `json:"error,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	StartedAt   time.Time     `json:"started_at,omitempty"`
	CompletedAt time.Time     `json:"completed_at,omitempty"`
	Progress    JobProgress   `json:"progress"`

	agg    *scanner.Aggregator
	cancel context.CancelFunc
}

// Done reports whether the job has stopped running.
func (j *Job) Done() bool {
	switch j.Status {
	case StatusCompleted, StatusFailed, StatusCanceled:
		return true
	}
	return false
}

// FindingCount returns the number of report entries of a finished job.
func (j *Job) FindingCount() int {
	if j.Report == nil {
		return 0
	}
	return len(j.Report.Entries)
}

func progressOf(m types.Metrics) JobProgress {
	return JobProgress{
		Directories: m.ScanDirCount,
		Files:       m.ScanFileCount,
		Vulnerable:  m.VulnerableFileCount,
		Potential:   m.PotentiallyVulnerableFileCount,
		Mitigated:   m.MitigatedFileCount,
		Errors:      m.ErrorCount,
		LastVisit:   m.LastVisitDirectory,
	}
}
