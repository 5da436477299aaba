package types

import (
	"fmt"
	"strings"
	"time"
)

// Status is the verdict of one detection. Higher values are worse.
type Status int

const (
	StatusNotVulnerable Status = iota
	StatusMitigated
	StatusPotentiallyVulnerable
	StatusVulnerable
)

var statusNames = map[Status]string{
	StatusNotVulnerable:         "NOT_VULNERABLE",
	StatusMitigated:             "MITIGATED",
	StatusPotentiallyVulnerable: "POTENTIALLY_VULNERABLE",
	StatusVulnerable:            "VULNERABLE",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// MarshalText encodes the status by name so JSON reports stay readable.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText accepts the names produced by MarshalText.
func (s *Status) UnmarshalText(b []byte) error {
	st, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = st
	return nil
}

// ParseStatus converts a status name back into a Status.
func ParseStatus(name string) (Status, error) {
	for st, n := range statusNames {
		if strings.EqualFold(n, name) {
			return st, nil
		}
	}
	return StatusNotVulnerable, fmt.Errorf("unknown status %q", name)
}

// Worst returns the worse of two statuses.
func Worst(a, b Status) Status {
	if b > a {
		return b
	}
	return a
}

// Product names as they appear in reports.
const (
	ProductLog4j2      = "Log4j 2"
	ProductLog4j1      = "Log4j 1"
	ProductLogback     = "Logback"
	ProductCommonsText = "commons-text"
)

// VersionUnknown marks a detection made without version metadata.
const VersionUnknown = "N/A"

// ChainSeparator joins nested entry names in report locations.
const ChainSeparator = " > "

// ReportEntry records one detection inside a scanned file. Fixed is the only
// field changed after creation.
type ReportEntry struct {
	Path       string    `json:"path"`
	Chain      []string  `json:"-"`
	Product    string    `json:"product"`
	Version    string    `json:"version"`
	CVE        string    `json:"cve"`
	Status     Status    `json:"status"`
	Fixed      bool      `json:"fixed"`
	DetectedAt time.Time `json:"detectedAt"`
}

// Entry returns the nested path chain as a single location string.
func (e ReportEntry) Entry() string {
	return strings.Join(e.Chain, ChainSeparator)
}

// Location returns the file path followed by the nested chain, if any.
func (e ReportEntry) Location() string {
	if len(e.Chain) == 0 {
		return e.Path
	}
	return e.Path + " (" + e.Entry() + ")"
}

// ErrorEntry is a per-file failure surfaced to the caller instead of aborting.
type ErrorEntry struct {
	Path       string    `json:"path"`
	Message    string    `json:"message"`
	ReportedAt time.Time `json:"reportedAt"`
}

// Metrics summarizes one scan run.
type Metrics struct {
	ScanStartTime                  time.Time `json:"scanStartTime"`
	ScanDirCount                   int64     `json:"scanDirCount"`
	ScanFileCount                  int64     `json:"scanFileCount"`
	VulnerableFileCount            int       `json:"vulnerableFileCount"`
	PotentiallyVulnerableFileCount int       `json:"potentiallyVulnerableFileCount"`
	MitigatedFileCount             int       `json:"mitigatedFileCount"`
	FixedFileCount                 int       `json:"fixedFileCount"`
	ErrorCount                     int       `json:"errorCount"`
	LastVisitDirectory             string    `json:"lastVisitDirectory"`
	LastStatusLoggingCount         int64     `json:"lastStatusLoggingCount"`
	LastStatusLoggingTime          time.Time `json:"lastStatusLoggingTime"`
}

// Report is everything a scan run produced, in path order.
type Report struct {
	Hostname string        `json:"hostname,omitempty"`
	Metrics  Metrics       `json:"metrics"`
	Entries  []ReportEntry `json:"files"`
	Errors   []ErrorEntry  `json:"errors,omitempty"`
}

// CountByStatus tallies entries per status.
func (r *Report) CountByStatus() map[Status]int {
	counts := make(map[Status]int)
	for _, e := range r.Entries {
		counts[e.Status]++
	}
	return counts
}
