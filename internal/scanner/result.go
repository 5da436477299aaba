package scanner

import (
	"golang.org/x/text/encoding"

	"github.com/buemura/jarhunter/pkg/types"
)

// DetectResult accumulates the findings of one archive node and everything
// nested below it. Flags only ever go from false to true.
type DetectResult struct {
	Vulnerable            bool
	Mitigated             bool
	PotentiallyVulnerable bool
	// NestedJar is set once a child archive has been merged in.
	NestedJar bool
}

// Merge ORs a child's flags into r.
func (r *DetectResult) Merge(child DetectResult) {
	r.Vulnerable = r.Vulnerable || child.Vulnerable
	r.Mitigated = r.Mitigated || child.Mitigated
	r.PotentiallyVulnerable = r.PotentiallyVulnerable || child.PotentiallyVulnerable
	r.NestedJar = true
}

// Mark sets the flag corresponding to a detection status.
func (r *DetectResult) Mark(s types.Status) {
	switch s {
	case types.StatusVulnerable:
		r.Vulnerable = true
	case types.StatusPotentiallyVulnerable:
		r.PotentiallyVulnerable = true
	case types.StatusMitigated:
		r.Mitigated = true
	}
}

// Status is the worst status the flags describe.
func (r DetectResult) Status() types.Status {
	switch {
	case r.Vulnerable:
		return types.StatusVulnerable
	case r.PotentiallyVulnerable:
		return types.StatusPotentiallyVulnerable
	case r.Mitigated:
		return types.StatusMitigated
	}
	return types.StatusNotVulnerable
}

// IsFixRequired reports whether a fix would remove anything.
func (r DetectResult) IsFixRequired() bool {
	return r.Vulnerable || r.PotentiallyVulnerable
}

// FileResult is the outcome of scanning one top-level file.
type FileResult struct {
	Path    string
	Result  DetectResult
	Entries []types.ReportEntry
	// Depth is the deepest nesting level that was opened. The file itself is
	// level 0.
	Depth int
	// Charset is the fallback used for entry names, nil when names decoded
	// as UTF-8 on the first attempt.
	Charset encoding.Encoding
}

// VulnerableFile is a file queued for fixing. Identity and order are by Path.
type VulnerableFile struct {
	Path      string
	NestedJar bool
	Charset   encoding.Encoding
}
