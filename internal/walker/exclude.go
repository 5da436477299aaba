package walker

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/gobwas/glob"
)

const globMeta = "*?[{"

// systemDirs are never traversed.
var systemDirs = []string{"/proc", "/sys", "/dev", "/run", "/var/run"}

// Excluder decides which directories are skipped.
type Excluder struct {
	fold     bool
	paths    []string
	patterns []string
	globs    []glob.Glob
}

// NewExcluder builds an excluder from path prefixes and patterns. A pattern
// with glob meta characters is compiled as a glob over the whole path; any
// other pattern matches as a substring.
func NewExcluder(paths, patterns []string) (*Excluder, error) {
	return newExcluder(paths, patterns, runtime.GOOS == "windows")
}

func newExcluder(paths, patterns []string, fold bool) (*Excluder, error) {
	e := &Excluder{fold: fold}
	for _, p := range paths {
		if abs, err := filepath.Abs(p); err == nil {
			p = abs
		}
		e.paths = append(e.paths, e.norm(p))
	}
	for _, p := range patterns {
		if p == "" {
			continue
		}
		if strings.ContainsAny(p, globMeta) {
			g, err := glob.Compile(e.norm(p))
			if err != nil {
				return nil, fmt.Errorf("invalid exclude pattern %q: %w", p, err)
			}
			e.globs = append(e.globs, g)
			continue
		}
		e.patterns = append(e.patterns, e.norm(p))
	}
	return e, nil
}

func (e *Excluder) norm(s string) string {
	if e.fold {
		return strings.ToUpper(s)
	}
	return s
}

// Paths returns the normalized path prefixes.
func (e *Excluder) Paths() []string { return e.paths }

// Match reports whether path was excluded by the user.
func (e *Excluder) Match(path string) bool {
	if e == nil {
		return false
	}
	path = e.norm(path)
	for _, p := range e.paths {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	for _, p := range e.patterns {
		if strings.Contains(path, p) {
			return true
		}
	}
	for _, g := range e.globs {
		if g.Match(path) {
			return true
		}
	}
	return false
}

// isSystemDir reports whether path is a pseudo filesystem or the Windows
// recycle bin.
func isSystemDir(path string, windows bool) bool {
	if windows {
		return strings.Index(strings.ToUpper(path), "$RECYCLE.BIN") == 3
	}
	for _, d := range systemDirs {
		if path == d || strings.HasPrefix(path, d+"/") {
			return true
		}
	}
	return false
}
