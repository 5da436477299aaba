// Package scanner inspects Java archives for vulnerable logging and text
// libraries, including archives nested inside other archives.
package scanner

import (
	"runtime"

	"golang.org/x/text/encoding"
)

// Options holds engine-wide execution parameters.
type Options struct {
	// ScanZip also opens .zip files and entries.
	ScanZip bool
	// Charset is the fallback used when entry names are not valid UTF-8.
	// Nil selects archive.DefaultFallback.
	Charset encoding.Encoding
	// MaxDepth limits how many nesting levels are opened. 0 means unlimited.
	MaxDepth int
	// ReportSafe records NOT_VULNERABLE entries for patched versions.
	ReportSafe bool
	// Concurrency bounds how many top-level files are scanned at once.
	Concurrency int
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		Concurrency: runtime.NumCPU(),
	}
}
