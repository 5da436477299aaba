// Package walker traverses the filesystem and feeds archive paths to the
// scanner.
package walker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/buemura/jarhunter/internal/log"
	"github.com/buemura/jarhunter/internal/scanner"
	"github.com/buemura/jarhunter/pkg/types"
)

const (
	statusEvery    = 1000
	statusInterval = 10 * time.Second
)

var (
	rar5Magic = []byte{0x52, 0x61, 0x72, 0x21, 0x1A, 0x07, 0x01, 0x00}
	rar4Magic = []byte{0x52, 0x61, 0x72, 0x21, 0x1A, 0x07, 0x00}
)

// Options controls traversal.
type Options struct {
	ScanZip   bool
	NoSymlink bool
	Silent    bool
	Excludes  *Excluder
	// Throttle limits files handed to the scanner per second. Zero means
	// unlimited.
	Throttle int
}

// Walker visits roots and sends every scan target it finds.
type Walker struct {
	opts    Options
	agg     *scanner.Aggregator
	out     io.Writer
	windows bool

	interval time.Duration
	next     time.Time
}

// New creates a walker that counts into agg and prints status lines to out.
func New(opts Options, agg *scanner.Aggregator, out io.Writer) *Walker {
	w := &Walker{opts: opts, agg: agg, out: out, windows: runtime.GOOS == "windows"}
	if opts.Throttle > 0 {
		w.interval = time.Second / time.Duration(opts.Throttle)
	}
	return w
}

// Walk traverses each root in turn and sends scan targets to paths. The
// caller owns paths and closes it after Walk returns.
func (w *Walker) Walk(ctx context.Context, roots []string, paths chan<- string) error {
	for _, root := range roots {
		if abs, err := filepath.Abs(root); err == nil {
			root = abs
		}
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			return w.visit(ctx, path, d, err, paths)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (w *Walker) visit(ctx context.Context, path string, d fs.DirEntry, err error, paths chan<- string) error {
	if cerr := ctx.Err(); cerr != nil {
		return cerr
	}
	if !w.opts.Silent {
		w.logStatus()
	}
	if err != nil {
		if os.IsPermission(err) {
			log.Debugf("Cannot read %s: %v", path, err)
		} else {
			log.Warnf("Cannot read %s: %v", path, err)
		}
		return nil
	}

	if d.IsDir() {
		return w.visitDir(path)
	}

	if d.Type()&fs.ModeSymlink != 0 {
		info, err := os.Stat(path)
		if err != nil {
			log.Debugf("Skipping broken symlink: %s", path)
			return nil
		}
		if info.IsDir() {
			log.Tracef("Skipping symlink: %s", path)
			return nil
		}
		w.agg.VisitFile()
		if w.opts.NoSymlink {
			log.Tracef("Skipping symlink: %s", path)
			return nil
		}
	} else {
		w.agg.VisitFile()
		if !d.Type().IsRegular() {
			return nil
		}
	}

	if !types.IsScanTarget(path, w.opts.ScanZip) {
		log.Tracef("Skipping file: %s", path)
		return nil
	}
	if isWinRAR(path) {
		log.Tracef("Skipping file (winrar): %s", path)
		return nil
	}

	if err := w.throttle(ctx); err != nil {
		return err
	}
	log.Tracef("Scanning file: %s", path)
	select {
	case paths <- path:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Walker) visitDir(path string) error {
	if w.opts.Excludes.Match(path) {
		log.Tracef("Skipping excluded directory: %s", path)
		return filepath.SkipDir
	}
	if isSystemDir(path, w.windows) {
		log.Tracef("Skipping directory: %s", path)
		return filepath.SkipDir
	}
	log.Tracef("Scanning directory: %s", path)
	w.agg.VisitDir(path)
	return nil
}

func (w *Walker) logStatus() {
	m, ok := w.agg.ShouldLogStatus(statusEvery, statusInterval)
	if !ok {
		return
	}
	elapsed := int(time.Since(m.ScanStartTime).Seconds())
	fmt.Fprintf(w.out, "Running scan (%ds): scanned %d directories, %d files, last visit: %s\n",
		elapsed, m.ScanDirCount, m.ScanFileCount, m.LastVisitDirectory)
}

// throttle spaces out files by the configured interval.
func (w *Walker) throttle(ctx context.Context) error {
	if w.interval == 0 {
		return nil
	}
	now := time.Now()
	if w.next.After(now) {
		t := time.NewTimer(w.next.Sub(now))
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		}
		now = w.next
	}
	w.next = now.Add(w.interval)
	return nil
}

// isWinRAR reports whether the file starts with a RAR signature. Such files
// share the .rar extension with resource adapter archives.
func isWinRAR(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	head := make([]byte, len(rar5Magic))
	n, _ := io.ReadFull(f, head)
	head = head[:n]
	return bytes.HasPrefix(head, rar5Magic) || bytes.HasPrefix(head, rar4Magic)
}
