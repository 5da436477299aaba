// Package fixer patches vulnerable archives in place. Every file is backed up
// before it is touched and restored from that backup if patching fails.
package fixer

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/multierr"

	"github.com/buemura/jarhunter/internal/log"
	"github.com/buemura/jarhunter/internal/repackage"
	"github.com/buemura/jarhunter/internal/scanner"
	"github.com/buemura/jarhunter/internal/signature"
	"github.com/buemura/jarhunter/pkg/types"
)

// BackupSuffix is appended to a file's path for its backup copy.
const BackupSuffix = ".bak"

var (
	// doNotFix CVEs only warrant an upgrade. Files whose findings are all
	// in this set are left alone.
	doNotFix = map[string]bool{
		signature.CVELog4j2Recursion:    true,
		signature.CVELog4j2JDBCAppender: true,
	}
	// stillVulnerable CVEs are not resolved by removing classes, so their
	// entries are never marked fixed.
	stillVulnerable = map[string]bool{
		signature.CVELog4j2Recursion: true,
	}
)

// repackageFile is replaced in tests to simulate a failing rewrite.
var repackageFile = repackage.File

// Sink receives the outcome of each fix. *scanner.Aggregator implements it.
type Sink interface {
	Entries(path string) []types.ReportEntry
	MarkFixed(path string, keep map[string]bool)
	AddError(path, msg string)
}

// Uploader copies the backup archive off the host.
type Uploader interface {
	Upload(ctx context.Context, path string) (string, error)
}

// Options configures a fix batch.
type Options struct {
	// Repackage carries the delete targets and scan settings. NestedJar and
	// Charset are set per file.
	Repackage repackage.Options
	// BackupPath overrides the default backup archive name.
	BackupPath string
	// StartTime stamps the default backup archive name.
	StartTime time.Time
	Uploader  Uploader
}

// Outcome summarizes a batch.
type Outcome struct {
	Fixed         []string
	BackupArchive string
	UploadedTo    string
}

// Fixer runs fix batches.
type Fixer struct {
	opts Options
	sink Sink
	out  io.Writer
}

// New creates a fixer that reports through sink and prints progress to out.
func New(opts Options, sink Sink, out io.Writer) *Fixer {
	return &Fixer{opts: opts, sink: sink, out: out}
}

// BackupArchiveName is the default archive name for a scan started at t.
func BackupArchiveName(t time.Time) string {
	return "jarhunter_scan_backup_" + t.Format("20060102_150405") + ".zip"
}

// Fix patches every queued file, then collects the backups into one archive
// and removes the individual .bak files. Per-file failures go to the sink;
// the returned error covers the backup archive and upload only.
func (f *Fixer) Fix(ctx context.Context, batch []scanner.VulnerableFile) (*Outcome, error) {
	out := &Outcome{}
	if len(batch) > 0 {
		fmt.Fprintln(f.out)
	}

	var backups []string
	for _, vf := range batch {
		if err := ctx.Err(); err != nil {
			break
		}
		target, backup, ok := f.fixOne(vf)
		if ok {
			out.Fixed = append(out.Fixed, target)
			backups = append(backups, backup)
		}
	}

	if len(backups) == 0 {
		return out, ctx.Err()
	}

	name := f.opts.BackupPath
	if name == "" {
		name = BackupArchiveName(f.opts.StartTime)
	}
	if err := writeBackupArchive(name, backups); err != nil {
		return out, fmt.Errorf("cannot archive backup files to %s: %w", name, err)
	}
	out.BackupArchive = name

	var err error
	for _, b := range backups {
		if rerr := os.Remove(b); rerr != nil {
			err = multierr.Append(err, fmt.Errorf("backup file cannot be deleted - %s: %w", b, rerr))
		}
	}

	if f.opts.Uploader != nil {
		loc, uerr := f.opts.Uploader.Upload(ctx, name)
		if uerr != nil {
			err = multierr.Append(err, fmt.Errorf("uploading %s: %w", name, uerr))
		} else {
			out.UploadedTo = loc
			log.Infof("Uploaded backup archive to %s", loc)
		}
	}
	return out, err
}

func (f *Fixer) fixOne(vf scanner.VulnerableFile) (target, backup string, ok bool) {
	target, symlinkMsg := resolve(vf.Path)
	log.Tracef("Patching %s%s", target, symlinkMsg)

	backup = target + BackupSuffix
	if _, err := os.Lstat(backup); err == nil {
		f.sink.AddError(target, "Cannot create backup file. .bak File already exists")
		return target, "", false
	}

	// Report entries are keyed by the scanned path, not the link target.
	entries := f.sink.Entries(vf.Path)
	except, needFix := splitCVEs(entries)
	exceptMsg := ""
	if len(except) > 0 {
		exceptMsg = " (except " + strings.Join(except, ", ") + ")"
	}
	if !needFix {
		fmt.Fprintf(f.out, "Cannot fix %s, Upgrade it: %s%s\n", strings.Join(except, ", "), target, symlinkMsg)
		return target, "", false
	}

	restoreMode, err := ensureWritable(target)
	if err != nil {
		f.sink.AddError(target, "No write permission. Cannot remove read-only attribute")
		return target, "", false
	}
	defer func() {
		if rerr := restoreMode(); rerr != nil {
			log.Errorf("File cannot be set as read only - %s: %v", target, rerr)
		}
	}()

	if err := checkLock(target); err != nil {
		f.sink.AddError(target, "Cannot lock file "+err.Error())
		return target, "", false
	}

	if err := copyAsIs(target, backup); err != nil {
		os.Remove(backup)
		f.sink.AddError(target, "Cannot backup file "+err.Error())
		return target, "", false
	}

	if err := truncate(target); err != nil {
		if rerr := os.Remove(backup); rerr != nil {
			log.Errorf("Backup file cannot be deleted - %s: %v", backup, rerr)
		}
		f.sink.AddError(target, "Cannot truncate file "+err.Error())
		return target, "", false
	}

	opts := f.opts.Repackage
	opts.NestedJar = vf.NestedJar
	opts.Charset = vf.Charset
	if err := rewrite(backup, target, opts); err != nil {
		f.sink.AddError(target, fmt.Sprintf("Cannot fix file (%v).", err))
		if rerr := restoreFile(backup, target); rerr != nil {
			f.sink.AddError(target, fmt.Sprintf("Cannot rollback file from %s (%v).", backup, rerr))
		}
		return target, "", false
	}

	f.sink.MarkFixed(vf.Path, stillVulnerable)
	fmt.Fprintf(f.out, "Fixed: %s%s%s\n", target, symlinkMsg, exceptMsg)
	return target, backup, true
}

// splitCVEs returns the sorted do-not-fix CVEs found and whether any other
// finding calls for a fix. Safe and mitigated entries never do.
func splitCVEs(entries []types.ReportEntry) (except []string, needFix bool) {
	seen := make(map[string]bool)
	for _, e := range entries {
		if e.CVE == "" || (e.Status != types.StatusVulnerable && e.Status != types.StatusPotentiallyVulnerable) {
			continue
		}
		if doNotFix[e.CVE] {
			if !seen[e.CVE] {
				seen[e.CVE] = true
				except = append(except, e.CVE)
			}
			continue
		}
		needFix = true
	}
	sort.Strings(except)
	return except, needFix
}

// resolve follows a symlink so the link target is patched and the link
// itself survives.
func resolve(path string) (string, string) {
	info, err := os.Lstat(path)
	if err != nil || info.Mode()&os.ModeSymlink == 0 {
		return path, ""
	}
	target, err := filepath.EvalSymlinks(path)
	if err != nil {
		return path, ""
	}
	if abs, err := filepath.Abs(target); err == nil {
		target = abs
	}
	return target, " (from symlink " + path + ")"
}

// ensureWritable adds owner write permission when it is missing. The
// returned func puts the original mode back.
func ensureWritable(path string) (func() error, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	mode := info.Mode().Perm()
	if mode&0o200 != 0 {
		return func() error { return nil }, nil
	}
	if err := os.Chmod(path, mode|0o200); err != nil {
		return nil, err
	}
	return func() error { return os.Chmod(path, mode) }, nil
}

// copyAsIs copies src to a new file dst with the permission bits of src.
// Owner write is kept so the copy can be removed later.
func copyAsIs(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	perm := info.Mode().Perm() | 0o200
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return err
	}
	// The umask may have narrowed the mode; set it exactly.
	if err := out.Chmod(perm); err != nil {
		out.Close()
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return multierr.Append(out.Sync(), out.Close())
}

// truncate empties path in place, keeping its inode so hard links and
// symlinks still point at the patched file.
func truncate(path string) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	return multierr.Append(f.Truncate(0), f.Close())
}

func rewrite(src, dst string, opts repackage.Options) error {
	out, err := os.OpenFile(dst, os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	if err := repackageFile(src, out, opts); err != nil {
		out.Close()
		return err
	}
	return multierr.Append(out.Sync(), out.Close())
}

// restoreFile copies backup over target in place.
func restoreFile(backup, target string) error {
	in, err := os.Open(backup)
	if err != nil {
		return err
	}
	defer in.Close()
	return overwrite(in, target)
}
