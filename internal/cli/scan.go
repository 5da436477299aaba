package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/encoding"

	"github.com/buemura/jarhunter/internal/archive"
	"github.com/buemura/jarhunter/internal/config"
	"github.com/buemura/jarhunter/internal/fixer"
	"github.com/buemura/jarhunter/internal/log"
	"github.com/buemura/jarhunter/internal/output"
	"github.com/buemura/jarhunter/internal/repackage"
	"github.com/buemura/jarhunter/internal/scanner"
	"github.com/buemura/jarhunter/internal/signature"
	"github.com/buemura/jarhunter/internal/tui"
	"github.com/buemura/jarhunter/internal/walker"
	"github.com/buemura/jarhunter/pkg/types"
)

const fixQuestion = "Are you sure"

var scanCmd = &cobra.Command{
	Use:   "scan [paths...]",
	Short: "Scan paths for vulnerable archives",
	Long: `Scan walks the given paths and reports archives that bundle a vulnerable
log4j 2 version (CVE-2021-44228, CVE-2021-45046, CVE-2021-45105,
CVE-2021-44832). Other products are opt-in with --scan-log4j1,
--scan-logback and --scan-commons-text.

With --fix, JndiLookup and the other vulnerable classes are removed from
every affected archive after a confirmation prompt. The originals are kept in
a backup zip that "jarhunter restore" can put back.`,
	Example: `  jarhunter scan /opt /srv
  jarhunter scan --scan-zip --scan-log4j1 --report-json /
  jarhunter scan --fix --backup-path /root/backup.zip /opt/app
  jarhunter scan --all-drives --exclude-fs nfs,cifs`,
	RunE: runScan,
}

func init() {
	f := scanCmd.Flags()
	f.Bool("scan-zip", false, "also scan .zip files")
	f.String("zip-charset", "", "charset for entry names that are not UTF-8 (default: IBM437)")
	f.Bool("scan-log4j1", false, "detect log4j 1.x (CVE-2021-4104)")
	f.Bool("scan-logback", false, "detect logback (CVE-2021-42550)")
	f.Bool("scan-commons-text", false, "detect commons-text (CVE-2022-42889)")
	f.Bool("report-safe", false, "also report safe versions")

	f.Bool("fix", false, "remove vulnerable classes after confirmation")
	f.Bool("force-fix", false, "fix without asking")
	f.String("backup-path", "", "backup archive path (default: jarhunter_scan_backup_<time>.zip)")

	f.Bool("no-symlink", false, "skip symlinked files")
	f.StringSlice("exclude", nil, "path prefixes to skip")
	f.StringSlice("exclude-pattern", nil, "substrings or glob patterns of paths to skip")
	f.String("exclude-config", "", "file listing path prefixes to skip, one per line")
	f.StringSlice("exclude-fs", nil, "filesystem types to skip (default: nfs,tmpfs,devtmpfs,iso9660)")
	f.String("include-file", "", "file listing paths to scan, one per line")
	f.Bool("all-drives", false, "scan every local mount point")
	f.StringSlice("drives", nil, "drive letters to scan (Windows)")

	f.Bool("report-csv", false, "write a CSV report file")
	f.Bool("report-json", false, "write a JSON report file")
	f.String("report-path", "", "report file path")
	f.String("report-dir", "", "directory for report files")
	f.Bool("no-empty-report", false, "do not write report files without findings")
	f.Bool("old-exit-code", false, "exit with the number of vulnerable files")

	f.StringP("output", "o", "table", "output format: "+strings.Join(output.Formats, ", "))
	f.IntP("concurrency", "c", 0, "files scanned in parallel (default: number of CPUs)")
	f.Int("throttle", 0, "max files scanned per second (0: unlimited)")
	f.Int("max-depth", 0, "max nesting depth opened (0: unlimited)")
	f.String("database-url", "", "store the scan run in this Postgres database")
}

// confirmFix asks before patching. Tests replace it.
var confirmFix = func(cmd *cobra.Command, candidates []tui.FixCandidate) (bool, error) {
	return tui.Confirm(cmd.InOrStdin(), cmd.OutOrStdout(), fixQuestion, candidates)
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg := appConfig

	roots, err := scanRoots(cfg, args)
	if err != nil {
		return err
	}
	if len(roots) == 0 {
		return errors.New("nothing to scan: pass paths, --include-file, --all-drives or --drives")
	}
	excludes, err := buildExcluder(cfg, roots)
	if err != nil {
		return err
	}
	var charset encoding.Encoding
	if cfg.ZipCharset != "" {
		if charset, err = archive.LookupCharset(cfg.ZipCharset); err != nil {
			return err
		}
	}

	// Non-table formats keep stdout for the document itself.
	out := cmd.OutOrStdout()
	progress := out
	if cfg.OutputFormat != "table" {
		progress = cmd.ErrOrStderr()
	}
	console := output.NewConsole(progress, cfg.Silent)

	catalog := signature.NewCatalog(signature.Options{
		Log4j1:      cfg.ScanLog4j1,
		Logback:     cfg.ScanLogback,
		CommonsText: cfg.ScanCommonsText,
	})
	engine := scanner.NewEngine(catalog, scanner.Options{
		ScanZip:     cfg.ScanZip,
		Charset:     charset,
		MaxDepth:    cfg.MaxDepth,
		ReportSafe:  cfg.ReportSafe,
		Concurrency: cfg.Concurrency,
	})

	start := time.Now()
	agg := scanner.NewAggregator(cfg.Fix, start)
	agg.AddListener(console)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	w := walker.New(walker.Options{
		ScanZip:   cfg.ScanZip,
		NoSymlink: cfg.NoSymlink,
		Silent:    cfg.Silent,
		Excludes:  excludes,
		Throttle:  cfg.Throttle,
	}, agg, progress)

	if err := scan(ctx, w, scanner.NewRunner(engine, agg), roots); err != nil {
		if !errors.Is(err, context.Canceled) {
			return err
		}
		log.Warnf("Scan interrupted")
	}

	if cfg.Fix && ctx.Err() == nil {
		if err := fix(ctx, cmd, cfg, catalog, agg, start, progress); err != nil {
			return err
		}
	}

	hostname, _ := os.Hostname()
	report := agg.Report(hostname)
	failed := writeReports(cfg, report, out, start)
	if cfg.DatabaseURL != "" {
		if err := saveRun(cfg.DatabaseURL, report); err != nil {
			log.Errorf("Cannot save scan run: %v", err)
			failed = true
		}
	}
	console.Summary(report.Metrics, cfg.Fix, time.Now())

	code := exitCode(report.Metrics, cfg.OldExitCode)
	if failed && !cfg.OldExitCode {
		code = 2
	}
	if code != 0 {
		return &ExitError{Code: code}
	}
	return nil
}

// scan walks roots and scans what the walker finds until both are done.
func scan(ctx context.Context, w *walker.Walker, runner *scanner.Runner, roots []string) error {
	paths := make(chan string, 256)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(paths)
		return w.Walk(gctx, roots, paths)
	})
	g.Go(func() error { return runner.Run(gctx, paths) })
	return g.Wait()
}

func fix(ctx context.Context, cmd *cobra.Command, cfg *config.Config, catalog *signature.Catalog, agg *scanner.Aggregator, start time.Time, out io.Writer) error {
	queue := agg.Queue()
	if len(queue) == 0 {
		return nil
	}

	if !cfg.ForceFix {
		candidates := make([]tui.FixCandidate, 0, len(queue))
		for _, vf := range queue {
			st := types.StatusNotVulnerable
			for _, e := range agg.Entries(vf.Path) {
				st = types.Worst(st, e.Status)
			}
			candidates = append(candidates, tui.FixCandidate{Path: vf.Path, Status: st})
		}
		ok, err := confirmFix(cmd, candidates)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(out, "Fix canceled.")
			return nil
		}
	}

	opts := fixer.Options{
		Repackage: repackage.Options{
			DeleteTargets: catalog.DeleteTargets(),
			ShadeSuffixes: catalog.ShadeSuffixes(),
			ScanZip:       cfg.ScanZip,
			MaxDepth:      cfg.MaxDepth,
		},
		BackupPath: cfg.BackupPath,
		StartTime:  start,
	}
	if cfg.S3.Bucket != "" {
		up, err := fixer.NewS3Uploader(fixer.S3Config(cfg.S3))
		if err != nil {
			log.Errorf("Cannot create S3 client: %v", err)
		} else {
			opts.Uploader = up
		}
	}

	outcome, err := fixer.New(opts, agg, out).Fix(ctx, queue)
	if err != nil {
		log.Errorf("%v", err)
	}
	if outcome != nil && outcome.BackupArchive != "" {
		fmt.Fprintf(out, "Backup archive: %s\n", outcome.BackupArchive)
	}
	return nil
}

// writeReports prints the report to out and writes the requested report
// files. It reports whether writing any file failed.
func writeReports(cfg *config.Config, report *types.Report, out io.Writer, start time.Time) bool {
	failed := false
	if cfg.OutputFormat != "table" || len(report.Entries) > 0 || len(report.Errors) > 0 {
		formatter, err := output.GetFormatter(cfg.OutputFormat)
		if err == nil {
			err = formatter.Format(out, report)
		}
		if err != nil {
			log.Errorf("Cannot print report: %v", err)
			failed = true
		}
	}

	written, err := output.WriteReportFiles(report, output.ReportOptions{
		CSV:     cfg.ReportCSV,
		JSON:    cfg.ReportJSON,
		Path:    cfg.ReportPath,
		Dir:     cfg.ReportDir,
		NoEmpty: cfg.NoEmptyReport,
	}, start)
	for _, p := range written {
		log.Infof("Wrote report %s", p)
	}
	if err != nil {
		log.Errorf("%v", err)
		failed = true
	}
	return failed
}

func saveRun(url string, report *types.Report) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	st, err := openStore(ctx, url)
	if err != nil {
		return err
	}
	defer st.Close()

	id, err := st.SaveRun(ctx, report, time.Now())
	if err != nil {
		return err
	}
	log.Infof("Saved scan run %s", id)
	return nil
}

// exitCode follows the documented convention: 2 on errors, 1 on findings.
// The old convention returns the number of affected files.
func exitCode(m types.Metrics, old bool) int {
	affected := m.VulnerableFileCount + m.PotentiallyVulnerableFileCount
	if old {
		return min(affected, 255)
	}
	switch {
	case m.ErrorCount > 0:
		return 2
	case affected > 0:
		return 1
	}
	return 0
}

func scanRoots(cfg *config.Config, args []string) ([]string, error) {
	roots := append([]string(nil), args...)
	switch {
	case cfg.IncludeFile != "":
		paths, err := walker.LoadPathList(cfg.IncludeFile)
		if err != nil {
			return nil, fmt.Errorf("reading include file: %w", err)
		}
		roots = append(roots, paths...)
	case cfg.AllDrives:
		drives, err := walker.AllDrives()
		if err != nil {
			return nil, err
		}
		roots = append(roots, drives...)
	case len(cfg.Drives) > 0:
		drives, err := walker.DriveRoots(cfg.Drives)
		if err != nil {
			return nil, err
		}
		roots = append(roots, drives...)
	}
	return roots, nil
}

func buildExcluder(cfg *config.Config, roots []string) (*walker.Excluder, error) {
	paths := append([]string(nil), cfg.ExcludePaths...)
	if cfg.ExcludeConfig != "" {
		more, err := walker.LoadPathList(cfg.ExcludeConfig)
		if err != nil {
			return nil, fmt.Errorf("reading exclude config: %w", err)
		}
		paths = append(paths, more...)
	}

	mounts, err := walker.ExcludedMounts(cfg.ExcludeFS)
	if err != nil {
		log.Debugf("Cannot list mount points: %v", err)
	}
	paths = append(paths, outsideRoots(mounts, roots)...)

	return walker.NewExcluder(paths, cfg.ExcludePatterns)
}

// outsideRoots drops mount points that contain a root. Asking for a path
// explicitly overrides the filesystem type filter.
func outsideRoots(mounts, roots []string) []string {
	abs := make([]string, 0, len(roots))
	for _, r := range roots {
		if a, err := filepath.Abs(r); err == nil {
			r = a
		}
		abs = append(abs, r)
	}

	var kept []string
	for _, m := range mounts {
		contains := false
		for _, r := range abs {
			if r == m || strings.HasPrefix(r, strings.TrimSuffix(m, string(filepath.Separator))+string(filepath.Separator)) {
				contains = true
				break
			}
		}
		if !contains {
			kept = append(kept, m)
		}
	}
	return kept
}
