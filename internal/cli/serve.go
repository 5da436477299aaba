package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/buemura/jarhunter/internal/archive"
	"github.com/buemura/jarhunter/internal/log"
	"github.com/buemura/jarhunter/internal/store"
	"github.com/buemura/jarhunter/internal/web"
	"github.com/buemura/jarhunter/internal/web/jobs"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the jarhunter scan API",
	Long: `Serve exposes scans over HTTP. Jobs are created with POST /api/v1/scans and
their reports fetched from /api/v1/scans/{id}/report. Fixing is only
available from the command line.`,
	RunE: runServe,
}

func init() {
	f := serveCmd.Flags()
	f.String("addr", ":3000", "listen address (host:port)")
	f.String("database-url", "", "store finished scans in this Postgres database")
	f.IntP("concurrency", "c", 0, "files scanned in parallel per job (default: number of CPUs)")
	f.String("zip-charset", "", "charset for entry names that are not UTF-8 (default: IBM437)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := appConfig
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hostname, _ := os.Hostname()
	jc := jobs.Config{Hostname: hostname, Concurrency: cfg.Concurrency}
	if cfg.ZipCharset != "" {
		cs, err := archive.LookupCharset(cfg.ZipCharset)
		if err != nil {
			return err
		}
		jc.Charset = cs
	}
	if cfg.DatabaseURL != "" {
		st, err := openStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer st.Close()
		jc.Sink = st
	}

	s := web.NewServer(cfg.ListenAddr, jobs.NewManager(jc))
	fmt.Fprintf(cmd.OutOrStdout(), "jarhunter API listening on %s\n", cfg.ListenAddr)
	return s.Start(ctx)
}

// openStore connects and creates the tables. A role without DDL rights is
// allowed when the tables already exist.
func openStore(ctx context.Context, url string) (*store.Store, error) {
	st, err := store.Open(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	if err := st.EnsureSchema(ctx); err != nil {
		if !store.IsInsufficientPrivilege(err) {
			st.Close()
			return nil, fmt.Errorf("creating tables: %w", err)
		}
		log.Warnf("Cannot create tables, assuming they exist: %v", err)
	}
	return st, nil
}
