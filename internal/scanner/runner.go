package scanner

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/buemura/jarhunter/internal/archive"
	"github.com/buemura/jarhunter/internal/log"
)

// Runner scans top-level files concurrently and feeds an Aggregator. Each
// file, with everything nested inside it, is scanned on one goroutine.
type Runner struct {
	engine *Engine
	agg    *Aggregator
}

// NewRunner creates a runner backed by the given engine and aggregator.
func NewRunner(engine *Engine, agg *Aggregator) *Runner {
	return &Runner{engine: engine, agg: agg}
}

// Aggregator returns the runner's result sink.
func (r *Runner) Aggregator() *Aggregator { return r.agg }

// Run scans every path received from paths until the channel is closed or
// ctx is done, bounded by the engine's Concurrency option.
func (r *Runner) Run(ctx context.Context, paths <-chan string) error {
	concurrency := r.engine.opts.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for {
		select {
		case <-ctx.Done():
			g.Wait()
			return ctx.Err()
		case path, ok := <-paths:
			if !ok {
				return g.Wait()
			}
			g.Go(func() error {
				r.RunOne(path)
				return nil
			})
		}
	}
}

// RunOne scans a single file and records the outcome.
func (r *Runner) RunOne(path string) {
	res, err := r.engine.ScanFile(path)
	if err != nil {
		r.agg.AddError(path, ErrorMessage(path, err))
		log.Debugf("scan of %s failed: %+v", path, err)
		return
	}
	r.agg.AddResult(res)
}

// ErrorMessage formats a per-file scan failure for reports.
func ErrorMessage(path string, err error) string {
	if errors.Is(err, archive.ErrBrokenArchive) || errors.Is(err, archive.ErrEncoding) {
		return fmt.Sprintf("Skipping broken jar file %s ('%v')", path, err)
	}
	return fmt.Sprintf("Scan error: '%v' on file: %s", err, path)
}
