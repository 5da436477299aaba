package jobs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/encoding"

	"github.com/buemura/jarhunter/internal/log"
	"github.com/buemura/jarhunter/internal/scanner"
	"github.com/buemura/jarhunter/internal/signature"
	"github.com/buemura/jarhunter/internal/walker"
	"github.com/buemura/jarhunter/pkg/types"
)

// newUUID is a variable so tests can pin job IDs.
var newUUID = func() string { return uuid.NewString() }

// Sink persists finished reports.
type Sink interface {
	SaveRun(ctx context.Context, report *types.Report, finished time.Time) (string, error)
}

// Config holds settings shared by every job.
type Config struct {
	Hostname    string
	Charset     encoding.Encoding
	Concurrency int
	Sink        Sink
}

// Manager manages scan job lifecycle: create, execute, track, store results.
type Manager struct {
	mu   sync.RWMutex
	jobs map[string]*Job
	cfg  Config
}

// NewManager creates a new job manager.
func NewManager(cfg Config) *Manager {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &Manager{
		jobs: make(map[string]*Job),
		cfg:  cfg,
	}
}

// Create creates a new pending scan job.
func (m *Manager) Create(paths []string, opts ScanOptions) *Job {
	m.mu.Lock()
	defer m.mu.Unlock()

	job := &Job{
		ID:        newUUID(),
		Paths:     paths,
		Options:   opts,
		Status:    StatusPending,
		CreatedAt: time.Now(),
	}
	m.jobs[job.ID] = job
	return job
}

// Start launches the scan job in a background goroutine.
func (m *Manager) Start(jobID string) error {
	m.mu.Lock()
	job, ok := m.jobs[jobID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("job %q not found", jobID)
	}
	if job.Status != StatusPending {
		m.mu.Unlock()
		return fmt.Errorf("job %q already started", jobID)
	}

	excludes, err := walker.NewExcluder(nil, job.Options.Exclude)
	if err != nil {
		m.mu.Unlock()
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	job.Status = StatusRunning
	job.StartedAt = time.Now()
	job.agg = scanner.NewAggregator(false, job.StartedAt)
	job.cancel = cancel
	m.mu.Unlock()

	go m.execute(ctx, job, excludes)
	return nil
}

func (m *Manager) execute(ctx context.Context, job *Job, excludes *walker.Excluder) {
	defer job.cancel()
	defer func() {
		if r := recover(); r != nil {
			m.finish(job, StatusFailed, fmt.Sprintf("panic: %v", r))
		}
	}()

	opts := job.Options
	catalog := signature.NewCatalog(signature.Options{
		Log4j1:      opts.ScanLog4j1,
		Logback:     opts.ScanLogback,
		CommonsText: opts.ScanCommonsText,
	})
	engine := scanner.NewEngine(catalog, scanner.Options{
		ScanZip:     opts.ScanZip,
		Charset:     m.cfg.Charset,
		MaxDepth:    opts.MaxDepth,
		ReportSafe:  opts.ReportSafe,
		Concurrency: m.cfg.Concurrency,
	})
	w := walker.New(walker.Options{ScanZip: opts.ScanZip, Silent: true, Excludes: excludes}, job.agg, io.Discard)
	runner := scanner.NewRunner(engine, job.agg)

	paths := make(chan string, 64)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(paths)
		return w.Walk(gctx, job.Paths, paths)
	})
	g.Go(func() error { return runner.Run(gctx, paths) })
	err := g.Wait()

	switch {
	case errors.Is(err, context.Canceled):
		m.finish(job, StatusCanceled, "")
	case err != nil:
		m.finish(job, StatusFailed, err.Error())
	default:
		m.finish(job, StatusCompleted, "")
	}
}

func (m *Manager) finish(job *Job, status JobStatus, msg string) {
	report := job.agg.Report(m.cfg.Hostname)
	finished := time.Now()

	var runID string
	if status == StatusCompleted && m.cfg.Sink != nil {
		id, err := m.cfg.Sink.SaveRun(context.Background(), report, finished)
		if err != nil {
			log.Errorf("Cannot save scan %s: %v", job.ID, err)
		}
		runID = id
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	job.Status = status
	job.Error = msg
	job.Report = report
	job.RunID = runID
	job.Progress = progressOf(report.Metrics)
	job.CompletedAt = finished
}

// Get returns a snapshot of a job by ID.
func (m *Manager) Get(jobID string) (Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, ok := m.jobs[jobID]
	if !ok {
		return Job{}, fmt.Errorf("job %q not found", jobID)
	}
	return m.snapshot(job), nil
}

// List returns snapshots of all jobs sorted by CreatedAt descending.
func (m *Manager) List() []Job {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		result = append(result, m.snapshot(j))
	}
	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.After(result[k].CreatedAt)
	})
	return result
}

// snapshot copies j. Running jobs take their progress from the aggregator.
// Callers hold m.mu.
func (m *Manager) snapshot(j *Job) Job {
	c := *j
	if j.Status == StatusRunning && j.agg != nil {
		c.Progress = progressOf(j.agg.Metrics())
	}
	c.agg, c.cancel = nil, nil
	return c
}

// Delete cancels a running job and removes it from the manager.
func (m *Manager) Delete(jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[jobID]
	if !ok {
		return fmt.Errorf("job %q not found", jobID)
	}
	if job.cancel != nil {
		job.cancel()
	}
	delete(m.jobs, jobID)
	return nil
}
