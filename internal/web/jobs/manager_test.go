package jobs

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buemura/jarhunter/pkg/types"
)

func writeJar(t *testing.T, path, version string) {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range map[string]string{
		"META-INF/maven/org.apache.logging.log4j/log4j-core/pom.properties": "groupId=org.apache.logging.log4j\nartifactId=log4j-core\nversion=" + version + "\n",
		"org/apache/logging/log4j/core/lookup/JndiLookup.class":             "\xca\xfe\xba\xbe",
	} {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func scanTree(t *testing.T) string {
	dir := t.TempDir()
	writeJar(t, filepath.Join(dir, "app", "log4j-core-2.14.1.jar"), "2.14.1")
	writeJar(t, filepath.Join(dir, "lib", "log4j-core-2.17.1.jar"), "2.17.1")
	return dir
}

type fakeSink struct {
	mu    sync.Mutex
	saved []*types.Report
	err   error
}

func (s *fakeSink) SaveRun(_ context.Context, r *types.Report, _ time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.saved = append(s.saved, r)
	return "run-1", nil
}

func waitDone(t *testing.T, m *Manager, id string) Job {
	t.Helper()
	var job Job
	require.Eventually(t, func() bool {
		j, err := m.Get(id)
		if err != nil {
			return false
		}
		job = j
		return j.Done()
	}, 5*time.Second, 10*time.Millisecond)
	return job
}

func TestCreate_ReturnsPendingJob(t *testing.T) {
	m := NewManager(Config{})
	job := m.Create([]string{"/opt"}, ScanOptions{ScanZip: true})

	assert.NotEmpty(t, job.ID)
	assert.Equal(t, StatusPending, job.Status)
	assert.Equal(t, []string{"/opt"}, job.Paths)
	assert.True(t, job.Options.ScanZip)
	assert.False(t, job.CreatedAt.IsZero())
}

func TestStartAndComplete(t *testing.T) {
	dir := scanTree(t)
	sink := &fakeSink{}
	m := NewManager(Config{Hostname: "web-01", Concurrency: 2, Sink: sink})

	job := m.Create([]string{dir}, ScanOptions{})
	require.NoError(t, m.Start(job.ID))

	done := waitDone(t, m, job.ID)
	assert.Equal(t, StatusCompleted, done.Status)
	require.NotNil(t, done.Report)
	assert.Equal(t, "web-01", done.Report.Hostname)
	require.Len(t, done.Report.Entries, 1)
	assert.Equal(t, filepath.Join(dir, "app", "log4j-core-2.14.1.jar"), done.Report.Entries[0].Path)
	assert.Equal(t, 1, done.Progress.Vulnerable)
	assert.Equal(t, int64(2), done.Progress.Files)
	assert.Equal(t, "run-1", done.RunID)
	assert.False(t, done.CompletedAt.IsZero())
	assert.Len(t, sink.saved, 1)
}

func TestStart_ReportSafe(t *testing.T) {
	dir := scanTree(t)
	m := NewManager(Config{})
	job := m.Create([]string{dir}, ScanOptions{ReportSafe: true})
	require.NoError(t, m.Start(job.ID))

	done := waitDone(t, m, job.ID)
	assert.Equal(t, 2, done.FindingCount())
}

func TestStart_Exclude(t *testing.T) {
	dir := scanTree(t)
	m := NewManager(Config{})
	job := m.Create([]string{dir}, ScanOptions{Exclude: []string{"app"}})
	require.NoError(t, m.Start(job.ID))

	done := waitDone(t, m, job.ID)
	assert.Zero(t, done.FindingCount())
}

func TestStart_SinkFailureKeepsReport(t *testing.T) {
	dir := scanTree(t)
	m := NewManager(Config{Sink: &fakeSink{err: errors.New("db down")}})
	job := m.Create([]string{dir}, ScanOptions{})
	require.NoError(t, m.Start(job.ID))

	done := waitDone(t, m, job.ID)
	assert.Equal(t, StatusCompleted, done.Status)
	assert.Empty(t, done.RunID)
	assert.Equal(t, 1, done.FindingCount())
}

func TestStart_Errors(t *testing.T) {
	m := NewManager(Config{})
	assert.Error(t, m.Start("missing"))

	job := m.Create([]string{t.TempDir()}, ScanOptions{Exclude: []string{"[bad"}})
	assert.Error(t, m.Start(job.ID))

	job = m.Create([]string{t.TempDir()}, ScanOptions{})
	require.NoError(t, m.Start(job.ID))
	assert.ErrorContains(t, m.Start(job.ID), "already started")
}

func TestList_NewestFirst(t *testing.T) {
	m := NewManager(Config{})
	first := m.Create([]string{"/a"}, ScanOptions{})
	time.Sleep(2 * time.Millisecond)
	second := m.Create([]string{"/b"}, ScanOptions{})

	list := m.List()
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, first.ID, list[1].ID)
}

func TestDelete(t *testing.T) {
	m := NewManager(Config{})
	job := m.Create([]string{"/a"}, ScanOptions{})

	require.NoError(t, m.Delete(job.ID))
	_, err := m.Get(job.ID)
	assert.Error(t, err)
	assert.Error(t, m.Delete(job.ID))
}

func TestNewUUIDOverride(t *testing.T) {
	prev := newUUID
	t.Cleanup(func() { newUUID = prev })
	newUUID = func() string { return "fixed-id" }

	m := NewManager(Config{})
	assert.Equal(t, "fixed-id", m.Create(nil, ScanOptions{}).ID)
}

func TestDone(t *testing.T) {
	for status, want := range map[JobStatus]bool{
		StatusPending:   false,
		StatusRunning:   false,
		StatusCompleted: true,
		StatusFailed:    true,
		StatusCanceled:  true,
	} {
		assert.Equal(t, want, (&Job{Status: status}).Done(), status)
	}
}
