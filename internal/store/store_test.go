package store

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buemura/jarhunter/pkg/types"
)

func entries(n int) []types.ReportEntry {
	out := make([]types.ReportEntry, n)
	for i := range out {
		out[i] = types.ReportEntry{
			Path:    fmt.Sprintf("/opt/app/%d.war", i),
			Chain:   []string{"WEB-INF/lib/log4j-core-2.14.1.jar"},
			Product: types.ProductLog4j2,
			Version: "2.14.1",
			CVE:     "CVE-2021-44228",
			Status:  types.StatusVulnerable,
		}
	}
	return out
}

func TestFindingBatches(t *testing.T) {
	id := uuid.New()
	batches := findingBatches(id, entries(250))
	require.Len(t, batches, 3)
	assert.Equal(t, 100, batches[0].Len())
	assert.Equal(t, 50, batches[2].Len())

	q := batches[0].QueuedQueries[0]
	assert.Equal(t, insertFinding, q.SQL)
	assert.Equal(t, []any{
		id, "/opt/app/0.war", "WEB-INF/lib/log4j-core-2.14.1.jar", types.ProductLog4j2, "2.14.1",
		"CVE-2021-44228", "VULNERABLE", false, time.Time{},
	}, q.Arguments)

	assert.Empty(t, findingBatches(id, nil))
}

func TestErrorBatches(t *testing.T) {
	id := uuid.New()
	batches := errorBatches(id, []types.ErrorEntry{{Path: "/tmp/x.jar", Message: "Skipping broken jar file"}})
	require.Len(t, batches, 1)
	assert.Equal(t, []any{id, "/tmp/x.jar", "Skipping broken jar file", time.Time{}}, batches[0].QueuedQueries[0].Arguments)
}

func TestRunArgs(t *testing.T) {
	id := uuid.New()
	start := time.Date(2021, 12, 20, 9, 0, 0, 0, time.UTC)
	r := &types.Report{
		Hostname: "web-01",
		Metrics:  types.Metrics{ScanStartTime: start, ScanDirCount: 3, ScanFileCount: 9, VulnerableFileCount: 2, ErrorCount: 1},
	}
	args := runArgs(id, r, start.Add(time.Minute))
	assert.Len(t, args, 11)
	assert.Equal(t, "web-01", args[1])
	assert.Equal(t, start.Add(time.Minute), args[3])
	assert.Equal(t, 2, args[6])
}

func TestIsInsufficientPrivilege(t *testing.T) {
	assert.True(t, IsInsufficientPrivilege(fmt.Errorf("wrap: %w", &pgconn.PgError{Code: "42501"})))
	assert.False(t, IsInsufficientPrivilege(&pgconn.PgError{Code: "23505"}))
	assert.False(t, IsInsufficientPrivilege(assert.AnError))
}

func TestOpen_InvalidURL(t *testing.T) {
	_, err := Open(context.Background(), "postgres://%zz")
	assert.Error(t, err)
}

// TestSaveRun needs a live database; set JARHUNTER_TEST_DATABASE_URL to run it.
func TestSaveRun(t *testing.T) {
	url := os.Getenv("JARHUNTER_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("JARHUNTER_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	s, err := Open(ctx, url)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.EnsureSchema(ctx))

	r := &types.Report{Hostname: "test", Metrics: types.Metrics{ScanStartTime: time.Now()}, Entries: entries(3)}
	id, err := s.SaveRun(ctx, r, time.Now())
	require.NoError(t, err)

	var n int
	require.NoError(t, s.Pool.QueryRow(ctx, `SELECT count(*) FROM scan_findings WHERE run_id = $1`, id).Scan(&n))
	assert.Equal(t, 3, n)
}
