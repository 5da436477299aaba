package api

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buemura/jarhunter/internal/web/jobs"
)

func setupTestHandlers() (*Handlers, *chi.Mux) {
	mgr := jobs.NewManager(jobs.Config{Hostname: "test-host", Concurrency: 2})
	h := NewHandlers(mgr)

	r := chi.NewRouter()
	r.Post("/api/v1/scans", h.CreateScan)
	r.Get("/api/v1/scans", h.ListScans)
	r.Get("/api/v1/scans/{id}", h.GetScan)
	r.Get("/api/v1/scans/{id}/report", h.GetScanReport)
	r.Delete("/api/v1/scans/{id}", h.DeleteScan)
	return h, r
}

// vulnerableDir holds one log4j-core 2.14.1 jar.
func vulnerableDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range map[string]string{
		"META-INF/maven/org.apache.logging.log4j/log4j-core/pom.properties": "groupId=org.apache.logging.log4j\nartifactId=log4j-core\nversion=2.14.1\n",
		"org/apache/logging/log4j/core/lookup/JndiLookup.class":             "\xca\xfe\xba\xbe",
	} {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, os.WriteFile(filepath.Join(dir, "log4j-core-2.14.1.jar"), buf.Bytes(), 0o644))
	return dir
}

func do(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func completedJob(t *testing.T, h *Handlers) string {
	t.Helper()
	job := h.Manager.Create([]string{vulnerableDir(t)}, jobs.ScanOptions{})
	require.NoError(t, h.Manager.Start(job.ID))
	require.Eventually(t, func() bool {
		j, _ := h.Manager.Get(job.ID)
		return j.Status == jobs.StatusCompleted
	}, 5*time.Second, 10*time.Millisecond)
	return job.ID
}

func TestCreateScan_ValidBody(t *testing.T) {
	_, router := setupTestHandlers()

	body := `{"paths": ["` + filepath.ToSlash(vulnerableDir(t)) + `"], "scan_zip": true, "scan_log4j1": true}`
	w := do(router, http.MethodPost, "/api/v1/scans", body)

	assert.Equal(t, http.StatusCreated, w.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp["id"])
	assert.Equal(t, "running", resp["status"])
}

func TestCreateScan_BadRequests(t *testing.T) {
	_, router := setupTestHandlers()
	dir := filepath.ToSlash(t.TempDir())

	tests := []struct {
		name string
		body string
		want string
	}{
		{"invalid json", "{invalid", "invalid JSON"},
		{"no paths", `{"paths": []}`, "paths is required"},
		{"missing path", `{"paths": ["` + dir + `/nope"]}`, "path not found"},
		{"unknown field", `{"paths": ["` + dir + `"], "fix": true}`, "unknown field"},
		{"negative depth", `{"paths": ["` + dir + `"], "max_depth": -1}`, "max_depth"},
		{"bad exclude", `{"paths": ["` + dir + `"], "exclude": ["[x"]}`, "failed to start scan"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(router, http.MethodPost, "/api/v1/scans", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), tt.want)
		})
	}
}

func TestListScans_ReturnsJobs(t *testing.T) {
	h, router := setupTestHandlers()
	h.Manager.Create([]string{"/opt/app"}, jobs.ScanOptions{})

	w := do(router, http.MethodGet, "/api/v1/scans", "")

	assert.Equal(t, http.StatusOK, w.Code)
	var list []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, []any{"/opt/app"}, list[0]["paths"])
	assert.Equal(t, "pending", list[0]["status"])
}

func TestGetScan_Found(t *testing.T) {
	h, router := setupTestHandlers()
	id := completedJob(t, h)

	w := do(router, http.MethodGet, "/api/v1/scans/"+id, "")

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, id, resp["id"])
	assert.Equal(t, "completed", resp["status"])
	report := resp["report"].(map[string]any)
	assert.Len(t, report["files"], 1)
}

func TestGetScan_NotFound(t *testing.T) {
	_, router := setupTestHandlers()
	w := do(router, http.MethodGet, "/api/v1/scans/nonexistent", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetScanReport_Formats(t *testing.T) {
	h, router := setupTestHandlers()
	id := completedJob(t, h)

	w := do(router, http.MethodGet, "/api/v1/scans/"+id+"/report", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), `"CVE-2021-44228"`)

	w = do(router, http.MethodGet, "/api/v1/scans/"+id+"/report?format=html", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), "<!DOCTYPE html>")

	w = do(router, http.MethodGet, "/api/v1/scans/"+id+"/report?format=csv", "")
	assert.Equal(t, http.StatusOK, w.Code)
	rows, err := csv.NewReader(w.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "test-host", rows[1][0])

	w = do(router, http.MethodGet, "/api/v1/scans/"+id+"/report?format=markdown", "")
	assert.Contains(t, w.Body.String(), "## Scan report for test-host")

	w = do(router, http.MethodGet, "/api/v1/scans/"+id+"/report?format=xml", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetScanReport_NotCompleted(t *testing.T) {
	h, router := setupTestHandlers()
	job := h.Manager.Create([]string{"/opt/app"}, jobs.ScanOptions{})

	w := do(router, http.MethodGet, "/api/v1/scans/"+job.ID+"/report", "")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestDeleteScan_Success(t *testing.T) {
	h, router := setupTestHandlers()
	job := h.Manager.Create([]string{"/opt/app"}, jobs.ScanOptions{})

	w := do(router, http.MethodDelete, "/api/v1/scans/"+job.ID, "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	_, err := h.Manager.Get(job.ID)
	assert.Error(t, err)
}

func TestDeleteScan_NotFound(t *testing.T) {
	_, router := setupTestHandlers()
	w := do(router, http.MethodDelete, "/api/v1/scans/nonexistent", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
