package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/buemura/jarhunter/internal/web/jobs"
)

// CreateScanRequest is the JSON body for POST /api/v1/scans.
type CreateScanRequest struct {
	Paths []string `json:"paths"`
	jobs.ScanOptions
}

// decodeCreateScanRequest reads and validates the request body.
func decodeCreateScanRequest(r *http.Request) (*CreateScanRequest, error) {
	var req CreateScanRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	if len(req.Paths) == 0 {
		return nil, fmt.Errorf("paths is required")
	}
	for i, p := range req.Paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("invalid path %q: %w", p, err)
		}
		if _, err := os.Stat(abs); err != nil {
			return nil, fmt.Errorf("path not found: %s", p)
		}
		req.Paths[i] = abs
	}

	if req.MaxDepth < 0 {
		return nil, fmt.Errorf("max_depth must be non-negative")
	}
	return &req, nil
}
