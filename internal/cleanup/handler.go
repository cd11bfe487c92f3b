// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cleanup

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/bcem/mailverify/internal/helperapi"
)

// RunFunc runs one cleanup.
type RunFunc func(ctx context.Context, req helperapi.CleanupRunRequest) (*Result, error)

// Handler exposes a cleanup run as the callable cleanup entrypoint.
type Handler struct {
	run RunFunc
	now func() time.Time
}

// NewHandler creates the entrypoint for runner.
func NewHandler(runner *Runner) *Handler {
	return &Handler{run: runner.Run, now: time.Now}
}

// ServeHTTP accepts {testRunId?, emailPrefix?, namePatterns?}; other
// fields are ignored. An empty body runs with the default rules.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodPost {
		h.fail(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}

	var req helperapi.CleanupRunRequest
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		h.fail(w, http.StatusInternalServerError, fmt.Errorf("read request: %w", err))
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			h.fail(w, http.StatusInternalServerError, fmt.Errorf("decode request: %w", err))
			return
		}
	}

	res, err := h.run(r.Context(), req)
	if err != nil {
		slog.Error("cleanup run failed", "error", err)
		h.fail(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, helperapi.CleanupRunResponse{
		Success: true,
		Message: fmt.Sprintf("Cleanup completed: %d test users deleted, %d persistent accounts cleaned",
			res.DeletedUsers, res.PersistentAccountsCleaned),
		DeletedUsers:              res.DeletedUsers,
		PersistentAccountsCleaned: res.PersistentAccountsCleaned,
		Timestamp:                 h.now().UTC(),
	})
}

func (h *Handler) fail(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, helperapi.CleanupRunResponse{
		Success:   false,
		Error:     err.Error(),
		Timestamp: h.now().UTC(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("write response failed", "error", err)
	}
}
