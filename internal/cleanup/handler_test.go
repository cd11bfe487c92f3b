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
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bcem/mailverify/internal/helperapi"
)

func fixedNow() time.Time { return time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC) }

func TestHandlerSuccess(t *testing.T) {
	var got helperapi.CleanupRunRequest
	h := &Handler{now: fixedNow, run: func(_ context.Context, req helperapi.CleanupRunRequest) (*Result, error) {
		got = req
		return &Result{DeletedUsers: 2, PersistentAccountsCleaned: 5}, nil
	}}

	body := `{"testRunId":"run-1","emailPrefix":"run-1-","namePatterns":["Robot"],"cleanupAll":true}`
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp helperapi.CleanupRunResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, 2, resp.DeletedUsers)
	assert.Equal(t, 5, resp.PersistentAccountsCleaned)
	assert.Contains(t, resp.Message, "2 test users deleted")
	assert.True(t, fixedNow().Equal(resp.Timestamp))

	assert.Equal(t, "run-1", got.TestRunID)
	assert.Equal(t, "run-1-", got.EmailPrefix)
	assert.Equal(t, []string{"Robot"}, got.NamePatterns)
}

func TestHandlerEmptyBody(t *testing.T) {
	called := false
	h := &Handler{now: fixedNow, run: func(context.Context, helperapi.CleanupRunRequest) (*Result, error) {
		called = true
		return &Result{}, nil
	}}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, called)
}

func TestHandlerFailure(t *testing.T) {
	h := &Handler{now: fixedNow, run: func(context.Context, helperapi.CleanupRunRequest) (*Result, error) {
		return nil, errors.New("list accounts: admin API unavailable")
	}}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`)))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var resp helperapi.CleanupRunResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, "list accounts: admin API unavailable", resp.Error)
	assert.False(t, resp.Timestamp.IsZero())
}

func TestHandlerRejectsGet(t *testing.T) {
	h := &Handler{now: fixedNow}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
