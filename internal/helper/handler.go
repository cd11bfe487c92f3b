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

// Package helper implements the privileged test helper: a single POST
// endpoint that performs service-role database reads and signed inbound
// deliveries on behalf of a test runner that only holds the public key.
package helper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/bcem/mailverify/internal/helperapi"
	"github.com/bcem/mailverify/internal/metrics"
	"github.com/bcem/mailverify/internal/models"
	"github.com/bcem/mailverify/internal/wait"
)

const (
	maxBodyBytes = 1 << 20
	maxWait      = 2 * time.Minute
)

// SubmissionStore is the subset of the contact store the helper reads.
type SubmissionStore interface {
	LatestSubmissionByEmail(ctx context.Context, email string, since time.Time) (*models.ContactFormSubmission, error)
	GetSubmission(ctx context.Context, id string) (*models.ContactFormSubmission, error)
	ListReplies(ctx context.Context, submissionID string) ([]models.ContactFormReply, error)
	LatestReply(ctx context.Context, submissionID, senderType string, since time.Time) (*models.ContactFormReply, error)
	DeleteSubmissionsLike(ctx context.Context, pattern string) (int64, error)
}

// InboundSender delivers simulated inbound email.
type InboundSender interface {
	Forward(ctx context.Context, msg InboundEmail) (string, error)
}

// Handler serves helper actions.
type Handler struct {
	store   SubmissionStore
	keys    *KeyVerifier
	inbound InboundSender
}

// NewHandler creates a helper handler. inbound may be nil, in which case
// simulateInboundEmail reports an internal error.
func NewHandler(store SubmissionStore, keys *KeyVerifier, inbound InboundSender) *Handler {
	return &Handler{store: store, keys: keys, inbound: inbound}
}

// failure is a helper-level error response.
type failure struct {
	status int
	kind   string
	msg    string
}

func invalid(format string, args ...any) *failure {
	return &failure{status: http.StatusBadRequest, kind: helperapi.KindInvalid, msg: fmt.Sprintf(format, args...)}
}

func internal(op string, err error) *failure {
	return &failure{status: http.StatusInternalServerError, kind: helperapi.KindInternal, msg: fmt.Sprintf("%s: %v", op, err)}
}

func ok() helperapi.Status { return helperapi.Status{Success: true} }

// ServeHTTP handles one helper call.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	setCORS(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodPost {
		writeFailure(w, "", &failure{status: http.StatusMethodNotAllowed, kind: helperapi.KindInvalid, msg: "method not allowed"})
		return
	}

	if err := h.keys.Verify(requestKey(r)); err != nil {
		slog.Warn("helper call rejected", "remote", r.RemoteAddr, "error", err)
		metrics.HelperRequests.WithLabelValues("", "unauthorized").Inc()
		writeJSON(w, http.StatusUnauthorized, helperapi.Status{Error: ErrUnauthorized.Error(), Kind: helperapi.KindInvalid})
		return
	}

	var req helperapi.Request
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeFailure(w, "", invalid("decode request: %v", err))
		return
	}

	resp, fail := h.dispatch(r.Context(), req)
	if fail != nil {
		writeFailure(w, req.Action, fail)
		return
	}
	metrics.HelperRequests.WithLabelValues(req.Action, "ok").Inc()
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) dispatch(ctx context.Context, req helperapi.Request) (any, *failure) {
	switch req.Action {
	case helperapi.ActionWaitForSubmission:
		return h.waitForSubmission(ctx, req)
	case helperapi.ActionWaitForReply:
		return h.waitForReply(ctx, req)
	case helperapi.ActionGetSubmission:
		return h.getSubmission(ctx, req)
	case helperapi.ActionSimulateInboundEmail:
		return h.simulateInboundEmail(ctx, req)
	case helperapi.ActionCleanup:
		return h.cleanup(ctx, req)
	case "":
		return nil, invalid("action is required")
	default:
		return nil, invalid("unknown action %q", req.Action)
	}
}

func (h *Handler) waitForSubmission(ctx context.Context, req helperapi.Request) (any, *failure) {
	if req.Email == "" {
		return nil, invalid("email is required")
	}
	since := sinceOf(req)

	row, fail := pollFor(ctx, req, func(ctx context.Context) (*models.ContactFormSubmission, bool, error) {
		r, err := h.store.LatestSubmissionByEmail(ctx, req.Email, since)
		return r, r != nil, err
	}, "submission for "+req.Email)
	if fail != nil {
		return nil, fail
	}
	return helperapi.SubmissionResponse{Status: ok(), Submission: row}, nil
}

func (h *Handler) waitForReply(ctx context.Context, req helperapi.Request) (any, *failure) {
	if req.SubmissionID == "" {
		return nil, invalid("submissionId is required")
	}
	if req.SenderType != "" && req.SenderType != models.SenderAdmin && req.SenderType != models.SenderUser {
		return nil, invalid("senderType must be %q or %q", models.SenderAdmin, models.SenderUser)
	}
	since := sinceOf(req)

	row, fail := pollFor(ctx, req, func(ctx context.Context) (*models.ContactFormReply, bool, error) {
		r, err := h.store.LatestReply(ctx, req.SubmissionID, req.SenderType, since)
		return r, r != nil, err
	}, "reply to "+req.SubmissionID)
	if fail != nil {
		return nil, fail
	}
	return helperapi.ReplyResponse{Status: ok(), Reply: row}, nil
}

func (h *Handler) getSubmission(ctx context.Context, req helperapi.Request) (any, *failure) {
	var (
		row *models.ContactFormSubmission
		err error
	)
	switch {
	case req.SubmissionID != "":
		row, err = h.store.GetSubmission(ctx, req.SubmissionID)
	case req.Email != "":
		row, err = h.store.LatestSubmissionByEmail(ctx, req.Email, time.Time{})
	default:
		return nil, invalid("email or submissionId is required")
	}
	if err != nil {
		return nil, internal("query submission", err)
	}
	if row == nil {
		return nil, &failure{status: http.StatusOK, kind: helperapi.KindNotFound, msg: "submission not found"}
	}

	replies, err := h.store.ListReplies(ctx, row.ID)
	if err != nil {
		return nil, internal("query replies", err)
	}
	return helperapi.SubmissionResponse{Status: ok(), Submission: row, Replies: replies}, nil
}

func (h *Handler) simulateInboundEmail(ctx context.Context, req helperapi.Request) (any, *failure) {
	if req.From == "" || req.To == "" {
		return nil, invalid("from and to are required")
	}
	if h.inbound == nil {
		return nil, internal("simulate inbound email", errors.New("inbound webhook not configured"))
	}

	id, err := h.inbound.Forward(ctx, InboundEmail{
		From:    req.From,
		To:      req.To,
		Subject: req.Subject,
		Text:    req.Text,
	})
	if err != nil {
		return nil, internal("simulate inbound email", err)
	}
	return helperapi.SimulateResponse{Status: ok(), EmailID: id}, nil
}

func (h *Handler) cleanup(ctx context.Context, req helperapi.Request) (any, *failure) {
	if strings.Trim(req.EmailPattern, "%_ ") == "" {
		return nil, invalid("emailPattern must contain a literal part")
	}

	n, err := h.store.DeleteSubmissionsLike(ctx, req.EmailPattern)
	if err != nil {
		return nil, internal("delete submissions", err)
	}
	slog.Info("helper cleanup", "pattern", req.EmailPattern, "deleted", n)
	return helperapi.CleanupResponse{Status: ok(), Deleted: n}, nil
}

// pollFor runs a server-side wait bounded by the request's timeout.
func pollFor[T any](ctx context.Context, req helperapi.Request, check wait.Check[T], what string) (T, *failure) {
	opts := wait.Options{
		Timeout:  time.Duration(req.TimeoutMs) * time.Millisecond,
		Interval: time.Duration(req.PollIntervalMs) * time.Millisecond,
	}
	if opts.Timeout > maxWait {
		opts.Timeout = maxWait
	}

	start := time.Now()
	v, err := wait.Until(ctx, opts, check)
	metrics.HelperWaitSeconds.WithLabelValues(req.Action).Observe(time.Since(start).Seconds())

	var zero T
	switch {
	case errors.Is(err, wait.ErrTimedOut):
		return zero, &failure{
			status: http.StatusOK,
			kind:   helperapi.KindTimeout,
			msg:    fmt.Sprintf("no %s within %s", what, time.Since(start).Round(time.Millisecond)),
		}
	case err != nil:
		return zero, internal("poll "+what, err)
	}
	return v, nil
}

func sinceOf(req helperapi.Request) time.Time {
	if req.Since == nil {
		return time.Time{}
	}
	return *req.Since
}

func writeFailure(w http.ResponseWriter, action string, f *failure) {
	outcome := f.kind
	if f.status >= http.StatusInternalServerError {
		slog.Error("helper action failed", "action", action, "error", f.msg)
	} else {
		slog.Info("helper action unsuccessful", "action", action, "kind", f.kind, "error", f.msg)
	}
	metrics.HelperRequests.WithLabelValues(action, outcome).Inc()
	writeJSON(w, f.status, helperapi.Status{Error: f.msg, Kind: f.kind})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("write response failed", "error", err)
	}
}

func setCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Headers", "authorization, x-client-info, apikey, content-type")
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
}

// Serve starts an HTTP server for handler on the given port. It binds the
// port immediately and signals readiness via the first returned channel.
// The server shuts down gracefully when ctx is cancelled; the second
// channel closes once shutdown has finished.
func Serve(ctx context.Context, port int, handler http.Handler) (<-chan struct{}, <-chan struct{}, error) {
	server := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, nil, fmt.Errorf("bind helper port %d: %w", port, err)
	}

	ready := make(chan struct{})
	stopped := make(chan struct{})

	go func() {
		defer close(stopped)
		<-ctx.Done()
		slog.Info("helper server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), maxWait+10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			server.Close()
		}
	}()

	go func() {
		slog.Info("helper server listening", "port", port)
		close(ready)
		if err := server.Serve(ln); err != http.ErrServerClosed {
			slog.Error("helper server error", "error", err)
		}
	}()

	return ready, stopped, nil
}
