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

// Package bridge verifies side effects against the application's own
// database instead of a mailbox. It never holds elevated credentials: every
// read goes through the privileged test helper function, authenticated
// with the project's publishable key, and the helper performs the
// privileged query server-side.
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/bcem/mailverify/internal/config"
	"github.com/bcem/mailverify/internal/errs"
	"github.com/bcem/mailverify/internal/helperapi"
	"github.com/bcem/mailverify/internal/models"
	"github.com/bcem/mailverify/internal/verify"
	"github.com/bcem/mailverify/internal/wait"
)

// requestSlack is added to the server-side wait budget when bounding the
// HTTP call that carries it.
const requestSlack = 15 * time.Second

// NotBeforeSkew is subtracted from the call start to form the default
// not-before time of a wait, absorbing clock drift between this host and the
// database.
const NotBeforeSkew = 30 * time.Second

// Client calls the privileged helper and the cleanup entrypoint.
type Client struct {
	httpClient *http.Client
	helperURL  string
	cleanupURL string
	apiKey     string
}

// NewClient builds a client from the public project settings. The base HTTP
// client can be supplied through ctx with the oauth2.HTTPClient key.
func NewClient(ctx context.Context, cfg config.SupabaseConfig) (*Client, error) {
	if missing := cfg.Missing(); len(missing) > 0 {
		return nil, &errs.ConfigurationError{Component: "supabase", Missing: missing}
	}

	helperFn := cfg.HelperFunction
	if helperFn == "" {
		helperFn = config.DefaultHelperFunction
	}
	cleanupFn := cfg.CleanupFunction
	if cleanupFn == "" {
		cleanupFn = config.DefaultCleanupFunction
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.PublishableKey})
	return &Client{
		httpClient: oauth2.NewClient(ctx, ts),
		helperURL:  cfg.FunctionURL(helperFn),
		cleanupURL: cfg.FunctionURL(cleanupFn),
		apiKey:     cfg.PublishableKey,
	}, nil
}

// WaitOption adjusts one wait call.
type WaitOption func(*waitParams)

type waitParams struct {
	timeout    time.Duration
	interval   time.Duration
	senderType string
	since      *time.Time
}

// WithTimeout bounds the server-side wait. Default 30s.
func WithTimeout(d time.Duration) WaitOption {
	return func(p *waitParams) { p.timeout = d }
}

// WithPollInterval sets the server-side poll interval.
func WithPollInterval(d time.Duration) WaitOption {
	return func(p *waitParams) { p.interval = d }
}

// WithSenderType restricts waitForReply to "admin" or "user" replies.
func WithSenderType(senderType string) WaitOption {
	return func(p *waitParams) { p.senderType = senderType }
}

// WithNotBefore rejects rows created before t. It replaces the default of
// call start minus NotBeforeSkew.
func WithNotBefore(t time.Time) WaitOption {
	return func(p *waitParams) { p.since = &t }
}

func buildWaitParams(start time.Time, opts []WaitOption) waitParams {
	since := start.Add(-NotBeforeSkew)
	p := waitParams{timeout: wait.DefaultTimeout, since: &since}
	for _, opt := range opts {
		opt(&p)
	}
	return p
}

func (p waitParams) apply(req *helperapi.Request) {
	req.TimeoutMs = p.timeout.Milliseconds()
	req.PollIntervalMs = p.interval.Milliseconds()
	req.SenderType = p.senderType
	req.Since = p.since
}

// WaitForSubmission waits until a contact-form row for email exists. Rows
// created before the call started, less NotBeforeSkew, are ignored unless
// WithNotBefore says otherwise.
func (c *Client) WaitForSubmission(ctx context.Context, email string, opts ...WaitOption) (*models.ContactFormSubmission, error) {
	p := buildWaitParams(time.Now(), opts)
	req := helperapi.Request{Action: helperapi.ActionWaitForSubmission, Email: email}
	p.apply(&req)

	var resp helperapi.SubmissionResponse
	if err := c.call(ctx, req, p.timeout+requestSlack, &resp); err != nil {
		return nil, err
	}
	if resp.Submission == nil {
		return nil, malformed(req.Action, "submission missing")
	}
	return resp.Submission, nil
}

// WaitForReply waits until a reply to submissionID exists, optionally of a
// given sender type. The not-before default matches WaitForSubmission.
func (c *Client) WaitForReply(ctx context.Context, submissionID string, opts ...WaitOption) (*models.ContactFormReply, error) {
	p := buildWaitParams(time.Now(), opts)
	req := helperapi.Request{Action: helperapi.ActionWaitForReply, SubmissionID: submissionID}
	p.apply(&req)

	var resp helperapi.ReplyResponse
	if err := c.call(ctx, req, p.timeout+requestSlack, &resp); err != nil {
		return nil, err
	}
	if resp.Reply == nil {
		return nil, malformed(req.Action, "reply missing")
	}
	return resp.Reply, nil
}

// GetSubmission fetches the newest submission for email and its replies
// without polling.
func (c *Client) GetSubmission(ctx context.Context, email string) (*models.ContactFormSubmission, []models.ContactFormReply, error) {
	return c.getSubmission(ctx, helperapi.Request{Action: helperapi.ActionGetSubmission, Email: email})
}

// GetSubmissionByID fetches one submission and its replies without polling.
func (c *Client) GetSubmissionByID(ctx context.Context, id string) (*models.ContactFormSubmission, []models.ContactFormReply, error) {
	return c.getSubmission(ctx, helperapi.Request{Action: helperapi.ActionGetSubmission, SubmissionID: id})
}

func (c *Client) getSubmission(ctx context.Context, req helperapi.Request) (*models.ContactFormSubmission, []models.ContactFormReply, error) {
	var resp helperapi.SubmissionResponse
	if err := c.call(ctx, req, requestSlack, &resp); err != nil {
		return nil, nil, err
	}
	if resp.Submission == nil {
		return nil, nil, malformed(req.Action, "submission missing")
	}
	return resp.Submission, resp.Replies, nil
}

// VerifySubmission fetches the submission for email once and asserts its
// fields.
func (c *Client) VerifySubmission(ctx context.Context, email string, exp verify.SubmissionExpectations) error {
	row, _, err := c.GetSubmission(ctx, email)
	if err != nil {
		return err
	}
	return verify.VerifySubmission(row, exp)
}

// VerifyReply fetches the replies of a submission once and asserts the
// newest one of the expected sender type.
func (c *Client) VerifyReply(ctx context.Context, submissionID string, exp verify.ReplyExpectations) error {
	_, replies, err := c.GetSubmissionByID(ctx, submissionID)
	if err != nil {
		return err
	}

	var latest *models.ContactFormReply
	for i := range replies {
		if exp.SenderType != "" && replies[i].SenderType != exp.SenderType {
			continue
		}
		if latest == nil || !replies[i].CreatedAt.Before(latest.CreatedAt) {
			latest = &replies[i]
		}
	}
	return verify.VerifyReply(latest, exp)
}

// CleanupTestSubmissions deletes submissions whose email matches the SQL
// LIKE pattern, together with their replies.
func (c *Client) CleanupTestSubmissions(ctx context.Context, emailPattern string) (int64, error) {
	req := helperapi.Request{Action: helperapi.ActionCleanup, EmailPattern: emailPattern}
	var resp helperapi.CleanupResponse
	if err := c.call(ctx, req, requestSlack, &resp); err != nil {
		return 0, err
	}
	slog.Info("test submissions cleaned up", "pattern", emailPattern, "deleted", resp.Deleted)
	return resp.Deleted, nil
}

type statusCarrier interface {
	GetStatus() *helperapi.Status
}

// call posts req to the helper and decodes the response into out,
// translating transport, decoding and helper-reported failures into the
// harness error kinds.
func (c *Client) call(ctx context.Context, req helperapi.Request, budget time.Duration, out statusCarrier) error {
	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	body, err := c.post(ctx, c.helperURL, req, req.Action)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, out); err != nil {
		return &errs.MalformedResponseError{Source: "helper " + req.Action, Err: err}
	}

	st := out.GetStatus()
	if st.Success {
		return nil
	}
	if st.Kind == helperapi.KindTimeout {
		return &errs.TimeoutError{
			Op:       req.Action,
			Criteria: criteriaOf(req),
			Timeout:  time.Duration(req.TimeoutMs) * time.Millisecond,
		}
	}
	msg := st.Error
	if msg == "" {
		msg = "helper reported failure without a message"
	}
	return &errs.HelperError{Action: req.Action, Message: msg}
}

// post sends payload as JSON and returns the body of a 2xx response.
func (c *Client) post(ctx context.Context, u string, payload any, op string) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s request: %w", op, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("apikey", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &errs.ConnectivityError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &errs.ConnectivityError{Op: op, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return body, &errs.ConnectivityError{Op: op, StatusCode: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

func criteriaOf(req helperapi.Request) string {
	c := map[string]string{}
	if req.Email != "" {
		c["email"] = req.Email
	}
	if req.SubmissionID != "" {
		c["submissionId"] = req.SubmissionID
	}
	if req.SenderType != "" {
		c["senderType"] = req.SenderType
	}
	b, _ := json.Marshal(c)
	return string(b)
}

func malformed(action, reason string) error {
	return &errs.MalformedResponseError{Source: "helper " + action, Err: errors.New(reason)}
}
