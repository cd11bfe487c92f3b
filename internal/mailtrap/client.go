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

// Package mailtrap implements a client for the Mailtrap sandbox inbox API,
// the mailbox-capture service that receives every email sent during a test
// run.
//
// API docs: https://api-docs.mailtrap.io/docs/mailtrap-api-docs/
package mailtrap

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/bcem/mailverify/internal/config"
	"github.com/bcem/mailverify/internal/errs"
	"github.com/bcem/mailverify/internal/models"
)

// maxErrorBody caps how much of a failed response is copied into errors.
const maxErrorBody = 4096

// Client talks to one Mailtrap inbox.
type Client struct {
	httpClient *http.Client
	cfg        config.MailtrapConfig
}

// NewClient creates an inbox client. A nil httpClient uses
// http.DefaultClient. Missing credentials are not an error here; every
// operation checks them before touching the network.
func NewClient(cfg config.MailtrapConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = config.DefaultMailtrapBaseURL
	}
	return &Client{httpClient: httpClient, cfg: cfg}
}

// Config returns the configuration the client was built with.
func (c *Client) Config() config.MailtrapConfig {
	return c.cfg
}

// FetchAllMessages lists the inbox. Listings carry no bodies.
func (c *Client) FetchAllMessages(ctx context.Context) ([]models.MessageSummary, error) {
	var msgs []models.MessageSummary
	if err := c.getJSON(ctx, "/messages", &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// FetchEmail retrieves one message together with its HTML and text bodies.
// A message without an HTML or text part yields an empty body for it.
func (c *Client) FetchEmail(ctx context.Context, id int64) (*models.CapturedMessage, error) {
	var msg models.CapturedMessage
	if err := c.getJSON(ctx, fmt.Sprintf("/messages/%d", id), &msg.MessageSummary); err != nil {
		return nil, err
	}

	html, err := c.getBody(ctx, fmt.Sprintf("/messages/%d/body.html", id))
	if err != nil {
		return nil, err
	}
	text, err := c.getBody(ctx, fmt.Sprintf("/messages/%d/body.txt", id))
	if err != nil {
		return nil, err
	}

	msg.HTMLBody = html
	msg.TextBody = text
	return &msg, nil
}

// ClearInbox purges the inbox. It is best effort: failures are logged and
// swallowed because waits filter by arrival time anyway.
func (c *Client) ClearInbox(ctx context.Context) {
	if err := c.checkConfig(); err != nil {
		slog.Warn("mailtrap inbox not cleared", "error", err)
		return
	}

	resp, err := c.send(ctx, http.MethodPatch, c.inboxURL()+"/clean")
	if err != nil {
		slog.Warn("mailtrap inbox not cleared", "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		slog.Warn("mailtrap inbox not cleared",
			"status", resp.StatusCode,
			"body", string(body),
		)
		return
	}

	slog.Info("mailtrap inbox cleared", "inbox_id", c.cfg.InboxID)
}

func (c *Client) inboxURL() string {
	return fmt.Sprintf("%s/api/accounts/%s/inboxes/%s",
		strings.TrimRight(c.cfg.BaseURL, "/"), c.cfg.AccountID, c.cfg.InboxID)
}

func (c *Client) checkConfig() error {
	if missing := c.cfg.Missing(); len(missing) > 0 {
		return &errs.ConfigurationError{Component: "mailtrap", Missing: missing}
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, u string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Api-Token", c.cfg.APIToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &errs.ConnectivityError{Op: method + " " + u, Err: err}
	}
	return resp, nil
}

// fetch performs a GET below the inbox URL and returns the response when it
// is 2xx. notFoundOK turns a 404 into a nil response.
func (c *Client) fetch(ctx context.Context, path string, notFoundOK bool) (*http.Response, error) {
	if err := c.checkConfig(); err != nil {
		return nil, err
	}

	op := "GET " + path
	resp, err := c.send(ctx, http.MethodGet, c.inboxURL()+path)
	if err != nil {
		return nil, err
	}

	if notFoundOK && resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, nil
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &errs.ConnectivityError{Op: op, StatusCode: resp.StatusCode, Body: string(body)}
	}
	return resp, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	resp, err := c.fetch(ctx, path, false)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &errs.MalformedResponseError{Source: "mailtrap " + path, Err: err}
	}
	return nil
}

func (c *Client) getBody(ctx context.Context, path string) (string, error) {
	resp, err := c.fetch(ctx, path, true)
	if err != nil || resp == nil {
		return "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}
