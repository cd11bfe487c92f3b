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

// Package testenv wires the harness clients for one test run. The mailbox
// and the application database are shared with every other run, so an Env
// carries a run id that tags generated fixtures and scopes teardown.
package testenv

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/bcem/mailverify/internal/bridge"
	"github.com/bcem/mailverify/internal/config"
	"github.com/bcem/mailverify/internal/helperapi"
	"github.com/bcem/mailverify/internal/inbox"
	"github.com/bcem/mailverify/internal/mailtrap"
)

// DefaultEmailPrefix matches the cleanup routine's default heuristics.
const DefaultEmailPrefix = "test-"

// Env is the injected test environment.
type Env struct {
	Config  *config.Config
	Mailbox *mailtrap.Client
	Inbox   *inbox.Poller

	bridge    *bridge.Client
	bridgeErr error

	runID   string
	seq     atomic.Int64
	resetAt time.Time
}

// New builds the clients from cfg. A nil httpClient uses a client with a
// 30s timeout. A missing database-verification configuration is reported
// lazily by Bridge so mailbox-only suites still run.
func New(ctx context.Context, cfg *config.Config, httpClient *http.Client) (*Env, error) {
	if cfg == nil {
		return nil, errors.New("testenv: nil config")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	mb := mailtrap.NewClient(cfg.Mailtrap, httpClient)
	env := &Env{
		Config:  cfg,
		Mailbox: mb,
		Inbox:   inbox.NewPoller(mb),
		runID:   "run" + strings.ReplaceAll(uuid.NewString(), "-", "")[:10],
	}

	bctx := context.WithValue(ctx, oauth2.HTTPClient, httpClient)
	env.bridge, env.bridgeErr = bridge.NewClient(bctx, cfg.Supabase)

	slog.Info("test environment ready",
		"run_id", env.runID,
		"mailbox_configured", mailtrap.IsConfigured(cfg.Mailtrap),
		"bridge_configured", env.bridgeErr == nil,
	)
	return env, nil
}

// RunID identifies this run in generated fixtures.
func (e *Env) RunID() string { return e.runID }

// Bridge returns the database-verification client, or the configuration
// error that prevented building it.
func (e *Env) Bridge() (*bridge.Client, error) {
	return e.bridge, e.bridgeErr
}

// UniqueEmail returns an address unique to this run and call, recognised
// by cleanup via both the prefix and the run id. An empty prefix uses
// DefaultEmailPrefix.
func (e *Env) UniqueEmail(prefix string) string {
	if prefix == "" {
		prefix = DefaultEmailPrefix
	}
	return fmt.Sprintf("%s%s-%d@example.com", prefix, e.runID, e.seq.Add(1))
}

// Reset clears the mailbox (best-effort) and returns the reset time, to be
// used as a not-before bound by later waits.
func (e *Env) Reset(ctx context.Context) time.Time {
	e.Mailbox.ClearInbox(ctx)
	e.resetAt = time.Now()
	return e.resetAt
}

// ResetAt is the time of the last Reset.
func (e *Env) ResetAt() time.Time { return e.resetAt }

// Teardown removes this run's contact-form rows and runs the cascading
// cleanup tagged with the run id. It is a no-op without a bridge.
func (e *Env) Teardown(ctx context.Context) error {
	if e.bridge == nil {
		return nil
	}

	var errs []error
	if _, err := e.bridge.CleanupTestSubmissions(ctx, "%"+e.runID+"%"); err != nil {
		errs = append(errs, fmt.Errorf("cleanup submissions: %w", err))
	}
	if _, err := e.bridge.RunCleanup(ctx, helperapi.CleanupRunRequest{TestRunID: e.runID}); err != nil {
		errs = append(errs, fmt.Errorf("cascading cleanup: %w", err))
	}
	return errors.Join(errs...)
}
