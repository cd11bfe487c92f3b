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

// Package cleanup implements the cascading test-data cleanup: it classifies
// platform accounts, deletes their dependent rows in foreign-key order,
// deletes test accounts and finally sweeps leftover test content.
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bcem/mailverify/internal/config"
	"github.com/bcem/mailverify/internal/errs"
	"github.com/bcem/mailverify/internal/helperapi"
	"github.com/bcem/mailverify/internal/metrics"
	"github.com/bcem/mailverify/internal/models"
)

// Stage names used in logs, warnings and metrics.
const (
	StageClassify   = "1_classify"
	StagePersistent = "2_persistent_data"
	StageContent    = "3_content_patterns"
	StageTestData   = "4_test_data"
	StageAvatars    = "4.5_avatars"
	StageAccounts   = "5_accounts"
	StageSweep      = "6_sweep"
)

const lockName = "cleanup"

// AccountService lists and deletes auth accounts.
type AccountService interface {
	ListAccounts(ctx context.Context) ([]models.Account, error)
	DeleteAccount(ctx context.Context, id string) error
}

// AvatarPurger removes a user's stored objects.
type AvatarPurger interface {
	UserPrefix(userID string) string
	PurgePrefix(ctx context.Context, prefix string) (int, error)
}

// Locker serialises runs.
type Locker interface {
	Acquire(ctx context.Context, name string) (func(), error)
}

// Result summarises a completed run.
type Result struct {
	DeletedUsers              int
	PersistentAccountsCleaned int
	RowsDeleted               int64
	AvatarsPurged             int
	Warnings                  []error
	Elapsed                   time.Duration
}

// Runner performs cleanup runs.
type Runner struct {
	store    *Store
	accounts AccountService
	purger   AvatarPurger
	locker   Locker
	plan     Plan
	cfg      config.CleanupConfig
}

// RunnerConfig holds dependencies for the runner. Purger and Locker are
// optional.
type RunnerConfig struct {
	Store    *Store
	Accounts AccountService
	Purger   AvatarPurger
	Locker   Locker
	Plan     *Plan
	Cleanup  config.CleanupConfig
}

// NewRunner creates a cleanup runner. A nil Plan uses DefaultPlan.
func NewRunner(cfg RunnerConfig) *Runner {
	plan := DefaultPlan()
	if cfg.Plan != nil {
		plan = *cfg.Plan
	}
	return &Runner{
		store:    cfg.Store,
		accounts: cfg.Accounts,
		purger:   cfg.Purger,
		locker:   cfg.Locker,
		plan:     plan,
		cfg:      cfg.Cleanup,
	}
}

// run carries the state of one cleanup run.
type run struct {
	*Runner
	result *Result
}

// Run executes stages 1 to 6 in order. Per-table and per-account failures
// are logged and collected in Result.Warnings; only failure to enumerate
// accounts or to take the run lock aborts the run.
func (r *Runner) Run(ctx context.Context, req helperapi.CleanupRunRequest) (*Result, error) {
	start := time.Now()

	if r.locker != nil {
		release, err := r.locker.Acquire(ctx, lockName)
		if err != nil {
			metrics.CleanupRuns.WithLabelValues("locked").Inc()
			return nil, fmt.Errorf("acquire cleanup lock: %w", err)
		}
		defer release()
	}

	rules := RulesFromConfig(r.cfg).WithRequest(req)

	slog.Info("starting cleanup run",
		"test_run_id", req.TestRunID,
		"email_prefixes", rules.EmailPrefixes,
		"name_patterns", rules.NamePatterns,
	)

	all, err := r.accounts.ListAccounts(ctx)
	if err != nil {
		metrics.CleanupRuns.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	persistent, test := Partition(all, rules)
	slog.Info("accounts classified",
		"stage", StageClassify,
		"total", len(all),
		"persistent", len(persistent),
		"test_pattern", len(test),
	)

	rn := &run{Runner: r, result: &Result{}}

	rn.ownedRows(ctx, StagePersistent, r.plan.Owned, persistent)
	rn.result.PersistentAccountsCleaned = len(persistent)

	rn.contentPatterns(ctx, rules)

	rn.nullify(ctx, test)
	rn.ownedRows(ctx, StageTestData, r.plan.Vendor, test)
	rn.ownedRows(ctx, StageTestData, r.plan.Owned, test)

	rn.avatars(ctx, test)
	rn.deleteAccounts(ctx, test)
	rn.sweep(ctx, rules)

	rn.result.Elapsed = time.Since(start)
	metrics.CleanupRuns.WithLabelValues("ok").Inc()

	slog.Info("cleanup run complete",
		"deleted_users", rn.result.DeletedUsers,
		"persistent_accounts_cleaned", rn.result.PersistentAccountsCleaned,
		"rows_deleted", rn.result.RowsDeleted,
		"warnings", len(rn.result.Warnings),
		"elapsed", rn.result.Elapsed,
	)
	return rn.result, nil
}

func (rn *run) warn(stage, target string, err error) {
	w := &errs.PartialCleanupError{Stage: stage, Target: target, Err: err}
	rn.result.Warnings = append(rn.result.Warnings, w)
	metrics.CleanupWarnings.WithLabelValues(stage).Inc()
	slog.Warn("cleanup step failed", "stage", stage, "target", target, "error", err)
}

func (rn *run) counted(stage, table string, n int64) {
	rn.result.RowsDeleted += n
	if n > 0 {
		metrics.CleanupRows.WithLabelValues(stage, table).Add(float64(n))
		slog.Debug("cleanup rows affected", "stage", stage, "table", table, "rows", n)
	}
}

func (rn *run) ownedRows(ctx context.Context, stage string, steps []Step, accounts []models.Account) {
	if len(accounts) == 0 {
		return
	}
	ids, emails := keysOf(accounts)

	for _, step := range steps {
		keys := ids
		if step.By == ByEmail {
			keys = emails
		}
		n, err := rn.store.DeleteOwned(ctx, step, keys)
		if err != nil {
			rn.warn(stage, step.Name(), err)
			continue
		}
		rn.counted(stage, step.Table, n)
	}
}

func (rn *run) contentPatterns(ctx context.Context, rules Rules) {
	patterns := append([]string{}, rn.cfg.ContentPatterns...)
	if rules.TestRunID != "" {
		patterns = append(patterns, rules.TestRunID)
	}

	for _, target := range rn.plan.Content {
		n, err := rn.store.DeleteMatching(ctx, target, patterns)
		if err != nil {
			rn.warn(StageContent, target.Table, err)
			continue
		}
		rn.counted(StageContent, target.Table, n)
	}
}

func (rn *run) nullify(ctx context.Context, accounts []models.Account) {
	if len(accounts) == 0 {
		return
	}
	ids, _ := keysOf(accounts)

	for _, ref := range rn.plan.Nullify {
		n, err := rn.store.Nullify(ctx, ref, ids)
		if err != nil {
			rn.warn(StageTestData, ref.Table+"."+ref.Column, err)
			continue
		}
		if n > 0 {
			slog.Debug("optional references cleared", "table", ref.Table, "column", ref.Column, "rows", n)
		}
	}
}

func (rn *run) avatars(ctx context.Context, accounts []models.Account) {
	if rn.purger == nil {
		return
	}
	for _, a := range accounts {
		n, err := rn.purger.PurgePrefix(ctx, rn.purger.UserPrefix(a.ID))
		if err != nil {
			rn.warn(StageAvatars, a.ID, err)
			continue
		}
		rn.result.AvatarsPurged += n
	}
}

func (rn *run) deleteAccounts(ctx context.Context, accounts []models.Account) {
	for _, a := range accounts {
		if err := rn.accounts.DeleteAccount(ctx, a.ID); err != nil {
			rn.warn(StageAccounts, a.Email, err)
			continue
		}
		rn.result.DeletedUsers++
		metrics.CleanupAccountsDeleted.Inc()
		slog.Info("test account deleted", "user_id", a.ID, "email", a.Email)
	}
}

func (rn *run) sweep(ctx context.Context, rules Rules) {
	m := Matchers{
		Text:          append(append([]string{}, rn.cfg.ContentPatterns...), rules.NamePatterns...),
		EmailPrefixes: rules.EmailPrefixes,
		EmailDomains:  rules.TestDomains,
	}
	if rules.TestRunID != "" {
		m.Text = append(m.Text, rules.TestRunID)
	}

	for _, target := range rn.plan.Sweep {
		n, err := rn.store.Sweep(ctx, target, m)
		if err != nil {
			rn.warn(StageSweep, target.Table, err)
			continue
		}
		rn.counted(StageSweep, target.Table, n)
	}
}

func keysOf(accounts []models.Account) (ids, emails []string) {
	for _, a := range accounts {
		ids = append(ids, a.ID)
		if a.Email != "" {
			emails = append(emails, a.Email)
		}
	}
	return ids, emails
}
