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

// Package inbox waits for emails to arrive in a captured mailbox. Delivery
// is asynchronous and unordered with respect to test execution, so waits
// poll the mailbox listing at a fixed interval and only accept messages
// sent at or after the moment the wait began.
package inbox

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/bcem/mailverify/internal/errs"
	"github.com/bcem/mailverify/internal/models"
	"github.com/bcem/mailverify/internal/wait"
)

// Source is the mailbox the poller reads. Implemented by mailtrap.Client.
type Source interface {
	FetchAllMessages(ctx context.Context) ([]models.MessageSummary, error)
	FetchEmail(ctx context.Context, id int64) (*models.CapturedMessage, error)
}

// Criteria selects a message by case-insensitive substring. Empty fields
// match anything.
type Criteria struct {
	To      string `json:"to,omitempty"`
	Subject string `json:"subject,omitempty"`
	From    string `json:"from,omitempty"`
}

// Matches reports whether m satisfies every non-empty field.
func (c Criteria) Matches(m models.MessageSummary) bool {
	return containsFold(m.ToEmail, c.To) &&
		containsFold(m.Subject, c.Subject) &&
		containsFold(m.FromEmail, c.From)
}

// String renders the criteria as JSON for diagnostics.
func (c Criteria) String() string {
	b, _ := json.Marshal(c)
	return string(b)
}

func containsFold(s, sub string) bool {
	return sub == "" || strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

// Poller waits for messages in one mailbox.
type Poller struct {
	source   Source
	timeout  time.Duration
	interval time.Duration
}

// Option adjusts a poller or a single wait.
type Option func(*waitOptions)

type waitOptions struct {
	timeout   time.Duration
	interval  time.Duration
	notBefore time.Time
}

// WithTimeout bounds the whole wait.
func WithTimeout(d time.Duration) Option {
	return func(o *waitOptions) { o.timeout = d }
}

// WithPollInterval sets the sleep between listings.
func WithPollInterval(d time.Duration) Option {
	return func(o *waitOptions) { o.interval = d }
}

// WithNotBefore replaces the wait start as the earliest accepted send time.
func WithNotBefore(t time.Time) Option {
	return func(o *waitOptions) { o.notBefore = t }
}

// NewPoller creates a poller with the default 30s timeout and 2s interval,
// adjusted by opts. WithNotBefore is ignored here.
func NewPoller(source Source, opts ...Option) *Poller {
	o := waitOptions{timeout: wait.DefaultTimeout, interval: wait.DefaultInterval}
	for _, opt := range opts {
		opt(&o)
	}
	return &Poller{source: source, timeout: o.timeout, interval: o.interval}
}

// WaitForEmail polls until a message matching criteria and sent no earlier
// than the start of the call appears, then returns it with bodies. It
// fails with errs.TimeoutError naming the criteria when none arrives.
func (p *Poller) WaitForEmail(ctx context.Context, criteria Criteria, opts ...Option) (*models.CapturedMessage, error) {
	o := waitOptions{timeout: p.timeout, interval: p.interval, notBefore: time.Now()}
	for _, opt := range opts {
		opt(&o)
	}

	slog.Debug("waiting for email",
		"criteria", criteria.String(),
		"timeout", o.timeout,
		"not_before", o.notBefore.Format(time.RFC3339),
	)

	summary, err := wait.Until(ctx, wait.Options{Timeout: o.timeout, Interval: o.interval},
		func(ctx context.Context) (models.MessageSummary, bool, error) {
			msgs, err := p.source.FetchAllMessages(ctx)
			if err != nil {
				return models.MessageSummary{}, false, err
			}
			for _, m := range msgs {
				if criteria.Matches(m) && !m.SentAt.Before(o.notBefore) {
					return m, true, nil
				}
			}
			return models.MessageSummary{}, false, nil
		})
	if errors.Is(err, wait.ErrTimedOut) {
		return nil, &errs.TimeoutError{Op: "wait for email", Criteria: criteria.String(), Timeout: o.timeout}
	}
	if err != nil {
		return nil, err
	}

	slog.Info("email matched",
		"message_id", summary.ID,
		"subject", summary.Subject,
		"to", summary.ToEmail,
	)

	// Listings omit bodies; a second call fetches them.
	return p.source.FetchEmail(ctx, summary.ID)
}

// FindLatestEmail makes one pass over the mailbox, newest first, and
// returns the first match with bodies, or nil when nothing matches. It is
// meant for advisory checks that must not block the suite.
func (p *Poller) FindLatestEmail(ctx context.Context, criteria Criteria) (*models.CapturedMessage, error) {
	msgs, err := p.source.FetchAllMessages(ctx)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].SentAt.After(msgs[j].SentAt)
	})

	for _, m := range msgs {
		if criteria.Matches(m) {
			return p.source.FetchEmail(ctx, m.ID)
		}
	}
	return nil, nil
}
