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

package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/bcem/mailverify/internal/errs"
	"github.com/bcem/mailverify/internal/helperapi"
)

// InboundEmail describes a synthetic inbound message for the application's
// inbound email processor.
type InboundEmail struct {
	From    string
	To      string
	Subject string
	Text    string
}

// SimulateInboundEmail asks the helper to deliver a signed inbound-email
// event to the application's webhook, as the email provider would. It
// returns the synthetic message id.
func (c *Client) SimulateInboundEmail(ctx context.Context, msg InboundEmail) (string, error) {
	req := helperapi.Request{
		Action:  helperapi.ActionSimulateInboundEmail,
		From:    msg.From,
		To:      msg.To,
		Subject: msg.Subject,
		Text:    msg.Text,
	}
	var resp helperapi.SimulateResponse
	if err := c.call(ctx, req, requestSlack, &resp); err != nil {
		return "", err
	}
	slog.Info("simulated inbound email", "from", msg.From, "to", msg.To, "email_id", resp.EmailID)
	return resp.EmailID, nil
}

// cleanupBudget bounds one cascading cleanup run.
const cleanupBudget = 2 * time.Minute

// RunCleanup invokes the cascading cleanup entrypoint. A response with
// success=false (HTTP 500) becomes a HelperError carrying the reported
// message.
func (c *Client) RunCleanup(ctx context.Context, req helperapi.CleanupRunRequest) (*helperapi.CleanupRunResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, cleanupBudget)
	defer cancel()

	op := "cleanup-test-data-unified"
	body, postErr := c.post(ctx, c.cleanupURL, req, op)

	var connErr *errs.ConnectivityError
	if postErr != nil && (!errors.As(postErr, &connErr) || connErr.StatusCode == 0) {
		return nil, postErr
	}

	var resp helperapi.CleanupRunResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		if postErr != nil {
			return nil, postErr
		}
		return nil, &errs.MalformedResponseError{Source: op, Err: err}
	}
	if !resp.Success {
		msg := resp.Error
		if msg == "" {
			msg = "cleanup reported failure without a message"
		}
		return &resp, &errs.HelperError{Action: op, Message: msg}
	}

	slog.Info("cleanup run completed",
		"deleted_users", resp.DeletedUsers,
		"persistent_accounts_cleaned", resp.PersistentAccountsCleaned,
	)
	return &resp, nil
}
