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

//go:build e2e

package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bcem/mailverify/internal/bridge"
	"github.com/bcem/mailverify/internal/config"
	"github.com/bcem/mailverify/internal/models"
	"github.com/bcem/mailverify/internal/testenv"
	"github.com/bcem/mailverify/internal/verify"
)

func setupScenario(t *testing.T) (*testenv.Env, *bridge.Client, *Session) {
	t.Helper()

	cfg, err := config.Load()
	require.NoError(t, err)

	ctx := context.Background()
	env, err := testenv.New(ctx, cfg, nil)
	require.NoError(t, err)

	client, err := env.Bridge()
	if err != nil {
		t.Skipf("database verification not configured: %v", err)
	}

	sess, err := Start(cfg.Browser)
	require.NoError(t, err)

	t.Cleanup(func() {
		if t.Failed() {
			path := filepath.Join(os.TempDir(), fmt.Sprintf("%s-%d.png", t.Name(), time.Now().Unix()))
			if err := sess.Screenshot(path); err == nil {
				t.Logf("screenshot saved to %s", path)
			}
		}
		sess.Close()

		tctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
		defer cancel()
		if err := env.Teardown(tctx); err != nil {
			t.Logf("teardown: %v", err)
		}
	})

	return env, client, sess
}

func TestContactFormSubmissionAndInboundReply(t *testing.T) {
	env, client, sess := setupScenario(t)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	form := ContactForm{
		Name:    "Test User",
		Email:   env.UniqueEmail(""),
		Subject: "S",
		Message: "M",
	}
	start := time.Now().Add(-5 * time.Second)

	require.NoError(t, sess.SubmitContactForm(ctx, form, Selectors{}))

	sub, err := client.WaitForSubmission(ctx, form.Email, bridge.WithNotBefore(start))
	require.NoError(t, err)
	require.NoError(t, verify.VerifySubmission(sub, verify.SubmissionExpectations{
		Email:   form.Email,
		Name:    form.Name,
		Subject: form.Subject,
		Message: form.Message,
	}))
	require.NoError(t, client.VerifySubmission(ctx, form.Email, verify.SubmissionExpectations{
		Email:  form.Email,
		Status: models.StatusNew,
	}))

	_, err = client.SimulateInboundEmail(ctx, bridge.InboundEmail{
		From:    sub.Email,
		To:      "contact@example.com",
		Subject: "Re: " + sub.Subject,
		Text:    "thanks",
	})
	require.NoError(t, err)

	reply, err := client.WaitForReply(ctx, sub.ID, bridge.WithSenderType(models.SenderUser))
	require.NoError(t, err)
	require.NoError(t, verify.VerifyReply(reply, verify.ReplyExpectations{
		SenderType:      models.SenderUser,
		MessageContains: "thanks",
	}))
}
