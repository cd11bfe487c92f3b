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

// mailverify is the operator CLI for the email-verification harness:
// setup diagnostics, mailbox waits, contact-form lookups, simulated inbound
// email and on-demand test-data cleanup.
//
// Usage:
//
//	mailverify check
//	mailverify wait --to test-abc@example.com --subject "Welcome" --timeout 60s
//	mailverify cleanup --test-run-id run1a2b3c4d5e
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"github.com/bcem/mailverify/internal/bridge"
	"github.com/bcem/mailverify/internal/config"
	"github.com/bcem/mailverify/internal/helperapi"
	"github.com/bcem/mailverify/internal/inbox"
	"github.com/bcem/mailverify/internal/mailtrap"
	"github.com/bcem/mailverify/internal/models"
	"github.com/bcem/mailverify/internal/verify"
)

var version = "dev"

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := newRootCmd(config.Load, http.DefaultClient).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// app holds what every subcommand needs. Config is loaded lazily so that
// --help works without a config file.
type app struct {
	load       func() (*config.Config, error)
	httpClient *http.Client
	cfg        *config.Config
}

func (a *app) config() (*config.Config, error) {
	if a.cfg != nil {
		return a.cfg, nil
	}
	cfg, err := a.load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	a.cfg = cfg
	return cfg, nil
}

func (a *app) mailbox() (*mailtrap.Client, error) {
	cfg, err := a.config()
	if err != nil {
		return nil, err
	}
	return mailtrap.NewClient(cfg.Mailtrap, a.httpClient), nil
}

func (a *app) bridge(ctx context.Context) (*bridge.Client, error) {
	cfg, err := a.config()
	if err != nil {
		return nil, err
	}
	return bridge.NewClient(context.WithValue(ctx, oauth2.HTTPClient, a.httpClient), cfg.Supabase)
}

func newRootCmd(load func() (*config.Config, error), httpClient *http.Client) *cobra.Command {
	a := &app{load: load, httpClient: httpClient}

	root := &cobra.Command{
		Use:          "mailverify",
		Short:        "Email-verification harness CLI",
		Version:      version,
		SilenceUsage: true,
	}

	root.AddCommand(
		a.checkCmd(),
		a.debugCmd(),
		a.waitCmd(),
		a.clearCmd(),
		a.submissionCmd(),
		a.simulateCmd(),
		a.cleanupSubmissionsCmd(),
		a.cleanupCmd(),
	)
	return root
}

func (a *app) checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate mailbox credentials with a live request",
		RunE: func(cmd *cobra.Command, args []string) error {
			mb, err := a.mailbox()
			if err != nil {
				return err
			}
			return mailtrap.ValidateSetup(cmd.Context(), cmd.OutOrStdout(), mb)
		},
	}
}

func (a *app) debugCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "debug",
		Short: "Print mailbox configuration diagnostics without secrets",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			mailtrap.DebugConfig(cmd.OutOrStdout(), cfg.Mailtrap)
			return nil
		},
	}
}

func (a *app) waitCmd() *cobra.Command {
	var (
		criteria inbox.Criteria
		timeout  time.Duration
		interval time.Duration
		latest   bool
		links    bool
	)
	cmd := &cobra.Command{
		Use:   "wait",
		Short: "Wait for a matching email in the test mailbox",
		RunE: func(cmd *cobra.Command, args []string) error {
			mb, err := a.mailbox()
			if err != nil {
				return err
			}
			poller := inbox.NewPoller(mb, inbox.WithTimeout(timeout), inbox.WithPollInterval(interval))

			var msg *models.CapturedMessage
			if latest {
				msg, err = poller.FindLatestEmail(cmd.Context(), criteria)
				if err == nil && msg == nil {
					return fmt.Errorf("no email matches %s", criteria)
				}
			} else {
				msg, err = poller.WaitForEmail(cmd.Context(), criteria)
			}
			if err != nil {
				return err
			}

			if links {
				for _, l := range verify.ExtractLinks(msg) {
					fmt.Fprintln(cmd.OutOrStdout(), l)
				}
				return nil
			}
			return printJSON(cmd.OutOrStdout(), msg.MessageSummary)
		},
	}
	cmd.Flags().StringVar(&criteria.To, "to", "", "Recipient substring")
	cmd.Flags().StringVar(&criteria.Subject, "subject", "", "Subject substring")
	cmd.Flags().StringVar(&criteria.From, "from", "", "Sender substring")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "How long to wait")
	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "Poll interval")
	cmd.Flags().BoolVar(&latest, "latest", false, "Single pass for the newest existing match, no waiting")
	cmd.Flags().BoolVar(&links, "links", false, "Print the links found in the email body instead of the summary")
	return cmd
}

func (a *app) clearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete every message in the test mailbox",
		RunE: func(cmd *cobra.Command, args []string) error {
			mb, err := a.mailbox()
			if err != nil {
				return err
			}
			mb.ClearInbox(cmd.Context())
			return nil
		},
	}
}

func (a *app) submissionCmd() *cobra.Command {
	var (
		wait    bool
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "submission <email>",
		Short: "Show the latest contact-form submission for an email address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.bridge(cmd.Context())
			if err != nil {
				return err
			}
			if wait {
				sub, err := client.WaitForSubmission(cmd.Context(), args[0], bridge.WithTimeout(timeout))
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), sub)
			}
			sub, replies, err := client.GetSubmission(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{"submission": sub, "replies": replies})
		},
	}
	cmd.Flags().BoolVar(&wait, "wait", false, "Poll until the submission appears")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "How long to wait with --wait")
	return cmd
}

func (a *app) simulateCmd() *cobra.Command {
	var msg bridge.InboundEmail
	cmd := &cobra.Command{
		Use:   "simulate-inbound",
		Short: "Deliver a signed inbound-email event to the application",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.bridge(cmd.Context())
			if err != nil {
				return err
			}
			id, err := client.SimulateInboundEmail(cmd.Context(), msg)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]string{"email_id": id})
		},
	}
	cmd.Flags().StringVar(&msg.From, "from", "", "Sender address (required)")
	cmd.Flags().StringVar(&msg.To, "to", "", "Recipient address (required)")
	cmd.Flags().StringVar(&msg.Subject, "subject", "", "Subject line")
	cmd.Flags().StringVar(&msg.Text, "text", "", "Plain-text body")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func (a *app) cleanupSubmissionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup-submissions <like-pattern>",
		Short: "Delete contact-form submissions whose email matches a LIKE pattern",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.bridge(cmd.Context())
			if err != nil {
				return err
			}
			n, err := client.CleanupTestSubmissions(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]int64{"deleted": n})
		},
	}
}

func (a *app) cleanupCmd() *cobra.Command {
	var req helperapi.CleanupRunRequest
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Run the cascading test-data cleanup",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.bridge(cmd.Context())
			if err != nil {
				return err
			}
			resp, err := client.RunCleanup(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}
	cmd.Flags().StringVar(&req.TestRunID, "test-run-id", "", "Also treat accounts and content tagged with this run id as test data")
	cmd.Flags().StringVar(&req.EmailPrefix, "email-prefix", "", "Test email prefix; replaces the configured defaults")
	cmd.Flags().StringSliceVar(&req.NamePatterns, "name-pattern", nil, "Test display-name pattern (repeatable); replaces the configured defaults")
	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
