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

package mailtrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/bcem/mailverify/internal/config"
	"github.com/bcem/mailverify/internal/errs"
)

// setupHints lists the misconfigurations seen most often in CI.
var setupHints = []string{
	"MAILTRAP_API_TOKEN, MAILTRAP_INBOX_ID and MAILTRAP_ACCOUNT_ID must all be set",
	"the token must be an API token with access to the sandbox inbox, not an SMTP password",
	"the token must not carry leading or trailing whitespace from copy-paste",
	"MAILTRAP_ACCOUNT_ID is the numeric account id from the Mailtrap URL, not the inbox id",
	"CI secrets must be exposed to the job running the suite",
}

// IsConfigured is a presence check; it never touches the network.
func IsConfigured(cfg config.MailtrapConfig) bool {
	return cfg.Configured()
}

// DebugConfig prints the presence, length and a short prefix of each
// setting. The full token is never printed.
func DebugConfig(w io.Writer, cfg config.MailtrapConfig) {
	fmt.Fprintln(w, "Mailtrap configuration:")
	debugValue(w, "MAILTRAP_API_TOKEN", cfg.APIToken, 4)
	if cfg.APIToken != "" {
		if strings.TrimSpace(cfg.APIToken) != cfg.APIToken {
			fmt.Fprintln(w, "  Has whitespace: YES (token has leading or trailing whitespace, re-copy it)")
		} else {
			fmt.Fprintln(w, "  Has whitespace: NO")
		}
	}
	debugValue(w, "MAILTRAP_INBOX_ID", cfg.InboxID, 0)
	debugValue(w, "MAILTRAP_ACCOUNT_ID", cfg.AccountID, 0)
	fmt.Fprintf(w, "  Base URL: %s\n", cfg.BaseURL)
}

// debugValue shows up to prefixLen leading characters; zero shows the
// whole value, which is only used for non-secret ids. Secrets no longer
// than twice the prefix show no characters at all.
func debugValue(w io.Writer, name, value string, prefixLen int) {
	if value == "" {
		fmt.Fprintf(w, "  %s: MISSING\n", name)
		return
	}
	if prefixLen == 0 {
		fmt.Fprintf(w, "  %s: set (length %d, value %q)\n", name, len(value), value)
		return
	}
	if len(value) <= 2*prefixLen {
		fmt.Fprintf(w, "  %s: set (length %d, too short to show a prefix)\n", name, len(value))
		return
	}
	fmt.Fprintf(w, "  %s: set (length %d, value %q)\n", name, len(value), value[:prefixLen]+"...")
}

// ConnectivityReport is the outcome of one live check.
type ConnectivityReport struct {
	Success bool
	Method  string
	Error   string
}

// CheckConnectivity performs one authenticated list-messages call. It never
// returns an error; failures are described in the report.
func CheckConnectivity(ctx context.Context, c *Client) ConnectivityReport {
	report := ConnectivityReport{Method: "GET messages"}
	if _, err := c.FetchAllMessages(ctx); err != nil {
		report.Error = err.Error()
		return report
	}
	report.Success = true
	return report
}

// ValidateSetup prints diagnostics and fails with one explanatory error
// when credentials are missing or the live check is rejected. Call it once
// per suite so a bad environment fails before any wait starts.
func ValidateSetup(ctx context.Context, w io.Writer, c *Client) error {
	cfg := c.Config()
	DebugConfig(w, cfg)

	var cause error
	if missing := cfg.Missing(); len(missing) > 0 {
		cause = &errs.ConfigurationError{Component: "mailtrap", Missing: missing}
	} else {
		report := CheckConnectivity(ctx, c)
		fmt.Fprintf(w, "  Connectivity (%s): %s\n", report.Method, successWord(report.Success))
		if !report.Success {
			cause = &errs.ConnectivityError{Op: "mailtrap " + report.Method, Err: errors.New(report.Error)}
		}
	}

	if cause == nil {
		return nil
	}

	var b strings.Builder
	b.WriteString("mailtrap setup is invalid; common causes:")
	for _, h := range setupHints {
		b.WriteString("\n  - ")
		b.WriteString(h)
	}
	return fmt.Errorf("%s\n%w", b.String(), cause)
}

func successWord(ok bool) string {
	if ok {
		return "OK"
	}
	return "FAILED"
}
