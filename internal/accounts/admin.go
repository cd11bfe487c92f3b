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

// Package accounts lists and deletes platform auth accounts through the
// auth admin API. It requires the service-role key and is only used by the
// server-side cleanup routine.
package accounts

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/oauth2"

	"github.com/bcem/mailverify/internal/models"
)

// DefaultPageSize is the per_page value used when listing accounts.
const DefaultPageSize = 1000

// adminUser is the subset of the admin API user object we read.
type adminUser struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	UserMetadata map[string]any `json:"user_metadata"`
}

type adminUsersResponse struct {
	Users []adminUser `json:"users"`
}

// Admin is an auth admin API client.
type Admin struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	pageSize   int
}

// NewAdmin creates an admin client for the project at projectURL. The base
// HTTP client can be supplied through ctx with the oauth2.HTTPClient key.
func NewAdmin(ctx context.Context, projectURL, serviceRoleKey string) *Admin {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: serviceRoleKey})
	return &Admin{
		httpClient: oauth2.NewClient(ctx, ts),
		baseURL:    strings.TrimRight(projectURL, "/") + "/auth/v1/admin/users",
		apiKey:     serviceRoleKey,
		pageSize:   DefaultPageSize,
	}
}

// ListAccounts returns every account, paging until a short page.
func (a *Admin) ListAccounts(ctx context.Context) ([]models.Account, error) {
	var accounts []models.Account

	for page := 1; ; page++ {
		params := url.Values{}
		params.Set("page", strconv.Itoa(page))
		params.Set("per_page", strconv.Itoa(a.pageSize))

		var resp adminUsersResponse
		if err := a.do(ctx, http.MethodGet, a.baseURL+"?"+params.Encode(), &resp); err != nil {
			return nil, fmt.Errorf("list accounts page %d: %w", page, err)
		}

		for _, u := range resp.Users {
			accounts = append(accounts, models.Account{
				ID:          u.ID,
				Email:       u.Email,
				DisplayName: displayName(u.UserMetadata),
			})
		}

		if len(resp.Users) < a.pageSize {
			break
		}
	}

	slog.Debug("accounts listed", "count", len(accounts))
	return accounts, nil
}

// DeleteAccount removes one auth account. An account that is already gone
// is not an error.
func (a *Admin) DeleteAccount(ctx context.Context, id string) error {
	err := a.do(ctx, http.MethodDelete, a.baseURL+"/"+url.PathEscape(id), nil)
	if err != nil {
		if se, ok := err.(*statusError); ok && se.code == http.StatusNotFound {
			slog.Debug("account already deleted", "user_id", id)
			return nil
		}
		return fmt.Errorf("delete account %s: %w", id, err)
	}
	return nil
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("auth admin API returned HTTP %d: %s", e.code, e.body)
}

func (a *Admin) do(ctx context.Context, method, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("apikey", a.apiKey)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &statusError{code: resp.StatusCode, body: string(body)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// displayName picks the first non-empty name-like metadata field.
func displayName(meta map[string]any) string {
	for _, key := range []string{"display_name", "full_name", "name"} {
		if s, ok := meta[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
