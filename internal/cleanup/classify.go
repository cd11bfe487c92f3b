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

package cleanup

import (
	"strings"

	"github.com/bcem/mailverify/internal/config"
	"github.com/bcem/mailverify/internal/helperapi"
	"github.com/bcem/mailverify/internal/models"
)

// Class is the cleanup category of one account.
type Class int

const (
	// ClassNone accounts are never touched by account-scoped stages.
	ClassNone Class = iota
	// ClassPersistent fixture accounts keep their account; their owned
	// rows are deleted.
	ClassPersistent
	// ClassTestPattern accounts have their rows and the account deleted.
	ClassTestPattern
)

func (c Class) String() string {
	switch c {
	case ClassPersistent:
		return "persistent"
	case ClassTestPattern:
		return "test_pattern"
	default:
		return "none"
	}
}

// Rules are the heuristics ClassifyAccount applies.
type Rules struct {
	PersistentEmails []string
	EmailPrefixes    []string
	TestDomains      []string
	NamePatterns     []string
	// TestRunID, when set, also marks any account whose email contains it.
	TestRunID string
}

// RulesFromConfig builds the default rules.
func RulesFromConfig(cfg config.CleanupConfig) Rules {
	return Rules{
		PersistentEmails: cfg.PersistentEmails,
		EmailPrefixes:    cfg.EmailPrefixes,
		TestDomains:      cfg.TestDomains,
		NamePatterns:     cfg.NamePatterns,
	}
}

// WithRequest applies per-run overrides: emailPrefix replaces the prefix
// list, namePatterns replaces the name list and testRunId adds a match.
// The persistent allow-list cannot be overridden.
func (r Rules) WithRequest(req helperapi.CleanupRunRequest) Rules {
	if req.EmailPrefix != "" {
		r.EmailPrefixes = []string{req.EmailPrefix}
	}
	if len(req.NamePatterns) > 0 {
		r.NamePatterns = req.NamePatterns
	}
	if req.TestRunID != "" {
		r.TestRunID = req.TestRunID
	}
	return r
}

// ClassifyAccount decides what cleanup may do with an account. The
// persistent allow-list is checked first, so a fixture account is never
// ClassTestPattern even when its email or name matches a heuristic.
func ClassifyAccount(a models.Account, r Rules) Class {
	email := strings.ToLower(strings.TrimSpace(a.Email))

	for _, p := range r.PersistentEmails {
		if email != "" && email == strings.ToLower(p) {
			return ClassPersistent
		}
	}

	if email != "" {
		for _, prefix := range r.EmailPrefixes {
			if prefix != "" && strings.HasPrefix(email, strings.ToLower(prefix)) {
				return ClassTestPattern
			}
		}
		for _, domain := range r.TestDomains {
			if domain != "" && strings.HasSuffix(email, "@"+strings.ToLower(domain)) {
				return ClassTestPattern
			}
		}
		if r.TestRunID != "" && strings.Contains(email, strings.ToLower(r.TestRunID)) {
			return ClassTestPattern
		}
	}

	name := strings.ToLower(a.DisplayName)
	for _, p := range r.NamePatterns {
		if p != "" && name != "" && strings.Contains(name, strings.ToLower(p)) {
			return ClassTestPattern
		}
	}

	return ClassNone
}

// Partition splits accounts into persistent fixtures and test-pattern
// accounts. Everyone else is dropped.
func Partition(accounts []models.Account, r Rules) (persistent, test []models.Account) {
	for _, a := range accounts {
		switch ClassifyAccount(a, r) {
		case ClassPersistent:
			persistent = append(persistent, a)
		case ClassTestPattern:
			test = append(test, a)
		}
	}
	return persistent, test
}
