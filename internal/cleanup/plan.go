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
	"fmt"
	"strings"
)

// Key is what an owned-row step matches on.
type Key int

const (
	// ByID matches account ids.
	ByID Key = iota
	// ByEmail matches account emails, case-insensitively.
	ByEmail
)

// Hop is one parent table in a step's chain. Column references the next
// hop's id, or the account key for the last hop.
type Hop struct {
	Table  string
	Column string
}

// Step deletes rows of Table owned by a set of accounts. Without hops,
// Table.Column holds the account key. With hops, Table.Column references
// the id of rows in Via[0], whose Column references Via[1], and so on.
type Step struct {
	Table  string
	Column string
	By     Key
	Via    []Hop
}

// Name identifies the step in logs and warnings.
func (s Step) Name() string {
	if len(s.Via) == 0 {
		return s.Table + "." + s.Column
	}
	parts := []string{s.Table + "." + s.Column}
	for _, h := range s.Via {
		parts = append(parts, h.Table+"."+h.Column)
	}
	return strings.Join(parts, " -> ")
}

// predicate renders the WHERE clause for the step. keyPred formats the
// innermost comparison against the account keys, given the column name.
func (s Step) predicate(keyPred string) string {
	if len(s.Via) == 0 {
		return fmt.Sprintf(keyPred, s.Column)
	}

	last := s.Via[len(s.Via)-1]
	sub := fmt.Sprintf("SELECT id FROM %s WHERE %s", last.Table, fmt.Sprintf(keyPred, last.Column))
	for i := len(s.Via) - 2; i >= 0; i-- {
		sub = fmt.Sprintf("SELECT id FROM %s WHERE %s IN (%s)", s.Via[i].Table, s.Via[i].Column, sub)
	}
	return fmt.Sprintf("%s IN (%s)", s.Column, sub)
}

// NullableRef is an optional foreign key to an account, cleared on rows
// that survive the account's deletion.
type NullableRef struct {
	Table  string
	Column string
}

// ContentTarget is a leaf table deleted by free-text match, regardless of
// owner.
type ContentTarget struct {
	Table   string
	Columns []string
}

// Child is a table referencing a sweep target's id.
type Child struct {
	Table  string
	Column string
}

// SweepTarget is a table swept by the final safety net. Children are
// deleted first.
type SweepTarget struct {
	Table       string
	TextColumns []string
	EmailColumn string
	Children    []Child
}

// Plan is the ordered dependency graph one cleanup run walks.
type Plan struct {
	// Owned runs for persistent fixtures and test accounts.
	Owned []Step
	// Vendor runs for test accounts only, before Owned.
	Vendor []Step
	// Nullify runs for test accounts only, before any deletion.
	Nullify []NullableRef
	// Content runs once per run, independent of owners.
	Content []ContentTarget
	// Sweep runs last.
	Sweep []SweepTarget
}

// DefaultPlan is the application's schema, children before parents.
func DefaultPlan() Plan {
	return Plan{
		Owned: []Step{
			{Table: "notifications", Column: "user_id"},
			{Table: "notification_preferences", Column: "user_id"},
			{Table: "email_notifications_log", Column: "user_id"},

			{Table: "contact_form_replies", Column: "sender_id"},
			{Table: "contact_form_replies", Column: "submission_id", By: ByEmail,
				Via: []Hop{{Table: "contact_form_submissions", Column: "email"}}},
			{Table: "contact_form_submissions", Column: "email", By: ByEmail},

			{Table: "discussion_comments", Column: "author_id"},
			{Table: "discussion_comments", Column: "post_id",
				Via: []Hop{{Table: "discussion_posts", Column: "author_id"}}},
			{Table: "discussion_posts", Column: "author_id"},

			{Table: "featured_bestie_hearts", Column: "user_id"},
			{Table: "featured_bestie_hearts", Column: "featured_bestie_id",
				Via: []Hop{{Table: "featured_besties", Column: "bestie_id"}}},
			{Table: "featured_besties", Column: "bestie_id"},

			{Table: "sponsorships", Column: "sponsor_id"},
			{Table: "sponsorships", Column: "bestie_id"},
			{Table: "sponsor_messages", Column: "bestie_id"},
			{Table: "caregiver_bestie_links", Column: "caregiver_id"},
			{Table: "caregiver_bestie_links", Column: "bestie_id"},

			{Table: "event_attendees", Column: "user_id"},
			{Table: "event_attendees", Column: "event_id",
				Via: []Hop{{Table: "events", Column: "created_by"}}},
			{Table: "event_dates", Column: "event_id",
				Via: []Hop{{Table: "events", Column: "created_by"}}},
			{Table: "events", Column: "created_by"},

			{Table: "album_images", Column: "album_id",
				Via: []Hop{{Table: "albums", Column: "created_by"}}},
			{Table: "albums", Column: "created_by"},
		},
		Vendor: []Step{
			{Table: "order_items", Column: "product_id",
				Via: []Hop{{Table: "products", Column: "vendor_id"}, {Table: "vendors", Column: "user_id"}}},
			{Table: "order_items", Column: "order_id",
				Via: []Hop{{Table: "orders", Column: "customer_id"}}},
			{Table: "orders", Column: "customer_id"},
			{Table: "products", Column: "vendor_id",
				Via: []Hop{{Table: "vendors", Column: "user_id"}}},
			{Table: "vendor_bestie_assets", Column: "vendor_id",
				Via: []Hop{{Table: "vendors", Column: "user_id"}}},
			{Table: "vendor_bestie_requests", Column: "vendor_id",
				Via: []Hop{{Table: "vendors", Column: "user_id"}}},
			{Table: "vendor_bestie_requests", Column: "bestie_id"},
			{Table: "vendors", Column: "user_id"},
		},
		Nullify: []NullableRef{
			{Table: "vendors", Column: "featured_bestie_id"},
			{Table: "sponsor_messages", Column: "approved_by"},
			{Table: "contact_form_submissions", Column: "replied_by"},
		},
		Content: []ContentTarget{
			{Table: "notifications", Columns: []string{"title", "message"}},
			{Table: "contact_form_replies", Columns: []string{"sender_name", "message"}},
		},
		Sweep: []SweepTarget{
			{
				Table:       "contact_form_submissions",
				TextColumns: []string{"name", "subject"},
				EmailColumn: "email",
				Children:    []Child{{Table: "contact_form_replies", Column: "submission_id"}},
			},
			{
				Table:       "discussion_posts",
				TextColumns: []string{"title"},
				Children:    []Child{{Table: "discussion_comments", Column: "post_id"}},
			},
			{
				Table:       "events",
				TextColumns: []string{"title"},
				Children: []Child{
					{Table: "event_attendees", Column: "event_id"},
					{Table: "event_dates", Column: "event_id"},
				},
			},
			{
				Table:       "albums",
				TextColumns: []string{"title"},
				Children:    []Child{{Table: "album_images", Column: "album_id"}},
			},
			{Table: "notifications", TextColumns: []string{"title", "message"}},
		},
	}
}
