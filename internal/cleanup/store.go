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
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

// Store executes plan operations. Queries are written with ? placeholders
// and rebound for the connection's driver.
type Store struct {
	db *sqlx.DB
}

// NewStore wraps a sqlx connection.
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// DeleteOwned runs one owned-row step for the given account keys (ids or
// emails depending on step.By).
func (s *Store) DeleteOwned(ctx context.Context, step Step, keys []string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}

	keyPred := "%s IN (?)"
	args := keys
	if step.By == ByEmail {
		keyPred = "LOWER(%s) IN (?)"
		args = lowerAll(keys)
	}

	query, qargs, err := sqlx.In("DELETE FROM "+step.Table+" WHERE "+step.predicate(keyPred), args)
	if err != nil {
		return 0, fmt.Errorf("expand %s: %w", step.Name(), err)
	}
	return s.exec(ctx, query, qargs...)
}

// Nullify clears ref on rows pointing at any of ids.
func (s *Store) Nullify(ctx context.Context, ref NullableRef, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query, args, err := sqlx.In(
		fmt.Sprintf("UPDATE %s SET %s = NULL WHERE %s IN (?)", ref.Table, ref.Column, ref.Column), ids)
	if err != nil {
		return 0, fmt.Errorf("expand nullify %s.%s: %w", ref.Table, ref.Column, err)
	}
	return s.exec(ctx, query, args...)
}

// DeleteMatching deletes rows of a leaf table where any column contains
// any of the patterns, case-insensitively.
func (s *Store) DeleteMatching(ctx context.Context, target ContentTarget, patterns []string) (int64, error) {
	cond, args := Matchers{Text: patterns}.where(target.Columns, "")
	if cond == "" {
		return 0, nil
	}
	return s.exec(ctx, "DELETE FROM "+target.Table+" WHERE "+cond, args...)
}

// Sweep deletes rows of target matching m, children first. It stops at
// the first failure since the parent delete cannot succeed after a child
// delete failed.
func (s *Store) Sweep(ctx context.Context, target SweepTarget, m Matchers) (int64, error) {
	cond, args := m.where(target.TextColumns, target.EmailColumn)
	if cond == "" {
		return 0, nil
	}

	var total int64
	for _, c := range target.Children {
		n, err := s.exec(ctx, fmt.Sprintf(
			"DELETE FROM %s WHERE %s IN (SELECT id FROM %s WHERE %s)",
			c.Table, c.Column, target.Table, cond), args...)
		if err != nil {
			return total, fmt.Errorf("sweep %s children in %s: %w", target.Table, c.Table, err)
		}
		total += n
	}

	n, err := s.exec(ctx, "DELETE FROM "+target.Table+" WHERE "+cond, args...)
	if err != nil {
		return total, fmt.Errorf("sweep %s: %w", target.Table, err)
	}
	return total + n, nil
}

func (s *Store) exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return n, nil
}

// Matchers are the free-text heuristics of the content and sweep stages.
type Matchers struct {
	// Text substrings matched against text columns.
	Text []string
	// EmailPrefixes and EmailDomains matched against the email column.
	EmailPrefixes []string
	EmailDomains  []string
}

// where renders an OR of case-insensitive LIKE tests. Patterns match
// literally; LIKE wildcards inside them are escaped. It returns "" when
// nothing could match.
func (m Matchers) where(textColumns []string, emailColumn string) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	for _, col := range textColumns {
		for _, p := range m.Text {
			if p == "" {
				continue
			}
			clauses = append(clauses, likeClause(col))
			args = append(args, "%"+escapeLike(strings.ToLower(p))+"%")
		}
	}
	if emailColumn != "" {
		for _, p := range m.EmailPrefixes {
			if p == "" {
				continue
			}
			clauses = append(clauses, likeClause(emailColumn))
			args = append(args, escapeLike(strings.ToLower(p))+"%")
		}
		for _, d := range m.EmailDomains {
			if d == "" {
				continue
			}
			clauses = append(clauses, likeClause(emailColumn))
			args = append(args, "%@"+escapeLike(strings.ToLower(d)))
		}
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return "(" + strings.Join(clauses, " OR ") + ")", args
}

func likeClause(col string) string {
	return fmt.Sprintf(`LOWER(%s) LIKE ? ESCAPE '\'`, col)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike makes s match itself under LIKE ... ESCAPE '\'.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}
