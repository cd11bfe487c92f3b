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

// Package contact provides read access to the application's contact-form
// tables for the privileged test helper. The tables are owned by the
// application; this package never creates or migrates them.
package contact

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bcem/mailverify/internal/models"
)

const submissionColumns = `
	id, email, name, subject, message, status, created_at, updated_at,
	replied_at, replied_by, reply_message`

const replyColumns = `
	id, submission_id, sender_type, sender_id, sender_name, sender_email,
	message, created_at`

// Store queries contact_form_submissions and contact_form_replies.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a store backed by the given Postgres pool.
func NewStore(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping contact database: %w", err)
	}
	slog.Info("contact store initialised")
	return &Store{pool: pool}, nil
}

// LatestSubmissionByEmail returns the newest submission for email created at
// or after since. A zero since matches any row. It returns nil, nil when no
// row exists.
func (s *Store) LatestSubmissionByEmail(ctx context.Context, email string, since time.Time) (*models.ContactFormSubmission, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+submissionColumns+`
		FROM contact_form_submissions
		WHERE email = $1 AND created_at >= $2
		ORDER BY created_at DESC
		LIMIT 1
	`, email, since)
	return scanSubmission(row)
}

// GetSubmission returns one submission by id, or nil, nil.
func (s *Store) GetSubmission(ctx context.Context, id string) (*models.ContactFormSubmission, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+submissionColumns+`
		FROM contact_form_submissions
		WHERE id = $1
	`, id)
	return scanSubmission(row)
}

// ListReplies returns the replies of a submission, oldest first.
func (s *Store) ListReplies(ctx context.Context, submissionID string) ([]models.ContactFormReply, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+replyColumns+`
		FROM contact_form_replies
		WHERE submission_id = $1
		ORDER BY created_at
	`, submissionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectReplies(rows)
}

// LatestReply returns the newest reply to submissionID created at or after
// since, restricted to senderType when it is non-empty. It returns nil, nil
// when no row exists.
func (s *Store) LatestReply(ctx context.Context, submissionID, senderType string, since time.Time) (*models.ContactFormReply, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+replyColumns+`
		FROM contact_form_replies
		WHERE submission_id = $1
		  AND ($2 = '' OR sender_type = $2)
		  AND created_at >= $3
		ORDER BY created_at DESC
		LIMIT 1
	`, submissionID, senderType, since)
	return scanReply(row)
}

// DeleteSubmissionsLike deletes submissions whose email matches the SQL LIKE
// pattern, replies first, in one transaction. It returns the number of
// submissions removed.
func (s *Store) DeleteSubmissionsLike(ctx context.Context, pattern string) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin cleanup: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		DELETE FROM contact_form_replies
		WHERE submission_id IN (
			SELECT id FROM contact_form_submissions WHERE email LIKE $1
		)
	`, pattern); err != nil {
		return 0, fmt.Errorf("delete replies: %w", err)
	}

	tag, err := tx.Exec(ctx, `DELETE FROM contact_form_submissions WHERE email LIKE $1`, pattern)
	if err != nil {
		return 0, fmt.Errorf("delete submissions: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit cleanup: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanSubmission(row pgx.Row) (*models.ContactFormSubmission, error) {
	var r models.ContactFormSubmission
	err := row.Scan(
		&r.ID, &r.Email, &r.Name, &r.Subject, &r.Message, &r.Status,
		&r.CreatedAt, &r.UpdatedAt, &r.RepliedAt, &r.RepliedBy, &r.ReplyMessage,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func scanReply(row pgx.Row) (*models.ContactFormReply, error) {
	var r models.ContactFormReply
	err := row.Scan(
		&r.ID, &r.SubmissionID, &r.SenderType, &r.SenderID, &r.SenderName,
		&r.SenderEmail, &r.Message, &r.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func collectReplies(rows pgx.Rows) ([]models.ContactFormReply, error) {
	var replies []models.ContactFormReply
	for rows.Next() {
		var r models.ContactFormReply
		if err := rows.Scan(
			&r.ID, &r.SubmissionID, &r.SenderType, &r.SenderID, &r.SenderName,
			&r.SenderEmail, &r.Message, &r.CreatedAt,
		); err != nil {
			return nil, err
		}
		replies = append(replies, r)
	}
	return replies, rows.Err()
}
