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

// Package helperapi defines the JSON wire format shared by the privileged
// test helper, the cleanup entrypoint and their test-runner clients.
package helperapi

import (
	"time"

	"github.com/bcem/mailverify/internal/models"
)

// Helper actions.
const (
	ActionWaitForSubmission    = "waitForSubmission"
	ActionWaitForReply         = "waitForReply"
	ActionGetSubmission        = "getSubmission"
	ActionSimulateInboundEmail = "simulateInboundEmail"
	ActionCleanup              = "cleanup"
)

// Error kinds reported alongside success=false.
const (
	KindTimeout  = "timeout"
	KindNotFound = "not_found"
	KindInvalid  = "invalid"
	KindInternal = "internal"
)

// Request is the flat {action, ...params} body accepted by the helper.
// Fields not used by an action are ignored.
type Request struct {
	Action string `json:"action"`

	Email          string     `json:"email,omitempty"`
	SubmissionID   string     `json:"submissionId,omitempty"`
	SenderType     string     `json:"senderType,omitempty"`
	TimeoutMs      int64      `json:"timeoutMs,omitempty"`
	PollIntervalMs int64      `json:"pollIntervalMs,omitempty"`
	Since          *time.Time `json:"since,omitempty"`

	From    string `json:"from,omitempty"`
	To      string `json:"to,omitempty"`
	Subject string `json:"subject,omitempty"`
	Text    string `json:"text,omitempty"`

	EmailPattern string `json:"emailPattern,omitempty"`
}

// Status is embedded in every helper response.
type Status struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Kind    string `json:"kind,omitempty"`
}

// SubmissionResponse answers waitForSubmission and getSubmission.
type SubmissionResponse struct {
	Status
	Submission *models.ContactFormSubmission `json:"submission,omitempty"`
	Replies    []models.ContactFormReply     `json:"replies,omitempty"`
}

// ReplyResponse answers waitForReply.
type ReplyResponse struct {
	Status
	Reply *models.ContactFormReply `json:"reply,omitempty"`
}

// SimulateResponse answers simulateInboundEmail.
type SimulateResponse struct {
	Status
	EmailID string `json:"emailId,omitempty"`
}

// CleanupResponse answers cleanup.
type CleanupResponse struct {
	Status
	Deleted int64 `json:"deleted"`
}

// CleanupRunRequest is the body of the cleanup entrypoint. Unknown legacy
// flags are accepted and ignored.
type CleanupRunRequest struct {
	TestRunID    string   `json:"testRunId,omitempty"`
	EmailPrefix  string   `json:"emailPrefix,omitempty"`
	NamePatterns []string `json:"namePatterns,omitempty"`
}

// CleanupRunResponse is returned by the cleanup entrypoint with HTTP 200 on
// success and HTTP 500 on failure.
type CleanupRunResponse struct {
	Success                   bool      `json:"success"`
	Message                   string    `json:"message,omitempty"`
	DeletedUsers              int       `json:"deletedUsers"`
	PersistentAccountsCleaned int       `json:"persistentAccountsCleaned"`
	Error                     string    `json:"error,omitempty"`
	Timestamp                 time.Time `json:"timestamp"`
}

// GetStatus exposes the embedded status of any response type.
func (s *Status) GetStatus() *Status { return s }
