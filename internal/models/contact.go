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

package models

import "time"

// Submission statuses.
const (
	StatusNew  = "new"
	StatusRead = "read"
)

// Reply sender types.
const (
	SenderAdmin = "admin"
	SenderUser  = "user"
)

// ContactFormSubmission is one inbound contact-form record.
type ContactFormSubmission struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	Name         string     `json:"name"`
	Subject      string     `json:"subject"`
	Message      string     `json:"message"`
	Status       string     `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	RepliedAt    *time.Time `json:"replied_at"`
	RepliedBy    *string    `json:"replied_by"`
	ReplyMessage *string    `json:"reply_message"`
}

// ContactFormReply is a reply linked to a submission. Replies are never
// mutated and must be deleted before their parent submission.
type ContactFormReply struct {
	ID           string    `json:"id"`
	SubmissionID string    `json:"submission_id"`
	SenderType   string    `json:"sender_type"`
	SenderID     *string   `json:"sender_id"`
	SenderName   string    `json:"sender_name"`
	SenderEmail  string    `json:"sender_email"`
	Message      string    `json:"message"`
	CreatedAt    time.Time `json:"created_at"`
}
