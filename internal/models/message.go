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

// Package models defines the shared data types of the verification harness:
// captured mailbox messages, contact-form rows and platform accounts.
package models

import "time"

// MessageSummary is one entry of a mailbox listing. Listings omit bodies.
type MessageSummary struct {
	ID        int64     `json:"id"`
	InboxID   int64     `json:"inbox_id"`
	Subject   string    `json:"subject"`
	SentAt    time.Time `json:"sent_at"`
	CreatedAt time.Time `json:"created_at"`
	FromEmail string    `json:"from_email"`
	FromName  string    `json:"from_name"`
	ToEmail   string    `json:"to_email"`
	ToName    string    `json:"to_name"`
	IsRead    bool      `json:"is_read"`
	EmailSize int       `json:"email_size"`
}

// CapturedMessage is a delivered email with its bodies. It is owned by the
// mailbox service and only ever read by the harness.
type CapturedMessage struct {
	MessageSummary
	HTMLBody string `json:"html_body"`
	TextBody string `json:"text_body"`
}
