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

package verify

import (
	"strings"

	"github.com/bcem/mailverify/internal/models"
)

// SubmissionExpectations lists exact field values a contact-form row must
// have. Empty fields are not checked.
type SubmissionExpectations struct {
	Email   string
	Name    string
	Subject string
	Message string
	Status  string
}

// VerifySubmission checks row against exp field by field.
func VerifySubmission(row *models.ContactFormSubmission, exp SubmissionExpectations) error {
	if row == nil {
		return mismatch("submission", "a row", "none")
	}
	checks := []struct{ field, want, got string }{
		{"email", exp.Email, row.Email},
		{"name", exp.Name, row.Name},
		{"subject", exp.Subject, row.Subject},
		{"message", exp.Message, row.Message},
		{"status", exp.Status, row.Status},
	}
	for _, c := range checks {
		if c.want != "" && c.want != c.got {
			return mismatch(c.field, c.want, c.got)
		}
	}
	return nil
}

// ReplyExpectations describes a contact-form reply. MessageContains is a
// substring check; the other fields are exact.
type ReplyExpectations struct {
	SenderType      string
	SenderEmail     string
	MessageContains string
}

// VerifyReply checks row against exp.
func VerifyReply(row *models.ContactFormReply, exp ReplyExpectations) error {
	if row == nil {
		return mismatch("reply", "a row", "none")
	}
	if exp.SenderType != "" && row.SenderType != exp.SenderType {
		return mismatch("sender_type", exp.SenderType, row.SenderType)
	}
	if exp.SenderEmail != "" && row.SenderEmail != exp.SenderEmail {
		return mismatch("sender_email", exp.SenderEmail, row.SenderEmail)
	}
	if exp.MessageContains != "" && !strings.Contains(row.Message, exp.MessageContains) {
		return mismatch("message", "contains "+exp.MessageContains, excerpt(row.Message))
	}
	return nil
}
