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
	"errors"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bcem/mailverify/internal/errs"
	"github.com/bcem/mailverify/internal/models"
)

func sampleMessage() *models.CapturedMessage {
	return &models.CapturedMessage{
		MessageSummary: models.MessageSummary{
			Subject:   "Welcome to Besties Connect",
			ToEmail:   "test-1@example.com",
			FromEmail: "noreply@besties.test",
		},
		HTMLBody: `<html><body><p>Hello!</p>` +
			`<a href="https://app.test/verify?token=abc">Verify</a>` +
			`<a href="https://app.test/settings">Settings</a>` +
			`<a href="https://app.test/unsubscribe?u=1">Unsubscribe</a></body></html>`,
		TextBody: "Hello! Verify your account.",
	}
}

func TestVerifyEmailContent_AllSatisfied(t *testing.T) {
	err := VerifyEmailContent(sampleMessage(), Expectations{
		Subject:        "Welcome to Besties Connect",
		SubjectPattern: regexp.MustCompile(`(?i)welcome`),
		To:             "test-1@example.com",
		From:           "noreply@besties.test",
		HTMLContains:   []string{"Hello!", "Verify"},
		TextContains:   []string{"Verify your account"},
		Links:          []string{"/verify?token=", "UNSUBSCRIBE"},
	})
	assert.NoError(t, err)
}

func TestVerifyEmailContent_EmptyExpectations(t *testing.T) {
	assert.NoError(t, VerifyEmailContent(sampleMessage(), Expectations{}))
}

func TestVerifyEmailContent_Mismatches(t *testing.T) {
	tests := []struct {
		name  string
		exp   Expectations
		field string
	}{
		{"subject exact", Expectations{Subject: "Welcome"}, "subject"},
		{"subject pattern", Expectations{SubjectPattern: regexp.MustCompile(`^Reset`)}, "subject"},
		{"recipient", Expectations{To: "test-2@example.com"}, "to"},
		{"sender", Expectations{From: "admin@besties.test"}, "from"},
		{"html substring", Expectations{HTMLContains: []string{"Goodbye"}}, "html body"},
		{"text substring", Expectations{TextContains: []string{"Goodbye"}}, "text body"},
		{"link", Expectations{Links: []string{"/reset-password"}}, "link"},
		{"first failure wins", Expectations{To: "nobody@example.com", Links: []string{"/missing"}}, "to"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := VerifyEmailContent(sampleMessage(), tt.exp)
			var m *errs.AssertionMismatchError
			require.True(t, errors.As(err, &m), "got %v", err)
			assert.Equal(t, tt.field, m.Field)
		})
	}
}

func TestVerifyEmailContent_ReportsExpectedAndActual(t *testing.T) {
	err := VerifyEmailContent(sampleMessage(), Expectations{To: "someone@example.com"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "someone@example.com")
	assert.Contains(t, err.Error(), "test-1@example.com")
}

func TestVerifyEmailContent_NilMessage(t *testing.T) {
	assert.Error(t, VerifyEmailContent(nil, Expectations{}))
}

func TestExtractLinks_DocumentOrder(t *testing.T) {
	links := ExtractLinks(sampleMessage())
	assert.Equal(t, []string{
		"https://app.test/verify?token=abc",
		"https://app.test/settings",
		"https://app.test/unsubscribe?u=1",
	}, links)
}

func TestExtractLinks_NoLinks(t *testing.T) {
	assert.Empty(t, ExtractLinks(&models.CapturedMessage{HTMLBody: "<p>plain</p>"}))
}

func TestVerifyHeaders(t *testing.T) {
	headers := map[string]string{"List-Unsubscribe": "<https://app.test/unsubscribe>"}

	assert.NoError(t, VerifyHeaders(headers, map[string]string{"List-Unsubscribe": "unsubscribe"}))
	assert.Error(t, VerifyHeaders(headers, map[string]string{"List-Unsubscribe-Post": ""}))
	assert.Error(t, VerifyHeaders(headers, map[string]string{"List-Unsubscribe": "mailto:"}))
}

func TestVerifySubmission(t *testing.T) {
	row := &models.ContactFormSubmission{
		Email: "test-171234@example.com", Name: "Test User", Subject: "S", Message: "M", Status: models.StatusNew,
	}

	assert.NoError(t, VerifySubmission(row, SubmissionExpectations{
		Email: "test-171234@example.com", Name: "Test User", Subject: "S", Message: "M",
	}))

	err := VerifySubmission(row, SubmissionExpectations{Status: models.StatusRead})
	var m *errs.AssertionMismatchError
	require.True(t, errors.As(err, &m))
	assert.Equal(t, "status", m.Field)
	assert.Equal(t, "read", m.Expected)
	assert.Equal(t, "new", m.Actual)

	assert.Error(t, VerifySubmission(nil, SubmissionExpectations{}))
}

func TestVerifyReply(t *testing.T) {
	row := &models.ContactFormReply{SenderType: models.SenderUser, SenderEmail: "test-1@example.com", Message: "thanks a lot"}

	assert.NoError(t, VerifyReply(row, ReplyExpectations{SenderType: "user", MessageContains: "thanks"}))
	assert.Error(t, VerifyReply(row, ReplyExpectations{SenderType: "admin"}))
	assert.Error(t, VerifyReply(row, ReplyExpectations{SenderEmail: "other@example.com"}))
	assert.Error(t, VerifyReply(row, ReplyExpectations{MessageContains: "sorry"}))
	assert.Error(t, VerifyReply(nil, ReplyExpectations{}))
}
