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

// Package verify asserts structural properties of captured emails and of
// contact-form rows. Every check fails with errs.AssertionMismatchError
// naming the expected and actual values.
package verify

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/bcem/mailverify/internal/errs"
	"github.com/bcem/mailverify/internal/models"
)

// hrefPattern captures double-quoted href attribute values.
var hrefPattern = regexp.MustCompile(`href="([^"]*)"`)

// Expectations describes what a captured email must contain. Zero fields
// are not checked.
type Expectations struct {
	Subject        string
	SubjectPattern *regexp.Regexp
	To             string
	From           string
	HTMLContains   []string
	TextContains   []string
	Links          []string
}

// VerifyEmailContent checks msg against exp in a fixed order: subject,
// recipient, sender, HTML substrings, text substrings, links. It returns
// the first mismatch.
func VerifyEmailContent(msg *models.CapturedMessage, exp Expectations) error {
	if msg == nil {
		return &errs.AssertionMismatchError{Field: "message", Expected: "a captured message", Actual: "nil"}
	}

	if exp.Subject != "" && msg.Subject != exp.Subject {
		return mismatch("subject", exp.Subject, msg.Subject)
	}
	if exp.SubjectPattern != nil && !exp.SubjectPattern.MatchString(msg.Subject) {
		return mismatch("subject", "/"+exp.SubjectPattern.String()+"/", msg.Subject)
	}
	if exp.To != "" && msg.ToEmail != exp.To {
		return mismatch("to", exp.To, msg.ToEmail)
	}
	if exp.From != "" && msg.FromEmail != exp.From {
		return mismatch("from", exp.From, msg.FromEmail)
	}

	for _, s := range exp.HTMLContains {
		if !strings.Contains(msg.HTMLBody, s) {
			return mismatch("html body", "contains "+s, excerpt(msg.HTMLBody))
		}
	}
	for _, s := range exp.TextContains {
		if !strings.Contains(msg.TextBody, s) {
			return mismatch("text body", "contains "+s, excerpt(msg.TextBody))
		}
	}

	for _, link := range exp.Links {
		re := regexp.MustCompile(`(?i)href="[^"]*` + regexp.QuoteMeta(link) + `[^"]*"`)
		if !re.MatchString(msg.HTMLBody) {
			return mismatch("link", link, strings.Join(ExtractLinks(msg), ", "))
		}
	}

	return nil
}

// ExtractLinks returns every href value of the HTML body in document order.
func ExtractLinks(msg *models.CapturedMessage) []string {
	if msg == nil {
		return nil
	}
	matches := hrefPattern.FindAllStringSubmatch(msg.HTMLBody, -1)
	links := make([]string, 0, len(matches))
	for _, m := range matches {
		links = append(links, m[1])
	}
	return links
}

// VerifyHeaders checks that each wanted header is present with a value
// containing the wanted substring. Names are canonical MIME keys.
func VerifyHeaders(headers map[string]string, want map[string]string) error {
	for name, sub := range want {
		got, ok := headers[name]
		if !ok {
			return mismatch("header "+name, "present", "absent")
		}
		if !strings.Contains(got, sub) {
			return mismatch("header "+name, "contains "+sub, got)
		}
	}
	return nil
}

func mismatch(field, expected, actual string) error {
	return &errs.AssertionMismatchError{Field: field, Expected: expected, Actual: actual}
}

func excerpt(s string) string {
	const max = 200
	if len(s) <= max {
		return s
	}
	return fmt.Sprintf("%s... (%d bytes)", s[:max], len(s))
}
