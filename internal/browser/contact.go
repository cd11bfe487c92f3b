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

package browser

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/playwright-community/playwright-go"
)

// ContactForm is what a visitor types into the public contact page.
type ContactForm struct {
	Name    string
	Email   string
	Subject string
	Message string
}

// Selectors locate the contact form controls. Zero fields fall back to
// DefaultSelectors.
type Selectors struct {
	Name    string
	Email   string
	Subject string
	Message string
	Submit  string
	Success string
}

// DefaultSelectors matches the application's contact page.
var DefaultSelectors = Selectors{
	Name:    "input[name='name']",
	Email:   "input[name='email']",
	Subject: "input[name='subject']",
	Message: "textarea[name='message']",
	Submit:  "button[type='submit']",
	Success: "[data-sonner-toast]",
}

func (s Selectors) withDefaults() Selectors {
	d := DefaultSelectors
	if s.Name != "" {
		d.Name = s.Name
	}
	if s.Email != "" {
		d.Email = s.Email
	}
	if s.Subject != "" {
		d.Subject = s.Subject
	}
	if s.Message != "" {
		d.Message = s.Message
	}
	if s.Submit != "" {
		d.Submit = s.Submit
	}
	if s.Success != "" {
		d.Success = s.Success
	}
	return d
}

// SubmitContactForm opens the contact page, fills every field and submits.
// It returns once the success notice is visible.
func (s *Session) SubmitContactForm(ctx context.Context, form ContactForm, sel Selectors) error {
	sel = sel.withDefaults()
	timeout := timeoutFor(ctx)

	url := s.URL(s.cfg.ContactPath)
	if _, err := s.Page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateNetworkidle,
		Timeout:   playwright.Float(timeout),
	}); err != nil {
		return fmt.Errorf("open contact page %s: %w", url, err)
	}

	fields := []struct {
		name, selector, value string
	}{
		{"name", sel.Name, form.Name},
		{"email", sel.Email, form.Email},
		{"subject", sel.Subject, form.Subject},
		{"message", sel.Message, form.Message},
	}
	for _, f := range fields {
		if err := s.Page.Locator(f.selector).Fill(f.value, playwright.LocatorFillOptions{
			Timeout: playwright.Float(timeout),
		}); err != nil {
			return fmt.Errorf("fill %s: %w", f.name, err)
		}
	}

	if err := s.Page.Locator(sel.Submit).Click(playwright.LocatorClickOptions{
		Timeout: playwright.Float(timeout),
	}); err != nil {
		return fmt.Errorf("submit contact form: %w", err)
	}

	if err := s.Page.Locator(sel.Success).First().WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(timeoutFor(ctx)),
	}); err != nil {
		return fmt.Errorf("wait for contact confirmation: %w", err)
	}

	slog.Info("contact form submitted", "email", form.Email, "subject", form.Subject)
	return nil
}
