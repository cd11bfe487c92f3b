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

// Package browser drives the application's public pages with Playwright so
// that scenario tests can produce real submissions.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/bcem/mailverify/internal/config"
	"github.com/bcem/mailverify/internal/errs"
)

const defaultActionTimeout = 30 * time.Second

// Session owns one Chromium instance and a single page.
type Session struct {
	cfg     config.BrowserConfig
	pw      *playwright.Playwright
	browser playwright.Browser
	bctx    playwright.BrowserContext
	Page    playwright.Page
}

// Start launches Chromium. Browsers are installed on demand unless
// PLAYWRIGHT_PREINSTALLED=1.
func Start(cfg config.BrowserConfig) (*Session, error) {
	if cfg.BaseURL == "" {
		return nil, &errs.ConfigurationError{Component: "browser", Missing: []string{"APP_BASE_URL"}}
	}

	if os.Getenv("PLAYWRIGHT_PREINSTALLED") != "1" {
		if err := playwright.Install(&playwright.RunOptions{Browsers: []string{"chromium"}}); err != nil {
			return nil, fmt.Errorf("install playwright: %w", err)
		}
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("start playwright: %w", err)
	}

	s := &Session{cfg: cfg, pw: pw}

	s.browser, err = pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(cfg.Headless),
		SlowMo:   playwright.Float(float64(cfg.SlowMoMs)),
	})
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("launch chromium: %w", err)
	}

	s.bctx, err = s.browser.NewContext(playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{Width: 1280, Height: 800},
	})
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("create browser context: %w", err)
	}

	s.Page, err = s.bctx.NewPage()
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("open page: %w", err)
	}
	s.Page.SetDefaultTimeout(float64(defaultActionTimeout.Milliseconds()))

	return s, nil
}

// Close releases the page, context, browser and driver. Safe on a
// partially started session.
func (s *Session) Close() {
	if s.Page != nil {
		_ = s.Page.Close()
	}
	if s.bctx != nil {
		_ = s.bctx.Close()
	}
	if s.browser != nil {
		_ = s.browser.Close()
	}
	if s.pw != nil {
		if err := s.pw.Stop(); err != nil {
			slog.Warn("stop playwright", "error", err)
		}
	}
}

// Screenshot writes a full-page PNG, used when a scenario fails.
func (s *Session) Screenshot(path string) error {
	_, err := s.Page.Screenshot(playwright.PageScreenshotOptions{
		Path:     playwright.String(path),
		FullPage: playwright.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("screenshot %s: %w", path, err)
	}
	return nil
}

// URL joins the configured base URL and a path.
func (s *Session) URL(path string) string {
	return strings.TrimRight(s.cfg.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")
}

// timeoutFor bounds a Playwright action by the context deadline, falling
// back to the session default.
func timeoutFor(ctx context.Context) float64 {
	if dl, ok := ctx.Deadline(); ok {
		if d := time.Until(dl); d > 0 {
			return float64(d.Milliseconds())
		}
		return 1
	}
	return float64(defaultActionTimeout.Milliseconds())
}
