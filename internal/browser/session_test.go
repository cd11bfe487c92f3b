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
	"testing"
	"time"

	"github.com/bcem/mailverify/internal/config"
)

func TestSelectorsWithDefaults(t *testing.T) {
	got := Selectors{Submit: "#send"}.withDefaults()
	if got.Submit != "#send" {
		t.Errorf("Submit = %q, want #send", got.Submit)
	}
	if got.Email != DefaultSelectors.Email {
		t.Errorf("Email = %q, want default %q", got.Email, DefaultSelectors.Email)
	}
	if got.Success != DefaultSelectors.Success {
		t.Errorf("Success = %q, want default %q", got.Success, DefaultSelectors.Success)
	}
}

func TestSessionURL(t *testing.T) {
	s := &Session{cfg: config.BrowserConfig{BaseURL: "http://localhost:5173/"}}
	for _, path := range []string{"/contact", "contact"} {
		if got := s.URL(path); got != "http://localhost:5173/contact" {
			t.Errorf("URL(%q) = %q", path, got)
		}
	}
}

func TestStartRequiresBaseURL(t *testing.T) {
	if _, err := Start(config.BrowserConfig{}); err == nil {
		t.Fatal("expected configuration error")
	}
}

func TestTimeoutFor(t *testing.T) {
	if got := timeoutFor(context.Background()); got != float64(defaultActionTimeout.Milliseconds()) {
		t.Errorf("no deadline: got %v", got)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if got := timeoutFor(ctx); got <= 0 || got > 5000 {
		t.Errorf("5s deadline: got %v", got)
	}

	expired, cancel2 := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel2()
	if got := timeoutFor(expired); got != 1 {
		t.Errorf("expired deadline: got %v", got)
	}
}
