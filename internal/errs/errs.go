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

// Package errs defines the error kinds surfaced by the verification harness.
// Callers match them with errors.As.
package errs

import (
	"fmt"
	"strings"
	"time"
)

// ConfigurationError reports required settings that are absent. It is
// returned before any network call is attempted.
type ConfigurationError struct {
	Component string
	Missing   []string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s not configured: missing %s", e.Component, strings.Join(e.Missing, ", "))
}

// ConnectivityError reports a remote API that was unreachable or rejected
// the request. StatusCode is zero when no response was received.
type ConnectivityError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *ConnectivityError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s failed (HTTP %d): %s", e.Op, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// TimeoutError reports a wait whose predicate never became true.
type TimeoutError struct {
	Op       string
	Criteria string
	Timeout  time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s; criteria: %s", e.Op, e.Timeout, e.Criteria)
}

// AssertionMismatchError reports a field that did not match its expectation.
type AssertionMismatchError struct {
	Field    string
	Expected string
	Actual   string
}

func (e *AssertionMismatchError) Error() string {
	return fmt.Sprintf("%s mismatch: expected %q, got %q", e.Field, e.Expected, e.Actual)
}

// MalformedResponseError reports a payload that could not be decoded into
// the expected shape, or that was missing required fields.
type MalformedResponseError struct {
	Source string
	Err    error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed response from %s: %v", e.Source, e.Err)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// HelperError carries the message reported by the privileged test helper
// when it answered with success=false.
type HelperError struct {
	Action  string
	Message string
}

func (e *HelperError) Error() string {
	return fmt.Sprintf("helper action %s failed: %s", e.Action, e.Message)
}

// PartialCleanupError records one failed cleanup operation. It is logged
// and collected, never returned from a cleanup run.
type PartialCleanupError struct {
	Stage  string
	Target string
	Err    error
}

func (e *PartialCleanupError) Error() string {
	return fmt.Sprintf("cleanup stage %s: %s: %v", e.Stage, e.Target, e.Err)
}

func (e *PartialCleanupError) Unwrap() error { return e.Err }
