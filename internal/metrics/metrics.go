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

// Package metrics registers the Prometheus collectors exported by the
// helper server on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "mailverify"

var (
	// HelperRequests counts helper calls by action and outcome
	// (ok, timeout, not_found, invalid, internal, unauthorized).
	HelperRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "helper",
		Name:      "requests_total",
		Help:      "Privileged helper requests by action and outcome.",
	}, []string{"action", "outcome"})

	// HelperWaitSeconds observes how long server-side waits took.
	HelperWaitSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "helper",
		Name:      "wait_duration_seconds",
		Help:      "Duration of server-side waitForSubmission/waitForReply polls.",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"action"})

	// InboundForwarded counts simulated inbound events by outcome.
	InboundForwarded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "helper",
		Name:      "inbound_forwarded_total",
		Help:      "Signed inbound-email events delivered to the application webhook.",
	}, []string{"outcome"})

	// CleanupRows counts rows removed or nullified per stage and table.
	CleanupRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cleanup",
		Name:      "rows_total",
		Help:      "Rows deleted or nullified by the cascading cleanup.",
	}, []string{"stage", "table"})

	// CleanupAccountsDeleted counts auth accounts removed in stage 5.
	CleanupAccountsDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cleanup",
		Name:      "accounts_deleted_total",
		Help:      "Test-pattern accounts deleted by the cascading cleanup.",
	})

	// CleanupWarnings counts partial failures by stage.
	CleanupWarnings = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cleanup",
		Name:      "warnings_total",
		Help:      "Non-fatal per-table or per-account cleanup failures.",
	}, []string{"stage"})

	// CleanupRuns counts cleanup runs by outcome (ok, error, locked).
	CleanupRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cleanup",
		Name:      "runs_total",
		Help:      "Cascading cleanup runs by outcome.",
	}, []string{"outcome"})
)
