// Copyright 2025 Tom Barlow
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

// Package metrics holds the Prometheus collectors shared by the runner
// connection and the debug server.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Request outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeTimeout = "timeout"
	OutcomeClosed  = "closed"
)

var (
	runnerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wfdebug_runner_requests_total",
			Help: "Total requests sent to the runner by command and outcome",
		},
		[]string{"command", "outcome"},
	)

	runnerRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wfdebug_runner_request_duration_seconds",
			Help:    "Runner request round trip time",
			Buckets: []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2, 5},
		},
		[]string{"command"},
	)

	runnerEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wfdebug_runner_events_total",
			Help: "Total events received from the runner by event name",
		},
		[]string{"event"},
	)

	breakpointsResolved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wfdebug_breakpoints_resolved_total",
			Help: "Total breakpoints resolved for editors, by verification result",
		},
		[]string{"verified"},
	)

	sessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "wfdebug_sessions_active",
		Help: "Number of editor debug sessions currently open",
	})
)

// RecordRunnerRequest records a completed runner request.
// outcome should be one of the Outcome constants.
func RecordRunnerRequest(command, outcome string, seconds float64) {
	runnerRequests.WithLabelValues(command, outcome).Inc()
	runnerRequestDuration.WithLabelValues(command).Observe(seconds)
}

// RecordRunnerEvent counts an event received from the runner.
func RecordRunnerEvent(event string) {
	runnerEvents.WithLabelValues(event).Inc()
}

// RecordBreakpoint counts a resolved editor breakpoint.
func RecordBreakpoint(verified bool) {
	breakpointsResolved.WithLabelValues(strconv.FormatBool(verified)).Inc()
}

// SessionStarted increments the active session gauge.
func SessionStarted() {
	sessionsActive.Inc()
}

// SessionEnded decrements the active session gauge.
func SessionEnded() {
	sessionsActive.Dec()
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
