// Copyright 2025 MassGen Authors
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

package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the Prometheus collectors for one turn's coordination
// events. A nil *Metrics is safe to call every method on — every
// recorder is a no-op — so callers never need to branch on whether
// metrics are enabled.
type Metrics struct {
	registry *prometheus.Registry

	answersSubmitted *prometheus.CounterVec
	answersRejected  *prometheus.CounterVec
	votesCast        *prometheus.CounterVec
	consensusReached *prometheus.CounterVec
	roundTimeouts    *prometheus.CounterVec
	restarts         *prometheus.CounterVec
	subagentSpawns   *prometheus.CounterVec
	subagentDuration *prometheus.HistogramVec
	turnsActive      *prometheus.GaugeVec
	turnDuration     prometheus.Histogram

	turnsStartedOtel metric.Int64Counter
}

// New builds a Metrics instance registered under cfg.Namespace. It
// also registers an OpenTelemetry counter on the process-global
// MeterProvider (a no-op unless the embedding process has installed
// an SDK), so turn starts are visible to either observability stack.
func New(cfg Config) (*Metrics, error) {
	cfg.SetDefaults()

	reg := prometheus.NewRegistry()
	m := &Metrics{registry: reg}

	m.answersSubmitted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: cfg.Namespace, Subsystem: "coordination", Name: "answers_submitted_total",
		Help: "Total number of new_answer tool calls accepted.",
	}, []string{"agent_id"})

	m.answersRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: cfg.Namespace, Subsystem: "coordination", Name: "answers_rejected_total",
		Help: "Total number of new_answer tool calls rejected (novelty or cap).",
	}, []string{"agent_id", "reason"})

	m.votesCast = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: cfg.Namespace, Subsystem: "coordination", Name: "votes_cast_total",
		Help: "Total number of vote tool calls accepted.",
	}, []string{"agent_id"})

	m.consensusReached = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: cfg.Namespace, Subsystem: "coordination", Name: "consensus_reached_total",
		Help: "Total number of turns that reached consensus, by predicate.",
	}, []string{"predicate"})

	m.roundTimeouts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: cfg.Namespace, Subsystem: "coordination", Name: "round_timeouts_total",
		Help: "Total number of rounds that ended via timeout rather than consensus.",
	}, []string{"round_kind"})

	m.restarts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: cfg.Namespace, Subsystem: "coordination", Name: "agent_restarts_total",
		Help: "Total number of agents restarted after an answer invalidated their vote.",
	}, []string{"agent_id"})

	m.subagentSpawns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: cfg.Namespace, Subsystem: "subagent", Name: "spawns_total",
		Help: "Total number of subagent tasks spawned, by outcome.",
	}, []string{"outcome"})

	m.subagentDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: cfg.Namespace, Subsystem: "subagent", Name: "duration_seconds",
		Help:    "Subagent task wall-clock duration in seconds.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~34min
	}, []string{"outcome"})

	m.turnsActive = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: cfg.Namespace, Subsystem: "turn", Name: "active",
		Help: "Number of turns currently running.",
	}, []string{"turn_id"})

	m.turnDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: cfg.Namespace, Subsystem: "turn", Name: "duration_seconds",
		Help:    "Turn wall-clock duration in seconds, from start to consensus or failure.",
		Buckets: prometheus.DefBuckets,
	})

	reg.MustRegister(m.answersSubmitted, m.answersRejected, m.votesCast, m.consensusReached,
		m.roundTimeouts, m.restarts, m.subagentSpawns, m.subagentDuration, m.turnsActive, m.turnDuration)

	meter := globalMeter.Get()
	counter, err := meter.Int64Counter("massgen.turns.started",
		metric.WithDescription("Total number of turns started."))
	if err == nil {
		m.turnsStartedOtel = counter
	}

	return m, nil
}

func (m *Metrics) RecordAnswerSubmitted(agentID string) {
	if m == nil {
		return
	}
	m.answersSubmitted.WithLabelValues(agentID).Inc()
}

func (m *Metrics) RecordAnswerRejected(agentID, reason string) {
	if m == nil {
		return
	}
	m.answersRejected.WithLabelValues(agentID, reason).Inc()
}

func (m *Metrics) RecordVoteCast(agentID string) {
	if m == nil {
		return
	}
	m.votesCast.WithLabelValues(agentID).Inc()
}

func (m *Metrics) RecordConsensus(predicate string) {
	if m == nil {
		return
	}
	m.consensusReached.WithLabelValues(predicate).Inc()
}

func (m *Metrics) RecordRoundTimeout(roundKind string) {
	if m == nil {
		return
	}
	m.roundTimeouts.WithLabelValues(roundKind).Inc()
}

func (m *Metrics) RecordRestart(agentID string) {
	if m == nil {
		return
	}
	m.restarts.WithLabelValues(agentID).Inc()
}

func (m *Metrics) RecordSubagentSpawn(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.subagentSpawns.WithLabelValues(outcome).Inc()
	m.subagentDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// TurnStarted marks a turn active on both the Prometheus gauge and the
// OpenTelemetry counter, and returns a func to call on completion.
func (m *Metrics) TurnStarted(ctx context.Context, turnID string) func() {
	if m == nil {
		return func() {}
	}
	m.turnsActive.WithLabelValues(turnID).Set(1)
	if m.turnsStartedOtel != nil {
		m.turnsStartedOtel.Add(ctx, 1)
	}
	start := time.Now()
	return func() {
		m.turnsActive.WithLabelValues(turnID).Set(0)
		m.turnDuration.Observe(time.Since(start).Seconds())
	}
}

// Handler returns the Prometheus scrape endpoint handler.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
