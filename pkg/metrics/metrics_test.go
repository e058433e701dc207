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
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewRegistersCollectorsAndServesHandler(t *testing.T) {
	m, err := New(Config{Namespace: "test"})
	require.NoError(t, err)

	m.RecordAnswerSubmitted("a1")
	m.RecordVoteCast("a1")
	m.RecordConsensus("plurality")
	m.RecordRoundTimeout("initial")
	m.RecordSubagentSpawn("completed", 0)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	m.Handler().ServeHTTP(rr, req)

	require.Equal(t, 200, rr.Code)
	require.Contains(t, rr.Body.String(), "test_coordination_answers_submitted_total")
}

func TestNilMetricsRecordersAreNoOps(t *testing.T) {
	var m *Metrics
	require.NotPanics(t, func() {
		m.RecordAnswerSubmitted("a1")
		m.RecordVoteCast("a1")
		m.TurnStarted(context.Background(), "t1")()
	})
}

func TestTurnStartedTogglesActiveGauge(t *testing.T) {
	m, err := New(Config{Namespace: "test2"})
	require.NoError(t, err)

	done := m.TurnStarted(context.Background(), "turn-1")
	require.NotNil(t, done)
	done()
}

func TestNewManagerBuildsUsableMetricsAndTracer(t *testing.T) {
	mgr, err := NewManager(Config{})
	require.NoError(t, err)
	require.NotNil(t, mgr.Metrics())
	require.NotNil(t, mgr.Tracer())

	ctx, end := mgr.Tracer().StartTurn(context.Background(), "turn-x")
	require.NotNil(t, ctx)
	end()

	require.NoError(t, mgr.Shutdown(context.Background()))
}

func TestNewTracerWithTracingDisabledStillReturnsUsableTracer(t *testing.T) {
	tr := NewTracer(Config{Tracing: false})
	_, end := tr.StartSpan(context.Background(), "step")
	end()
}
