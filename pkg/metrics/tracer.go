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
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// globalMeter resolves the process-wide OpenTelemetry MeterProvider on
// first use. Without an embedding process installing a metrics SDK
// exporter this stays the API's built-in no-op, which is a safe
// default for a library: recording calls never panic, they simply go
// nowhere until something calls otel.SetMeterProvider.
var globalMeter = meterHolder{}

type meterHolder struct{}

func (meterHolder) Get() metric.Meter {
	return otel.Meter("massgen")
}

// Tracer wraps an OpenTelemetry TracerProvider scoped to one massgen
// process's turns. Spans are recorded in-process (sampled per
// cfg.SamplingRate) even absent an exporter; attaching one is a
// deployment-time decision via sdktrace.WithBatcher on the provider an
// embedding process installs globally before calling New.
type Tracer struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// NewTracer installs a sampling TracerProvider as the OpenTelemetry
// global provider and returns a Tracer for starting turn/coordination
// spans. If cfg.Tracing is false, the returned Tracer's spans are all
// no-ops via the package-level no-op TracerProvider.
func NewTracer(cfg Config) *Tracer {
	cfg.SetDefaults()

	if !cfg.Tracing {
		return &Tracer{tracer: otel.Tracer("massgen")}
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(cfg.SamplingRate)),
	)
	otel.SetTracerProvider(provider)

	return &Tracer{
		provider: provider,
		tracer:   provider.Tracer("massgen"),
	}
}

// StartTurn opens a span covering one turn's lifetime. The caller must
// call the returned func (span.End, deferred) when the turn concludes.
func (t *Tracer) StartTurn(ctx context.Context, turnID string) (context.Context, func()) {
	if t == nil {
		return ctx, func() {}
	}
	ctx, span := t.tracer.Start(ctx, fmt.Sprintf("turn %s", turnID))
	return ctx, func() { span.End() }
}

// StartSpan opens a child span under ctx, for finer-grained stages
// (round, coordination event, subagent spawn) within a turn.
func (t *Tracer) StartSpan(ctx context.Context, name string) (context.Context, func()) {
	if t == nil {
		return ctx, func() {}
	}
	ctx, span := t.tracer.Start(ctx, name)
	return ctx, func() { span.End() }
}

// Shutdown flushes and stops the TracerProvider, if one was installed.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t == nil || t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}
