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

// Package metrics provides the ambient observability layer: Prometheus
// counters/histograms for coordination events plus an OpenTelemetry
// tracer for per-turn spans. Both are optional — a zero-value Config
// leaves Manager fully usable as a no-op.
package metrics

import "time"

// Config configures the observability system for one massgen process.
type Config struct {
	// Enabled turns on the HTTP listener on HTTPAddr. Prometheus metrics
	// are collected whether or not it is set.
	Enabled bool `koanf:"enabled"`

	// Namespace prefixes every metric name. Default: "massgen".
	Namespace string `koanf:"namespace"`

	// Tracing turns on OpenTelemetry span recording for turns and
	// coordination events. Spans are recorded in-process even without
	// an exporter configured, for later attachment via
	// go.opentelemetry.io/otel/sdk/trace.WithBatcher.
	Tracing bool `koanf:"tracing"`

	// SamplingRate controls what fraction of turns are traced, when
	// Tracing is enabled. Default: 1.0 (trace everything).
	SamplingRate float64 `koanf:"sampling_rate"`

	// ServiceName identifies this process in recorded spans.
	ServiceName string `koanf:"service_name"`

	// HTTPAddr, if non-empty and Enabled is true, exposes /metrics and
	// /turns/{turn_id}/status on this address (see pkg/status's HTTP
	// server).
	HTTPAddr string `koanf:"http_addr"`
}

// SetDefaults applies the documented fallback values to an
// otherwise-zero Config.
func (c *Config) SetDefaults() {
	if c.Namespace == "" {
		c.Namespace = "massgen"
	}
	if c.ServiceName == "" {
		c.ServiceName = "massgen"
	}
	if c.SamplingRate == 0 {
		c.SamplingRate = 1.0
	}
}

// DefaultShutdownGrace bounds how long Manager.Shutdown waits for the
// tracer provider to flush in-flight spans.
const DefaultShutdownGrace = 5 * time.Second
