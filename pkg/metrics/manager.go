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
)

// Manager bundles the Prometheus metrics and OpenTelemetry tracer for
// one massgen process. A nil *Manager behaves like one built from a
// disabled Config: every accessor returns a safely no-op component.
type Manager struct {
	cfg     Config
	metrics *Metrics
	tracer  *Tracer
}

// NewManager builds a Manager from cfg. Metrics are always registered
// (on a private registry, so multiple turns in one process don't
// collide); cfg.Enabled only controls whether HTTPAddr exposes them.
func NewManager(cfg Config) (*Manager, error) {
	cfg.SetDefaults()

	m, err := New(cfg)
	if err != nil {
		return nil, fmt.Errorf("metrics: new: %w", err)
	}

	return &Manager{
		cfg:     cfg,
		metrics: m,
		tracer:  NewTracer(cfg),
	}, nil
}

// Metrics returns the Prometheus recorder.
func (mgr *Manager) Metrics() *Metrics {
	if mgr == nil {
		return nil
	}
	return mgr.metrics
}

// Tracer returns the OpenTelemetry tracer.
func (mgr *Manager) Tracer() *Tracer {
	if mgr == nil {
		return nil
	}
	return mgr.tracer
}

// Shutdown releases the tracer provider, if one was installed.
func (mgr *Manager) Shutdown(ctx context.Context) error {
	if mgr == nil {
		return nil
	}
	return mgr.tracer.Shutdown(ctx)
}
