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

// Package status implements the Status/Cost Aggregator: the single
// source of truth status document for a turn, written atomically to a
// well-known path so parent orchestrators (subagent recovery) and
// external UIs can read progress and cost without synchronizing with
// the running turn.
package status

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/massgen-ai/massgen/pkg/coordination"
)

// DefaultHeartbeat is the cadence at which Aggregator writes the
// document even without a state transition, per spec.md §4.7.
const DefaultHeartbeat = 2 * time.Second

// Aggregator owns the single writer of one turn's status document. It
// is safe for concurrent use; writers are serialized through mu, and
// every write goes to a staging file followed by os.Rename, the same
// atomic-persist recipe pkg/workspace uses for snapshot materialization.
type Aggregator struct {
	mu       sync.Mutex
	path     string
	doc      coordination.TurnStatus
	numAgent int
	stopCh   chan struct{}
	stopOnce sync.Once
	mirror   *SQLMirror
}

// WithMirror attaches an optional SQLMirror that records a copy of
// every written snapshot, preserving history the status.json
// atomic-rename strategy otherwise discards. Mirror write failures are
// swallowed — they never fail the primary JSON write, since the
// mirror is a convenience index, not the source of truth.
func (a *Aggregator) WithMirror(m *SQLMirror) *Aggregator {
	a.mirror = m
	return a
}

// New returns an Aggregator that writes to <logRoot>/turn_<id>/attempt_<k>/status.json.
func New(logRoot, turnID string, attempt, numAgents int) *Aggregator {
	dir := filepath.Join(logRoot, "turn_"+turnID, fmt.Sprintf("attempt_%d", attempt))
	return &Aggregator{
		path:     filepath.Join(dir, "status.json"),
		numAgent: numAgents,
		doc: coordination.TurnStatus{
			TurnID:        turnID,
			AttemptNumber: attempt,
			Phase:         coordination.PhaseExploration,
			StartedAt:     time.Now(),
		},
		stopCh: make(chan struct{}),
	}
}

// Snapshot returns a copy of the current document.
func (a *Aggregator) Snapshot() coordination.TurnStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.doc
}

// Update mutates the document under lock via fn and writes it to disk.
// fn must not retain the pointer it is given.
func (a *Aggregator) Update(fn func(doc *coordination.TurnStatus)) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	fn(&a.doc)
	a.doc.ElapsedSeconds = time.Since(a.doc.StartedAt).Seconds()
	a.doc.CompletionPercentage = completionPercentage(a.numAgent, len(a.doc.Answers), len(a.doc.Votes))
	if err := a.writeLocked(); err != nil {
		return err
	}
	if a.mirror != nil {
		_ = a.mirror.RecordSnapshot(context.Background(), a.doc)
	}
	return nil
}

// completionPercentage implements spec.md §4.7: each submitted answer
// contributes ≈50/N, each vote contributes ≈50/N, clamped to [0, 100].
func completionPercentage(numAgents, answers, votes int) float64 {
	if numAgents <= 0 {
		return 0
	}
	pct := (float64(answers)+float64(votes))*50/float64(numAgents)
	return math.Min(100, math.Max(0, pct))
}

func (a *Aggregator) writeLocked() error {
	if err := os.MkdirAll(filepath.Dir(a.path), 0o755); err != nil {
		return fmt.Errorf("status: create dir: %w", err)
	}

	data, err := json.MarshalIndent(a.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("status: marshal: %w", err)
	}

	staging := a.path + fmt.Sprintf(".staging-%d", time.Now().UnixNano())
	f, err := os.Create(staging)
	if err != nil {
		return fmt.Errorf("status: create staging file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(staging)
		return fmt.Errorf("status: write staging file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(staging)
		return fmt.Errorf("status: fsync staging file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(staging)
		return fmt.Errorf("status: close staging file: %w", err)
	}
	if err := os.Rename(staging, a.path); err != nil {
		os.Remove(staging)
		return fmt.Errorf("status: rename into place: %w", err)
	}
	return nil
}

// StartHeartbeat writes the document every interval (DefaultHeartbeat
// if zero) until Stop is called, even absent a state transition.
func (a *Aggregator) StartHeartbeat(interval time.Duration) {
	if interval <= 0 {
		interval = DefaultHeartbeat
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-a.stopCh:
				return
			case <-ticker.C:
				a.mu.Lock()
				a.doc.ElapsedSeconds = time.Since(a.doc.StartedAt).Seconds()
				_ = a.writeLocked()
				a.mu.Unlock()
			}
		}
	}()
}

// Stop halts the heartbeat goroutine, if running. Safe to call more than once.
func (a *Aggregator) Stop() {
	a.stopOnce.Do(func() { close(a.stopCh) })
}

// Path returns the status document's well-known path.
func (a *Aggregator) Path() string {
	return a.path
}

// Read loads a turn status document from disk, for parent orchestrators
// recovering a child's progress (subagent scenario).
func Read(path string) (coordination.TurnStatus, error) {
	var doc coordination.TurnStatus
	data, err := os.ReadFile(path)
	if err != nil {
		return doc, fmt.Errorf("status: read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("status: parse %s: %w", path, err)
	}
	return doc, nil
}
