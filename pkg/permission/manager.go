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

// Package permission maintains the per-agent (path, level) entry set that
// gates tool filesystem access.
//
// Reads go through a lock-free atomic.Pointer swap over an immutable
// permission set, the same snapshot-pointer pattern the registry package
// uses for its read path; writes are serialized through a single mutex
// per agent so add_turn_context_path and check never race each other.
package permission

import (
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/massgen-ai/massgen/pkg/coordination"
)

// entry is one (path, level) rule, stored with its path already cleaned
// and made absolute-normalized for prefix matching.
type entry struct {
	path  string
	level coordination.PermissionLevel
}

// permissionSet is the immutable snapshot swapped atomically on write.
type permissionSet struct {
	entries []entry
}

func (s *permissionSet) check(path string, required coordination.PermissionLevel) bool {
	path = normalize(path)
	best := coordination.PermissionLevel("")
	bestLen := -1
	for _, e := range s.entries {
		if isPrefix(e.path, path) && len(e.path) > bestLen {
			best = e.level
			bestLen = len(e.path)
		}
	}
	if bestLen < 0 {
		return false
	}
	if required == coordination.PermissionRead {
		return true // both read and write entries satisfy a read check
	}
	return best == coordination.PermissionWrite
}

func (s *permissionSet) withUpgraded(path string, level coordination.PermissionLevel) *permissionSet {
	path = normalize(path)
	next := make([]entry, 0, len(s.entries)+1)
	found := false
	for _, e := range s.entries {
		if e.path == path {
			found = true
			merged := e.level
			if level == coordination.PermissionWrite {
				merged = coordination.PermissionWrite // write supersedes read, never downgrades
			}
			next = append(next, entry{path: path, level: merged})
			continue
		}
		next = append(next, e)
	}
	if !found {
		next = append(next, entry{path: path, level: level})
	}
	return &permissionSet{entries: next}
}

// perAgent holds one agent's permission state.
type perAgent struct {
	mu  sync.Mutex // serializes add_turn_context_path against itself
	ptr atomic.Pointer[permissionSet]
}

// Manager is the Permission Manager: a per-agent set of (path, level)
// entries, updatable mid-session without disturbing active streams.
type Manager struct {
	mu     sync.Mutex // guards the agents map itself, not its contents
	agents map[string]*perAgent
}

// New returns an empty Manager.
func New() *Manager {
	return &Manager{agents: make(map[string]*perAgent)}
}

func (m *Manager) agentState(agentID string) *perAgent {
	m.mu.Lock()
	defer m.mu.Unlock()
	pa, ok := m.agents[agentID]
	if !ok {
		pa = &perAgent{}
		pa.ptr.Store(&permissionSet{})
		m.agents[agentID] = pa
	}
	return pa
}

// AddTurnContextPath grants an agent access to a path at the given level,
// without restarting any running backend session. New tool calls made
// after this returns immediately observe the update; in-flight calls that
// already read the prior snapshot are unaffected (lock-free reads).
func (m *Manager) AddTurnContextPath(agentID, path string, level coordination.PermissionLevel) {
	pa := m.agentState(agentID)
	pa.mu.Lock()
	defer pa.mu.Unlock()
	cur := pa.ptr.Load()
	pa.ptr.Store(cur.withUpgraded(path, level))
}

// Upgrade is an alias for AddTurnContextPath with PermissionWrite,
// matching the contract name in spec.md §4.2. Write supersedes read on
// conflict; no downgrade is ever permitted within a turn because
// withUpgraded only ever merges toward write, never away from it.
func (m *Manager) Upgrade(agentID, path string) {
	m.AddTurnContextPath(agentID, path, coordination.PermissionWrite)
}

// Check reports whether the agent may access path at the required level.
// A path with no covering entry is denied; the covering entry is chosen
// by longest-prefix match, and an entry whose level is insufficient for
// the request also denies.
func (m *Manager) Check(agentID, path string, required coordination.PermissionLevel) bool {
	pa := m.agentState(agentID)
	return pa.ptr.Load().check(path, required)
}

func normalize(p string) string {
	p = filepath.Clean(p)
	if !filepath.IsAbs(p) {
		abs, err := filepath.Abs(p)
		if err == nil {
			p = abs
		}
	}
	return p
}

// isPrefix reports whether candidate is root or a descendant of root,
// matching on full path segments so "/ws/agentA" is not treated as a
// prefix of "/ws/agentAX".
func isPrefix(root, candidate string) bool {
	if root == candidate {
		return true
	}
	if !strings.HasPrefix(candidate, root) {
		return false
	}
	if root == string(filepath.Separator) {
		return true
	}
	return strings.HasPrefix(candidate[len(root):], string(filepath.Separator))
}
