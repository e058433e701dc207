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

// Package injection computes what content, if any, should be injected
// into a recipient agent's conversation, given the set of peer answers
// it has not yet seen. Peer ids in that content come from the Anonymizer
// the caller supplies. Compute does not rewrite workspace paths or agent
// ids inside answer text; a Candidate's text and workspace reference are
// used as the caller supplies them.
//
// OWNERSHIP:
//   - The Orchestrator decides WHEN to call the engine (on coordinator
//     state transitions, at natural suspension points).
//   - The Engine decides WHAT content looks like, and holds no mutable
//     turn state itself; it is called with the slice of candidate
//     answers and returns a pure computation of the result.
package injection

import (
	"fmt"
	"sort"
	"strings"

	"github.com/massgen-ai/massgen/pkg/coordination"
	"github.com/massgen-ai/massgen/pkg/workspace"
)

const excerptLimit = 400

// Anonymizer maps a peer's real agent ID to the id stable for one
// specific recipient within a turn. Different recipients may assign
// different anonymized ids to the same source, per spec.md §4.5.
type Anonymizer interface {
	AnonymizedFor(recipientID, peerID string) coordination.AnonymizedID
}

// Candidate is one peer answer under consideration for injection into
// a specific recipient.
type Candidate struct {
	Answer       coordination.Answer
	RewrittenRef string // workspace-relative path already rewritten for the recipient, or "" if un-shareable
}

// Engine computes injection payloads. It is stateless and safe for
// concurrent use.
type Engine struct {
	anon Anonymizer
}

// New returns an Engine using anon to resolve recipient-local ids.
func New(anon Anonymizer) *Engine {
	return &Engine{anon: anon}
}

// Result is either empty (Suppressed true) or a ready-to-deliver
// injection payload.
type Result struct {
	Suppressed bool
	Content    string
	Strategy   coordination.InjectStrategy
}

// suppressed returns the canonical "nothing to inject" Result.
func suppressed() Result {
	return Result{Suppressed: true}
}

// Compute decides what, if anything, to inject into recipientID.
//
//   - isFirstInjection: true if recipientID has never received an
//     injection in this turn; per spec.md §4.5 the first injection is
//     always suppressed so the recipient commits to its own approach
//     before seeing peers' work.
//   - voteOnly: true when the recipient has already answered and is in
//     vote-selection mode; injection is suppressed in favor of a
//     conversational restart (handled by the Orchestrator, not here).
//   - candidates: peer answers not yet visible to recipientID, in any
//     order; Compute sorts them by answer timestamp before assembly.
func (e *Engine) Compute(recipientID string, isFirstInjection, voteOnly bool, candidates []Candidate) Result {
	if isFirstInjection {
		return suppressed()
	}
	if voteOnly {
		return suppressed()
	}
	if len(candidates) == 0 {
		return suppressed()
	}

	sorted := make([]Candidate, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Answer.Timestamp.Before(sorted[j].Answer.Timestamp)
	})

	var b strings.Builder
	for i, c := range sorted {
		if i > 0 {
			b.WriteString("\n---\n")
		}
		anon := e.anon.AnonymizedFor(recipientID, c.Answer.AgentID)
		b.WriteString(fmt.Sprintf("[%s v%d]", anon, c.Answer.Version))
		if c.RewrittenRef != "" {
			b.WriteString(fmt.Sprintf(" workspace: %s", c.RewrittenRef))
		}
		b.WriteString("\n")
		b.WriteString(excerpt(c.Answer.Text))
	}

	return Result{
		Content:  b.String(),
		Strategy: coordination.StrategyToolResult,
	}
}

// HighPriorityReminder builds an injection payload that uses the
// user_message strategy, per spec.md §4.5's "high-priority reminders"
// rule (e.g. after a high-priority task completion).
func HighPriorityReminder(text string) Result {
	return Result{Content: text, Strategy: coordination.StrategyUserMessage}
}

func excerpt(text string) string {
	if len(text) <= excerptLimit {
		return text
	}
	return text[:excerptLimit] + "…"
}

// BuildMapping turns an Anonymizer lookup plus a set of workspace path
// rewrites into the coordination-layer path mappings the caller needs
// to rewrite answer text before constructing Candidates. This is a thin
// adapter over workspace.PathMapping so callers don't need to import
// both packages to wire the two together.
func BuildMapping(realRoot, tempPath, realAgentID string, anon coordination.AnonymizedID) workspace.PathMapping {
	return workspace.PathMapping{
		RealWorkspaceRoot: realRoot,
		TempPath:          tempPath,
		RealAgentID:       realAgentID,
		AnonymizedID:      string(anon),
	}
}
