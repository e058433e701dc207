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

// Package coordination defines the shared data model for a MassGen turn:
// agents, answers, votes, workspaces, snapshots, hooks and turn status.
//
// These types are intentionally transport-agnostic structs rather than
// interfaces — the Orchestrator is the only component that mutates them,
// and it does so under its single coordinator lock.
package coordination

import (
	"time"

	"github.com/google/uuid"
)

// AgentState is the lifecycle state of an Agent within a turn.
type AgentState string

const (
	AgentIdle      AgentState = "idle"
	AgentWorking   AgentState = "working"
	AgentAnswered  AgentState = "answered"
	AgentVoting    AgentState = "voting"
	AgentCompleted AgentState = "completed"
	AgentFailed    AgentState = "failed"
)

// Phase is the coarse-grained stage of a turn.
type Phase string

const (
	PhaseExploration  Phase = "exploration"
	PhaseConvergence  Phase = "convergence"
	PhasePresentation Phase = "presentation"
)

// NoveltyPolicy names the novelty-threshold preset used during answer
// acceptance. Balanced and strict reject near-duplicate answers; lenient
// never rejects on novelty grounds.
type NoveltyPolicy string

const (
	NoveltyLenient  NoveltyPolicy = "lenient"
	NoveltyBalanced NoveltyPolicy = "balanced"
	NoveltyStrict   NoveltyPolicy = "strict"
)

// Threshold returns the maximum allowed token-overlap Jaccard similarity
// between two accepted answers from distinct agents. The lenient policy
// returns 1.01, above any possible Jaccard value, so no answer is ever
// rejected for novelty.
func (p NoveltyPolicy) Threshold() float64 {
	switch p {
	case NoveltyStrict:
		return 0.50
	case NoveltyBalanced:
		return 0.70
	default: // NoveltyLenient and any unrecognized value
		return 1.01 // above the maximum possible Jaccard value of 1.0
	}
}

// AnonymizedID is the peer-visible identity of an agent within a turn,
// e.g. "agent1", "agent2". It is stable for the life of the turn but may
// be assigned differently per recipient (see pkg/injection).
type AnonymizedID string

// Agent is the coordinator's bookkeeping record for one participant in a
// turn. The identity fields never change after creation; the remaining
// fields are mutated only by the Orchestrator under its coordinator lock.
type Agent struct {
	ID          string // opaque id, unique within the turn
	Anonymized  AnonymizedID
	State       AgentState
	Restarts    int
	NewAnswers  int
	ToolsUsed   int
	TokensIn    int64
	TokensOut   int64
	CostUSD     float64
	// Visible tracks, for each peer agent ID, the highest answer version
	// already delivered to this agent via injection.
	Visible map[string]int
}

// NewAgent returns an Agent in its initial idle state.
func NewAgent(id string, anon AnonymizedID) *Agent {
	return &Agent{
		ID:         id,
		Anonymized: anon,
		State:      AgentIdle,
		Visible:    make(map[string]int),
	}
}

// HasSeen reports whether the recipient has already been shown the given
// peer answer version (or a later one).
func (a *Agent) HasSeen(peerID string, version int) bool {
	return a.Visible[peerID] >= version
}

// MarkSeen records that the recipient has now been shown the given peer
// answer version.
func (a *Agent) MarkSeen(peerID string, version int) {
	if a.Visible[peerID] < version {
		a.Visible[peerID] = version
	}
}

// Answer is an immutable, version-stamped candidate submitted by an agent.
type Answer struct {
	AgentID    string
	Version    int // monotonic per-agent, starting at 1
	Text       string
	SnapshotRef string // empty if the snapshot could not be taken (un-shareable)
	Timestamp  time.Time
	// Fingerprint is the set of normalized tokens used for novelty
	// comparison (see pkg/orchestrator's novelty.go).
	Fingerprint map[string]struct{}
}

// Target identifies the answer a vote endorses.
type Target struct {
	AgentID string
	Version int
}

// Vote is a non-self endorsement of a specific (agent, version).
type Vote struct {
	VoterID   string
	Target    Target
	Timestamp time.Time
}

// PermissionLevel is the access level granted for a path.
type PermissionLevel string

const (
	PermissionRead  PermissionLevel = "read"
	PermissionWrite PermissionLevel = "write"
)

// HookEventType distinguishes pre-tool from post-tool hook invocations.
type HookEventType string

const (
	HookPreTool  HookEventType = "pre_tool"
	HookPostTool HookEventType = "post_tool"
)

// HookDecision is the outcome a hook handler returns for a pre-tool check.
type HookDecision string

const (
	DecisionAllow HookDecision = "allow"
	DecisionDeny  HookDecision = "deny"
	DecisionAsk   HookDecision = "ask"
)

// InjectStrategy selects how injected content is delivered to the
// recipient's conversation.
type InjectStrategy string

const (
	StrategyToolResult   InjectStrategy = "tool_result"
	StrategyUserMessage  InjectStrategy = "user_message"
)

// HookScope is the applicability of a hook registration.
type HookScope struct {
	Global  bool
	AgentID string // meaningful only when Global is false
}

// HookEvent is the input passed to every matching hook handler.
type HookEvent struct {
	EventType HookEventType
	SessionID string
	AgentID   string
	ToolName  string
	ToolInput map[string]any
	// ToolOutput is nil for pre-tool events, and nil for a cancelled
	// tool call even on a post-tool event (per spec.md §5).
	ToolOutput map[string]any
	Timestamp  time.Time
}

// Injection is the content a hook asks the Agent Runtime to deliver into
// a recipient's conversation.
type Injection struct {
	Content  string
	Strategy InjectStrategy
}

// HookResult is the output of a hook handler.
type HookResult struct {
	Allowed      bool
	Decision     HookDecision
	Reason       string
	UpdatedInput map[string]any
	Inject       *Injection
}

// TurnStatus is the single-source-of-truth status document for a turn,
// written atomically by the Status Aggregator (pkg/status).
type TurnStatus struct {
	TurnID               string         `json:"turn_id"`
	AttemptNumber        int            `json:"attempt_number"`
	Phase                Phase          `json:"phase"`
	StartedAt            time.Time      `json:"started_at"`
	ElapsedSeconds        float64        `json:"elapsed_seconds"`
	CompletionPercentage float64        `json:"completion_percentage"`
	Agents               []AgentStatus  `json:"agents"`
	Answers              []AnswerStatus `json:"answers"`
	Votes                []VoteStatus   `json:"votes"`
	Winner               *Target        `json:"winner,omitempty"`
	CostUSD              float64        `json:"cost_usd"`
	TokensIn             int64          `json:"tokens_in"`
	TokensOut            int64          `json:"tokens_out"`
	Subagents            []string       `json:"subagent_refs,omitempty"`
	Note                 string         `json:"note,omitempty"`
}

// AgentStatus is the per-agent projection embedded in TurnStatus.
type AgentStatus struct {
	ID         string     `json:"id"`
	Anonymized string     `json:"anonymized_id"`
	State      AgentState `json:"state"`
	NewAnswers int        `json:"new_answers"`
	TokensIn   int64      `json:"tokens_in"`
	TokensOut  int64      `json:"tokens_out"`
	CostUSD    float64    `json:"cost_usd"`
}

// AnswerStatus is the per-answer projection embedded in TurnStatus.
type AnswerStatus struct {
	AgentID   string    `json:"agent_id"`
	Version   int       `json:"version"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// VoteStatus is the per-vote projection embedded in TurnStatus.
type VoteStatus struct {
	VoterID   string    `json:"voter_id"`
	AgentID   string    `json:"agent_id"`
	Version   int       `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

// NewTurnID returns a fresh, random turn identifier.
func NewTurnID() string {
	return uuid.NewString()
}
