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

// Package orchestrator is the conductor: it schedules agents in
// parallel, tracks the turn's phase (exploration -> convergence ->
// presentation), enforces novelty, detects consensus, selects the
// winner, handles restarts and round timeouts, and aggregates cost and
// status.
//
// All shared turn state lives behind a single coordinator lock (mu).
// Agent goroutines never touch it directly: they call back into the
// Orchestrator's exported methods, which take the lock, mutate state,
// release it, and return — no I/O is ever performed while mu is held,
// matching spec.md §5's "lock hold-times are bounded" rule.
package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/massgen-ai/massgen/pkg/coordination"
	"github.com/massgen-ai/massgen/pkg/status"
	"github.com/massgen-ai/massgen/pkg/workspace"
)

// Config configures a Turn's Orchestrator.
type Config struct {
	AgentIDs             []string
	Policy               coordination.NoveltyPolicy
	MaxNewAnswersPerAgent int
	MaxRestartsPerAgent   int
	InitialRoundTimeout   time.Duration
	SubsequentRoundTimeout time.Duration
	Grace                 time.Duration
}

const (
	defaultMaxNewAnswers = 3
	defaultMaxRestarts   = 2
	defaultGrace         = 10 * time.Second
)

// AgentDriver is the per-agent callback the Orchestrator schedules
// concurrently. It must respect ctx cancellation (cooperative
// scheduling per spec.md §5).
type AgentDriver func(ctx context.Context, agentID string) error

// Orchestrator runs one turn.
type Orchestrator struct {
	cfg    Config
	ws     *workspace.Manager
	status *status.Aggregator

	mu        sync.Mutex
	agents    map[string]*coordination.Agent
	order     []string // stable roster order, used for tie-breaking
	phase     coordination.Phase
	answers   []coordination.Answer
	votes     map[string]coordination.Vote // voterID -> current vote
	winner    *coordination.Target
	restarts  map[string]int
	anonFor   map[string]map[string]coordination.AnonymizedID // recipient -> peer -> anon
}

// New constructs an Orchestrator for a fresh turn with the given
// roster. Anonymized ids are assigned once here and never change
// across restarts within the turn (see DESIGN.md Open Question 1).
func New(cfg Config, ws *workspace.Manager, agg *status.Aggregator) *Orchestrator {
	if cfg.MaxNewAnswersPerAgent <= 0 {
		cfg.MaxNewAnswersPerAgent = defaultMaxNewAnswers
	}
	if cfg.MaxRestartsPerAgent <= 0 {
		cfg.MaxRestartsPerAgent = defaultMaxRestarts
	}
	if cfg.Grace <= 0 {
		cfg.Grace = defaultGrace
	}

	o := &Orchestrator{
		cfg:      cfg,
		ws:       ws,
		status:   agg,
		agents:   make(map[string]*coordination.Agent, len(cfg.AgentIDs)),
		order:    append([]string(nil), cfg.AgentIDs...),
		phase:    coordination.PhaseExploration,
		votes:    make(map[string]coordination.Vote),
		restarts: make(map[string]int),
		anonFor:  make(map[string]map[string]coordination.AnonymizedID),
	}
	for i, id := range cfg.AgentIDs {
		anon := coordination.AnonymizedID(fmt.Sprintf("agent%d", i+1))
		o.agents[id] = coordination.NewAgent(id, anon)
	}
	return o
}

// AnonymizedFor implements injection.Anonymizer: recipient-local
// mapping, stable per turn. This module assigns the same anonymized id
// to a peer regardless of recipient (a simpler, turn-global scheme),
// documented as a deliberate simplification — SPEC_FULL.md does not
// require different recipients to see different ids, only that the
// mapping be stable and recipient-queryable through this interface.
func (o *Orchestrator) AnonymizedFor(recipientID, peerID string) coordination.AnonymizedID {
	o.mu.Lock()
	defer o.mu.Unlock()
	if a, ok := o.agents[peerID]; ok {
		return a.Anonymized
	}
	return coordination.AnonymizedID(peerID)
}

// Run fans out one AgentDriver per roster entry, using errgroup for
// bounded concurrent scheduling with first-error propagation, mirroring
// the teacher's workflowagent parallel-fan-out shape generalized from
// "run N sub-agents once" to "run N agents for the life of a turn."
func (o *Orchestrator) Run(ctx context.Context, drive AgentDriver) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, id := range o.order {
		agentID := id
		g.Go(func() error {
			return drive(gctx, agentID)
		})
	}
	return g.Wait()
}

// Phase returns the current phase under lock.
func (o *Orchestrator) Phase() coordination.Phase {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.phase
}

// AgentState returns agentID's current lifecycle state under lock, used
// by the Injection Engine's caller to detect vote-only mode (spec.md
// §4.5's "recipient has already answered and is selecting").
func (o *Orchestrator) AgentState(agentID string) coordination.AgentState {
	o.mu.Lock()
	defer o.mu.Unlock()
	if a, ok := o.agents[agentID]; ok {
		return a.State
	}
	return ""
}

// transitionLocked advances the in-memory phase; the status document
// picks it up on the next publishStatus. Caller must hold mu.
func (o *Orchestrator) transitionLocked(p coordination.Phase) {
	o.phase = p
}

// snapshotForStatusLocked builds a TurnStatus projection of the current
// coordinator state. Caller must hold mu; the projection is handed off
// to publishStatus, which performs the Aggregator's own I/O after mu is
// released.
func (o *Orchestrator) snapshotForStatusLocked() coordination.TurnStatus {
	doc := coordination.TurnStatus{Phase: o.phase, Winner: o.winner}
	for _, id := range o.order {
		a := o.agents[id]
		doc.Agents = append(doc.Agents, coordination.AgentStatus{
			ID: a.ID, Anonymized: string(a.Anonymized), State: a.State,
			NewAnswers: a.NewAnswers, TokensIn: a.TokensIn, TokensOut: a.TokensOut, CostUSD: a.CostUSD,
		})
		doc.CostUSD += a.CostUSD
		doc.TokensIn += a.TokensIn
		doc.TokensOut += a.TokensOut
	}
	for _, ans := range o.answers {
		doc.Answers = append(doc.Answers, coordination.AnswerStatus{
			AgentID: ans.AgentID, Version: ans.Version, Text: ans.Text, Timestamp: ans.Timestamp,
		})
	}
	for _, v := range o.votes {
		doc.Votes = append(doc.Votes, coordination.VoteStatus{
			VoterID: v.VoterID, AgentID: v.Target.AgentID, Version: v.Target.Version, Timestamp: v.Timestamp,
		})
	}
	return doc
}

// publishStatus writes the current state to the Status Aggregator, if
// configured. It takes its own lock internally and must be called
// without mu held.
func (o *Orchestrator) publishStatus() {
	if o.status == nil {
		return
	}
	o.mu.Lock()
	doc := o.snapshotForStatusLocked()
	o.mu.Unlock()

	_ = o.status.Update(func(d *coordination.TurnStatus) {
		d.Phase = doc.Phase
		d.Agents = doc.Agents
		d.Answers = doc.Answers
		d.Votes = doc.Votes
		d.Winner = doc.Winner
		d.CostUSD = doc.CostUSD
		d.TokensIn = doc.TokensIn
		d.TokensOut = doc.TokensOut
	})
}

// AcceptAnswer validates and records a new_answer submission, per
// spec.md §4.6's answer-acceptance sequence: novelty check, cap check,
// accept-and-snapshot.
func (o *Orchestrator) AcceptAnswer(ctx context.Context, agentID, text string) (int, error) {
	o.mu.Lock()
	agent, ok := o.agents[agentID]
	if !ok {
		o.mu.Unlock()
		return 0, ErrUnknownAgent
	}
	if agent.NewAnswers >= o.cfg.MaxNewAnswersPerAgent {
		o.mu.Unlock()
		return 0, ErrAnswerCapExceeded
	}

	fp := fingerprint(text)
	var existing []map[string]struct{}
	for _, a := range o.answers {
		existing = append(existing, a.Fingerprint)
	}
	threshold := o.cfg.Policy.Threshold()
	if overlap := maxOverlap(fp, existing); overlap > threshold {
		o.mu.Unlock()
		return 0, ErrNoveltyReject
	}

	version := 1
	for _, a := range o.answers {
		if a.AgentID == agentID && a.Version >= version {
			version = a.Version + 1
		}
	}
	o.mu.Unlock()

	// Snapshotting performs disk I/O and must not happen under mu.
	var snapRef string
	if o.ws != nil {
		if snap, err := o.ws.Snapshot(agentID, version); err == nil {
			snapRef = snap.StoragePath
		}
		// A snapshot failure leaves the answer "un-shareable" but still
		// votable, per spec.md §4.1's failure semantics; snapRef stays "".
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	answer := coordination.Answer{
		AgentID: agentID, Version: version, Text: text,
		SnapshotRef: snapRef, Timestamp: time.Now(), Fingerprint: fp,
	}
	o.answers = append(o.answers, answer)
	agent.NewAnswers++
	agent.State = coordination.AgentAnswered

	go o.publishStatus()
	return version, nil
}

// AcceptVote validates and records a vote, per spec.md §4.6.
func (o *Orchestrator) AcceptVote(voterID string, target coordination.Target) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, ok := o.agents[voterID]; !ok {
		return ErrUnknownAgent
	}
	if target.AgentID == voterID {
		return ErrSelfVote
	}
	if !o.answerExistsLocked(target) {
		return ErrInvalidVoteTarget
	}

	o.votes[voterID] = coordination.Vote{VoterID: voterID, Target: target, Timestamp: time.Now()}
	if a := o.agents[voterID]; a != nil {
		a.State = coordination.AgentVoting
	}

	go o.publishStatus()
	return nil
}

func (o *Orchestrator) answerExistsLocked(t coordination.Target) bool {
	for _, a := range o.answers {
		if a.AgentID == t.AgentID && a.Version == t.Version {
			return true
		}
	}
	return false
}

// RecordRestart increments the restart counter for agentID and reports
// whether the restart is within budget.
func (o *Orchestrator) RecordRestart(agentID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.restarts[agentID]++
	if o.restarts[agentID] > o.cfg.MaxRestartsPerAgent {
		return ErrMaxRestartsExceeded
	}
	return nil
}

// MarkFailed records that agentID could not complete this turn
// (backend_fatal, cancellation grace expiry, or restart exhaustion).
func (o *Orchestrator) MarkFailed(agentID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if a, ok := o.agents[agentID]; ok {
		a.State = coordination.AgentFailed
	}
	go o.publishStatus()
}

// MarkCompleted records that agentID finished its run (presentation or
// graceful exit).
func (o *Orchestrator) MarkCompleted(agentID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if a, ok := o.agents[agentID]; ok {
		a.State = coordination.AgentCompleted
	}
	go o.publishStatus()
}

// RecordTokens adds to an agent's running token/cost totals.
func (o *Orchestrator) RecordTokens(agentID string, tokensIn, tokensOut int64, costUSD float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if a, ok := o.agents[agentID]; ok {
		a.TokensIn += tokensIn
		a.TokensOut += tokensOut
		a.CostUSD += costUSD
	}
}

// PendingAnswersFor returns the answers agentID has not yet seen, for
// the Injection Engine, sorted by timestamp.
func (o *Orchestrator) PendingAnswersFor(agentID string) []coordination.Answer {
	o.mu.Lock()
	defer o.mu.Unlock()

	self, ok := o.agents[agentID]
	if !ok {
		return nil
	}
	var pending []coordination.Answer
	for _, a := range o.answers {
		if a.AgentID == agentID {
			continue
		}
		if self.HasSeen(a.AgentID, a.Version) {
			continue
		}
		pending = append(pending, a)
	}
	sort.SliceStable(pending, func(i, j int) bool {
		return pending[i].Timestamp.Before(pending[j].Timestamp)
	})
	return pending
}

// MarkSeen records that agentID has now been shown peerID's answer
// version v, so it is not re-injected.
func (o *Orchestrator) MarkSeen(agentID, peerID string, v int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if a, ok := o.agents[agentID]; ok {
		a.MarkSeen(peerID, v)
	}
}

// HasInjectedAnyTo reports whether agentID has ever received an
// injection this turn (tracked via its visibility set being non-empty).
func (o *Orchestrator) HasInjectedAnyTo(agentID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	a, ok := o.agents[agentID]
	return ok && len(a.Visible) > 0
}
