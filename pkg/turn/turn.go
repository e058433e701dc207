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

// Package turn wires the core components — Workspace Manager,
// Permission Manager, Hook Manager, Injection Engine, Agent Runtime and
// Orchestrator — into one runnable turn. It is the integration point
// cmd/massgen's `run`/`resume` subcommands drive. Every agent runs on a
// scripted fake.Session; no other Backend Adapter is wired in here.
package turn

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	"github.com/massgen-ai/massgen/pkg/agentrt"
	"github.com/massgen-ai/massgen/pkg/backend"
	"github.com/massgen-ai/massgen/pkg/backend/fake"
	"github.com/massgen-ai/massgen/pkg/config"
	"github.com/massgen-ai/massgen/pkg/coordination"
	"github.com/massgen-ai/massgen/pkg/hook"
	"github.com/massgen-ai/massgen/pkg/injection"
	"github.com/massgen-ai/massgen/pkg/metrics"
	"github.com/massgen-ai/massgen/pkg/orchestrator"
	"github.com/massgen-ai/massgen/pkg/permission"
	"github.com/massgen-ai/massgen/pkg/status"
	"github.com/massgen-ai/massgen/pkg/subagent"
	"github.com/massgen-ai/massgen/pkg/workspace"
)

// Options configures one Turn.
type Options struct {
	Config   config.Config
	Question string
	TurnID   string
	Attempt  int

	// Scripts overrides the default fake-backend playback per agent ID,
	// for deterministic tests. When nil, Turn synthesizes a trivial
	// answer-then-vote script per agent for smoke testing. The default
	// answers differ only in the agent id, so the balanced and strict
	// novelty policies usually accept only the first one submitted.
	Scripts map[string]fake.Script

	// Metrics records coordination events and turn spans. When nil, a
	// Manager is built from Config.Observability.
	Metrics *metrics.Manager

	// IsChild marks this Turn as itself running inside a spawned
	// subagent process, so its own spawn_subagents calls are rejected
	// rather than nesting indefinitely (see pkg/subagent.Gateway).
	IsChild bool
}

// Turn wires together one turn's worth of coordinator state and runs
// every configured agent to completion or consensus.
type Turn struct {
	opts   Options
	root   string
	ws     *workspace.Manager
	agg    *status.Aggregator
	orch   *orchestrator.Orchestrator
	hooks  *hook.Manager
	perms  *permission.Manager
	inject *injection.Engine
	mgr    *metrics.Manager
	gw     *subagent.Gateway

	// mu guards the per-turn bookkeeping below, which buildDriver's
	// concurrent per-agent goroutines all touch: the live Session
	// registry the Injection Engine delivers into, each recipient's
	// "has the mandatory first suppression happened yet" flag, the
	// pending-restart flag a cancelled-for-new-material agent picks up
	// on its next iteration, and whether a winner's already been logged.
	mu                 sync.Mutex
	sessions           map[string]backend.Session
	firstInjectionDone map[string]bool
	restartPending     map[string]bool
	consensusRecorded  bool
}

// New wires a Turn's components without starting any agent work.
func New(opts Options) *Turn {
	if opts.Attempt == 0 {
		opts.Attempt = 1
	}
	agentIDs := make([]string, len(opts.Config.Agents))
	for i, a := range opts.Config.Agents {
		agentIDs[i] = a.ID
	}

	root := filepath.Join(opts.Config.LogRoot, "turn_"+opts.TurnID, fmt.Sprintf("attempt_%d", opts.Attempt))
	ws := workspace.New(root)
	agg := status.New(opts.Config.LogRoot, opts.TurnID, opts.Attempt, len(agentIDs))
	if opts.Config.StatusMirrorDB != "" {
		if mirror, err := status.NewSQLMirror(context.Background(), opts.Config.StatusMirrorDB); err == nil {
			agg.WithMirror(mirror)
		}
	}

	orch := orchestrator.New(orchestrator.Config{
		AgentIDs:               agentIDs,
		Policy:                 opts.Config.NoveltyPolicy,
		MaxNewAnswersPerAgent:  opts.Config.MaxNewAnswersPerAgent,
		MaxRestartsPerAgent:    opts.Config.MaxRestartsPerAgent,
		InitialRoundTimeout:    opts.Config.InitialRoundTimeout,
		SubsequentRoundTimeout: opts.Config.SubsequentRoundTimeout,
		Grace:                  opts.Config.Grace,
	}, ws, agg)

	perms := permission.New()
	mgr := opts.Metrics
	if mgr == nil {
		mgr, _ = metrics.NewManager(opts.Config.Observability)
	}

	gw := subagent.New(subagent.Config{
		MaxConcurrent: opts.Config.Subagents.MaxConcurrent,
		MinTimeout:    opts.Config.Subagents.MinTimeout,
		MaxTimeout:    opts.Config.Subagents.MaxTimeout,
	}, filepath.Join(root, "subagents"), opts.IsChild)

	t := &Turn{
		opts:               opts,
		root:               root,
		ws:                 ws,
		agg:                agg,
		orch:               orch,
		hooks:              hook.New(),
		perms:              perms,
		inject:             injection.New(orch),
		mgr:                mgr,
		gw:                 gw,
		sessions:           make(map[string]backend.Session),
		firstInjectionDone: make(map[string]bool),
		restartPending:     make(map[string]bool),
	}
	return t
}

// Run executes every configured agent concurrently until consensus,
// round timeout, or error, then returns the final Status snapshot.
func (t *Turn) Run(ctx context.Context) (coordination.TurnStatus, error) {
	t.agg.StartHeartbeat(status.DefaultHeartbeat)
	defer t.agg.Stop()

	ctx, endSpan := t.mgr.Tracer().StartTurn(ctx, t.opts.TurnID)
	defer endSpan()
	endMetrics := t.mgr.Metrics().TurnStarted(ctx, t.opts.TurnID)
	defer endMetrics()

	for _, a := range t.opts.Config.Agents {
		if _, err := t.ws.EnsureWorkspace(a.ID); err != nil {
			return t.agg.Snapshot(), fmt.Errorf("turn: ensure workspace for %s: %w", a.ID, err)
		}
		t.perms.AddTurnContextPath(a.ID, t.ws.Root(a.ID), coordination.PermissionWrite)
	}

	// WatchRoundTimeouts races the agent fan-out below: if a round's
	// budget (plus grace) elapses before consensus, it cancels every
	// live session and declares a winner by plurality (spec.md §4.6
	// predicate 3). watchCtx is scoped to this Run call so the watcher
	// goroutine never outlives it.
	watchCtx, cancelWatch := context.WithCancel(ctx)
	defer cancelWatch()
	go t.orch.WatchRoundTimeouts(watchCtx, t.cancelAllSessions)

	driver := t.buildDriver()
	if err := t.orch.Run(ctx, driver); err != nil {
		return t.agg.Snapshot(), fmt.Errorf("turn: run: %w", err)
	}

	doc := t.agg.Snapshot()
	if doc.Note == "round_timeout" {
		t.mgr.Metrics().RecordRoundTimeout("round_timeout")
	}
	return doc, nil
}

// buildDriver returns the AgentDriver the Orchestrator fans out over:
// one Agent Runtime per roster entry, backed by a scripted fake.Session
// unless the caller supplied its own (e.g. wrapping a real provider
// would be a different driver entirely, swapped in at this boundary).
//
// Each invocation loops rather than returning directly after one
// Runtime.Run pass, because a session cancelled mid-stream for a
// restart (spec.md §4.6 "Restarts") must be re-driven with a fresh
// Session rather than treated as the agent finishing.
func (t *Turn) buildDriver() orchestrator.AgentDriver {
	return func(ctx context.Context, agentID string) error {
		for {
			restart, err := t.runAgentOnce(ctx, agentID)
			if err != nil {
				t.orch.MarkFailed(agentID)
				t.checkConsensus()
				return err
			}
			if restart {
				continue
			}
			t.orch.MarkCompleted(agentID)
			t.checkConsensus()
			return nil
		}
	}
}

// runAgentOnce drives one Runtime.Run pass for agentID to completion
// (natural finish, error, or cancellation) and reports whether a
// restart was requested of it while it ran.
func (t *Turn) runAgentOnce(ctx context.Context, agentID string) (restart bool, err error) {
	script, ok := t.opts.Scripts[agentID]
	if !ok {
		script = t.defaultScript(agentID)
	}

	session := fake.New(script)
	t.registerSession(agentID, session)
	defer t.unregisterSession(agentID)

	rt := &agentrt.Runtime{
		AgentID:   agentID,
		Session:   session,
		Hooks:     t.hooks,
		Tools:     newFSDispatcher(agentID, t.ws.Root(agentID), t.perms),
		SessionID: t.opts.TurnID + "/" + agentID,
	}

	history := []backend.Message{{Role: "user", Content: t.opts.Question}}
	for ev, evErr := range rt.Run(ctx, systemPrompt(agentID), history, toolDefs()) {
		if evErr != nil {
			return false, evErr
		}
		switch ev.Kind {
		case agentrt.KindCoordination:
			if err := t.handleCoordination(ctx, agentID, session, ev); err != nil {
				return false, err
			}
		case agentrt.KindFinished:
			t.orch.RecordTokens(agentID, 0, int64(ev.Tokens), 0)
		}
	}
	return t.consumeRestart(agentID), nil
}

func (t *Turn) handleCoordination(ctx context.Context, agentID string, session *fake.Session, ev agentrt.Event) error {
	switch ev.Coordination {
	case agentrt.CoordinationNewAnswer:
		text, _ := ev.ToolCall.Arguments["text"].(string)
		version, err := t.orch.AcceptAnswer(ctx, agentID, text)
		if err != nil {
			t.mgr.Metrics().RecordAnswerRejected(agentID, rejectReason(err))
			return session.DeliverToolResult(ctx, ev.ToolCall.ID, map[string]any{"error": err.Error()}, false)
		}
		t.mgr.Metrics().RecordAnswerSubmitted(agentID)

		// The first accepted answer of the turn ends exploration: from
		// here on, later answers are injected into peers rather than
		// held back, per spec.md §4.6's phase table.
		t.orch.AdvanceToConvergence()
		t.injectPeers(ctx, agentID)
		t.checkConsensus()

		return session.DeliverToolResult(ctx, ev.ToolCall.ID, map[string]any{"version": version}, false)

	case agentrt.CoordinationVote:
		target := coordination.Target{}
		if aid, ok := ev.ToolCall.Arguments["agent_id"].(string); ok {
			target.AgentID = aid
		}
		if v, ok := ev.ToolCall.Arguments["version"].(float64); ok {
			target.Version = int(v)
		}
		err := t.orch.AcceptVote(agentID, target)
		if err == nil {
			t.mgr.Metrics().RecordVoteCast(agentID)
			t.checkConsensus()
		}
		if err != nil {
			return session.DeliverToolResult(ctx, ev.ToolCall.ID, map[string]any{"error": err.Error()}, false)
		}
		return session.DeliverToolResult(ctx, ev.ToolCall.ID, map[string]any{"accepted": true}, false)

	case agentrt.CoordinationSpawnSubagent:
		results, err := t.gw.Spawn(ctx, parseSubagentTasks(ev.ToolCall.Arguments), t.opts.Config.Subagents.MaxTimeout)
		if err != nil {
			return session.DeliverToolResult(ctx, ev.ToolCall.ID, map[string]any{"error": err.Error()}, false)
		}
		summaries := make([]map[string]any, len(results))
		for i, r := range results {
			t.mgr.Metrics().RecordSubagentSpawn(string(r.Outcome), 0)
			t.orch.RecordTokens(agentID, r.TokensIn, r.TokensOut, r.CostUSD)
			summaries[i] = map[string]any{
				"subagent_id": r.SubagentID,
				"outcome":     string(r.Outcome),
				"answer":      r.Answer,
			}
		}
		return session.DeliverToolResult(ctx, ev.ToolCall.ID, map[string]any{"results": summaries}, false)

	default:
		return session.DeliverToolResult(ctx, ev.ToolCall.ID, map[string]any{"error": "unsupported in this turn runner"}, false)
	}
}

// registerSession and unregisterSession track each agent's live
// backend.Session, so the Injection Engine and round-timeout/restart
// cancellation can reach a specific peer's conversation from outside
// its own driver goroutine.
func (t *Turn) registerSession(agentID string, s backend.Session) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sessions[agentID] = s
}

func (t *Turn) unregisterSession(agentID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sessions, agentID)
}

// cancelAllSessions cancels every currently live session. It is the
// cancelOutstanding callback WatchRoundTimeouts invokes on round-budget
// expiry (spec.md §4.6 predicate 3).
func (t *Turn) cancelAllSessions() {
	t.mu.Lock()
	live := make([]backend.Session, 0, len(t.sessions))
	for _, s := range t.sessions {
		live = append(live, s)
	}
	t.mu.Unlock()
	for _, s := range live {
		s.Cancel()
	}
}

// requestRestart and consumeRestart implement the hand-off between
// restartForNewMaterial (running on the peer that observed new
// convergence material) and the cancelled agent's own driver loop,
// which checks consumeRestart once its Runtime.Run pass ends to decide
// whether to re-drive itself instead of completing.
func (t *Turn) requestRestart(agentID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.restartPending[agentID] = true
}

func (t *Turn) consumeRestart(agentID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.restartPending[agentID] {
		delete(t.restartPending, agentID)
		return true
	}
	return false
}

// checkConsensus runs the Orchestrator's termination predicates and
// records the turn's consensus metric exactly once, the first time a
// winner is declared (spec.md §4.6: "at every coordinator-state update,
// check termination predicates").
func (t *Turn) checkConsensus() {
	if _, ok := t.orch.CheckConsensus(); !ok {
		return
	}
	t.mu.Lock()
	already := t.consensusRecorded
	t.consensusRecorded = true
	t.mu.Unlock()
	if !already {
		t.mgr.Metrics().RecordConsensus("reached")
	}
}

// injectPeers delivers sourceAgentID's newly accepted answer to every
// other roster member with a live session, per spec.md §4.5: each
// recipient either receives the injection, has it deferred because it
// is in vote-only mode (triggering a restart instead), or is in its
// mandatory first-injection suppression window.
func (t *Turn) injectPeers(ctx context.Context, sourceAgentID string) {
	for _, a := range t.opts.Config.Agents {
		if a.ID == sourceAgentID {
			continue
		}
		t.injectOne(ctx, a.ID)
	}
}

// injectOne delivers pending peer answers to recipientID, or triggers a
// restart if recipientID is in vote-only mode and so cannot be reached
// by injection (spec.md §4.5's vote-only-mode rule).
func (t *Turn) injectOne(ctx context.Context, recipientID string) {
	pending := t.orch.PendingAnswersFor(recipientID)
	if len(pending) == 0 {
		return
	}

	if t.orch.AgentState(recipientID) == coordination.AgentVoting {
		t.restartForNewMaterial(recipientID)
		return
	}

	// The first injection opportunity for a recipient is always
	// suppressed (spec.md §4.5), but that opportunity still consumes
	// the "first" window so the next one goes through.
	t.mu.Lock()
	sess, ok := t.sessions[recipientID]
	isFirst := !t.firstInjectionDone[recipientID]
	t.firstInjectionDone[recipientID] = true
	t.mu.Unlock()
	if !ok {
		return
	}

	candidates := make([]injection.Candidate, len(pending))
	for i, a := range pending {
		candidates[i] = injection.Candidate{Answer: a}
	}

	result := t.inject.Compute(recipientID, isFirst, false, candidates)
	if result.Suppressed {
		return
	}
	if err := sess.Inject(ctx, result.Content, backend.InjectStrategy(result.Strategy)); err != nil {
		return
	}
	for _, a := range pending {
		t.orch.MarkSeen(recipientID, a.AgentID, a.Version)
	}
}

// restartForNewMaterial implements spec.md §4.6's "Restarts": a peer in
// vote-only mode cannot be reached by injection, so instead its current
// session is cancelled (preserving everything already recorded about
// it) and its driver loop re-drives it from scratch on its next pass.
// Restart count is bounded per agent; once exhausted, the agent is left
// to finish on its existing vote rather than restarted again.
func (t *Turn) restartForNewMaterial(agentID string) {
	if err := t.orch.RecordRestart(agentID); err != nil {
		return
	}
	t.mgr.Metrics().RecordRestart(agentID)

	t.mu.Lock()
	sess, ok := t.sessions[agentID]
	t.mu.Unlock()
	if !ok {
		return
	}
	t.requestRestart(agentID)
	sess.Cancel()
}

// parseSubagentTasks decodes the spawn_subagents tool call's "tasks"
// argument (a JSON array of objects, per agentrt.SubagentTaskArgs) into
// subagent.Task values. Malformed entries are skipped rather than
// failing the whole call — a partial task list is still useful.
func parseSubagentTasks(args map[string]any) []subagent.Task {
	raw, _ := args["tasks"].([]any)
	tasks := make([]subagent.Task, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		task := subagent.Task{}
		task.SubagentID, _ = m["subagent_id"].(string)
		task.Prompt, _ = m["task"].(string)
		if files, ok := m["context_files"].([]any); ok {
			for _, f := range files {
				if s, ok := f.(string); ok {
					task.ContextFiles = append(task.ContextFiles, s)
				}
			}
		}
		tasks = append(tasks, task)
	}
	return tasks
}

// rejectReason collapses an AcceptAnswer error into a low-cardinality
// Prometheus label, since the full error text (which may embed the
// rejected text itself) is unbounded cardinality.
func rejectReason(err error) string {
	switch {
	case errors.Is(err, orchestrator.ErrNoveltyReject):
		return "novelty"
	case errors.Is(err, orchestrator.ErrAnswerCapExceeded):
		return "cap"
	default:
		return "other"
	}
}

// defaultScript synthesizes a trivial "answer then vote for the
// lexicographically-first agent" script, enough to exercise the full
// turn end to end without a live provider.
func (t *Turn) defaultScript(agentID string) fake.Script {
	ids := make([]string, len(t.opts.Config.Agents))
	for i, a := range t.opts.Config.Agents {
		ids[i] = a.ID
	}
	sort.Strings(ids)
	leader := ids[0]

	// The drafting delta rides along with the first tool call rather than
	// its own Step: fake.Session only advances past a content-delta-only
	// Step when a later DeliverToolResult/Cancel call drives it forward,
	// so a leading delta with nothing after it would stall the script.
	answer := fmt.Sprintf("[%s] answer to: %s", agentID, t.opts.Question)
	if agentID == leader {
		return fake.Script{
			{ContentDelta: "drafting an answer", ToolName: "new_answer", ToolArgs: map[string]any{"text": answer}},
			{Finish: true, Tokens: 64},
		}
	}
	return fake.Script{
		{ContentDelta: "drafting an answer", ToolName: "new_answer", ToolArgs: map[string]any{"text": answer}},
		{ToolName: "vote", ToolArgs: map[string]any{"agent_id": leader, "version": float64(1)}},
		{Finish: true, Tokens: 48},
	}
}

func systemPrompt(agentID string) string {
	return fmt.Sprintf("You are agent %s collaborating with peers to answer a shared question.", agentID)
}

func toolDefs() []backend.ToolDefinition {
	defs := agentrt.CoordinationToolDefs()
	defs = append(defs,
		backend.ToolDefinition{Name: "read_file", Description: "Read a file from the agent workspace", Parameters: map[string]any{"path": "string"}},
		backend.ToolDefinition{Name: "write_file", Description: "Write a file into the agent workspace", Parameters: map[string]any{"path": "string", "content": "string"}},
	)
	return defs
}
