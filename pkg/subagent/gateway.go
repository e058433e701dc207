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

// Package subagent implements the Subagent Gateway: spawning child
// massgen processes for independent subtasks, recovering their answers
// through the Status document on timeout, and folding their costs back
// into the parent turn.
package subagent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/a2aproject/a2a-go/a2a"
	"golang.org/x/sync/errgroup"

	"github.com/massgen-ai/massgen/pkg/coordination"
	"github.com/massgen-ai/massgen/pkg/status"
)

// ErrNestedSpawn is returned when a subagent itself attempts to call
// spawn_subagents; the gateway has no recursion budget to grant.
var ErrNestedSpawn = errors.New("subagent: nested spawn_subagents is not permitted")

// ErrTooManyTasks is returned when a spawn request exceeds the
// configured concurrency cap.
var ErrTooManyTasks = errors.New("subagent: task count exceeds max_concurrent")

// Outcome classifies how a subagent task ended, per spec.md §4.8.
type Outcome string

const (
	OutcomeCompleted        Outcome = "completed"
	OutcomeCompletedTimeout Outcome = "completed_but_timeout"
	OutcomePartial          Outcome = "partial"
	OutcomeTimeout          Outcome = "timeout"
	OutcomeError            Outcome = "error"
)

// Task describes one unit of work to spawn as a child turn.
type Task struct {
	SubagentID   string
	Prompt       string
	ContextFiles []string
}

// Result is what the gateway reports back to the parent agent for one
// spawned Task.
type Result struct {
	SubagentID string
	Outcome    Outcome
	Answer     string
	TokensIn   int64
	TokensOut  int64
	CostUSD    float64
	Err        error
}

// Config configures gateway behavior. It mirrors config.SubagentConfig
// without importing pkg/config, keeping this package usable standalone.
type Config struct {
	MaxConcurrent int
	MinTimeout    time.Duration
	MaxTimeout    time.Duration
}

// Gateway spawns and supervises child massgen processes.
type Gateway struct {
	cfg        Config
	binaryPath string // defaults to os.Args[0]
	baseDir    string // parent directory under which subagents/<id>/ is created
	isChild    bool   // true when this process is itself a spawned subagent
}

// New returns a Gateway rooted at baseDir (typically
// "<log_root>/turn_<n>/attempt_<k>/subagents"). isChild must be true
// when constructing a Gateway inside a process that was itself spawned
// by a parent gateway, so that a further spawn_subagents call is
// rejected rather than nesting indefinitely.
func New(cfg Config, baseDir string, isChild bool) *Gateway {
	return &Gateway{cfg: clamp(cfg), binaryPath: os.Args[0], baseDir: baseDir, isChild: isChild}
}

func clamp(cfg Config) Config {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 4
	}
	if cfg.MinTimeout <= 0 {
		cfg.MinTimeout = 30 * time.Second
	}
	if cfg.MaxTimeout <= 0 {
		cfg.MaxTimeout = 10 * time.Minute
	}
	return cfg
}

// clampTimeout clamps a requested per-task timeout to [MinTimeout,
// MaxTimeout], per spec.md §4.8's final rule.
func (g *Gateway) clampTimeout(requested time.Duration) time.Duration {
	if requested < g.cfg.MinTimeout {
		return g.cfg.MinTimeout
	}
	if requested > g.cfg.MaxTimeout {
		return g.cfg.MaxTimeout
	}
	return requested
}

// Spawn runs tasks as parallel child processes and blocks until all
// have completed, timed out, or failed. Each task gets its own timeout
// budget (clamped) and its own subdirectory under the gateway's base
// directory, with context files mirrored in read-only.
func (g *Gateway) Spawn(ctx context.Context, tasks []Task, timeout time.Duration) ([]Result, error) {
	if g.isChild {
		return nil, ErrNestedSpawn
	}
	if len(tasks) > g.cfg.MaxConcurrent {
		return nil, fmt.Errorf("%w: %d tasks, max %d", ErrTooManyTasks, len(tasks), g.cfg.MaxConcurrent)
	}

	budget := g.clampTimeout(timeout)
	results := make([]Result, len(tasks))

	group, gctx := errgroup.WithContext(ctx)
	for i, task := range tasks {
		i, task := i, task
		group.Go(func() error {
			results[i] = g.runOne(gctx, task, budget)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

func (g *Gateway) runOne(ctx context.Context, task Task, budget time.Duration) Result {
	dir := filepath.Join(g.baseDir, safeName(task.SubagentID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Result{SubagentID: task.SubagentID, Outcome: OutcomeError, Err: fmt.Errorf("subagent: prepare dir: %w", err)}
	}
	if err := mirrorContextFiles(task.ContextFiles, dir); err != nil {
		return Result{SubagentID: task.SubagentID, Outcome: OutcomeError, Err: fmt.Errorf("subagent: mirror context files: %w", err)}
	}

	statusPath := filepath.Join(dir, "status.json")
	childCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	msg := taskMessage(task)
	answer, err := g.runChildProcess(childCtx, dir, msg)
	// The child writes its Status document under <dir>/turn_<id>/attempt_<k>/.
	if found, _ := filepath.Glob(filepath.Join(dir, "turn_*", "attempt_*", "status.json")); len(found) > 0 {
		statusPath = found[len(found)-1]
	}

	timedOut := errors.Is(childCtx.Err(), context.DeadlineExceeded)
	if err == nil && !timedOut {
		res := Result{
			SubagentID: task.SubagentID,
			Outcome:    OutcomeCompleted,
			Answer:     answerText(answer),
		}
		if doc, readErr := status.Read(statusPath); readErr == nil {
			res.TokensIn, res.TokensOut, res.CostUSD = doc.TokensIn, doc.TokensOut, doc.CostUSD
		}
		return res
	}
	return g.recoverFromStatus(task.SubagentID, statusPath, timedOut, err)
}

// recoverFromStatus reads the child's Status document (if any) to
// synthesize an outcome, per spec.md §4.8 step 4.
func (g *Gateway) recoverFromStatus(subagentID, statusPath string, timedOut bool, runErr error) Result {
	doc, readErr := status.Read(statusPath)
	if readErr != nil {
		if timedOut {
			return Result{SubagentID: subagentID, Outcome: OutcomeTimeout, Err: runErr}
		}
		return Result{SubagentID: subagentID, Outcome: OutcomeError, Err: runErr}
	}

	result := Result{
		SubagentID: subagentID,
		TokensIn:   doc.TokensIn,
		TokensOut:  doc.TokensOut,
		CostUSD:    doc.CostUSD,
	}

	switch {
	case doc.Winner != nil && timedOut:
		result.Outcome = OutcomeCompletedTimeout
		result.Answer = winningAnswerText(doc)
	case doc.Winner != nil:
		result.Outcome = OutcomeCompleted
		result.Answer = winningAnswerText(doc)
	case len(doc.Answers) > 0:
		result.Outcome = OutcomePartial
	case timedOut:
		result.Outcome = OutcomeTimeout
	default:
		result.Outcome = OutcomeError
		result.Err = runErr
	}
	return result
}

func winningAnswerText(doc coordination.TurnStatus) string {
	for _, a := range doc.Answers {
		if doc.Winner != nil && a.AgentID == doc.Winner.AgentID && a.Version == doc.Winner.Version {
			return a.Text
		}
	}
	return ""
}

// runChildProcess spawns the same binary as a child, handing it the
// task over stdin as an a2a.Message and reading its final answer back
// from stdout the same way.
func (g *Gateway) runChildProcess(ctx context.Context, dir string, msg a2a.Message) (a2a.Message, error) {
	cmd := exec.CommandContext(ctx, g.binaryPath, "run", "--child", "--workdir", dir)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return a2a.Message{}, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return a2a.Message{}, err
	}
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return a2a.Message{}, err
	}

	if err := writeMessage(stdin, msg); err != nil {
		_ = cmd.Process.Kill()
		return a2a.Message{}, err
	}
	stdin.Close()

	reply, readErr := readMessage(stdout)
	waitErr := cmd.Wait()
	if waitErr != nil {
		return reply, waitErr
	}
	return reply, readErr
}

func mirrorContextFiles(files []string, destDir string) error {
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return err
		}
		dest := filepath.Join(destDir, "context", filepath.Base(f))
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(dest, data, 0o444); err != nil {
			return err
		}
	}
	return nil
}

func safeName(id string) string {
	if id == "" {
		return "subagent"
	}
	return filepath.Base(id)
}
