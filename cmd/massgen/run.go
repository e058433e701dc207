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

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/massgen-ai/massgen/pkg/config"
	"github.com/massgen-ai/massgen/pkg/coordination"
	"github.com/massgen-ai/massgen/pkg/metrics"
	"github.com/massgen-ai/massgen/pkg/status"
	"github.com/massgen-ai/massgen/pkg/turn"
)

// RunCmd starts a new turn and blocks until consensus, timeout, or
// error, printing the final Status document as JSON on success.
type RunCmd struct {
	Config  string `short:"c" help:"Path to turn config YAML." type:"path"`
	Child   bool   `help:"Run in child mode: read a task from stdin, write the answer to stdout (used by the Subagent Gateway)."`
	Workdir string `help:"Working directory for child mode." type:"path"`

	Question string `arg:"" optional:"" help:"The question this turn should answer."`
}

func (c *RunCmd) Run(cli *CLI, log *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutting down")
		cancel()
	}()

	cfg, err := config.NewLoader(c.Config).Load()
	if err != nil {
		return fmt.Errorf("run: load config: %w", err)
	}

	if c.Child {
		return runChild(ctx, cfg, c.Workdir, log)
	}

	mgr, err := metrics.NewManager(cfg.Observability)
	if err != nil {
		return fmt.Errorf("run: build metrics: %w", err)
	}
	defer func() { _ = mgr.Shutdown(context.Background()) }()

	if addr := cfg.Observability.HTTPAddr; cfg.Observability.Enabled && addr != "" {
		srv := &http.Server{Addr: addr, Handler: status.NewServer(cfg.LogRoot, mgr.Metrics().Handler())}
		go func() {
			log.Info("status/metrics server listening", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("status/metrics server stopped", "error", err)
			}
		}()
		go func() {
			<-ctx.Done()
			_ = srv.Close()
		}()
	}

	turnID := coordination.NewTurnID()
	t := turn.New(turn.Options{Config: cfg, Question: c.Question, TurnID: turnID, Metrics: mgr})
	log.Info("turn starting", "turn_id", turnID, "agents", len(cfg.Agents))

	doc, err := t.Run(ctx)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}

	return json.NewEncoder(os.Stdout).Encode(doc)
}
