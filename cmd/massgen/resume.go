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
	"os"
	"path/filepath"

	"github.com/massgen-ai/massgen/pkg/config"
	"github.com/massgen-ai/massgen/pkg/turn"
)

// ResumeCmd re-enters the Orchestrator for a turn whose prior attempt
// did not reach consensus (process crash, round timeout exceeding the
// restart budget's caller-driven retry, etc.), starting a fresh attempt
// under the same turn ID.
type ResumeCmd struct {
	Config   string `short:"c" help:"Path to turn config YAML." type:"path"`
	LogRoot  string `help:"Log root directory." type:"path" default:"./logs"`
	Turn     string `required:"" help:"Turn ID to resume."`
	Attempt  int    `help:"Attempt number to start. 0 picks the next unused attempt." default:"0"`
	Question string `arg:"" help:"The question this turn is answering (repeated verbatim from the original attempt)."`
}

func (c *ResumeCmd) Run(cli *CLI, log *slog.Logger) error {
	cfg, err := config.NewLoader(c.Config).Load()
	if err != nil {
		return fmt.Errorf("resume: load config: %w", err)
	}
	if c.LogRoot != "" {
		cfg.LogRoot = c.LogRoot
	}

	attempt := c.Attempt
	if attempt == 0 {
		attempt = nextAttempt(cfg.LogRoot, c.Turn)
	}

	t := turn.New(turn.Options{Config: cfg, Question: c.Question, TurnID: c.Turn, Attempt: attempt})
	log.Info("resuming turn", "turn_id", c.Turn, "attempt", attempt)

	doc, err := t.Run(context.Background())
	if err != nil {
		return fmt.Errorf("resume: %w", err)
	}
	return json.NewEncoder(os.Stdout).Encode(doc)
}

// nextAttempt scans <log_root>/turn_<id>/attempt_* for the first unused
// attempt number, starting at 1.
func nextAttempt(logRoot, turnID string) int {
	turnDir := filepath.Join(logRoot, "turn_"+turnID)
	for n := 1; ; n++ {
		if _, err := os.Stat(filepath.Join(turnDir, fmt.Sprintf("attempt_%d", n))); os.IsNotExist(err) {
			return n
		}
	}
}
