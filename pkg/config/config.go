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

// Package config loads a turn's configuration from a YAML file layered
// over built-in defaults, expanding ${VAR} and ${VAR:-default}
// environment references in string values, using knadh/koanf.
package config

import (
	"time"

	"github.com/massgen-ai/massgen/pkg/coordination"
	"github.com/massgen-ai/massgen/pkg/metrics"
)

// AgentSpec configures one roster member.
type AgentSpec struct {
	ID      string `koanf:"id"`
	Backend string `koanf:"backend"` // provider identifier, resolved outside the core
	Model   string `koanf:"model"`
}

// Config is the full turn configuration loaded from disk.
type Config struct {
	Agents []AgentSpec `koanf:"agents"`

	NoveltyPolicy          coordination.NoveltyPolicy `koanf:"novelty_policy"`
	MaxNewAnswersPerAgent  int                        `koanf:"max_new_answers_per_agent"`
	MaxRestartsPerAgent    int                        `koanf:"max_restarts_per_agent"`
	InitialRoundTimeout    time.Duration              `koanf:"initial_round_timeout"`
	SubsequentRoundTimeout time.Duration              `koanf:"subsequent_round_timeout"`
	Grace                  time.Duration              `koanf:"grace"`

	LogRoot string `koanf:"log_root"`

	// StatusMirrorDB, if non-empty, attaches a SQLite history mirror
	// to the Status Aggregator at this path (see pkg/status's
	// SQLMirror). Empty disables it.
	StatusMirrorDB string `koanf:"status_mirror_db"`

	Subagents SubagentConfig `koanf:"subagents"`

	Observability metrics.Config `koanf:"observability"`
}

// SubagentConfig configures the Subagent Gateway.
type SubagentConfig struct {
	Enabled      bool          `koanf:"enabled"`
	MaxConcurrent int          `koanf:"max_concurrent"`
	MinTimeout   time.Duration `koanf:"min_timeout"`
	MaxTimeout   time.Duration `koanf:"max_timeout"`
}

// Defaults returns a Config with the same fallback values the
// Orchestrator and Subagent Gateway otherwise apply internally, so a
// zero-value file section is never mistaken for "disabled."
func Defaults() Config {
	return Config{
		NoveltyPolicy:          coordination.NoveltyBalanced,
		MaxNewAnswersPerAgent:  3,
		MaxRestartsPerAgent:    2,
		InitialRoundTimeout:    60 * time.Second,
		SubsequentRoundTimeout: 30 * time.Second,
		Grace:                  10 * time.Second,
		LogRoot:                "./logs",
		Subagents: SubagentConfig{
			MaxConcurrent: 4,
			MinTimeout:    30 * time.Second,
			MaxTimeout:    10 * time.Minute,
		},
		Observability: metrics.Config{
			Namespace:    "massgen",
			ServiceName:  "massgen",
			SamplingRate: 1.0,
		},
	}
}
