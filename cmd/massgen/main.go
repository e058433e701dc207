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

// Command massgen is the CLI entrypoint for a turn: run, status, and
// resume subcommands wiring the Config Loader, Orchestrator, and
// Status Aggregator together for a single process invocation.
//
// Usage:
//
//	massgen run --config turn.yaml "what should we name the release?"
//	massgen status --log-root ./logs --turn <turn-id>
//	massgen resume --log-root ./logs --turn <turn-id> --attempt 2 "what should we name the release?"
package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"github.com/massgen-ai/massgen/pkg/logger"
)

// CLI defines the command-line interface.
type CLI struct {
	Run    RunCmd    `cmd:"" help:"Run a turn to consensus."`
	Status StatusCmd `cmd:"" help:"Print a turn's status document."`
	Resume ResumeCmd `cmd:"" help:"Resume an interrupted turn attempt."`

	LogLevel string `help:"Log level (debug, info, warn, error)." default:"info"`
}

func main() {
	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("massgen"),
		kong.Description("MassGen - multi-agent consensus turn runner"),
		kong.UsageOnError(),
	)

	log := logger.New(logger.ParseLevel(cli.LogLevel), os.Stderr)

	err := ctx.Run(&cli, log)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
