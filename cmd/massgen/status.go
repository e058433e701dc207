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
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/massgen-ai/massgen/pkg/status"
)

// StatusCmd prints a turn attempt's Status document.
type StatusCmd struct {
	LogRoot string `help:"Log root directory." type:"path" default:"./logs"`
	Turn    string `required:"" help:"Turn ID."`
	Attempt int    `help:"Attempt number." default:"1"`
}

func (c *StatusCmd) Run(cli *CLI, log *slog.Logger) error {
	path := filepath.Join(c.LogRoot, "turn_"+c.Turn, fmt.Sprintf("attempt_%d", c.Attempt), "status.json")
	doc, err := status.Read(path)
	if err != nil {
		return fmt.Errorf("status: %w", err)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}
