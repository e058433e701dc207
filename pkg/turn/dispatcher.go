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

package turn

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/massgen-ai/massgen/pkg/coordination"
	"github.com/massgen-ai/massgen/pkg/permission"
)

// fsDispatcher implements agentrt.ToolDispatcher with the two local
// filesystem tools every agent needs during exploration: read_file and
// write_file, each checked against the Permission Manager before
// touching disk.
//
// Grounded on the teacher's pkg/tools read_file.go/file_writer.go:
// relative-path-only, no directory traversal, root-confined.
type fsDispatcher struct {
	agentID string
	root    string
	perms   *permission.Manager
}

func newFSDispatcher(agentID, root string, perms *permission.Manager) *fsDispatcher {
	return &fsDispatcher{agentID: agentID, root: root, perms: perms}
}

func (d *fsDispatcher) Dispatch(ctx context.Context, name string, input map[string]any) (map[string]any, error) {
	switch name {
	case "read_file":
		return d.readFile(input)
	case "write_file":
		return d.writeFile(input)
	default:
		return nil, fmt.Errorf("unknown tool %q", name)
	}
}

func (d *fsDispatcher) resolve(rel string) (string, error) {
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("absolute paths not allowed, use relative paths")
	}
	cleaned := filepath.Clean(rel)
	if strings.Contains(cleaned, "..") {
		return "", fmt.Errorf("directory traversal not allowed (..)")
	}
	return filepath.Join(d.root, cleaned), nil
}

func (d *fsDispatcher) readFile(input map[string]any) (map[string]any, error) {
	rel, _ := input["path"].(string)
	if rel == "" {
		return nil, fmt.Errorf("path parameter is required")
	}
	full, err := d.resolve(rel)
	if err != nil {
		return nil, err
	}
	if !d.perms.Check(d.agentID, full, coordination.PermissionRead) {
		return nil, fmt.Errorf("permission denied: %s", rel)
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rel, err)
	}
	return map[string]any{"content": string(data)}, nil
}

func (d *fsDispatcher) writeFile(input map[string]any) (map[string]any, error) {
	rel, _ := input["path"].(string)
	content, _ := input["content"].(string)
	if rel == "" {
		return nil, fmt.Errorf("path parameter is required")
	}
	full, err := d.resolve(rel)
	if err != nil {
		return nil, err
	}
	if !d.perms.Check(d.agentID, full, coordination.PermissionWrite) {
		return nil, fmt.Errorf("permission denied: %s", rel)
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		return nil, fmt.Errorf("write %s: %w", rel, err)
	}
	return map[string]any{"bytes_written": len(content)}, nil
}
