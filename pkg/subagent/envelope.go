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

package subagent

import (
	"encoding/json"
	"io"
	"strings"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/google/uuid"
)

// taskMessage builds the a2a.Message handed to a spawned child on
// stdin: the task prompt as a text part, one additional text part per
// mirrored context file path so the child knows where to look.
func taskMessage(task Task) a2a.Message {
	parts := []a2a.Part{{Kind: "text", Text: task.Prompt}}
	if len(task.ContextFiles) > 0 {
		parts = append(parts, a2a.Part{Kind: "text", Text: "context_files: " + strings.Join(task.ContextFiles, ", ")})
	}
	return a2a.Message{
		MessageID: uuid.NewString(),
		Role:      a2a.RoleUser,
		Parts:     parts,
	}
}

// answerText concatenates the text parts of a reply message.
func answerText(msg a2a.Message) string {
	var b strings.Builder
	for i, p := range msg.Parts {
		if p.Kind != "text" {
			continue
		}
		if i > 0 && b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(p.Text)
	}
	return b.String()
}

func writeMessage(w io.Writer, msg a2a.Message) error {
	return json.NewEncoder(w).Encode(msg)
}

func readMessage(r io.Reader) (a2a.Message, error) {
	var msg a2a.Message
	err := json.NewDecoder(r).Decode(&msg)
	return msg, err
}
