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

package orchestrator

import "errors"

// Sentinel errors returned to an agent as a structured tool-result, per
// spec.md §7, so callers can match with errors.Is instead of parsing
// strings.
var (
	ErrNoveltyReject       = errors.New("novelty_reject: answer too similar to an existing one")
	ErrSelfVote            = errors.New("self_vote: an agent cannot vote for its own answer")
	ErrInvalidVoteTarget   = errors.New("invalid_vote_target: target answer does not exist")
	ErrAnswerCapExceeded   = errors.New("answer_cap_exceeded: max_new_answers_per_agent reached, vote instead")
	ErrUnknownAgent        = errors.New("orchestrator: unknown agent id")
	ErrMaxRestartsExceeded = errors.New("orchestrator: agent exceeded its restart budget")
)
