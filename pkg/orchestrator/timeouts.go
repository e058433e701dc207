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

import (
	"context"
	"time"

	"github.com/massgen-ai/massgen/pkg/coordination"
)

// roundBudget returns the timeout for the current round: the initial
// round timeout for the first convergence round, the subsequent round
// timeout thereafter.
func (o *Orchestrator) roundBudget(roundIndex int) time.Duration {
	if roundIndex == 0 {
		if o.cfg.InitialRoundTimeout > 0 {
			return o.cfg.InitialRoundTimeout
		}
		return 60 * time.Second
	}
	if o.cfg.SubsequentRoundTimeout > 0 {
		return o.cfg.SubsequentRoundTimeout
	}
	return 30 * time.Second
}

// WatchRoundTimeouts arms a single timer for the first round's budget
// (InitialRoundTimeout) plus Grace and returns when it fires or ctx is
// done. If the timer fires before the turn reaches presentation, it calls
// cancelOutstanding to cancel active agent tasks, declares a winner via
// RoundTimeout, and records a round_timeout note on the Status document.
// It watches that one round only: SubsequentRoundTimeout is not applied
// to later rounds.
func (o *Orchestrator) WatchRoundTimeouts(ctx context.Context, cancelOutstanding func()) {
	budget := o.roundBudget(0)
	timer := time.NewTimer(budget + o.cfg.Grace)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return
	case <-timer.C:
		if o.Phase() == coordination.PhasePresentation {
			return
		}
		cancelOutstanding()
		o.RoundTimeout()
		if o.status != nil {
			_ = o.status.Update(func(d *coordination.TurnStatus) { d.Note = "round_timeout" })
		}
	}
}
