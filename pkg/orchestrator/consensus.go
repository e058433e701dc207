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
	"time"

	"github.com/massgen-ai/massgen/pkg/coordination"
)

// CheckConsensus runs the three termination predicates in order, per
// spec.md §4.6. It returns (winner, true) if a winner should be
// declared now, advancing the phase to presentation as a side effect.
// A freshly declared winner is published to the Status Aggregator
// before returning, since nothing else observes this call's result.
func (o *Orchestrator) CheckConsensus() (coordination.Target, bool) {
	o.mu.Lock()
	before := o.winner
	w, ok := o.checkConsensusLocked()
	after := o.winner
	o.mu.Unlock()

	if ok && before == nil && after != nil {
		o.publishStatus()
	}
	return w, ok
}

func (o *Orchestrator) checkConsensusLocked() (coordination.Target, bool) {
	if o.phase == coordination.PhasePresentation {
		if o.winner != nil {
			return *o.winner, true
		}
		return coordination.Target{}, false
	}

	// Predicate 1: every agent has either voted or exhausted its answer
	// cap, and a strict plurality exists among cast votes.
	if o.allSettledLocked() {
		if w, ok := o.pluralityLocked(); ok {
			o.declareWinnerLocked(w)
			return w, true
		}
	}

	// Predicate 2: every agent is completed or failed.
	if o.allCompletedLocked() {
		w := o.pluralityWithTiebreakLocked()
		o.declareWinnerLocked(w)
		return w, true
	}

	return coordination.Target{}, false
}

func (o *Orchestrator) allSettledLocked() bool {
	for _, id := range o.order {
		a := o.agents[id]
		_, voted := o.votes[id]
		if voted {
			continue
		}
		if a.NewAnswers >= o.cfg.MaxNewAnswersPerAgent {
			continue
		}
		return false
	}
	return true
}

func (o *Orchestrator) allCompletedLocked() bool {
	for _, id := range o.order {
		if o.agents[id].State != coordination.AgentCompleted && o.agents[id].State != coordination.AgentFailed {
			return false
		}
	}
	return true
}

// pluralityLocked returns the strict-plurality target among cast votes,
// or false if there is a tie for the lead or no votes at all.
func (o *Orchestrator) pluralityLocked() (coordination.Target, bool) {
	counts := make(map[coordination.Target]int)
	for _, v := range o.votes {
		counts[v.Target]++
	}
	if len(counts) == 0 {
		return coordination.Target{}, false
	}

	var best coordination.Target
	bestCount := -1
	tie := false
	for t, c := range counts {
		switch {
		case c > bestCount:
			best, bestCount, tie = t, c, false
		case c == bestCount:
			tie = true
		}
	}
	if tie {
		return coordination.Target{}, false
	}
	return best, true
}

// pluralityWithTiebreakLocked returns the plurality winner, breaking
// ties by earliest answer timestamp, then by lowest anonymized id, per
// spec.md §4.6 predicate 2. If no votes exist at all, falls back to the
// earliest-submitted answer.
func (o *Orchestrator) pluralityWithTiebreakLocked() coordination.Target {
	counts := make(map[coordination.Target]int)
	for _, v := range o.votes {
		counts[v.Target]++
	}
	if len(counts) == 0 {
		return o.earliestAnswerLocked()
	}

	bestCount := -1
	for _, c := range counts {
		if c > bestCount {
			bestCount = c
		}
	}
	var tied []coordination.Target
	for t, c := range counts {
		if c == bestCount {
			tied = append(tied, t)
		}
	}
	return o.breakTieLocked(tied)
}

// breakTieLocked picks among tied targets by earliest answer timestamp,
// then by lowest anonymized id.
func (o *Orchestrator) breakTieLocked(tied []coordination.Target) coordination.Target {
	type scored struct {
		target coordination.Target
		ts     time.Time
		anon   coordination.AnonymizedID
	}
	var scoredList []scored
	for _, t := range tied {
		ts := time.Time{}
		for _, a := range o.answers {
			if a.AgentID == t.AgentID && a.Version == t.Version {
				ts = a.Timestamp
				break
			}
		}
		anon := coordination.AnonymizedID(t.AgentID)
		if a, ok := o.agents[t.AgentID]; ok {
			anon = a.Anonymized
		}
		scoredList = append(scoredList, scored{target: t, ts: ts, anon: anon})
	}

	best := scoredList[0]
	for _, s := range scoredList[1:] {
		if s.ts.Before(best.ts) || (s.ts.Equal(best.ts) && s.anon < best.anon) {
			best = s
		}
	}
	return best.target
}

func (o *Orchestrator) earliestAnswerLocked() coordination.Target {
	if len(o.answers) == 0 {
		return coordination.Target{}
	}
	best := o.answers[0]
	for _, a := range o.answers[1:] {
		if a.Timestamp.Before(best.Timestamp) {
			best = a
		}
	}
	return coordination.Target{AgentID: best.AgentID, Version: best.Version}
}

func (o *Orchestrator) declareWinnerLocked(t coordination.Target) {
	o.winner = &t
	o.transitionLocked(coordination.PhasePresentation)
}

// RoundTimeout implements spec.md §4.6 predicate 3: when a round
// exceeds its budget, declare a winner by current plurality (falling
// back to the earliest answer if no votes exist), and advance the
// phase. Returns the declared winner, publishing it to the Status
// Aggregator before returning so WatchRoundTimeouts's "round_timeout"
// note lands alongside a document that already reflects the winner.
func (o *Orchestrator) RoundTimeout() coordination.Target {
	o.mu.Lock()
	w := o.pluralityWithTiebreakLocked()
	o.declareWinnerLocked(w)
	o.mu.Unlock()

	o.publishStatus()
	return w
}

// AdvanceToConvergence moves the turn from exploration to convergence.
// It is a no-op if the turn is already past exploration.
func (o *Orchestrator) AdvanceToConvergence() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.phase == coordination.PhaseExploration {
		o.transitionLocked(coordination.PhaseConvergence)
	}
}
