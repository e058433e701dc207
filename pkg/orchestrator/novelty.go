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
	"strings"
	"unicode"
)

// fingerprint tokenizes text into a normalized set for Jaccard overlap
// comparison, per spec.md's Answer.token_overlap_fingerprint.
func fingerprint(text string) map[string]struct{} {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if f == "" {
			continue
		}
		set[f] = struct{}{}
	}
	return set
}

// jaccard returns |a∩b| / |a∪b|, 0 if both sets are empty.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for k := range a {
		if _, ok := b[k]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// maxOverlap returns the highest Jaccard similarity between candidate
// and any fingerprint in existing.
func maxOverlap(candidate map[string]struct{}, existing []map[string]struct{}) float64 {
	max := 0.0
	for _, e := range existing {
		if o := jaccard(candidate, e); o > max {
			max = o
		}
	}
	return max
}
