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

package config

// structToMap renders Defaults() as a koanf-compatible map, keyed by
// the same koanf tags used in Config, so it can be loaded as the base
// confmap.Provider layer before the file layer is merged on top.
//
// Hand-written rather than reflected: Config is small and stable, and
// this avoids pulling in a struct-to-map reflection dependency for a
// single call site.
func structToMap(cfg Config) (map[string]any, error) {
	agents := make([]any, len(cfg.Agents))
	for i, a := range cfg.Agents {
		agents[i] = map[string]any{
			"id":      a.ID,
			"backend": a.Backend,
			"model":   a.Model,
		}
	}

	return map[string]any{
		"agents":                    agents,
		"novelty_policy":            string(cfg.NoveltyPolicy),
		"max_new_answers_per_agent": cfg.MaxNewAnswersPerAgent,
		"max_restarts_per_agent":    cfg.MaxRestartsPerAgent,
		"initial_round_timeout":     cfg.InitialRoundTimeout,
		"subsequent_round_timeout":  cfg.SubsequentRoundTimeout,
		"grace":                     cfg.Grace,
		"log_root":                  cfg.LogRoot,
		"status_mirror_db":          cfg.StatusMirrorDB,
		"subagents": map[string]any{
			"enabled":        cfg.Subagents.Enabled,
			"max_concurrent": cfg.Subagents.MaxConcurrent,
			"min_timeout":    cfg.Subagents.MinTimeout,
			"max_timeout":    cfg.Subagents.MaxTimeout,
		},
		"observability": map[string]any{
			"enabled":       cfg.Observability.Enabled,
			"namespace":     cfg.Observability.Namespace,
			"tracing":       cfg.Observability.Tracing,
			"sampling_rate": cfg.Observability.SamplingRate,
			"service_name":  cfg.Observability.ServiceName,
			"http_addr":     cfg.Observability.HTTPAddr,
		},
	}, nil
}
