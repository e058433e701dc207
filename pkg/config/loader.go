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

import (
	"fmt"
	"os"
	"regexp"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Loader reads a YAML config file into a koanf tree, expands
// ${VAR}/${VAR:-default} environment references, layers in defaults,
// and unmarshals the result into a Config.
type Loader struct {
	path string
}

// NewLoader returns a Loader for the YAML file at path.
func NewLoader(path string) *Loader {
	return &Loader{path: path}
}

// Load reads and parses the config file, applying Defaults() as the
// base layer so an omitted section keeps its documented fallback.
func (l *Loader) Load() (Config, error) {
	k := koanf.New(".")

	defaults, err := structToMap(Defaults())
	if err != nil {
		return Config{}, fmt.Errorf("config: encode defaults: %w", err)
	}
	if err := k.Load(confmap.Provider(defaults, "."), nil); err != nil {
		return Config{}, fmt.Errorf("config: load defaults: %w", err)
	}

	if l.path != "" {
		if err := k.Load(file.Provider(l.path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("config: load %s: %w", l.path, err)
		}
	}

	if err := expandEnvInKoanf(k); err != nil {
		return Config{}, fmt.Errorf("config: expand env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	return cfg, nil
}

var (
	envWithDefault = regexp.MustCompile(`\$\{([A-Z_][A-Z0-9_]*):-(.*?)\}`)
	envBraced      = regexp.MustCompile(`\$\{([A-Z_][A-Z0-9_]*)\}`)
)

// expandEnv substitutes ${VAR} and ${VAR:-default} references in s,
// matching SPEC_FULL.md §4.9's environment-expansion rule.
func expandEnv(s string) string {
	s = envWithDefault.ReplaceAllStringFunc(s, func(m string) string {
		parts := envWithDefault.FindStringSubmatch(m)
		if val, ok := os.LookupEnv(parts[1]); ok {
			return val
		}
		return parts[2]
	})
	return envBraced.ReplaceAllStringFunc(s, func(m string) string {
		parts := envBraced.FindStringSubmatch(m)
		return os.Getenv(parts[1])
	})
}

// expandEnvInKoanf rewrites every scalar string value in the flattened
// koanf tree through expandEnv, in place. Strings inside lists (such as
// the agents roster entries) are not expanded.
func expandEnvInKoanf(k *koanf.Koanf) error {
	raw := k.All()
	expanded := make(map[string]any, len(raw))
	for key, val := range raw {
		if s, ok := val.(string); ok {
			expanded[key] = expandEnv(s)
		} else {
			expanded[key] = val
		}
	}
	return k.Load(confmap.Provider(expanded, "."), nil)
}
