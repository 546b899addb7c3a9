/**
 * Copyright 2025 ByteDance Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     https://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Load builds the configuration: defaults, then the YAML file at path (if
// path is not empty) with environment variables expanded, then environment
// overrides. The result is not validated.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("config file not found: %s", path)
		}
		return fmt.Errorf("cannot read config file %q: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader([]byte(ExpandEnv(string(data)))))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid YAML in %s: %w", path, err)
	}
	return nil
}

// Environment variables read by ApplyEnv. The GEMINI_* names and PORT are
// the ones the HTTP API has always honored.
const (
	EnvModelType   = "REFACTORBOT_MODEL_TYPE"
	EnvModelName   = "REFACTORBOT_MODEL"
	EnvAPIKey      = "REFACTORBOT_API_KEY"
	EnvBaseURL     = "REFACTORBOT_BASE_URL"
	EnvLogLevel    = "REFACTORBOT_LOG_LEVEL"
	EnvAddr        = "REFACTORBOT_ADDR"
	EnvGeminiKey   = "GEMINI_API_KEY"
	EnvGeminiModel = "GEMINI_MODEL"
	EnvPort        = "PORT"
)

// ApplyEnv overrides file values with environment variables. GEMINI_* only
// apply to the gemini model type, and REFACTORBOT_* win over them.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		return v, ok && v != ""
	}

	if v, ok := get(EnvModelType); ok {
		c.Model.Type = v
	}
	if c.Model.Type == DefaultModelType {
		if v, ok := get(EnvGeminiKey); ok {
			c.Model.APIKey = v
		}
		if v, ok := get(EnvGeminiModel); ok {
			c.Model.ModelName = v
		}
	}
	if v, ok := get(EnvAPIKey); ok {
		c.Model.APIKey = v
	}
	if v, ok := get(EnvModelName); ok {
		c.Model.ModelName = v
	}
	if v, ok := get(EnvBaseURL); ok {
		c.Model.BaseURL = v
	}
	if v, ok := get(EnvLogLevel); ok {
		c.Log.Level = v
	}
	if v, ok := get(EnvPort); ok {
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 || port > 65535 {
			return fmt.Errorf("invalid %s %q", EnvPort, v)
		}
		c.Server.Addr = ":" + v
	}
	if v, ok := get(EnvAddr); ok {
		c.Server.Addr = v
	}
	return nil
}
