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

// Package config loads the refactorbot YAML configuration.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/refactorbot/lang/refactor"
	"github.com/cloudwego/refactorbot/llm"
	"github.com/cloudwego/refactorbot/llm/log"
	"github.com/cloudwego/refactorbot/llm/prompt"
)

// Config represents a refactorbot.yaml configuration file.
// Every value is optional; Default supplies the rest and environment
// variables override both.
type Config struct {
	Model    ModelConfig    `yaml:"model"`
	Refactor RefactorConfig `yaml:"refactor"`
	Prompt   PromptConfig   `yaml:"prompt"`
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
}

// ModelConfig selects and tunes the model backend.
type ModelConfig struct {
	Type        string   `yaml:"type"`
	BaseURL     string   `yaml:"base_url"`
	APIKey      string   `yaml:"api_key"`
	ModelName   string   `yaml:"model_name"`
	Temperature *float32 `yaml:"temperature"`
	MaxTokens   int      `yaml:"max_tokens"`
	Timeout     Duration `yaml:"timeout"`
	Retries     int      `yaml:"retries"`
}

// RefactorConfig holds request defaults.
type RefactorConfig struct {
	// Format is the reply layout for non-streaming requests: json or markers.
	Format string `yaml:"format"`
	// Concurrency bounds the files refactored at once by the CLI.
	Concurrency int `yaml:"concurrency"`
}

// PromptConfig points at an optional system prompt file.
type PromptConfig struct {
	SystemPath string `yaml:"system_path"`
	// Type is text (default) or go-template.
	Type string         `yaml:"type"`
	Data map[string]any `yaml:"data"`
}

type ServerConfig struct {
	Addr              string   `yaml:"addr"`
	ReadHeaderTimeout Duration `yaml:"read_header_timeout"`
	// RequestTimeout bounds one refactoring request, model calls included.
	RequestTimeout Duration `yaml:"request_timeout"`
	MaxBodyBytes   int64    `yaml:"max_body_bytes"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalYAML writes the duration in its string form.
func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

const (
	DefaultModelType      = "gemini"
	DefaultTemperature    = float32(0.2)
	DefaultMaxTokens      = 2048
	DefaultTimeout        = 120 * time.Second
	DefaultAddr           = ":3001"
	DefaultConcurrency    = 4
	DefaultMaxBodyBytes   = 1 << 20
	DefaultRequestTimeout = 3 * time.Minute
)

// Default returns the built-in configuration: Gemini with the settings the
// HTTP API has always used.
func Default() *Config {
	temperature := DefaultTemperature
	return &Config{
		Model: ModelConfig{
			Type:        DefaultModelType,
			ModelName:   llm.DefaultGeminiModel,
			Temperature: &temperature,
			MaxTokens:   DefaultMaxTokens,
			Timeout:     Duration{DefaultTimeout},
			Retries:     llm.DefaultRetries,
		},
		Refactor: RefactorConfig{
			Format:      string(refactor.FormatJSON),
			Concurrency: DefaultConcurrency,
		},
		Server: ServerConfig{
			Addr:              DefaultAddr,
			ReadHeaderTimeout: Duration{10 * time.Second},
			RequestTimeout:    Duration{DefaultRequestTimeout},
			MaxBodyBytes:      DefaultMaxBodyBytes,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Validate checks the values that would otherwise fail on first use.
func (c *Config) Validate() error {
	var errs []string
	t := llm.NewModelType(c.Model.Type)
	if t == llm.ModelTypeUnknown {
		errs = append(errs, fmt.Sprintf("model.type: unsupported model type %q", c.Model.Type))
	}
	if c.Model.APIKey == "" && t != llm.ModelTypeOllama && t != llm.ModelTypeUnknown {
		errs = append(errs, "model.api_key: required for "+string(t))
	}
	if t != llm.ModelTypeGemini && c.Model.ModelName == "" {
		errs = append(errs, "model.model_name: required")
	}
	if tp := c.Model.Temperature; tp != nil && (*tp < 0 || *tp > 2) {
		errs = append(errs, fmt.Sprintf("model.temperature: %v out of range [0, 2]", *tp))
	}
	if c.Model.MaxTokens < 0 {
		errs = append(errs, "model.max_tokens: must not be negative")
	}
	if c.Model.Retries < 0 {
		errs = append(errs, "model.retries: must not be negative")
	}
	if _, err := refactor.ParseOutputFormat(c.Refactor.Format); err != nil {
		errs = append(errs, "refactor.format: "+err.Error())
	}
	if c.Refactor.Concurrency < 0 {
		errs = append(errs, "refactor.concurrency: must not be negative")
	}
	switch prompt.PromptType(c.Prompt.Type) {
	case "", prompt.PromptTypePlainText, prompt.PromptTypeGoTemplate:
	default:
		errs = append(errs, fmt.Sprintf("prompt.type: unsupported prompt type %q", c.Prompt.Type))
	}
	if c.Server.Addr == "" {
		errs = append(errs, "server.addr: required")
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, "log.level: "+err.Error())
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config:\n  %s", strings.Join(errs, "\n  "))
	}
	return nil
}

// LLM converts the model section for llm.NewChatModel.
func (c *Config) LLM() llm.ModelConfig {
	return llm.ModelConfig{
		Name:        c.Model.Type,
		APIType:     llm.NewModelType(c.Model.Type),
		BaseURL:     c.Model.BaseURL,
		APIKey:      c.Model.APIKey,
		ModelName:   c.Model.ModelName,
		Temperature: c.Model.Temperature,
		MaxTokens:   c.Model.MaxTokens,
		Timeout:     c.Model.Timeout.Duration,
		Retries:     c.Model.Retries,
	}
}

// Format returns the configured reply layout, JSON when unset.
func (c *Config) Format() refactor.OutputFormat {
	f, err := refactor.ParseOutputFormat(c.Refactor.Format)
	if err != nil {
		return refactor.FormatJSON
	}
	return f
}

// SystemPrompt loads the system prompt file, or returns nil when none is set.
func (c *Config) SystemPrompt() (prompt.Prompt, error) {
	if c.Prompt.SystemPath == "" {
		return nil, nil
	}
	return prompt.NewFilePrompt(&prompt.FilePrompt{
		Type: prompt.PromptType(c.Prompt.Type),
		Path: c.Prompt.SystemPath,
		Data: c.Prompt.Data,
	})
}

// ApplyLogging sets the process logger from the log section.
func (c *Config) ApplyLogging() {
	level, err := log.ParseLevel(c.Log.Level)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLogLevel(level)
	log.SetJSON(c.Log.JSON)
}
