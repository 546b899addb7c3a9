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

package refactor

import (
	"context"
	"fmt"
	"strings"
)

// MaxExplanation is the maximum number of explanation entries in a Result.
const MaxExplanation = 5

// OutputFormat is the reply shape requested from the model.
type OutputFormat string

const (
	// FormatMarkers asks for the LANGUAGE: / REFRACTORED_CODE: / EXPLANATION: plain-text layout.
	FormatMarkers OutputFormat = "markers"
	// FormatJSON asks for a JSON object with refactoredCode and explanation keys.
	FormatJSON OutputFormat = "json"
)

// ParseOutputFormat maps a user-supplied name to an OutputFormat.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "markers", "marker", "text", "plain":
		return FormatMarkers, nil
	}
	return "", fmt.Errorf("unknown output format %q", s)
}

// Goals are the optional refactoring goals requested by the user.
type Goals struct {
	DetectSmells   bool `json:"detectSmells"`
	ApplySolid     bool `json:"applySolid"`
	IncludeMetrics bool `json:"includeMetrics"`
}

// Any reports whether at least one goal is set.
func (g Goals) Any() bool {
	return g.DetectSmells || g.ApplySolid || g.IncludeMetrics
}

// Request is one user refactoring action. It is built once and never mutated.
type Request struct {
	// SourceCode is the code to refactor, non-empty after trimming.
	SourceCode string
	// SourceLanguage is advisory and may be empty.
	SourceLanguage string
	Goals          Goals
	// Format selects the reply shape asked from the model.
	Format OutputFormat
}

// NewRequest validates the input and returns a Request.
func NewRequest(code, language string, goals Goals, format OutputFormat) (Request, error) {
	if strings.TrimSpace(code) == "" {
		return Request{}, ErrMissingInput
	}
	if format == "" {
		format = FormatJSON
	}
	return Request{
		SourceCode:     code,
		SourceLanguage: strings.TrimSpace(language),
		Goals:          goals,
		Format:         format,
	}, nil
}

// Result is the typed outcome handed to callers.
type Result struct {
	Language       string   `json:"language"`
	RefactoredCode string   `json:"refactoredCode"`
	Explanation    []string `json:"explanation"`
}

// LLMRequest is what the caller-supplied model callbacks receive.
type LLMRequest struct {
	// Prompt is the complete instruction text built by PromptBuilder.
	Prompt string
	// Request is the originating user request, for logging and routing.
	Request Request
}

// LLMCallFunc returns the complete model reply for a prompt.
// Caller is responsible for implementing the actual LLM call logic.
type LLMCallFunc func(ctx context.Context, req *LLMRequest) (string, error)

// TextStream yields reply chunks in arrival order. Recv returns io.EOF once the
// reply is complete.
type TextStream interface {
	Recv() (string, error)
	Close()
}

// LLMStreamFunc opens a streamed model reply for a prompt.
type LLMStreamFunc func(ctx context.Context, req *LLMRequest) (TextStream, error)

// PartialFunc receives intermediate results while a stream is decoded.
// Returning an error stops the stream.
type PartialFunc func(partial Result) error

// Options holds the model callbacks used by Refactor and RefactorStream.
type Options struct {
	// LLMCall is required by Refactor.
	LLMCall LLMCallFunc
	// LLMStream is required by RefactorStream.
	LLMStream LLMStreamFunc
	// Provider names the model backend in upstream errors.
	Provider string
}
