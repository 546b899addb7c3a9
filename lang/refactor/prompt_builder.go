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
	"fmt"
	"strings"
)

const (
	goalDetectSmells   = "detect and address code smells"
	goalApplySolid     = "apply SOLID principles"
	goalIncludeMetrics = "include a brief metrics summary (smells count, cyclomatic complexity)"
)

// PromptBuilder builds the instruction text sent to the model
type PromptBuilder struct {
	format OutputFormat
}

// NewPromptBuilder creates a new PromptBuilder. An empty format means the
// format carried by each request.
func NewPromptBuilder(format OutputFormat) *PromptBuilder {
	return &PromptBuilder{format: format}
}

// Build builds the prompt for a refactoring request
func (b *PromptBuilder) Build(req *Request) string {
	var sb strings.Builder

	sb.WriteString("You are an expert refactoring assistant.\n")
	sb.WriteString("Refactor the code for clarity, maintainability, and efficiency.\n")
	sb.WriteString("Preserve behavior and do not introduce new dependencies.\n")
	if req.SourceLanguage != "" {
		sb.WriteString(fmt.Sprintf("Keep the code in its original language (%s); do not translate it.\n", req.SourceLanguage))
	} else {
		sb.WriteString("Keep the code in its original language; do not translate it.\n")
	}

	if goals := goalList(req.Goals); len(goals) > 0 {
		sb.WriteString("Goals: ")
		sb.WriteString(strings.Join(goals, "; "))
		sb.WriteString(".\n")
	}

	format := b.format
	if format == "" {
		format = req.Format
	}
	sb.WriteString(b.outputRequirements(format))

	language := req.SourceLanguage
	if language == "" {
		language = "unspecified"
	}
	sb.WriteString(fmt.Sprintf("Language: %s.\n", language))
	sb.WriteString("Code:\n")
	sb.WriteString(req.SourceCode)
	return sb.String()
}

func goalList(g Goals) []string {
	var goals []string
	if g.DetectSmells {
		goals = append(goals, goalDetectSmells)
	}
	if g.ApplySolid {
		goals = append(goals, goalApplySolid)
	}
	if g.IncludeMetrics {
		goals = append(goals, goalIncludeMetrics)
	}
	return goals
}

// outputRequirements describes the exact reply shape the decoders accept
func (b *PromptBuilder) outputRequirements(format OutputFormat) string {
	switch format {
	case FormatMarkers:
		return fmt.Sprintf(`Respond in plain text using exactly this layout, each marker on its own line:
%s
<the language name on a single line>
%s
<the complete refactored code>
%s
- <short reason>
- <short reason>
Give at most %d explanation bullets. Do not use markdown code fences anywhere in the reply.
`, MarkerLanguage, MarkerCode, MarkerExplanation, MaxExplanation)
	default:
		return fmt.Sprintf(`Return valid JSON only, with keys: refactoredCode (string) and explanation (array of at most %d short strings).
Do not wrap the JSON in markdown code fences and do not add any text before or after it.
`, MaxExplanation)
	}
}
