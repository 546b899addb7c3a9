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
	"encoding/json"
	"regexp"
	"strings"
)

// Strategy identifies which extraction strategy recovered a reply.
type Strategy string

const (
	StrategyWholeJSON   Strategy = "json"
	StrategyBraceSlice  Strategy = "json_extracted"
	StrategyFencedBlock Strategy = "json_markdown"
	StrategyFieldScrape Strategy = "field_scrape"
)

// Extraction is the raw outcome of a successful strategy.
type Extraction struct {
	RefactoredCode string
	Explanation    []string
	Strategy       Strategy
}

// Result converts the extraction into an unnormalized Result.
func (e *Extraction) Result() Result {
	return Result{RefactoredCode: e.RefactoredCode, Explanation: e.Explanation}
}

type extractStrategy struct {
	name Strategy
	fn   func(text string) *Extraction
}

// strategies are tried in order; the first non-nil extraction wins.
var strategies = []extractStrategy{
	{StrategyWholeJSON, parseWholeJSON},
	{StrategyBraceSlice, parseBraceSlice},
	{StrategyFencedBlock, parseFencedBlock},
	{StrategyFieldScrape, scrapeFields},
}

// Extract recovers code and explanation from a complete model reply.
// It returns nil when no strategy yields a non-blank refactoredCode.
func Extract(text string) *Extraction {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	for _, s := range strategies {
		if ext := s.fn(trimmed); ext != nil {
			ext.Strategy = s.name
			return ext
		}
	}
	return nil
}

// parseWholeJSON parses text as a JSON object with refactoredCode and
// explanation keys. A missing or malformed explanation becomes empty.
func parseWholeJSON(text string) *Extraction {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &obj); err != nil {
		return nil
	}
	raw, ok := obj["refactoredCode"]
	if !ok {
		return nil
	}
	var code string
	if err := json.Unmarshal(raw, &code); err != nil || strings.TrimSpace(code) == "" {
		return nil
	}
	return &Extraction{RefactoredCode: code, Explanation: decodeExplanation(obj["explanation"])}
}

// decodeExplanation keeps the string elements of a JSON array.
func decodeExplanation(raw json.RawMessage) []string {
	out := []string{}
	if len(raw) == 0 {
		return out
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return out
	}
	for _, item := range items {
		if len(item) == 0 || item[0] != '"' {
			continue
		}
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			out = append(out, s)
		}
	}
	return out
}

func parseBraceSlice(text string) *Extraction {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end <= start {
		return nil
	}
	return parseWholeJSON(text[start : end+1])
}

func parseFencedBlock(text string) *Extraction {
	body, ok := findJSONFence(text)
	if !ok {
		return nil
	}
	return parseWholeJSON(strings.TrimSpace(body))
}

var (
	// a complete string value: closing quote followed by a comma or brace
	codeFieldClosed = regexp.MustCompile(`"refactoredCode"\s*:\s*"((?:[^"\\]|\\.)*)"\s*[,}]`)
	// a value cut off by the token limit: everything after the opening quote
	codeFieldOpen    = regexp.MustCompile(`"refactoredCode"\s*:\s*"([\s\S]*)$`)
	explanationField = regexp.MustCompile(`"explanation"\s*:\s*\[([\s\S]*?)(?:\]|$)`)

	jsonUnescaper = strings.NewReplacer(`\\`, `\`, `\n`, "\n", `\"`, `"`, `\t`, "\t")
)

// scrapeFields is the last resort for truncated or malformed JSON.
func scrapeFields(text string) *Extraction {
	var code string
	if m := codeFieldClosed.FindStringSubmatch(text); m != nil {
		code = m[1]
	} else if m := codeFieldOpen.FindStringSubmatch(text); m != nil {
		code = m[1]
	}
	code = jsonUnescaper.Replace(code)
	if strings.TrimSpace(code) == "" {
		return nil
	}

	explanation := []string{}
	if m := explanationField.FindStringSubmatch(text); m != nil {
		for _, item := range strings.Split(m[1], ",") {
			item = strings.Trim(strings.TrimSpace(item), `"`)
			if item = strings.TrimSpace(item); item != "" {
				explanation = append(explanation, item)
			}
		}
	}
	return &Extraction{RefactoredCode: code, Explanation: explanation}
}
