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
	"strings"
)

// Diagnostic explanation returned with the original code when nothing usable
// was recovered from the model.
const (
	DiagnosticInvalidFormat = "The model output was not in the expected format, so the original code is returned unchanged."
	DiagnosticRetry         = "Try again, or reduce the size of the input code."
)

// LanguageNotePrefix prefixes the detected-language explanation entry.
const LanguageNotePrefix = "Language: "

// Normalize shapes a raw result before it leaves the package, whichever path
// produced it. The returned RefactoredCode is never empty as long as source
// is not.
func Normalize(raw Result, source string) Result {
	res := shape(raw)
	if res.RefactoredCode == "" {
		res.RefactoredCode = source
		res.Explanation = []string{DiagnosticInvalidFormat, DiagnosticRetry}
	}
	return withLanguageNote(res)
}

// NormalizePartial shapes an intermediate streaming result. Unlike Normalize
// it never substitutes the source: an empty code value stays empty.
func NormalizePartial(raw Result) Result {
	return withLanguageNote(shape(raw))
}

// shape strips the fence, trims the code and cleans the explanation.
func shape(raw Result) Result {
	language, _, _ := strings.Cut(strings.TrimSpace(raw.Language), "\n")
	return Result{
		Language:       strings.TrimSpace(language),
		RefactoredCode: strings.TrimSpace(stripFence(raw.RefactoredCode)),
		Explanation:    cleanExplanation(raw.Explanation),
	}
}

// cleanExplanation splits entries into single lines, strips bullet markers,
// drops blanks and caps the list at MaxExplanation.
func cleanExplanation(entries []string) []string {
	out := make([]string, 0, MaxExplanation)
	for _, entry := range entries {
		for _, line := range strings.Split(entry, "\n") {
			if len(out) == MaxExplanation {
				return out
			}
			if line = cleanExplanationLine(line); line != "" {
				out = append(out, line)
			}
		}
	}
	return out
}

// withLanguageNote prepends the language entry; the note takes one of the
// MaxExplanation slots and is not added twice.
func withLanguageNote(res Result) Result {
	if res.Language == "" {
		return res
	}
	note := LanguageNotePrefix + res.Language
	rest := res.Explanation
	if len(rest) > 0 && rest[0] == note {
		rest = rest[1:]
	}
	explanation := make([]string, 0, MaxExplanation)
	explanation = append(explanation, note)
	for _, e := range rest {
		if len(explanation) == MaxExplanation {
			break
		}
		explanation = append(explanation, e)
	}
	res.Explanation = explanation
	return res
}
