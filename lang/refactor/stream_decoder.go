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
	"regexp"
	"strings"
)

// Markers of the plain-text reply layout. The misspelling of the code marker
// is part of the wire format.
const (
	MarkerLanguage    = "LANGUAGE:"
	MarkerCode        = "REFRACTORED_CODE:"
	MarkerExplanation = "EXPLANATION:"
)

// a run of bullets such as "- ", "* -" or "--"
var bulletPrefix = regexp.MustCompile(`^\s*(?:[-*]\s*)+`)

// StreamDecoder accumulates streamed reply chunks. The buffer is its only
// state: every decode is recomputed from the whole buffer, so a marker split
// across chunks is simply not matched until the rest of it arrives.
type StreamDecoder struct {
	buf strings.Builder
}

// NewStreamDecoder creates an empty StreamDecoder.
func NewStreamDecoder() *StreamDecoder {
	return &StreamDecoder{}
}

// Write appends a chunk and returns the best result known so far.
// ok is false until the code marker has been received.
func (d *StreamDecoder) Write(chunk string) (res Result, ok bool) {
	d.buf.WriteString(chunk)
	return decodeMarkers(d.buf.String(), true)
}

// Final decodes the complete buffer once the stream has ended.
func (d *StreamDecoder) Final() (Result, bool) {
	return decodeMarkers(d.buf.String(), false)
}

// Buffer returns everything received so far.
func (d *StreamDecoder) Buffer() string {
	return d.buf.String()
}

// Len returns the buffer length in bytes.
func (d *StreamDecoder) Len() int {
	return d.buf.Len()
}

// DecodeMarkers decodes a complete marker-formatted reply.
func DecodeMarkers(buffer string) (Result, bool) {
	return decodeMarkers(buffer, false)
}

// decodeMarkers is a pure function of buffer. When open is set the stream may
// still grow, and an unfinished trailing line that could become the
// explanation marker or a closing fence is kept out of the code value.
func decodeMarkers(buffer string, open bool) (Result, bool) {
	refIdx := strings.Index(buffer, MarkerCode)
	if refIdx == -1 {
		return Result{}, false
	}

	var res Result
	if langIdx := strings.Index(buffer, MarkerLanguage); langIdx != -1 && langIdx < refIdx {
		block := strings.TrimSpace(buffer[langIdx+len(MarkerLanguage) : refIdx])
		line, _, _ := strings.Cut(block, "\n")
		res.Language = strings.TrimSpace(line)
	}

	after := buffer[refIdx+len(MarkerCode):]
	explIdx := strings.Index(after, MarkerExplanation)
	if explIdx == -1 {
		code := after
		if open {
			code = holdBackPartialLine(code)
		}
		res.RefactoredCode = strings.TrimSpace(code)
		res.Explanation = []string{}
		return res, true
	}

	res.RefactoredCode = strings.TrimSpace(after[:explIdx])
	res.Explanation = explanationLines(after[explIdx+len(MarkerExplanation):])
	return res, true
}

// holdBackPartialLine drops an unfinished trailing line that is a proper
// prefix of the explanation marker ("EXPLAN") or of a fence ("``").
func holdBackPartialLine(code string) string {
	start := strings.LastIndexByte(code, '\n') + 1
	last := strings.TrimLeft(code[start:], " \t")
	if last == "" {
		return code
	}
	if len(last) < len(MarkerExplanation) && strings.HasPrefix(MarkerExplanation, last) {
		return code[:start]
	}
	if len(last) <= len(fence) && strings.Trim(last, "`") == "" {
		return code[:start]
	}
	return code
}

// explanationLines splits an explanation block into at most MaxExplanation
// cleaned entries.
func explanationLines(block string) []string {
	lines := make([]string, 0, MaxExplanation)
	for _, line := range strings.Split(block, "\n") {
		if len(lines) == MaxExplanation {
			break
		}
		if line = cleanExplanationLine(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func cleanExplanationLine(line string) string {
	return strings.TrimSpace(bulletPrefix.ReplaceAllString(line, ""))
}
