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
	"bytes"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

const fence = "```"

// inlineJSONFence matches ```json blocks that do not start on their own line,
// which a markdown parser does not treat as fenced code.
var inlineJSONFence = regexp.MustCompile("(?is)```json\\s*(.*?)```")

// codeBlock is a fenced code block found in a reply.
type codeBlock struct {
	Lang    string
	Content string
}

// extractCodeBlocks walks the markdown AST of src and returns its fenced code
// blocks in document order.
func extractCodeBlocks(src string) []codeBlock {
	source := []byte(src)
	root := goldmark.DefaultParser().Parse(text.NewReader(source))

	var blocks []codeBlock
	_ = ast.Walk(root, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		fenced, ok := node.(*ast.FencedCodeBlock)
		if !ok {
			return ast.WalkContinue, nil
		}

		var content bytes.Buffer
		lines := fenced.Lines()
		for i := 0; i < lines.Len(); i++ {
			line := lines.At(i)
			content.Write(line.Value(source))
		}
		blocks = append(blocks, codeBlock{
			Lang:    strings.ToLower(string(fenced.Language(source))),
			Content: content.String(),
		})
		return ast.WalkSkipChildren, nil
	})
	return blocks
}

// findJSONFence returns the interior of the first ```json block in s.
func findJSONFence(s string) (string, bool) {
	for _, block := range extractCodeBlocks(s) {
		if block.Lang == "json" {
			return block.Content, true
		}
	}
	if m := inlineJSONFence.FindStringSubmatch(s); m != nil {
		return m[1], true
	}
	return "", false
}

// stripFence removes a single fence wrapping the whole of s. The language tag
// on the opening line is ignored.
func stripFence(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, fence) {
		return s
	}
	body := strings.TrimPrefix(trimmed, fence)
	if idx := strings.Index(body, "\n"); idx >= 0 {
		body = body[idx+1:]
	} else if strings.HasSuffix(body, fence) {
		// single-line "```code```"
		return strings.TrimSuffix(body, fence)
	} else {
		// a lone opening fence line carries no code
		return ""
	}
	body = strings.TrimSuffix(strings.TrimRight(body, " \t\r\n"), fence)
	return body
}
