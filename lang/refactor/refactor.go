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
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/cloudwego/refactorbot/llm/log"
)

// Refactor executes the non-streaming flow:
// 1. Build the prompt for the requested format
// 2. Call the model once for the complete reply
// 3. Decode the reply (strategy chain for JSON, marker decoder otherwise)
// 4. Normalize, falling back to the original source on a format error
func Refactor(ctx context.Context, req Request, opts Options) (*Result, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if opts.LLMCall == nil {
		return nil, fmt.Errorf("invalid options: LLMCall callback is required")
	}

	prompt := NewPromptBuilder(req.Format).Build(&req)
	text, err := opts.LLMCall(ctx, &LLMRequest{Prompt: prompt, Request: req})
	if err != nil {
		return nil, newUpstreamError(opts.Provider, err)
	}
	log.Debug("model reply received, format: %s, length: %d", req.Format, len(text))

	raw, ok := decodeReply(text, req.Format)
	if !ok {
		log.Warn("%v, returning original code (reply length %d)", ErrFormat, len(text))
	}
	res := Normalize(raw, req.SourceCode)
	return &res, nil
}

// decodeReply decodes a complete reply according to the requested format.
func decodeReply(text string, format OutputFormat) (Result, bool) {
	if format == FormatMarkers {
		return DecodeMarkers(text)
	}
	ext := Extract(text)
	if ext == nil {
		return Result{}, false
	}
	log.Debug("reply decoded with strategy %s", ext.Strategy)
	return ext.Result(), true
}

// RefactorStream executes the streaming flow. The reply is always requested in
// the marker format. onPartial, if non-nil, is called each time the decoded
// result changes and has non-empty code.
//
// A stream that fails or ends before the terminal marker state is not an
// error: the buffer received so far is decoded as final. If ctx is cancelled
// the normalized result so far is returned together with ctx.Err().
func RefactorStream(ctx context.Context, req Request, opts Options, onPartial PartialFunc) (*Result, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if opts.LLMStream == nil {
		return nil, fmt.Errorf("invalid options: LLMStream callback is required")
	}

	req.Format = FormatMarkers
	prompt := NewPromptBuilder(FormatMarkers).Build(&req)
	stream, err := opts.LLMStream(ctx, &LLMRequest{Prompt: prompt, Request: req})
	if err != nil {
		return nil, newUpstreamError(opts.Provider, err)
	}
	defer stream.Close()

	dec := NewStreamDecoder()
	var last *Result
	var stopErr error
	chunks := 0
	for {
		if err := ctx.Err(); err != nil {
			stopErr = err
			break
		}
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				stopErr = ctxErr
			} else {
				log.Warn("stream ended early after %d chunks: %v", chunks, err)
			}
			break
		}
		chunks++

		cur, ok := dec.Write(chunk)
		if !ok || onPartial == nil {
			continue
		}
		partial := NormalizePartial(cur)
		if partial.RefactoredCode == "" || (last != nil && sameResult(*last, partial)) {
			continue
		}
		last = &partial
		if err := onPartial(partial); err != nil {
			stopErr = err
			break
		}
	}

	raw, ok := dec.Final()
	if !ok {
		log.Warn("%v: no %s marker in %d streamed bytes", ErrFormat, MarkerCode, dec.Len())
	}
	res := Normalize(raw, req.SourceCode)
	return &res, stopErr
}

func validateRequest(req Request) error {
	if _, err := NewRequest(req.SourceCode, req.SourceLanguage, req.Goals, req.Format); err != nil {
		return err
	}
	return nil
}

func sameResult(a, b Result) bool {
	return a.Language == b.Language &&
		a.RefactoredCode == b.RefactoredCode &&
		slices.Equal(a.Explanation, b.Explanation)
}
