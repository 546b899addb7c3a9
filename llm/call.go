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

package llm

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/schema"
	"github.com/cloudwego/refactorbot/internal/utils"
	"github.com/cloudwego/refactorbot/lang/refactor"
	"github.com/cloudwego/refactorbot/llm/log"
	"github.com/cloudwego/refactorbot/llm/prompt"
)

var _ Generator = (*Caller)(nil)

// Caller sends single-turn prompts to a chat model, retrying transient
// failures with exponential backoff.
type Caller struct {
	model     ChatModel
	sysPrompt prompt.Prompt
	retries   int           // Number of retries on failure
	timeout   time.Duration // Request timeout
	backoff   func(attempt int) time.Duration
	handler   callbacks.Handler
}

type CallerOptions struct {
	SysPrompt prompt.Prompt
	Retries   int           // Number of retries, default: 3
	Timeout   time.Duration // Request timeout, default: 600s
	// Handler receives the model callbacks, default: CallbackHandler
	Handler callbacks.Handler
}

func NewCaller(m ChatModel, opts CallerOptions) *Caller {
	retries := opts.Retries
	if retries == 0 {
		retries = DefaultRetries
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	handler := opts.Handler
	if handler == nil {
		handler = CallbackHandler{}
	}
	return &Caller{
		model:     m,
		sysPrompt: opts.SysPrompt,
		retries:   retries,
		timeout:   timeout,
		backoff:   backoff,
		handler:   handler,
	}
}

// backoff waits 1s, 2s, 4s... capped at 10s.
func backoff(attempt int) time.Duration {
	wait := time.Duration(1<<uint(attempt-1)) * time.Second
	if wait > 10*time.Second {
		wait = 10 * time.Second
	}
	return wait
}

func (c *Caller) messages(input string) []*schema.Message {
	msgs := make([]*schema.Message, 0, 2)
	if c.sysPrompt != nil {
		if sys := c.sysPrompt.String(); sys != "" {
			msgs = append(msgs, schema.SystemMessage(sys))
		}
	}
	return append(msgs, schema.UserMessage(input))
}

// retry runs fn until it succeeds, fails with a non-retryable error, or the
// attempts are exhausted.
func (c *Caller) retry(ctx context.Context, op string, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			log.Info("Retrying %s (attempt %d/%d)...", op, attempt+1, c.retries+1)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.backoff(attempt)):
			}
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !isRetryable(err) {
			log.Error("Non-retryable error occurred: %v", err)
			return utils.WithStack(err)
		}
		log.Info("Retryable error occurred (attempt %d/%d): %v", attempt+1, c.retries+1, err)
	}
	return utils.WrapError(lastErr, "failed after %d attempts", c.retries+1)
}

func (c *Caller) withCallbacks(ctx context.Context) context.Context {
	return callbacks.InitCallbacks(ctx, &callbacks.RunInfo{Name: "refactor", Type: "Caller"}, c.handler)
}

func (c *Caller) Call(ctx context.Context, input string) (string, error) {
	log.Debug("[User] %s", input)
	ctx = c.withCallbacks(ctx)
	msgs := c.messages(input)

	var out string
	err := c.retry(ctx, "LLM call", func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		msg, err := c.model.Generate(attemptCtx, msgs)
		if err != nil {
			return err
		}
		out = msg.Content
		return nil
	})
	return out, err
}

// Stream opens a streamed reply. Only opening the stream is retried: once
// chunks flow, a failure ends the stream.
func (c *Caller) Stream(ctx context.Context, input string) (*MessageStream, error) {
	log.Debug("[User] %s", input)
	ctx = c.withCallbacks(ctx)
	msgs := c.messages(input)

	var stream *MessageStream
	err := c.retry(ctx, "LLM stream", func() error {
		streamCtx, cancel := context.WithTimeout(ctx, c.timeout)
		sr, err := c.model.Stream(streamCtx, msgs)
		if err != nil {
			cancel()
			return err
		}
		stream = &MessageStream{reader: sr, cancel: cancel}
		return nil
	})
	return stream, err
}

// MessageStream yields the text of streamed model messages.
type MessageStream struct {
	reader *schema.StreamReader[*schema.Message]
	cancel context.CancelFunc
}

// Recv returns the next chunk, or io.EOF when the reply is complete.
func (s *MessageStream) Recv() (string, error) {
	msg, err := s.reader.Recv()
	if err != nil {
		return "", err
	}
	return msg.Content, nil
}

func (s *MessageStream) Close() {
	s.reader.Close()
	s.cancel()
}

// RefactorOptions exposes the caller as refactoring callbacks.
func (c *Caller) RefactorOptions(provider string) refactor.Options {
	return refactor.Options{
		Provider: provider,
		LLMCall: func(ctx context.Context, req *refactor.LLMRequest) (string, error) {
			return c.Call(ctx, req.Prompt)
		},
		LLMStream: func(ctx context.Context, req *refactor.LLMRequest) (refactor.TextStream, error) {
			s, err := c.Stream(ctx, req.Prompt)
			if err != nil {
				return nil, err
			}
			return s, nil
		},
	}
}

var retryableMessages = []string{
	"timeout",
	"connection reset",
	"connection refused",
	"operation timed out",
	"context deadline exceeded",
	"read tcp",
	"write tcp",
	"429",
	"503",
	"rate limit",
	"resource_exhausted",
	"unavailable",
}

// isRetryable checks if error is transient (timeout, connection reset, etc.)
func isRetryable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range retryableMessages {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

type CallbackHandler struct{}

var _ callbacks.Handler = (*CallbackHandler)(nil)

func (h CallbackHandler) OnStart(ctx context.Context, info *callbacks.RunInfo, input callbacks.CallbackInput) context.Context {
	log.Debug("<OnStart> INFO: %+v", info)
	return ctx
}

func (h CallbackHandler) OnEnd(ctx context.Context, info *callbacks.RunInfo, output callbacks.CallbackOutput) context.Context {
	log.Debug("<OnEnd> INFO: %+v", info)
	return ctx
}

func (h CallbackHandler) OnError(ctx context.Context, info *callbacks.RunInfo, err error) context.Context {
	log.Error("<OnError> INFO: %+v ERROR: %v", info, err)
	return ctx
}

func (h CallbackHandler) OnStartWithStreamInput(ctx context.Context, info *callbacks.RunInfo,
	input *schema.StreamReader[callbacks.CallbackInput]) context.Context {
	input.Close()
	return ctx
}

func (h CallbackHandler) OnEndWithStreamOutput(ctx context.Context, info *callbacks.RunInfo,
	output *schema.StreamReader[callbacks.CallbackOutput]) context.Context {
	output.Close()
	return ctx
}
