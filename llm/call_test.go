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
	"io"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudwego/refactorbot/lang/refactor"
	"github.com/cloudwego/refactorbot/llm/prompt"
)

// fakeModel fails with errs in order, then answers with reply.
type fakeModel struct {
	errs   []error
	reply  []string
	calls  int
	inputs [][]*schema.Message
}

func (m *fakeModel) next(input []*schema.Message) error {
	m.calls++
	m.inputs = append(m.inputs, input)
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		return err
	}
	return nil
}

func (m *fakeModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	if err := m.next(input); err != nil {
		return nil, err
	}
	var content string
	for _, r := range m.reply {
		content += r
	}
	return schema.AssistantMessage(content, nil), nil
}

func (m *fakeModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	if err := m.next(input); err != nil {
		return nil, err
	}
	msgs := make([]*schema.Message, 0, len(m.reply))
	for _, r := range m.reply {
		msgs = append(msgs, schema.AssistantMessage(r, nil))
	}
	return schema.StreamReaderFromArray(msgs), nil
}

func newTestCaller(m ChatModel, opts CallerOptions) *Caller {
	c := NewCaller(m, opts)
	c.backoff = func(int) time.Duration { return time.Millisecond }
	return c
}

func TestCaller_Call(t *testing.T) {
	m := &fakeModel{reply: []string{"hello"}}
	c := newTestCaller(m, CallerOptions{SysPrompt: prompt.NewTextPrompt("be brief")})
	out, err := c.Call(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
	require.Len(t, m.inputs, 1)
	require.Len(t, m.inputs[0], 2)
	assert.Equal(t, schema.System, m.inputs[0][0].Role)
	assert.Equal(t, "hi", m.inputs[0][1].Content)
}

func TestCaller_RetriesTransientErrors(t *testing.T) {
	m := &fakeModel{
		errs:  []error{errors.New("read tcp: connection reset by peer"), errors.New("HTTP 503 Service Unavailable")},
		reply: []string{"ok"},
	}
	c := newTestCaller(m, CallerOptions{Retries: 3})
	out, err := c.Call(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 3, m.calls)
}

func TestCaller_NonRetryable(t *testing.T) {
	cause := errors.New("invalid api key")
	m := &fakeModel{errs: []error{cause}}
	c := newTestCaller(m, CallerOptions{})
	_, err := c.Call(context.Background(), "hi")
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "invalid api key", err.Error())
	assert.Equal(t, 1, m.calls)
}

func TestCaller_RetriesExhausted(t *testing.T) {
	m := &fakeModel{errs: []error{
		errors.New("timeout"), errors.New("timeout"), errors.New("timeout"),
	}}
	c := newTestCaller(m, CallerOptions{Retries: 2})
	_, err := c.Call(context.Background(), "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed after 3 attempts")
	assert.Equal(t, 3, m.calls)
}

func TestCaller_Stream(t *testing.T) {
	m := &fakeModel{errs: []error{errors.New("connection refused")}, reply: []string{"REFRACTORED_CODE:\n", "x := 1\n"}}
	c := newTestCaller(m, CallerOptions{})
	s, err := c.Stream(context.Background(), "hi")
	require.NoError(t, err)
	defer s.Close()

	var got []string
	for {
		chunk, err := s.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		got = append(got, chunk)
	}
	assert.Equal(t, []string{"REFRACTORED_CODE:\n", "x := 1\n"}, got)
	assert.Equal(t, 2, m.calls)
}

func TestCaller_RefactorOptions(t *testing.T) {
	reply := "LANGUAGE:\nGo\nREFRACTORED_CODE:\nx := 1\nEXPLANATION:\n- shorter\n"
	c := newTestCaller(&fakeModel{reply: []string{reply}}, CallerOptions{})
	req, err := refactor.NewRequest("var x int = 1", "Go", refactor.Goals{}, refactor.FormatMarkers)
	require.NoError(t, err)

	res, err := refactor.Refactor(context.Background(), req, c.RefactorOptions("gemini"))
	require.NoError(t, err)
	assert.Equal(t, "x := 1", res.RefactoredCode)

	res, err = refactor.RefactorStream(context.Background(), req, c.RefactorOptions("gemini"), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"Language: Go", "shorter"}, res.Explanation)

	failing := newTestCaller(&fakeModel{errs: []error{errors.New("permission denied")}}, CallerOptions{})
	_, err = refactor.Refactor(context.Background(), req, failing.RefactorOptions("gemini"))
	var upstream *refactor.UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, "permission denied", upstream.Detail)
}

func TestNewModelType(t *testing.T) {
	tests := map[string]ModelType{
		"Gemini":    ModelTypeGemini,
		"google":    ModelTypeGemini,
		"openai":    ModelTypeOpenAI,
		"anthropic": ModelTypeClaude,
		"qwen":      ModelTypeDashScope,
		"deepseek":  ModelTypeDeepSeek,
		"ollama":    ModelTypeOllama,
		"doubao":    ModelTypeARK,
		"mystery":   ModelTypeUnknown,
	}
	for in, want := range tests {
		if got := NewModelType(in); got != want {
			t.Errorf("NewModelType(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNewChatModel_Errors(t *testing.T) {
	_, err := NewChatModel(context.Background(), ModelConfig{APIType: ModelTypeUnknown})
	assert.Error(t, err)
	_, err = NewChatModel(context.Background(), ModelConfig{APIType: ModelTypeGemini})
	assert.Error(t, err, "gemini requires an api key")
}

func TestModelConfig_WithDefaults(t *testing.T) {
	m := ModelConfig{}.WithDefaults()
	assert.Equal(t, DefaultMaxTokens, m.MaxTokens)
	assert.Equal(t, DefaultTimeout, m.Timeout)
	assert.Equal(t, DefaultRetries, m.Retries)

	m = ModelConfig{MaxTokens: 2048, Retries: 1}.WithDefaults()
	assert.Equal(t, 2048, m.MaxTokens)
	assert.Equal(t, 1, m.Retries)
}
