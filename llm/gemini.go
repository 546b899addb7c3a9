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
	"fmt"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"
)

const DefaultGeminiModel = "gemini-1.5-flash"

var _ ChatModel = (*GeminiModel)(nil)

// GeminiModel adapts the Gemini API client to the eino chat model interface.
type GeminiModel struct {
	models      *genai.Models
	model       string
	temperature *float32
	maxTokens   int
}

func NewGeminiModel(ctx context.Context, m ModelConfig) (*GeminiModel, error) {
	if m.APIKey == "" {
		return nil, fmt.Errorf("gemini: api key is required")
	}
	cfg := &genai.ClientConfig{
		APIKey:  m.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if m.BaseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: m.BaseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	name := m.ModelName
	if name == "" {
		name = DefaultGeminiModel
	}
	return &GeminiModel{
		models:      client.Models,
		model:       name,
		temperature: m.Temperature,
		maxTokens:   m.MaxTokens,
	}, nil
}

func (g *GeminiModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (message *schema.Message, err error) {
	ctx = callbacks.EnsureRunInfo(ctx, g.GetType(), components.ComponentOfChatModel)
	name, contents, config := g.request(input, opts)
	ctx = callbacks.OnStart(ctx, g.callbackInput(input, name, config))
	defer func() {
		if err != nil {
			callbacks.OnError(ctx, err)
		}
	}()

	resp, err := g.models.GenerateContent(ctx, name, contents, config)
	if err != nil {
		return nil, err
	}
	message = schema.AssistantMessage(resp.Text(), nil)
	callbacks.OnEnd(ctx, g.callbackOutput(message, name, config, resp.UsageMetadata))
	return message, nil
}

// Stream forwards response chunks until the API stream ends or the reader is
// closed.
func (g *GeminiModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	ctx = callbacks.EnsureRunInfo(ctx, g.GetType(), components.ComponentOfChatModel)
	name, contents, config := g.request(input, opts)
	ctx = callbacks.OnStart(ctx, g.callbackInput(input, name, config))

	sr, sw := schema.Pipe[*model.CallbackOutput](1)
	go func() {
		defer sw.Close()
		for resp, err := range g.models.GenerateContentStream(ctx, name, contents, config) {
			if err != nil {
				sw.Send(nil, err)
				return
			}
			msg := schema.AssistantMessage(resp.Text(), nil)
			if closed := sw.Send(g.callbackOutput(msg, name, config, resp.UsageMetadata), nil); closed {
				return
			}
		}
	}()
	_, sr = callbacks.OnEndWithStreamOutput(ctx, sr)
	return schema.StreamReaderWithConvert(sr, func(out *model.CallbackOutput) (*schema.Message, error) {
		return out.Message, nil
	}), nil
}

func (g *GeminiModel) GetType() string {
	return "Gemini"
}

func (g *GeminiModel) IsCallbacksEnabled() bool {
	return true
}

func (g *GeminiModel) callbackConfig(name string, config *genai.GenerateContentConfig) *model.Config {
	c := &model.Config{
		Model:     name,
		MaxTokens: int(config.MaxOutputTokens),
		Stop:      config.StopSequences,
	}
	if config.Temperature != nil {
		c.Temperature = *config.Temperature
	}
	return c
}

func (g *GeminiModel) callbackInput(input []*schema.Message, name string, config *genai.GenerateContentConfig) *model.CallbackInput {
	return &model.CallbackInput{
		Messages: input,
		Config:   g.callbackConfig(name, config),
	}
}

func (g *GeminiModel) callbackOutput(msg *schema.Message, name string, config *genai.GenerateContentConfig,
	usage *genai.GenerateContentResponseUsageMetadata) *model.CallbackOutput {
	out := &model.CallbackOutput{
		Message: msg,
		Config:  g.callbackConfig(name, config),
	}
	if usage != nil {
		out.TokenUsage = &model.TokenUsage{
			PromptTokens:     int(usage.PromptTokenCount),
			CompletionTokens: int(usage.CandidatesTokenCount),
			TotalTokens:      int(usage.TotalTokenCount),
		}
	}
	return out
}

func (g *GeminiModel) request(input []*schema.Message, opts []model.Option) (string, []*genai.Content, *genai.GenerateContentConfig) {
	common := model.GetCommonOptions(&model.Options{
		Model:       &g.model,
		Temperature: g.temperature,
		MaxTokens:   &g.maxTokens,
	}, opts...)

	config := &genai.GenerateContentConfig{}
	if common.Temperature != nil {
		config.Temperature = genai.Ptr(*common.Temperature)
	}
	if common.MaxTokens != nil && *common.MaxTokens > 0 {
		config.MaxOutputTokens = int32(*common.MaxTokens)
	}
	if len(common.Stop) > 0 {
		config.StopSequences = common.Stop
	}

	contents := make([]*genai.Content, 0, len(input))
	for _, msg := range input {
		switch msg.Role {
		case schema.System:
			config.SystemInstruction = genai.NewContentFromText(msg.Content, genai.RoleUser)
		case schema.Assistant:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleUser))
		}
	}

	name := g.model
	if common.Model != nil && *common.Model != "" {
		name = *common.Model
	}
	return name, contents, config
}
