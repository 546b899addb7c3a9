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

package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/cloudwego/refactorbot/internal/utils"
	"github.com/cloudwego/refactorbot/lang/refactor"
)

const (
	ToolRefactorCode  = "refactor_code"
	DescRefactorCode  = "Refactor source code for clarity, maintainability and efficiency while preserving behavior. Returns the refactored code and a short explanation."
	ToolExtractResult = "extract_refactor_result"
	DescExtractResult = "Recover refactored code and explanation from a raw model reply, in either the JSON or the marker layout. Falls back to the given source code when nothing usable is found."

	PromptRefactor = "refactor_prompt"
)

func NewTool[R any, T any](name string, desc string, schema json.RawMessage, handler func(ctx context.Context, req R) (*T, error)) Tool {
	return Tool{
		Tool: mcp.NewToolWithRawSchema(name, desc, schema),
		Handler: func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var req R
			if err := request.BindArguments(&req); err != nil {
				return nil, err
			}
			var final string
			var isError bool
			if resp, err := handler(ctx, req); err != nil {
				isError = true
				final = err.Error()
			} else if js, err := utils.MarshalJSONBytes(resp); err != nil {
				isError = true
				final = err.Error()
			} else {
				final = string(js)
			}
			return &mcp.CallToolResult{
				Content: []mcp.Content{
					mcp.NewTextContent(final),
				},
				IsError: isError,
			}, nil
		},
	}
}

// GetJSONSchema reflects the inline input schema of a tool argument struct.
func GetJSONSchema(v any) json.RawMessage {
	r := &jsonschema.Reflector{
		Anonymous:      true,
		DoNotReference: true,
		ExpandedStruct: true,
	}
	s := r.Reflect(v)
	s.Version = ""
	js, err := json.Marshal(s)
	if err != nil {
		panic(err)
	}
	return js
}

type RefactorCodeRequest struct {
	Code           string `json:"code" jsonschema:"description=The source code to refactor"`
	Language       string `json:"language,omitempty" jsonschema:"description=Optional language hint such as Go or Python"`
	DetectSmells   bool   `json:"detectSmells,omitempty" jsonschema:"description=Detect and address code smells"`
	ApplySolid     bool   `json:"applySolid,omitempty" jsonschema:"description=Apply SOLID principles"`
	IncludeMetrics bool   `json:"includeMetrics,omitempty" jsonschema:"description=Include a brief metrics summary"`
	Format         string `json:"format,omitempty" jsonschema:"enum=json,enum=markers,description=Reply layout requested from the model"`
}

func (r RefactorCodeRequest) toRequest() (refactor.Request, error) {
	format, err := refactor.ParseOutputFormat(r.Format)
	if err != nil {
		return refactor.Request{}, err
	}
	return refactor.NewRequest(r.Code, r.Language, refactor.Goals{
		DetectSmells:   r.DetectSmells,
		ApplySolid:     r.ApplySolid,
		IncludeMetrics: r.IncludeMetrics,
	}, format)
}

type ExtractResultRequest struct {
	Text       string `json:"text" jsonschema:"description=The raw model reply"`
	SourceCode string `json:"sourceCode" jsonschema:"description=The original code returned when the reply is unusable"`
	Format     string `json:"format,omitempty" jsonschema:"enum=json,enum=markers,description=Layout of the reply"`
}

type ExtractResultResponse struct {
	refactor.Result
	// Strategy names the JSON strategy that succeeded; empty for markers or
	// when nothing was recovered.
	Strategy  string `json:"strategy,omitempty"`
	Recovered bool   `json:"recovered"`
}

var (
	SchemaRefactorCode  = GetJSONSchema(RefactorCodeRequest{})
	SchemaExtractResult = GetJSONSchema(ExtractResultRequest{})
)

func getRefactorTools(opts refactor.Options) []Tool {
	refactorCode := func(ctx context.Context, req RefactorCodeRequest) (*refactor.Result, error) {
		r, err := req.toRequest()
		if err != nil {
			return nil, err
		}
		return refactor.Refactor(ctx, r, opts)
	}
	return []Tool{
		NewTool(ToolRefactorCode, DescRefactorCode, SchemaRefactorCode, refactorCode),
		NewTool(ToolExtractResult, DescExtractResult, SchemaExtractResult, extractResult),
	}
}

func extractResult(ctx context.Context, req ExtractResultRequest) (*ExtractResultResponse, error) {
	format, err := refactor.ParseOutputFormat(req.Format)
	if err != nil {
		return nil, err
	}
	if req.SourceCode == "" {
		return nil, fmt.Errorf("sourceCode is required")
	}
	var resp ExtractResultResponse
	var raw refactor.Result
	if format == refactor.FormatMarkers {
		raw, resp.Recovered = refactor.DecodeMarkers(req.Text)
	} else if ext := refactor.Extract(req.Text); ext != nil {
		raw, resp.Recovered = ext.Result(), true
		resp.Strategy = string(ext.Strategy)
	}
	resp.Result = refactor.Normalize(raw, req.SourceCode)
	return &resp, nil
}

func refactorPrompt() mcp.Prompt {
	return mcp.NewPrompt(PromptRefactor,
		mcp.WithPromptDescription("The instruction sent to the model to refactor a piece of code"),
		mcp.WithArgument("code", mcp.ArgumentDescription("The source code to refactor"), mcp.RequiredArgument()),
		mcp.WithArgument("language", mcp.ArgumentDescription("Optional language hint")),
		mcp.WithArgument("format", mcp.ArgumentDescription("json or markers")),
	)
}

func handleRefactorPrompt(
	ctx context.Context,
	request mcp.GetPromptRequest,
) (*mcp.GetPromptResult, error) {
	args := request.Params.Arguments
	format, err := refactor.ParseOutputFormat(args["format"])
	if err != nil {
		return nil, err
	}
	req, err := refactor.NewRequest(args["code"], args["language"], refactor.Goals{}, format)
	if err != nil {
		return nil, err
	}
	return &mcp.GetPromptResult{
		Description: "A prompt for refactoring code",
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.TextContent{
					Type: "text",
					Text: refactor.NewPromptBuilder("").Build(&req),
				},
			},
		},
	}, nil
}
