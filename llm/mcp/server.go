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
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/cloudwego/refactorbot/lang/refactor"
	"github.com/cloudwego/refactorbot/llm/log"
)

type Tool struct {
	mcp.Tool
	Handler server.ToolHandlerFunc
}

type ServerOptions struct {
	ServerName    string
	ServerVersion string
	Verbose       bool
	// Refactor supplies the model callbacks for refactor_code. The
	// extraction tool and the prompt work without them.
	Refactor refactor.Options
}

type Server struct {
	Server *server.MCPServer
}

func NewServer(opts ServerOptions) *Server {
	if opts.Verbose {
		log.SetLogLevel(log.DebugLevel)
	}
	s := server.NewMCPServer(opts.ServerName, opts.ServerVersion,
		server.WithToolCapabilities(false),
		server.WithPromptCapabilities(false),
		server.WithRecovery(),
	)

	tools := getRefactorTools(opts.Refactor)
	for _, t := range tools {
		s.AddTool(t.Tool, t.Handler)
	}
	s.AddPrompt(refactorPrompt(), handleRefactorPrompt)
	log.Info("mcp server %s %s: %d tools registered", opts.ServerName, opts.ServerVersion, len(tools))

	return &Server{Server: s}
}

// ServeStdio serves MCP over stdin/stdout until stdin is closed.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.Server)
}
