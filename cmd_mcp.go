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

package main

import (
	"github.com/spf13/cobra"

	"github.com/cloudwego/refactorbot/llm/log"
	"github.com/cloudwego/refactorbot/llm/mcp"
	"github.com/cloudwego/refactorbot/version"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run as an MCP server over stdio",
	Long: `Runs an MCP server on stdin/stdout with the tools refactor_code and
extract_refactor_result and the prompt refactor_prompt.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		backend, err := newBackend(cmd.Context(), cfg)
		if err != nil {
			// extract_refactor_result and the prompt still work
			log.Error("model unavailable, refactor_code will fail: %v", err)
		}
		svr := mcp.NewServer(mcp.ServerOptions{
			ServerName:    "refactorbot",
			ServerVersion: version.Version,
			Verbose:       verbose,
			Refactor:      backend,
		})
		return svr.ServeStdio()
	},
}
