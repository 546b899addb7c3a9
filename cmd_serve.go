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
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cloudwego/refactorbot/internal/config"
	"github.com/cloudwego/refactorbot/internal/server"
	"github.com/cloudwego/refactorbot/llm/log"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the refactoring HTTP API",
	Long: `Serves the HTTP API:
  POST /api/refactor         refactor once, answer with the final result
  POST /api/refactor/stream  stream partial results as NDJSON
  GET  /healthz              liveness probe

When --config is given the file is watched and the model is rebuilt on change.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, err := newBackend(ctx, cfg)
	if err != nil {
		// keep serving: refactoring endpoints report the missing model
		log.Error("model unavailable: %v", err)
	}
	svr := server.New(server.Options{
		Refactor:       backend,
		Format:         cfg.Format(),
		RequestTimeout: cfg.Server.RequestTimeout.Duration,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
	})

	if configPath != "" {
		go func() {
			err := config.Watch(ctx, configPath, func(next *config.Config) {
				next.ApplyLogging()
				backend, err := newBackend(ctx, next)
				if err != nil {
					log.Error("config reload: model unavailable, keeping the previous one: %v", err)
					return
				}
				svr.SetBackend(backend, next.Format())
				log.Info("model switched to %s %q", next.Model.Type, next.Model.ModelName)
			})
			if err != nil {
				log.Warn("config watch stopped: %v", err)
			}
		}()
	}

	return svr.ListenAndServe(ctx, cfg.Server.Addr, cfg.Server.ReadHeaderTimeout.Duration)
}

