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
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cloudwego/refactorbot/internal/config"
	"github.com/cloudwego/refactorbot/lang/refactor"
	"github.com/cloudwego/refactorbot/llm"
	"github.com/cloudwego/refactorbot/llm/log"
	"github.com/cloudwego/refactorbot/version"
)

var (
	// Global flags
	configPath string
	verbose    bool

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "refactorbot",
	Short: "Refactor source code with a large language model",
	Long: `refactorbot asks a language model to refactor code for clarity,
maintainability and efficiency while preserving behavior, and recovers the
refactored code and a short explanation from whatever the model replies.

Configuration is read from --config (YAML) and the environment
(GEMINI_API_KEY, GEMINI_MODEL, PORT, REFACTORBOT_*).`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		cfg.ApplyLogging()
		if verbose {
			log.SetLogLevel(log.DebugLevel)
		}
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version of refactorbot",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\n", version.Version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to refactorbot.yaml")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	rootCmd.AddCommand(refactorCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	defer log.Sync()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newBackend builds the model callbacks from the configuration.
func newBackend(ctx context.Context, c *config.Config) (refactor.Options, error) {
	if err := c.Validate(); err != nil {
		return refactor.Options{}, err
	}
	modelConfig := c.LLM()
	chatModel, err := llm.NewChatModel(ctx, modelConfig)
	if err != nil {
		return refactor.Options{}, fmt.Errorf("create %s model: %w", modelConfig.APIType, err)
	}
	sysPrompt, err := c.SystemPrompt()
	if err != nil {
		return refactor.Options{}, fmt.Errorf("load system prompt: %w", err)
	}
	caller := llm.NewCaller(chatModel, llm.CallerOptions{
		SysPrompt: sysPrompt,
		Retries:   modelConfig.Retries,
		Timeout:   modelConfig.Timeout,
	})
	log.Debug("using %s model %q", modelConfig.APIType, modelConfig.ModelName)
	return caller.RefactorOptions(string(modelConfig.APIType)), nil
}
