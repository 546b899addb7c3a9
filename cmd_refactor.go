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
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/cloudwego/refactorbot/internal/utils"
	"github.com/cloudwego/refactorbot/lang/refactor"
	"github.com/cloudwego/refactorbot/llm/log"
)

type refactorFlags struct {
	language    string
	format      string
	stream      bool
	smells      bool
	solid       bool
	metrics     bool
	concurrency int
	output      string
}

var rflags refactorFlags

var refactorCmd = &cobra.Command{
	Use:   "refactor <file>... | -",
	Short: "Refactor source files",
	Long: `Refactors each file (or stdin for "-") and prints the results as JSON.
With --output the refactored code is written to that directory instead.
With --stream a single input is refactored and partial results are printed
as NDJSON while the model replies.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRefactorCmd,
}

func init() {
	f := refactorCmd.Flags()
	f.StringVarP(&rflags.language, "language", "l", "", "Language hint, e.g. Go or Python")
	f.StringVar(&rflags.format, "format", "", "Reply layout asked from the model: json or markers (default from config)")
	f.BoolVar(&rflags.stream, "stream", false, "Stream partial results as NDJSON (single input only)")
	f.BoolVar(&rflags.smells, "smells", false, "Detect and address code smells")
	f.BoolVar(&rflags.solid, "solid", false, "Apply SOLID principles")
	f.BoolVar(&rflags.metrics, "metrics", false, "Include a brief metrics summary")
	f.IntVarP(&rflags.concurrency, "concurrency", "j", 0, "Files refactored at once (default from config)")
	f.StringVarP(&rflags.output, "output", "o", "", "Directory to write refactored files to")
}

// fileResult is one entry of the refactor command output.
type fileResult struct {
	File string `json:"file"`
	refactor.Result
	Error string `json:"error,omitempty"`
}

type sourceFile struct {
	name string
	code string
}

func runRefactorCmd(cmd *cobra.Command, args []string) error {
	opts := rflags
	if opts.format == "" {
		opts.format = string(cfg.Format())
	}
	if opts.concurrency == 0 {
		opts.concurrency = cfg.Refactor.Concurrency
	}
	if opts.stream && len(args) != 1 {
		return fmt.Errorf("--stream takes exactly one input, got %d", len(args))
	}

	files, err := readSources(args, cmd.InOrStdin())
	if err != nil {
		return err
	}
	backend, err := newBackend(cmd.Context(), cfg)
	if err != nil {
		return err
	}

	if opts.stream {
		return streamFile(cmd.Context(), cmd.OutOrStdout(), files[0], backend, opts)
	}
	results, err := refactorFiles(cmd.Context(), files, backend, opts)
	if err != nil {
		return err
	}
	if opts.output != "" {
		return writeResults(opts.output, results)
	}
	out, err := utils.MarshalJSONIndent(results)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s\n", out)
	return err
}

func readSources(args []string, stdin io.Reader) ([]sourceFile, error) {
	files := make([]sourceFile, 0, len(args))
	for _, arg := range args {
		var data []byte
		var err error
		if arg == "-" {
			data, err = io.ReadAll(stdin)
		} else {
			data, err = os.ReadFile(arg)
		}
		if err != nil {
			return nil, utils.WrapError(err, "read %s", arg)
		}
		files = append(files, sourceFile{name: arg, code: string(data)})
	}
	return files, nil
}

func (o refactorFlags) request(code string) (refactor.Request, error) {
	format, err := refactor.ParseOutputFormat(o.format)
	if err != nil {
		return refactor.Request{}, err
	}
	return refactor.NewRequest(code, o.language, refactor.Goals{
		DetectSmells:   o.smells,
		ApplySolid:     o.solid,
		IncludeMetrics: o.metrics,
	}, format)
}

// refactorFiles refactors every file with at most opts.concurrency model
// calls in flight. A failed file is reported in its result; only a bad
// format flag aborts the batch.
func refactorFiles(ctx context.Context, files []sourceFile, backend refactor.Options, opts refactorFlags) ([]fileResult, error) {
	if _, err := refactor.ParseOutputFormat(opts.format); err != nil {
		return nil, err
	}
	results := make([]fileResult, len(files))
	g, ctx := errgroup.WithContext(ctx)
	if opts.concurrency > 0 {
		g.SetLimit(opts.concurrency)
	}
	for i, f := range files {
		g.Go(func() error {
			results[i].File = f.name
			req, err := opts.request(f.code)
			if err == nil {
				var res *refactor.Result
				if res, err = refactor.Refactor(ctx, req, backend); err == nil {
					results[i].Result = *res
					log.Info("%s: refactored (%d explanation entries)", f.name, len(res.Explanation))
					return nil
				}
			}
			log.Error("%s: %v", f.name, err)
			results[i].Error = err.Error()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func writeResults(dir string, results []fileResult) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	failed := 0
	for _, r := range results {
		if r.Error != "" {
			failed++
			continue
		}
		name := filepath.Base(r.File)
		if r.File == "-" {
			name = "stdin.txt"
		}
		if err := os.WriteFile(filepath.Join(dir, name), []byte(r.RefactoredCode+"\n"), 0o644); err != nil {
			return utils.WrapError(err, "write %s", name)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(results))
	}
	return nil
}

// streamEvent mirrors the HTTP streaming endpoint's NDJSON lines.
type streamEvent struct {
	Partial bool            `json:"partial"`
	Result  refactor.Result `json:"result"`
}

func streamFile(ctx context.Context, w io.Writer, f sourceFile, backend refactor.Options, opts refactorFlags) error {
	req, err := opts.request(f.code)
	if err != nil {
		return err
	}
	emit := func(ev streamEvent) error {
		line, err := utils.MarshalJSONBytes(ev)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(w, "%s\n", line)
		return err
	}
	res, err := refactor.RefactorStream(ctx, req, backend, func(partial refactor.Result) error {
		return emit(streamEvent{Partial: true, Result: partial})
	})
	if res == nil {
		return err
	}
	if emitErr := emit(streamEvent{Result: *res}); emitErr != nil {
		return emitErr
	}
	return err
}
