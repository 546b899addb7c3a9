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

package utils

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWrapError(t *testing.T) {
	if WrapError(nil, "ignored") != nil {
		t.Error("WrapError(nil) should be nil")
	}
	cause := errors.New("boom")
	err := WrapError(cause, "call %s", "gemini")
	if err.Error() != "call gemini: boom" {
		t.Errorf("Error() = %q", err.Error())
	}
	if !errors.Is(err, cause) || Cause(err) != cause {
		t.Error("wrapped error should keep its cause")
	}
	if WithStack(cause).Error() != "boom" {
		t.Error("WithStack should not change the message")
	}
}

func TestMarshalJSONBytes(t *testing.T) {
	got, err := MarshalJSONBytes(map[string]string{"code": "if a < b && c > d {}"})
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != `{"code":"if a < b && c > d {}"}` {
		t.Errorf("got %s", got)
	}
	got, err = MarshalJSONIndent([]int{1})
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "[\n  1\n]" {
		t.Errorf("got %q", got)
	}
}

func TestWatchFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("a: 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	changed := make(chan struct{}, 16)
	done := make(chan error, 1)
	go func() {
		done <- WatchFile(ctx, path, func() { changed <- struct{}{} })
	}()

	// the watcher may not be registered yet; keep writing until it reports
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
wait:
	for {
		select {
		case <-changed:
			break wait
		case <-tick.C:
			if err := os.WriteFile(path, []byte("a: 2\n"), 0o644); err != nil {
				t.Fatal(err)
			}
		case <-deadline:
			t.Fatal("no change reported")
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("WatchFile() = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("WatchFile did not return after cancel")
	}
}
