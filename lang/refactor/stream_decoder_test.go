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

package refactor

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const pythonReply = "LANGUAGE:\nPython\nREFRACTORED_CODE:\ndef f(): pass\nEXPLANATION:\n- a\n- b\n"

func TestDecodeMarkers_Complete(t *testing.T) {
	got, ok := DecodeMarkers(pythonReply)
	if !ok {
		t.Fatal("expected a result")
	}
	want := Result{
		Language:       "Python",
		RefactoredCode: "def f(): pass",
		Explanation:    []string{"a", "b"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("DecodeMarkers mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeMarkers_NoCodeMarker(t *testing.T) {
	buffers := []string{
		"",
		"LANGUAGE:\nGo\n",
		"LANGUAGE:\nGo\nREFRACTORED_CO",
		"some prose without any markers",
		"EXPLANATION:\n- a\n",
	}
	for _, buf := range buffers {
		if _, ok := DecodeMarkers(buf); ok {
			t.Errorf("DecodeMarkers(%q) returned a result", buf)
		}
		d := NewStreamDecoder()
		if _, ok := d.Write(buf); ok {
			t.Errorf("Write(%q) returned a result", buf)
		}
	}
}

func TestDecodeMarkers_Idempotent(t *testing.T) {
	buffers := []string{
		pythonReply,
		"REFRACTORED_CODE:\nx := 1\nEXPLAN",
		"LANGUAGE: Go\nREFRACTORED_CODE:\nfunc main() {}\n",
	}
	for _, buf := range buffers {
		a, okA := DecodeMarkers(buf)
		b, okB := DecodeMarkers(buf)
		if okA != okB || !cmp.Equal(a, b) {
			t.Errorf("DecodeMarkers(%q) not idempotent: %v/%v vs %v/%v", buf, a, okA, b, okB)
		}
		pa, okPA := decodeMarkers(buf, true)
		pb, okPB := decodeMarkers(buf, true)
		if okPA != okPB || !cmp.Equal(pa, pb) {
			t.Errorf("partial decode of %q not idempotent", buf)
		}
	}
}

func TestDecodeMarkers_LanguageAfterCodeIgnored(t *testing.T) {
	got, ok := DecodeMarkers("REFRACTORED_CODE:\nprint(1)\nLANGUAGE:\nPython\n")
	if !ok {
		t.Fatal("expected a result")
	}
	if got.Language != "" {
		t.Errorf("Language = %q, want empty", got.Language)
	}
}

func TestDecodeMarkers_LanguageFirstLineOnly(t *testing.T) {
	got, _ := DecodeMarkers("LANGUAGE:\n\n  Go  \nextra words\nREFRACTORED_CODE:\nx\n")
	if got.Language != "Go" {
		t.Errorf("Language = %q, want Go", got.Language)
	}
}

func TestDecodeMarkers_ExplanationCapped(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("REFRACTORED_CODE:\nx\nEXPLANATION:\n")
	for i := 0; i < 8; i++ {
		sb.WriteString("* item\n\n")
	}
	got, _ := DecodeMarkers(sb.String())
	if len(got.Explanation) != MaxExplanation {
		t.Fatalf("len(Explanation) = %d, want %d", len(got.Explanation), MaxExplanation)
	}
	for _, e := range got.Explanation {
		if e != "item" {
			t.Errorf("entry %q, want bullet stripped", e)
		}
	}
}

func TestStreamDecoder_SettledCodeUnchangedByTrailingBytes(t *testing.T) {
	d := NewStreamDecoder()
	first, ok := d.Write(pythonReply)
	if !ok {
		t.Fatal("expected a result")
	}
	for _, tail := range []string{"- c\n", "REFRACTORED_CODE: again\n", "trailing"} {
		next, ok := d.Write(tail)
		if !ok {
			t.Fatal("expected a result")
		}
		if next.RefactoredCode != first.RefactoredCode {
			t.Errorf("code changed after %q: %q -> %q", tail, first.RefactoredCode, next.RefactoredCode)
		}
	}
}

func TestStreamDecoder_ChunkBoundaries(t *testing.T) {
	// every split point of the reply must converge to the same final result
	want, _ := DecodeMarkers(pythonReply)
	for size := 1; size <= len(pythonReply); size++ {
		d := NewStreamDecoder()
		for i := 0; i < len(pythonReply); i += size {
			end := min(i+size, len(pythonReply))
			partial, ok := d.Write(pythonReply[i:end])
			if !ok {
				continue
			}
			// a partial code value is always a prefix of the final one
			if !strings.HasPrefix(want.RefactoredCode, partial.RefactoredCode) {
				t.Fatalf("chunk size %d: partial code %q is not a prefix of %q", size, partial.RefactoredCode, want.RefactoredCode)
			}
		}
		got, ok := d.Final()
		if !ok {
			t.Fatalf("chunk size %d: no final result", size)
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("chunk size %d (-want +got):\n%s", size, diff)
		}
	}
}

func TestStreamDecoder_HoldsBackSplitMarker(t *testing.T) {
	d := NewStreamDecoder()
	got, ok := d.Write("REFRACTORED_CODE:\nx = 1\nEXPLAN")
	if !ok {
		t.Fatal("expected a result")
	}
	if got.RefactoredCode != "x = 1" {
		t.Errorf("open stream code = %q, want %q", got.RefactoredCode, "x = 1")
	}

	// the terminal pass keeps everything: the stream really ended there
	final, _ := d.Final()
	if final.RefactoredCode != "x = 1\nEXPLAN" {
		t.Errorf("final code = %q", final.RefactoredCode)
	}

	got, _ = d.Write("ATION:\n- done\n")
	if got.RefactoredCode != "x = 1" || len(got.Explanation) != 1 || got.Explanation[0] != "done" {
		t.Errorf("after marker completed: %+v", got)
	}
}

func TestStreamDecoder_Buffer(t *testing.T) {
	d := NewStreamDecoder()
	d.Write("abc")
	d.Write("def")
	if d.Buffer() != "abcdef" || d.Len() != 6 {
		t.Errorf("Buffer() = %q, Len() = %d", d.Buffer(), d.Len())
	}
}

func TestDecodeMarkers_BulletRuns(t *testing.T) {
	got, ok := DecodeMarkers("REFRACTORED_CODE:\nx\nEXPLANATION:\n- -\n-- \n* -\n- ok\n")
	if !ok {
		t.Fatal("expected a result")
	}
	if diff := cmp.Diff([]string{"ok"}, got.Explanation); diff != "" {
		t.Errorf("Explanation mismatch (-want +got):\n%s", diff)
	}
}

func TestStreamDecoder_HoldsBackSplitFence(t *testing.T) {
	tests := []struct {
		name  string
		chunk string
		want  string
	}{
		{"one backtick", "REFRACTORED_CODE:\n```go\nfoo()\n`", "foo()"},
		{"two backticks", "REFRACTORED_CODE:\n```go\nfoo()\n``", "foo()"},
		{"whole fence", "REFRACTORED_CODE:\n```go\nfoo()\n```", "foo()"},
		{"indented", "REFRACTORED_CODE:\n```go\nfoo()\n  ``", "foo()"},
		{"code line kept", "REFRACTORED_CODE:\n```go\nfoo()\nbar`", "foo()\nbar`"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewStreamDecoder()
			got, ok := d.Write(tt.chunk)
			if !ok {
				t.Fatal("expected a result")
			}
			if code := NormalizePartial(got).RefactoredCode; code != tt.want {
				t.Errorf("partial code = %q, want %q", code, tt.want)
			}
		})
	}
}

func TestStreamDecoder_FencedPartialsArePrefixes(t *testing.T) {
	reply := "REFRACTORED_CODE:\n```go\nfoo()\nbar()\n```\nEXPLANATION:\n- split\n"
	final, _ := DecodeMarkers(reply)
	want := NormalizePartial(final).RefactoredCode
	for size := 1; size <= len(reply); size++ {
		d := NewStreamDecoder()
		for i := 0; i < len(reply); i += size {
			partial, ok := d.Write(reply[i:min(i+size, len(reply))])
			if !ok {
				continue
			}
			code := NormalizePartial(partial).RefactoredCode
			if !strings.HasPrefix(want, code) {
				t.Fatalf("chunk size %d: partial code %q is not a prefix of %q", size, code, want)
			}
		}
	}
}
