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

package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudwego/refactorbot/lang/refactor"
)

type chunkStream struct {
	chunks []string
	err    error
}

func (s *chunkStream) Recv() (string, error) {
	if len(s.chunks) == 0 {
		if s.err != nil {
			return "", s.err
		}
		return "", io.EOF
	}
	c := s.chunks[0]
	s.chunks = s.chunks[1:]
	return c, nil
}

func (s *chunkStream) Close() {}

const markerReply = "LANGUAGE:\nJavaScript\nREFRACTORED_CODE:\nconst add = (a, b) => a + b;\nEXPLANATION:\n- arrow function\n"

func fakeBackend(reply string, callErr error, seen *refactor.LLMRequest) refactor.Options {
	return refactor.Options{
		Provider: "fake",
		LLMCall: func(ctx context.Context, req *refactor.LLMRequest) (string, error) {
			if seen != nil {
				*seen = *req
			}
			return reply, callErr
		},
		LLMStream: func(ctx context.Context, req *refactor.LLMRequest) (refactor.TextStream, error) {
			if callErr != nil {
				return nil, callErr
			}
			var chunks []string
			for i := 0; i < len(markerReply); i += 7 {
				chunks = append(chunks, markerReply[i:min(i+7, len(markerReply))])
			}
			return &chunkStream{chunks: chunks}, nil
		},
	}
}

func post(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", ContentTypeJSON)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var e errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
	return e.Error
}

func TestRefactorEndpoint(t *testing.T) {
	var seen refactor.LLMRequest
	reply := "```json\n{\"refactoredCode\":\"const add = (a, b) => a + b;\",\"explanation\":[\"arrow function\"]}\n```"
	h := New(Options{Refactor: fakeBackend(reply, nil, &seen)}).Handler()

	rec := post(t, h, "/api/refactor", `{"code":"function add(a,b){return a+b}","language":"JavaScript","options":{"applySolid":true}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, ContentTypeJSON, rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get(HeaderRequestID))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	var res refactor.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "const add = (a, b) => a + b;", res.RefactoredCode)
	assert.Equal(t, []string{"arrow function"}, res.Explanation)

	assert.True(t, seen.Request.Goals.ApplySolid)
	assert.Equal(t, refactor.FormatJSON, seen.Request.Format)
	assert.Contains(t, seen.Prompt, "apply SOLID principles")
}

func TestRefactorEndpoint_Errors(t *testing.T) {
	tests := []struct {
		name     string
		backend  refactor.Options
		body     string
		wantCode int
		wantMsg  string
	}{
		{"missing code", fakeBackend("", nil, nil), `{"code":"   "}`, http.StatusBadRequest, msgCodeRequired},
		{"no code field", fakeBackend("", nil, nil), `{}`, http.StatusBadRequest, msgCodeRequired},
		{"bad json", fakeBackend("", nil, nil), `{"code":`, http.StatusBadRequest, msgBadBody},
		{"bad format", fakeBackend("", nil, nil), `{"code":"x","format":"xml"}`, http.StatusBadRequest, "unknown output format"},
		{"not configured", refactor.Options{}, `{"code":"x"}`, http.StatusInternalServerError, msgNotConfigured},
		{"upstream", fakeBackend("", errors.New("API key not valid"), nil), `{"code":"x"}`, http.StatusBadGateway, "API key not valid"},
		{"upstream timeout", fakeBackend("", context.DeadlineExceeded, nil), `{"code":"x"}`, http.StatusGatewayTimeout, msgTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New(Options{Refactor: tt.backend}).Handler()
			rec := post(t, h, "/api/refactor", tt.body)
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Contains(t, decodeError(t, rec), tt.wantMsg)
		})
	}
}

func TestRefactorEndpoint_UnusableReply(t *testing.T) {
	h := New(Options{Refactor: fakeBackend("I cannot do that.", nil, nil)}).Handler()
	rec := post(t, h, "/api/refactor", `{"code":"x=1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var res refactor.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "x=1", res.RefactoredCode)
	assert.Equal(t, []string{refactor.DiagnosticInvalidFormat, refactor.DiagnosticRetry}, res.Explanation)
}

func TestRefactorEndpoint_BodyLimit(t *testing.T) {
	h := New(Options{Refactor: fakeBackend("", nil, nil), MaxBodyBytes: 16}).Handler()
	rec := post(t, h, "/api/refactor", `{"code":"`+strings.Repeat("x", 64)+`"}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestStreamEndpoint(t *testing.T) {
	var seen refactor.LLMRequest
	backend := fakeBackend("", nil, nil)
	open := backend.LLMStream
	backend.LLMStream = func(ctx context.Context, req *refactor.LLMRequest) (refactor.TextStream, error) {
		seen = *req
		return open(ctx, req)
	}
	h := New(Options{Refactor: backend, Format: refactor.FormatJSON}).Handler()

	rec := post(t, h, "/api/refactor/stream", `{"code":"function add(a,b){return a+b}","format":"json"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, ContentTypeNDJSON, rec.Header().Get("Content-Type"))
	assert.Equal(t, refactor.FormatMarkers, seen.Request.Format)

	var events []StreamEvent
	scanner := bufio.NewScanner(rec.Body)
	for scanner.Scan() {
		var ev StreamEvent
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &ev), scanner.Text())
		events = append(events, ev)
	}
	require.GreaterOrEqual(t, len(events), 2)

	last := events[len(events)-1]
	assert.False(t, last.Partial)
	assert.Empty(t, last.Error)
	require.NotNil(t, last.Result)
	assert.Equal(t, "const add = (a, b) => a + b;", last.Result.RefactoredCode)
	assert.Equal(t, []string{"Language: JavaScript", "arrow function"}, last.Result.Explanation)

	for _, ev := range events[:len(events)-1] {
		assert.True(t, ev.Partial)
		require.NotNil(t, ev.Result)
		assert.NotEmpty(t, ev.Result.RefactoredCode)
		assert.True(t, strings.HasPrefix(last.Result.RefactoredCode, ev.Result.RefactoredCode))
	}
}

func TestStreamEndpoint_UpstreamError(t *testing.T) {
	h := New(Options{Refactor: fakeBackend("", errors.New("quota exceeded"), nil)}).Handler()
	rec := post(t, h, "/api/refactor/stream", `{"code":"x"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "quota exceeded", decodeError(t, rec))
}

func TestSetBackend(t *testing.T) {
	s := New(Options{})
	h := s.Handler()
	rec := post(t, h, "/api/refactor", `{"code":"x"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	s.SetBackend(fakeBackend(markerReply, nil, nil), refactor.FormatMarkers)
	rec = post(t, h, "/api/refactor", `{"code":"x"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var res refactor.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "JavaScript", res.Language)
}

func TestHealthAndCORS(t *testing.T) {
	h := New(Options{}).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	req := httptest.NewRequest(http.MethodOptions, "/api/refactor", nil)
	req.Header.Set(HeaderRequestID, "req-1")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "req-1", rec.Header().Get(HeaderRequestID))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/refactor", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestListenAndServe(t *testing.T) {
	s := New(Options{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx, "127.0.0.1:0", time.Second) }()
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("server did not shut down")
	}
}
