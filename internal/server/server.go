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

// Package server exposes refactoring over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/cloudwego/refactorbot/internal/utils"
	"github.com/cloudwego/refactorbot/lang/refactor"
	"github.com/cloudwego/refactorbot/llm/log"
)

const (
	HeaderRequestID = "X-Request-Id"
	ContentTypeJSON = "application/json"
	// ContentTypeNDJSON is used by the streaming endpoint: one JSON object per line.
	ContentTypeNDJSON = "application/x-ndjson"

	msgCodeRequired  = "Code is required."
	msgBadBody       = "Invalid request body."
	msgNotConfigured = "The model is not configured."
	msgTimeout       = "The model did not answer in time."
)

type Options struct {
	// Refactor holds the model callbacks. A zero value makes refactoring
	// endpoints answer 500 until SetBackend is called.
	Refactor refactor.Options
	// Format is the reply layout asked for by POST /api/refactor.
	Format         refactor.OutputFormat
	RequestTimeout time.Duration
	MaxBodyBytes   int64
}

type Server struct {
	mu      sync.RWMutex
	backend refactor.Options
	format  refactor.OutputFormat

	requestTimeout time.Duration
	maxBodyBytes   int64
}

func New(opts Options) *Server {
	s := &Server{
		requestTimeout: opts.RequestTimeout,
		maxBodyBytes:   opts.MaxBodyBytes,
	}
	if s.maxBodyBytes <= 0 {
		s.maxBodyBytes = 1 << 20
	}
	s.SetBackend(opts.Refactor, opts.Format)
	return s
}

// SetBackend swaps the model callbacks, e.g. after a config reload. Requests
// already running keep the backend they started with.
func (s *Server) SetBackend(opts refactor.Options, format refactor.OutputFormat) {
	if format == "" {
		format = refactor.FormatJSON
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backend = opts
	s.format = format
}

func (s *Server) current() (refactor.Options, refactor.OutputFormat) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.backend, s.format
}

// Handler returns the routes wrapped with CORS and request ids.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/refactor", s.handleRefactor)
	mux.HandleFunc("POST /api/refactor/stream", s.handleRefactorStream)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return withRequestID(withCORS(mux))
}

// ListenAndServe serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string, readHeaderTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("RefactorBot API listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return utils.WrapError(err, "listen on %s", addr)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info("shutting down HTTP server")
		return srv.Shutdown(shutdownCtx)
	}
}

// RefactorRequest is the JSON body of both refactoring endpoints.
type RefactorRequest struct {
	Code     string         `json:"code"`
	Language string         `json:"language"`
	Options  refactor.Goals `json:"options"`
	// Format overrides the configured reply layout; ignored when streaming.
	Format string `json:"format,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// StreamEvent is one NDJSON line of the streaming endpoint. The last line has
// Partial set to false and carries either the final result or an error.
type StreamEvent struct {
	Partial bool             `json:"partial"`
	Result  *refactor.Result `json:"result,omitempty"`
	Error   string           `json:"error,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

// decode reads the body and builds a request. It writes the error response
// itself and returns false on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, format refactor.OutputFormat) (refactor.Request, bool) {
	var body RefactorRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.maxBodyBytes))
	if err := dec.Decode(&body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, http.StatusRequestEntityTooLarge, err.Error())
		} else {
			writeError(w, r, http.StatusBadRequest, msgBadBody)
		}
		return refactor.Request{}, false
	}
	if body.Format != "" {
		f, err := refactor.ParseOutputFormat(body.Format)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return refactor.Request{}, false
		}
		format = f
	}
	req, err := refactor.NewRequest(body.Code, body.Language, body.Options, format)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, msgCodeRequired)
		return refactor.Request{}, false
	}
	return req, true
}

func (s *Server) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.requestTimeout > 0 {
		return context.WithTimeout(ctx, s.requestTimeout)
	}
	return context.WithCancel(ctx)
}

func (s *Server) handleRefactor(w http.ResponseWriter, r *http.Request) {
	backend, format := s.current()
	req, ok := s.decode(w, r, format)
	if !ok {
		return
	}
	if backend.LLMCall == nil {
		writeError(w, r, http.StatusInternalServerError, msgNotConfigured)
		return
	}

	ctx, cancel := s.withTimeout(r.Context())
	defer cancel()
	res, err := refactor.Refactor(ctx, req, backend)
	if err != nil {
		s.writeRefactorError(w, r, err)
		return
	}
	logger(r).Info("refactored %d bytes of %s into %d bytes", len(req.SourceCode), languageOf(req), len(res.RefactoredCode))
	writeJSON(w, r, http.StatusOK, res)
}

func (s *Server) handleRefactorStream(w http.ResponseWriter, r *http.Request) {
	backend, _ := s.current()
	req, ok := s.decode(w, r, refactor.FormatMarkers)
	if !ok {
		return
	}
	if backend.LLMStream == nil {
		writeError(w, r, http.StatusInternalServerError, msgNotConfigured)
		return
	}

	ctx, cancel := s.withTimeout(r.Context())
	defer cancel()

	flusher, _ := w.(http.Flusher)
	started := false
	send := func(ev StreamEvent) error {
		line, err := utils.MarshalJSONBytes(ev)
		if err != nil {
			return err
		}
		if !started {
			w.Header().Set("Content-Type", ContentTypeNDJSON)
			w.Header().Set("Cache-Control", "no-cache")
			w.WriteHeader(http.StatusOK)
			started = true
		}
		if _, err := w.Write(append(line, '\n')); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	}

	partials := 0
	res, err := refactor.RefactorStream(ctx, req, backend, func(partial refactor.Result) error {
		partials++
		return send(StreamEvent{Partial: true, Result: &partial})
	})
	if err != nil && !started {
		s.writeRefactorError(w, r, err)
		return
	}
	if r.Context().Err() != nil {
		logger(r).Info("client went away after %d partial results", partials)
		return
	}
	final := StreamEvent{Result: res}
	if err != nil {
		logger(r).Warn("stream stopped: %v", err)
		final.Error = errorMessage(err)
	}
	if err := send(final); err != nil {
		logger(r).Warn("write final result: %v", err)
		return
	}
	logger(r).Info("streamed %s refactoring: %d partial results", languageOf(req), partials)
}

func (s *Server) writeRefactorError(w http.ResponseWriter, r *http.Request, err error) {
	var upstream *refactor.UpstreamError
	switch {
	case errors.Is(err, refactor.ErrMissingInput):
		writeError(w, r, http.StatusBadRequest, msgCodeRequired)
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, r, http.StatusGatewayTimeout, msgTimeout)
	case errors.As(err, &upstream):
		logger(r).Error("%v", err)
		writeError(w, r, http.StatusBadGateway, upstream.Detail)
	default:
		logger(r).Error("refactor failed: %v", err)
		writeError(w, r, http.StatusInternalServerError, err.Error())
	}
}

func errorMessage(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return msgTimeout
	}
	var upstream *refactor.UpstreamError
	if errors.As(err, &upstream) {
		return upstream.Detail
	}
	return err.Error()
}

func languageOf(req refactor.Request) string {
	if req.SourceLanguage == "" {
		return "unspecified"
	}
	return req.SourceLanguage
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	body, err := utils.MarshalJSONBytes(v)
	if err != nil {
		logger(r).Error("encode response: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", ContentTypeJSON)
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, r, status, errorResponse{Error: msg})
}
