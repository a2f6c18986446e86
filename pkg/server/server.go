// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package server exposes the assistant over HTTP+JSON.
//
//	POST /chat     {"message": "...", "session_id": "..."} -> {"response": "..."}
//	GET  /healthz  {"status": "ok"}
package server

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/skycast/pkg/errors"
)

const (
	// EmptyMessageReply is returned for blank messages without running any agent.
	EmptyMessageReply = "Please provide a valid message."
	// EmptyOutputReply replaces an empty final output.
	EmptyOutputReply = "Sorry, I couldn't compose that."

	maxBodyBytes = 1 << 20
)

// Replier produces the user-facing reply for one message in a session.
// runtime.Orchestrator implements it.
type Replier interface {
	Reply(ctx context.Context, sessionID, input string) string
}

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

// ChatResponse is the body returned by POST /chat.
type ChatResponse struct {
	Response string `json:"response"`
}

// Server routes HTTP requests to a Replier.
type Server struct {
	replier        Replier
	defaultSession string
	origins        map[string]struct{}
	requestTimeout time.Duration
	logger         *slog.Logger
	tracer         trace.Tracer
}

// Option configures a Server.
type Option func(*Server)

// WithAllowedOrigins sets the CORS allow-list. Trailing slashes are ignored.
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) {
		for _, o := range origins {
			if o = normalizeOrigin(o); o != "" {
				s.origins[o] = struct{}{}
			}
		}
	}
}

// WithDefaultSession sets the session used when a request names none.
func WithDefaultSession(id string) Option {
	return func(s *Server) {
		if id != "" {
			s.defaultSession = id
		}
	}
}

// WithRequestTimeout bounds each /chat request. Zero disables the deadline.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) { s.requestTimeout = d }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a Server.
func New(replier Replier, opts ...Option) *Server {
	s := &Server{
		replier:        replier,
		defaultSession: "my_first_conversation",
		origins:        make(map[string]struct{}),
		logger:         slog.Default(),
		tracer:         otel.Tracer("skycast/server"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ServeHTTP applies CORS and routes the request.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	allowed := s.applyCORS(w, r)
	if r.Method == http.MethodOptions {
		if !allowed {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}

	switch strings.TrimSuffix(r.URL.Path, "/") {
	case "/chat":
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			writeError(w, errors.New(errors.CodeInvalidInput, "method not allowed", nil), http.StatusMethodNotAllowed)
			return
		}
		s.handleChat(w, r)
	case "/healthz":
		if r.Method != http.MethodGet {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	ctx, span := s.tracer.Start(r.Context(), "server.chat")
	defer span.End()

	var req ChatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err, 0)
		return
	}

	message := strings.TrimSpace(req.Message)
	if message == "" {
		writeJSON(w, http.StatusOK, ChatResponse{Response: EmptyMessageReply})
		return
	}
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = s.defaultSession
	}
	span.SetAttributes(attribute.String("session.id", sessionID))

	if s.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.requestTimeout)
		defer cancel()
	}

	start := time.Now()
	reply := s.replier.Reply(ctx, sessionID, message)
	if strings.TrimSpace(reply) == "" {
		reply = EmptyOutputReply
	}
	s.logger.InfoContext(ctx, "server.chat",
		slog.String("session_id", sessionID),
		slog.Duration("duration", time.Since(start)),
	)
	writeJSON(w, http.StatusOK, ChatResponse{Response: reply})
}

// applyCORS sets the CORS headers when the request's Origin is allowed.
func (s *Server) applyCORS(w http.ResponseWriter, r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return false
	}
	if _, ok := s.origins[normalizeOrigin(origin)]; !ok {
		return false
	}
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", origin)
	h.Set("Access-Control-Allow-Credentials", "true")
	h.Add("Vary", "Origin")
	if r.Method == http.MethodOptions {
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if reqHeaders := r.Header.Get("Access-Control-Request-Headers"); reqHeaders != "" {
			h.Set("Access-Control-Allow-Headers", reqHeaders)
		} else {
			h.Set("Access-Control-Allow-Headers", "Content-Type")
		}
	}
	return true
}

func normalizeOrigin(o string) string {
	return strings.TrimSuffix(strings.TrimSpace(o), "/")
}

func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return errors.New(errors.CodeInvalidInput, "request body is required", nil)
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if stderrors.Is(err, io.EOF) {
			return errors.New(errors.CodeInvalidInput, "request body is required", nil)
		}
		return errors.New(errors.CodeInvalidInput, "invalid JSON body", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes err as JSON. A zero status uses the error code's status.
func writeError(w http.ResponseWriter, err error, status int) {
	se := errors.AsSkycastError(err)
	if status == 0 {
		status = se.StatusCode
	}
	writeJSON(w, status, map[string]any{"error": se})
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server.listen", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if stderrors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.New(errors.CodeInternal, "http server failed", err).WithContext("addr", addr)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.logger.Info("server.shutdown", slog.String("addr", addr))
		return srv.Shutdown(shutdownCtx)
	}
}
