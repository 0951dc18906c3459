// Package web is the HTTP surface: the SSE chat endpoint, the
// elicitation endpoint, and conversation CRUD, behind JWT auth and
// per-user rate limiting.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/farewatch/farewatch/internal/auth"
	"github.com/farewatch/farewatch/internal/chat"
	"github.com/farewatch/farewatch/internal/conversations"
	"github.com/farewatch/farewatch/internal/observability"
	"github.com/farewatch/farewatch/internal/ratelimit"
	"github.com/farewatch/farewatch/pkg/models"
)

// ChatStreamer is the orchestrator surface the handlers consume.
type ChatStreamer interface {
	Stream(ctx context.Context, req *chat.Request) <-chan models.ChatChunk
	SubmitElicitation(ctx context.Context, ans *chat.ElicitationAnswer) <-chan models.ChatChunk
}

// Handler serves the HTTP API.
type Handler struct {
	chat    ChatStreamer
	convs   conversations.Store
	jwt     *auth.JWTService
	limiter *ratelimit.Limiter
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewHandler wires the HTTP surface.
func NewHandler(chatStreamer ChatStreamer, convs conversations.Store, jwtService *auth.JWTService, limiter *ratelimit.Limiter, metrics *observability.Metrics, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		chat:    chatStreamer,
		convs:   convs,
		jwt:     jwtService,
		limiter: limiter,
		metrics: metrics,
		logger:  logger.With("component", "web"),
	}
}

// Mux returns the routed handler. /healthz and /metrics are public;
// everything under /api requires a valid token.
func (h *Handler) Mux() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("POST /api/chat", h.handleChat)
	api.HandleFunc("POST /api/chat/elicitation", h.handleElicitation)
	api.HandleFunc("GET /api/conversations", h.handleListConversations)
	api.HandleFunc("GET /api/conversations/{id}", h.handleGetConversation)
	api.HandleFunc("DELETE /api/conversations/{id}", h.handleDeleteConversation)

	authed := auth.Middleware(h.jwt, h.logger)(api)

	root := http.NewServeMux()
	root.HandleFunc("GET /healthz", handleHealthz)
	root.Handle("GET /metrics", promhttp.Handler())
	root.Handle("/api/", h.instrument(authed))
	return root
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

type chatRequest struct {
	Message  string `json:"message"`
	ThreadID string `json:"thread_id,omitempty"`
}

func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		h.countChat("unauthorized")
		writeError(w, http.StatusUnauthorized, "missing credentials")
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.countChat("rejected")
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	// The limiter runs before the stream opens so a throttled request
	// costs a plain 429 instead of an SSE connection. Buckets are keyed
	// per user per endpoint so chat pressure never starves other routes.
	limitKey := ratelimit.CompositeKey(user.ID, "chat")
	if h.limiter != nil && !h.limiter.Allow(limitKey) {
		h.countChat("rate_limited")
		wait := h.limiter.WaitTime(limitKey)
		w.Header().Set("Retry-After", strconv.Itoa(int(wait.Seconds())+1))
		writeError(w, http.StatusTooManyRequests, "too many requests, slow down")
		return
	}

	start := time.Now()
	chunks := h.chat.Stream(r.Context(), &chat.Request{
		UserID:    user.ID,
		UserName:  user.Name,
		ThreadID:  req.ThreadID,
		Utterance: req.Message,
	})
	failed := h.streamSSE(w, r, chunks)

	if h.metrics != nil {
		h.metrics.ChatStreamDuration.Observe(time.Since(start).Seconds())
	}
	if failed {
		h.countChat("error")
	} else {
		h.countChat("ok")
	}
}

type elicitationRequest struct {
	ThreadID   string         `json:"thread_id"`
	ToolCallID string         `json:"tool_call_id"`
	ToolName   string         `json:"tool_name"`
	Args       map[string]any `json:"args"`
}

func (h *Handler) handleElicitation(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing credentials")
		return
	}

	var req elicitationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ThreadID == "" || req.ToolCallID == "" || req.ToolName == "" {
		writeError(w, http.StatusBadRequest, "thread_id, tool_call_id, and tool_name are required")
		return
	}

	chunks := h.chat.SubmitElicitation(r.Context(), &chat.ElicitationAnswer{
		UserID:     user.ID,
		ThreadID:   req.ThreadID,
		ToolCallID: req.ToolCallID,
		ToolName:   req.ToolName,
		Args:       req.Args,
	})
	h.streamSSE(w, r, chunks)
}

func (h *Handler) handleListConversations(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())

	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)
	list, err := h.convs.List(r.Context(), user.ID, limit, offset)
	if err != nil {
		h.logger.Error("list conversations failed", "error", err)
		writeError(w, http.StatusInternalServerError, "could not list conversations")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": list, "count": len(list)})
}

func (h *Handler) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())
	id := r.PathValue("id")

	conv, err := h.convs.Get(r.Context(), id, user.ID)
	if err != nil {
		if errors.Is(err, conversations.ErrNotFound) {
			writeError(w, http.StatusNotFound, "conversation not found")
			return
		}
		h.logger.Error("get conversation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "could not load conversation")
		return
	}

	msgs, err := h.convs.Messages(r.Context(), conv.ID, 0)
	if err != nil {
		h.logger.Error("load messages failed", "error", err)
		writeError(w, http.StatusInternalServerError, "could not load messages")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversation": conv, "messages": msgs})
}

func (h *Handler) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())
	id := r.PathValue("id")

	if err := h.convs.Delete(r.Context(), id, user.ID); err != nil {
		if errors.Is(err, conversations.ErrNotFound) {
			writeError(w, http.StatusNotFound, "conversation not found")
			return
		}
		h.logger.Error("delete conversation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "could not delete conversation")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) countChat(status string) {
	if h.metrics != nil {
		h.metrics.ChatRequest(status)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

// Server runs the HTTP listener with graceful shutdown.
type Server struct {
	server *http.Server
	logger *slog.Logger
}

// NewServer builds the http.Server around the handler.
func NewServer(addr string, handler http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		server: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// ListenAndServe blocks until the listener fails or Shutdown runs.
func (s *Server) ListenAndServe() error {
	s.logger.Info("starting http server", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
