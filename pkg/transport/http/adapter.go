// Package http serves the tabula session API over HTTP using the Go 1.22
// ServeMux routing patterns.
package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"

	"github.com/rhuss/tabula/pkg/api"
	"github.com/rhuss/tabula/pkg/observability"
	"github.com/rhuss/tabula/pkg/storage"
	"github.com/rhuss/tabula/pkg/transport"
)

// Adapter serves the session API over HTTP.
// It routes requests to the appropriate handler and serializes responses.
type Adapter struct {
	asker    transport.Asker
	sessions transport.SessionService
	mux      *http.ServeMux
	config   Config
}

// Config holds configuration for the HTTP adapter.
type Config struct {
	// MaxBodySize limits JSON request bodies.
	MaxBodySize int64

	// MaxUploadBytes limits dataset uploads.
	MaxUploadBytes int64
}

// DefaultConfig returns the default adapter configuration.
func DefaultConfig() Config {
	return Config{
		MaxBodySize:    1 << 20,  // 1 MB
		MaxUploadBytes: 50 << 20, // 50 MB
	}
}

// NewAdapter creates an HTTP adapter. Middleware is applied to the Asker in
// the given order.
func NewAdapter(asker transport.Asker, sessions transport.SessionService, cfg Config, middlewares ...transport.Middleware) *Adapter {
	if len(middlewares) > 0 {
		asker = transport.Chain(middlewares...)(asker)
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = DefaultConfig().MaxBodySize
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultConfig().MaxUploadBytes
	}

	a := &Adapter{
		asker:    asker,
		sessions: sessions,
		mux:      http.NewServeMux(),
		config:   cfg,
	}

	a.mux.HandleFunc("POST /v1/sessions", a.handleCreateSession)
	a.mux.HandleFunc("GET /v1/sessions/{id}", a.handleGetSession)
	a.mux.HandleFunc("DELETE /v1/sessions/{id}", a.handleDeleteSession)
	a.mux.HandleFunc("POST /v1/sessions/{id}/upload", a.handleUpload)
	a.mux.HandleFunc("POST /v1/sessions/{id}/chat", a.handleChat)
	a.mux.HandleFunc("DELETE /v1/sessions/{id}/chat", a.handleCancelChat)
	a.mux.HandleFunc("GET /v1/sessions/{id}/turns", a.handleListTurns)
	a.mux.HandleFunc("GET /v1/artifacts/{id}/{name}", a.handleArtifact)
	a.mux.HandleFunc("GET /healthz", a.handleHealth)

	return a
}

// Handle registers an extra handler, such as /metrics or the MCP
// endpoint, on the adapter's mux.
func (a *Adapter) Handle(pattern string, h http.Handler) {
	a.mux.Handle(pattern, h)
}

// Handler returns the http.Handler for this adapter, wrapped with request
// ID propagation and request metrics.
func (a *Adapter) Handler() http.Handler {
	return httpRequestIDMiddleware(observability.MetricsMiddleware(a.mux))
}

// httpRequestIDMiddleware propagates the X-Request-ID header into the
// context and echoes the final request ID on the response.
func httpRequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := r.Header.Get("X-Request-ID"); id != "" {
			r = r.WithContext(transport.ContextWithRequestID(r.Context(), id))
		}
		rw := &requestIDResponseWriter{ResponseWriter: w, r: r}
		next.ServeHTTP(rw, r)
	})
}

// requestIDResponseWriter injects the X-Request-ID header before the
// first write.
type requestIDResponseWriter struct {
	http.ResponseWriter
	r           *http.Request
	headersSent bool
}

func (w *requestIDResponseWriter) WriteHeader(statusCode int) {
	w.ensureRequestIDHeader()
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *requestIDResponseWriter) Write(b []byte) (int, error) {
	w.ensureRequestIDHeader()
	return w.ResponseWriter.Write(b)
}

// Unwrap returns the underlying ResponseWriter for http.NewResponseController.
func (w *requestIDResponseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func (w *requestIDResponseWriter) ensureRequestIDHeader() {
	if w.headersSent {
		return
	}
	w.headersSent = true
	if id := transport.RequestIDFromContext(w.r.Context()); id != "" {
		w.ResponseWriter.Header().Set("X-Request-ID", id)
	}
}

// handleCreateSession handles POST /v1/sessions.
func (a *Adapter) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	info, err := a.sessions.CreateSession(r.Context())
	if err != nil {
		transport.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, info)
}

// handleGetSession handles GET /v1/sessions/{id}.
func (a *Adapter) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	info, err := a.sessions.GetSession(r.Context(), id)
	if err != nil {
		transport.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// handleDeleteSession handles DELETE /v1/sessions/{id}. A running turn is
// cancelled and the reply waits for it to stop.
func (a *Adapter) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	if err := a.sessions.DeleteSession(r.Context(), id); err != nil {
		transport.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleUpload handles POST /v1/sessions/{id}/upload with a multipart
// "file" field.
func (a *Adapter) handleUpload(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, a.config.MaxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			transport.WriteErrorResponse(w,
				api.NewInvalidRequestError("file", fmt.Sprintf("upload too large (max %d bytes)", a.config.MaxUploadBytes)),
				http.StatusRequestEntityTooLarge,
			)
			return
		}
		transport.WriteAPIError(w, api.NewInvalidRequestError("file", "multipart field \"file\" is required"))
		return
	}
	defer file.Close()

	resp, err := a.sessions.Upload(r.Context(), id, header.Filename, file)
	if err != nil {
		transport.WriteError(w, err)
		return
	}
	status := http.StatusOK
	if resp.Status != "success" {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, resp)
}

// handleChat handles POST /v1/sessions/{id}/chat. DELETE on the same path
// aborts the turn once it is running.
func (a *Adapter) handleChat(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	if ct := r.Header.Get("Content-Type"); ct != "" {
		if mt, _, _ := mime.ParseMediaType(ct); mt != "application/json" {
			transport.WriteErrorResponse(w,
				api.NewInvalidRequestError("content_type", "Content-Type must be application/json"),
				http.StatusUnsupportedMediaType,
			)
			return
		}
	}

	r.Body = http.MaxBytesReader(w, r.Body, a.config.MaxBodySize)
	var req api.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			transport.WriteErrorResponse(w,
				api.NewInvalidRequestError("body", fmt.Sprintf("request body too large (max %d bytes)", a.config.MaxBodySize)),
				http.StatusRequestEntityTooLarge,
			)
			return
		}
		transport.WriteAPIError(w, api.NewInvalidRequestError("body", "invalid JSON: "+err.Error()))
		return
	}

	resp, err := a.asker.Ask(r.Context(), id, &req)
	if err != nil {
		transport.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleCancelChat handles DELETE /v1/sessions/{id}/chat.
func (a *Adapter) handleCancelChat(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	if err := a.sessions.CancelTurn(r.Context(), id); err != nil {
		transport.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListTurns handles GET /v1/sessions/{id}/turns.
func (a *Adapter) handleListTurns(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	opts, apiErr := parseListOptions(r)
	if apiErr != nil {
		transport.WriteAPIError(w, apiErr)
		return
	}
	list, err := a.sessions.ListTurns(r.Context(), id, opts)
	if err != nil {
		transport.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// handleArtifact handles GET /v1/artifacts/{id}/{name}.
func (a *Adapter) handleArtifact(w http.ResponseWriter, r *http.Request) {
	path, err := a.sessions.ArtifactPath(r.PathValue("id"), r.PathValue("name"))
	if err != nil {
		transport.WriteError(w, err)
		return
	}
	w.Header().Set("Cache-Control", "private, max-age=3600")
	http.ServeFile(w, r, path)
}

// handleHealth handles GET /healthz.
func (a *Adapter) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := a.sessions.HealthCheck(r.Context()); err != nil {
		transport.WriteErrorResponse(w, api.NewServerError("store unavailable"), http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("ok\n"))
}

func sessionID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.PathValue("id")
	if !api.ValidateSessionID(id) {
		transport.WriteAPIError(w, api.NewInvalidRequestError("id", "malformed session ID"))
		return "", false
	}
	return id, true
}

// parseListOptions extracts pagination parameters from the query string.
func parseListOptions(r *http.Request) (storage.ListOptions, *api.APIError) {
	q := r.URL.Query()
	opts := storage.ListOptions{
		After: q.Get("after"),
		Order: q.Get("order"),
	}

	if opts.Order != "" && opts.Order != "asc" && opts.Order != "desc" {
		return opts, api.NewInvalidRequestError("order", "order must be 'asc' or 'desc'")
	}

	if limitStr := q.Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 1 {
			return opts, api.NewInvalidRequestError("limit", "limit must be a positive integer")
		}
		opts.Limit = limit
	}

	return opts, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
