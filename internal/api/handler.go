// Package api provides the HTTP API for the node registry.
// It exposes REST endpoints for publishing and resolving node types and
// SSE for streaming publish events.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AgentRuntimeProtocol/ARP-Template-NodeRegistry/internal/log"
	"github.com/AgentRuntimeProtocol/ARP-Template-NodeRegistry/internal/pubsub"
	"github.com/AgentRuntimeProtocol/ARP-Template-NodeRegistry/internal/registry"
	"github.com/AgentRuntimeProtocol/ARP-Template-NodeRegistry/internal/tracing"
)

// heartbeatInterval is how often SSE streams emit a keep-alive comment.
const heartbeatInterval = 30 * time.Second

// Handler provides HTTP endpoints for registry operations.
type Handler struct {
	registry registry.NodeRegistry
	events   pubsub.Subscriber[registry.NodeType]
}

// HandlerConfig configures the API handler.
type HandlerConfig struct {
	// Registry serves all node type operations (required).
	Registry registry.NodeRegistry
	// Events is the publish event stream exposed over SSE (optional).
	// If nil, GET /v1/events reports that streaming is disabled.
	Events pubsub.Subscriber[registry.NodeType]
}

// NewHandler creates a new API handler wrapping the given registry.
func NewHandler(reg registry.NodeRegistry) *Handler {
	return &Handler{registry: reg}
}

// NewHandlerWithConfig creates a new API handler with full configuration.
func NewHandlerWithConfig(cfg HandlerConfig) *Handler {
	return &Handler{
		registry: cfg.Registry,
		events:   cfg.Events,
	}
}

// Routes returns an http.Handler with all API routes registered.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	// Service metadata
	mux.HandleFunc("GET /v1/health", h.Health)
	mux.HandleFunc("GET /v1/version", h.Version)

	// Node types
	mux.HandleFunc("POST /v1/node-types", h.Publish)
	mux.HandleFunc("GET /v1/node-types", h.List)
	mux.HandleFunc("GET /v1/node-types/{id}", h.Get)

	// Event streaming
	mux.HandleFunc("GET /v1/events", h.StreamEvents)

	return mux
}

// === Request/Response Types ===

// PublishNodeTypeRequest is the request body for publishing a node type.
type PublishNodeTypeRequest struct {
	NodeType registry.NodeType `json:"node_type"`
}

// NodeTypeResponse is the response body carrying a single node type.
type NodeTypeResponse struct {
	NodeType registry.NodeType `json:"node_type"`
}

// ListNodeTypesResponse is the response body for listing node types.
type ListNodeTypesResponse struct {
	NodeTypes []registry.NodeType `json:"node_types"`
	Total     int                 `json:"total"`
}

// ErrorResponse is the response body for errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// publishedEventData is the SSE data payload for a publish event.
// Subscribers fetch the full record via GET /v1/node-types/{id} if they
// need more than the identity.
type publishedEventData struct {
	NodeTypeID string            `json:"node_type_id"`
	Version    string            `json:"version"`
	Kind       registry.NodeKind `json:"kind"`
	Timestamp  time.Time         `json:"timestamp"`
}

// === Handlers ===

// Health reports service liveness.
// GET /v1/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.registry.Health())
}

// Version reports the service identity and supported API versions.
// GET /v1/version
func (h *Handler) Version(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.registry.VersionInfo())
}

// Publish registers a new node type version.
// POST /v1/node-types
func (h *Handler) Publish(w http.ResponseWriter, r *http.Request) {
	var req PublishNodeTypeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_json", "Invalid JSON body", err.Error())
		return
	}

	// Reject incomplete records at the boundary so the error reads as a
	// request problem, not a registry one.
	if err := req.NodeType.Validate(); err != nil {
		h.writeError(w, http.StatusBadRequest, "validation_error", err.Error(), "")
		return
	}

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(
		attribute.String(tracing.AttrNodeTypeID, req.NodeType.NodeTypeID),
		attribute.String(tracing.AttrNodeTypeVersion, req.NodeType.Version),
		attribute.String(tracing.AttrNodeTypeKind, string(req.NodeType.Kind)),
	)

	nt, err := h.registry.PublishNodeType(r.Context(), req.NodeType)
	if err != nil {
		h.writeDomainError(w, span, err)
		return
	}

	span.AddEvent(tracing.EventNodeTypePublished)
	h.writeJSON(w, http.StatusCreated, NodeTypeResponse{NodeType: nt})
}

// Get returns a node type by id. Without an explicit version the latest
// published version is resolved.
// GET /v1/node-types/{id}?version=1.2.3
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	version := r.URL.Query().Get("version")

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String(tracing.AttrNodeTypeID, id))
	if version != "" {
		span.SetAttributes(attribute.String(tracing.AttrNodeTypeVersion, version))
	}

	nt, err := h.registry.GetNodeType(r.Context(), id, version)
	if err != nil {
		h.writeDomainError(w, span, err)
		return
	}

	h.writeJSON(w, http.StatusOK, NodeTypeResponse{NodeType: nt})
}

// List returns node types matching optional filters, sorted by id then
// version.
// GET /v1/node-types?q=echo&kind=atomic
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	query := registry.ListQuery{
		Query: r.URL.Query().Get("q"),
		Kind:  registry.NodeKind(r.URL.Query().Get("kind")),
	}

	span := trace.SpanFromContext(r.Context())
	if query.Query != "" {
		span.SetAttributes(attribute.String(tracing.AttrQueryFilter, query.Query))
	}
	if query.Kind != "" {
		span.SetAttributes(attribute.String(tracing.AttrQueryKind, string(query.Kind)))
	}

	types := h.registry.ListNodeTypes(r.Context(), query)
	span.SetAttributes(attribute.Int(tracing.AttrQueryResults, len(types)))

	h.writeJSON(w, http.StatusOK, ListNodeTypesResponse{
		NodeTypes: types,
		Total:     len(types),
	})
}

// StreamEvents streams publish events via SSE.
// GET /v1/events
func (h *Handler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	if h.events == nil {
		h.writeError(w, http.StatusNotFound, "streaming_disabled", "Event streaming is not enabled", "")
		return
	}

	events, unsub := h.events.Subscribe(r.Context())
	defer unsub()

	h.streamEvents(w, r, events)
}

// === Helpers ===

func (h *Handler) streamEvents(w http.ResponseWriter, r *http.Request, events <-chan pubsub.Event[registry.NodeType]) {
	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "streaming_unsupported", "Streaming not supported", "")
		return
	}

	// Send initial connection event
	_, _ = fmt.Fprintf(w, "event: connected\ndata: {}\n\n")
	flusher.Flush()

	// Heartbeat comments keep idle connections from being reaped by
	// intermediaries.
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = fmt.Fprintf(w, ": heartbeat\n\n")
			flusher.Flush()
		case event, ok := <-events:
			if !ok {
				return
			}

			data, err := json.Marshal(publishedEventData{
				NodeTypeID: event.Payload.NodeTypeID,
				Version:    event.Payload.Version,
				Kind:       event.Payload.Kind,
				Timestamp:  event.Timestamp,
			})
			if err != nil {
				log.ErrorErr(log.CatHTTP, "failed to marshal publish event", err)
				continue
			}

			_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
			flusher.Flush()
		}
	}
}

// writeDomainError maps structured registry errors onto their carried
// status and code. Anything else is reported as a 500.
func (h *Handler) writeDomainError(w http.ResponseWriter, span trace.Span, err error) {
	var regErr *registry.Error
	if errors.As(err, &regErr) {
		span.SetAttributes(attribute.String(tracing.AttrErrorCode, regErr.Code))
		h.writeError(w, regErr.Status, regErr.Code, regErr.Message, "")
		return
	}
	h.writeError(w, http.StatusInternalServerError, "internal_error", "Internal server error", err.Error())
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.ErrorErr(log.CatHTTP, "failed to encode JSON response", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, message, details string) {
	h.writeJSON(w, status, ErrorResponse{
		Error:   message,
		Code:    code,
		Details: details,
	})
}

// Server wraps the Handler with an http.Server for lifecycle management.
type Server struct {
	handler  *Handler
	server   *http.Server
	listener net.Listener
	addr     string
	port     int // Actual port after binding (useful when using :0)
}

// ServerConfig configures the API server.
type ServerConfig struct {
	// Addr is the address to listen on (e.g., "localhost:8080" or ":0").
	Addr string
	// Registry serves all node type operations (required).
	Registry registry.NodeRegistry
	// Events is the publish event stream exposed over SSE (optional).
	Events pubsub.Subscriber[registry.NodeType]
	// Tracer creates one server span per request when set.
	Tracer trace.Tracer
	// BearerToken protects the node type routes when non-empty. Empty
	// disables auth entirely.
	BearerToken string
	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration before timing out writes of
	// the response. Zero keeps event streams open indefinitely.
	WriteTimeout time.Duration
}

// NewServer creates a new API server.
// If Addr uses port 0 (e.g., "localhost:0" or ":0"), the OS will assign an
// available port. Use Port() after Start() to get the actual port.
func NewServer(cfg ServerConfig) (*Server, error) {
	handler := NewHandlerWithConfig(HandlerConfig{
		Registry: cfg.Registry,
		Events:   cfg.Events,
	})

	readTimeout := cfg.ReadTimeout
	if readTimeout == 0 {
		readTimeout = 15 * time.Second
	}

	// Middleware order, outermost first: request id, logging, tracing,
	// auth, routes.
	var routes http.Handler = handler.Routes()
	routes = BearerAuth(cfg.BearerToken)(routes)
	routes = tracing.NewHTTPMiddleware(tracing.MiddlewareConfig{
		Tracer:    cfg.Tracer,
		RequestID: RequestIDFromContext,
	})(routes)
	routes = RequestLogging(routes)
	routes = RequestID(routes)

	// Create listener first to get the actual port (important for :0)
	listener, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", cfg.Addr, err)
	}

	// Extract actual port from listener address
	port := 0
	if tcpAddr, ok := listener.Addr().(*net.TCPAddr); ok {
		port = tcpAddr.Port
	}

	return &Server{
		handler:  handler,
		addr:     cfg.Addr,
		port:     port,
		listener: listener,
		server: &http.Server{
			Handler:           routes,
			ReadTimeout:       readTimeout,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      cfg.WriteTimeout,
		},
	}, nil
}

// Start starts the HTTP server. It blocks until the server is stopped or
// fails.
func (s *Server) Start() error {
	log.Info(log.CatHTTP, "starting API server", "addr", s.listener.Addr().String(), "port", s.port)
	return s.server.Serve(s.listener)
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	log.Info(log.CatHTTP, "stopping API server")
	return s.server.Shutdown(ctx)
}

// Port returns the actual port the server is listening on.
// This is useful when the server was configured with port 0 for
// auto-assignment.
func (s *Server) Port() int {
	return s.port
}
