package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AgentRuntimeProtocol/ARP-Template-NodeRegistry/internal/registry"
)

// === Request ID ===

func TestRequestID_GeneratesWhenMissing(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/health", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.NotEmpty(t, seen)
	_, err := uuid.Parse(seen)
	require.NoError(t, err, "generated request id should be a uuid")
	assert.Equal(t, seen, w.Header().Get(HeaderRequestID))
}

func TestRequestID_HonorsInboundHeader(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/health", nil)
	req.Header.Set(HeaderRequestID, "req-abc")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, "req-abc", seen)
	assert.Equal(t, "req-abc", w.Header().Get(HeaderRequestID))
}

func TestRequestIDFromContext_EmptyWithoutMiddleware(t *testing.T) {
	assert.Empty(t, RequestIDFromContext(context.Background()))
}

// === Request Logging ===

func TestRequestLogging_PreservesFlusher(t *testing.T) {
	handler := RequestLogging(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, ok := w.(http.Flusher)
		assert.True(t, ok, "logging middleware must not hide http.Flusher")
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/events", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)
}

func TestStatusRecorder_CapturesStatus(t *testing.T) {
	rec := &statusRecorder{ResponseWriter: httptest.NewRecorder(), status: http.StatusOK}

	rec.WriteHeader(http.StatusTeapot)

	assert.Equal(t, http.StatusTeapot, rec.status)
}

func TestStatusRecorder_DefaultsToOK(t *testing.T) {
	inner := httptest.NewRecorder()
	rec := &statusRecorder{ResponseWriter: inner, status: http.StatusOK}

	_, err := rec.Write([]byte("hello"))
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, rec.status)
}

// === Bearer Auth ===

func authTestHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestBearerAuth_RejectsMissingToken(t *testing.T) {
	handler := BearerAuth("s3cret")(authTestHandler())

	req := httptest.NewRequest(http.MethodGet, "/v1/node-types", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Bearer", w.Header().Get("WWW-Authenticate"))

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "unauthorized", resp.Code)
}

func TestBearerAuth_RejectsWrongToken(t *testing.T) {
	handler := BearerAuth("s3cret")(authTestHandler())

	req := httptest.NewRequest(http.MethodPost, "/v1/node-types", nil)
	req.Header.Set("Authorization", "Bearer nope")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestBearerAuth_AcceptsValidToken(t *testing.T) {
	handler := BearerAuth("s3cret")(authTestHandler())

	req := httptest.NewRequest(http.MethodPost, "/v1/node-types", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestBearerAuth_HealthAndVersionStayOpen(t *testing.T) {
	handler := BearerAuth("s3cret")(authTestHandler())

	for _, path := range []string{"/v1/health", "/v1/version"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNoContent, w.Code, "path %s must not require auth", path)
	}
}

func TestBearerAuth_EmptyTokenDisablesCheck(t *testing.T) {
	handler := BearerAuth("")(authTestHandler())

	req := httptest.NewRequest(http.MethodPost, "/v1/node-types", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
}

// === Server Integration ===

func TestNewServer_ServesOnAssignedPort(t *testing.T) {
	srv, err := NewServer(ServerConfig{
		Addr:     "localhost:0",
		Registry: newTestRegistry(),
	})
	require.NoError(t, err)
	require.Greater(t, srv.Port(), 0, "port 0 should be replaced by the OS-assigned port")

	go func() { _ = srv.Start() }()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Stop(ctx)
	}()

	resp, err := http.Get(fmt.Sprintf("http://localhost:%d/v1/health", srv.Port()))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(HeaderRequestID), "request id middleware should run for every request")
}

func TestNewServer_BearerTokenProtectsRoutes(t *testing.T) {
	srv, err := NewServer(ServerConfig{
		Addr:        "localhost:0",
		Registry:    newTestRegistry(),
		BearerToken: "s3cret",
	})
	require.NoError(t, err)

	go func() { _ = srv.Start() }()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Stop(ctx)
	}()

	base := fmt.Sprintf("http://localhost:%d", srv.Port())

	// Health stays open.
	resp, err := http.Get(base + "/v1/health")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Node type routes require the token.
	resp, err = http.Get(base + "/v1/node-types")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, base+"/v1/node-types", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer s3cret")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestNewServer_InvalidAddr(t *testing.T) {
	_, err := NewServer(ServerConfig{
		Addr:     "not-a-valid-addr",
		Registry: newTestRegistry(),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to listen")
}
