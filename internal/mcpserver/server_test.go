package mcpserver

import (
	"bytes"
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tianmu/perplexica-mcp-server/internal/perplexica"
)

func TestNewValidatesArguments(t *testing.T) {
	cfg := testServerConfig("http://localhost:3000")
	clientCfg, err := perplexica.NewConfigFromTypes(cfg)
	require.NoError(t, err)
	client, err := perplexica.NewClient(clientCfg)
	require.NoError(t, err)

	_, err = New(nil, client)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configuration cannot be nil")

	_, err = New(cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "perplexica client cannot be nil")

	server, err := New(cfg, client)
	require.NoError(t, err)
	assert.NotNil(t, server.SDKServer())
}

func TestHealthEndpointReportsUpstreamState(t *testing.T) {
	t.Run("healthy upstream", func(t *testing.T) {
		upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"chatModelProviders":{},"embeddingModelProviders":{}}`))
		}))
		defer upstream.Close()

		server := newTestServer(t, testServerConfig(upstream.URL))

		rr := httptest.NewRecorder()
		server.handleHealthEndpoint(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

		var payload struct {
			Status   string `json:"status"`
			Version  string `json:"version"`
			Upstream struct {
				Healthy bool   `json:"healthy"`
				Message string `json:"message"`
			} `json:"upstream"`
		}
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &payload))
		assert.Equal(t, "healthy", payload.Status)
		assert.Equal(t, Version, payload.Version)
		assert.True(t, payload.Upstream.Healthy)
	})

	t.Run("unreachable upstream", func(t *testing.T) {
		upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		upstream.Close()

		server := newTestServer(t, testServerConfig(upstream.URL))

		rr := httptest.NewRecorder()
		server.handleHealthEndpoint(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

		// The endpoint reports server liveness, so the status stays 200 and
		// the upstream failure shows up in the body.
		require.Equal(t, http.StatusOK, rr.Code)

		var payload struct {
			Upstream struct {
				Healthy bool `json:"healthy"`
			} `json:"upstream"`
		}
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &payload))
		assert.False(t, payload.Upstream.Healthy)
	})
}

func TestExtractClientIP(t *testing.T) {
	tests := []struct {
		name          string
		remoteAddr    string
		xForwardedFor string
		xRealIP       string
		want          string
	}{
		{
			name:       "remote address with port",
			remoteAddr: "192.168.1.10:54321",
			want:       "192.168.1.10",
		},
		{
			name:       "remote address without port",
			remoteAddr: "192.168.1.10",
			want:       "192.168.1.10",
		},
		{
			name:       "IPv6 remote address",
			remoteAddr: "[::1]:54321",
			want:       "::1",
		},
		{
			name:          "single X-Forwarded-For entry",
			remoteAddr:    "127.0.0.1:1000",
			xForwardedFor: "203.0.113.7",
			want:          "203.0.113.7",
		},
		{
			name:          "first hop of X-Forwarded-For chain",
			remoteAddr:    "127.0.0.1:1000",
			xForwardedFor: " 203.0.113.7 , 10.0.0.1",
			want:          "203.0.113.7",
		},
		{
			name:       "X-Real-IP fallback",
			remoteAddr: "127.0.0.1:1000",
			xRealIP:    "198.51.100.4",
			want:       "198.51.100.4",
		},
		{
			name:          "X-Forwarded-For wins over X-Real-IP",
			remoteAddr:    "127.0.0.1:1000",
			xForwardedFor: "203.0.113.7",
			xRealIP:       "198.51.100.4",
			want:          "203.0.113.7",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xForwardedFor != "" {
				req.Header.Set("X-Forwarded-For", tt.xForwardedFor)
			}
			if tt.xRealIP != "" {
				req.Header.Set("X-Real-IP", tt.xRealIP)
			}

			assert.Equal(t, tt.want, extractClientIP(req))
		})
	}
}

func TestLoggingMiddlewareRecordsStatusAndSize(t *testing.T) {
	server := newTestServer(t, testServerConfig("http://localhost:3000"))

	var buf bytes.Buffer
	server.SetLogger(log.New(&buf, "", 0))

	handler := server.loggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("teapot"))
	}))

	req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	req.RemoteAddr = "127.0.0.1:1000"
	req.Header.Set("User-Agent", "test-agent")

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusTeapot, rr.Code)
	line := buf.String()
	assert.Contains(t, line, "POST /mcp")
	assert.Contains(t, line, "status=418")
	assert.Contains(t, line, "bytes=6")
	assert.Contains(t, line, "client_ip=127.0.0.1")
	assert.Contains(t, line, `user_agent="test-agent"`)
}
