// Package mcpserver exposes Perplexica search capabilities as MCP tools and
// resources, over stdio by default or an HTTP transport for networked
// deployments.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/tianmu/perplexica-mcp-server/internal/perplexica"
	"github.com/tianmu/perplexica-mcp-server/internal/types"
)

// Version is the MCP server version reported during initialization.
const Version = "1.0.0"

const serverInstructions = "Provides AI-powered search over a Perplexica instance: web, academic, " +
	"YouTube, Reddit and Wolfram Alpha search plus a writing assistant. Use " +
	"get_available_models to discover chat and embedding models and health_check " +
	"to verify the upstream service is reachable."

// Server wires the Perplexica client into an MCP server instance.
type Server struct {
	sdkServer *mcp.Server
	client    *perplexica.Client
	config    *types.Config
	logger    *log.Logger
}

// New creates an MCP server with all tools and resources registered.
func New(cfg *types.Config, client *perplexica.Client) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration cannot be nil")
	}
	if client == nil {
		return nil, fmt.Errorf("perplexica client cannot be nil")
	}

	impl := &mcp.Implementation{
		Name:    "perplexica-mcp-server",
		Version: Version,
	}

	s := &Server{
		sdkServer: mcp.NewServer(impl, &mcp.ServerOptions{Instructions: serverInstructions}),
		client:    client,
		config:    cfg,
		// stdout carries the protocol stream, so all logging goes to stderr.
		logger: log.New(os.Stderr, "[MCP Server] ", log.LstdFlags),
	}

	s.registerTools()
	s.registerResources()

	return s, nil
}

// SetLogger replaces the server's logger.
func (s *Server) SetLogger(logger *log.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// SDKServer returns the underlying SDK server instance.
func (s *Server) SDKServer() *mcp.Server {
	return s.sdkServer
}

// Run serves MCP over stdio. It blocks until the context is cancelled or the
// input stream closes.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Printf("starting MCP server on stdio (upstream: %s)", s.client.BaseURL())
	return s.sdkServer.Run(ctx, &mcp.StdioTransport{})
}

// RunHTTP serves MCP over the streamable HTTP transport on the configured
// host and port. Requests pass through access logging and, when enabled, the
// IP allowlist check. Blocks until the context is cancelled.
func (s *Server) RunHTTP(ctx context.Context) error {
	addr := net.JoinHostPort(s.config.MCPServerHost, fmt.Sprintf("%d", s.config.MCPServerPort))

	getServer := func(_ *http.Request) *mcp.Server { return s.sdkServer }

	mux := http.NewServeMux()
	mux.Handle("/", mcp.NewStreamableHTTPHandler(getServer, nil))
	// /mcp accepts both streamable HTTP and SSE clients.
	mux.Handle("/mcp", NewDualTransportHandler(getServer))
	mux.HandleFunc("/health", s.handleHealthEndpoint)

	var handler http.Handler = mux
	if s.config.MCPIPAuthEnabled {
		ipAuth, err := NewIPAuthMiddleware(s.config.MCPAllowedIPs, s.config.MCPIPAuthEnableLogging)
		if err != nil {
			return fmt.Errorf("failed to build IP auth middleware: %w", err)
		}
		ipAuth.SetLogger(s.logger)
		handler = ipAuth.Middleware(handler)
		s.logger.Printf("IP authentication enabled for %d allowlist entries", len(s.config.MCPAllowedIPs))
	}
	if s.config.MCPServerEnableAccessLogging {
		handler = s.loggingMiddleware(handler)
	}

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  s.config.MCPServerReadTimeout,
		WriteTimeout: s.config.MCPServerWriteTimeout,
		IdleTimeout:  s.config.MCPServerIdleTimeout,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.MCPServerShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Printf("graceful shutdown failed: %v, closing immediately", err)
			_ = httpServer.Close()
		}
	}()

	s.logger.Printf("starting MCP server on http://%s (upstream: %s)", addr, s.client.BaseURL())
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// handleHealthEndpoint reports server liveness and upstream reachability.
func (s *Server) handleHealthEndpoint(w http.ResponseWriter, r *http.Request) {
	upstream := s.client.HealthCheck(r.Context())

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	payload := map[string]interface{}{
		"status":   "healthy",
		"version":  Version,
		"upstream": upstream,
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Printf("failed to write health response: %v", err)
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	status int
	size   int64
}

func newLoggingResponseWriter(w http.ResponseWriter) *loggingResponseWriter {
	return &loggingResponseWriter{ResponseWriter: w, status: http.StatusOK}
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.status = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Write(b []byte) (int, error) {
	n, err := lrw.ResponseWriter.Write(b)
	lrw.size += int64(n)
	return n, err
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := newLoggingResponseWriter(w)
		next.ServeHTTP(lrw, r)

		forwarded := strings.Join(r.Header.Values("X-Forwarded-For"), ",")
		s.logger.Printf(
			"Request: %s %s status=%d bytes=%d duration=%s remote=%s client_ip=%s forwarded=%s user_agent=%q",
			r.Method,
			r.URL.Path,
			lrw.status,
			lrw.size,
			time.Since(start),
			r.RemoteAddr,
			extractClientIP(r),
			forwarded,
			r.Header.Get("User-Agent"),
		)
	})
}

func extractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		if len(parts) > 0 {
			candidate := strings.TrimSpace(parts[0])
			if candidate != "" {
				return candidate
			}
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
