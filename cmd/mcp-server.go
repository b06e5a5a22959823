package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	appcfg "github.com/tianmu/perplexica-mcp-server/internal/config"
	"github.com/tianmu/perplexica-mcp-server/internal/mcpserver"
	"github.com/tianmu/perplexica-mcp-server/internal/metrics"
	"github.com/tianmu/perplexica-mcp-server/internal/observability"
	"github.com/tianmu/perplexica-mcp-server/internal/perplexica"
)

var (
	// Command line flags for MCP server
	mcpTransport       string
	mcpServerHost      string
	mcpServerPort      int
	mcpAllowedIPs      []string
	mcpEnableIPAuth    bool
	mcpEnableAccessLog bool
	mcpToolPrefix      string
)

var mcpServerCmd = &cobra.Command{
	Use:   "mcp-server",
	Short: "Start MCP (Model Context Protocol) server for Perplexica search",
	Long: `
Start an MCP server that exposes Perplexica's search capabilities as tools
that can be used by MCP-compatible clients like Claude Desktop, IDEs, and other applications.

The server provides search tools for every Perplexica focus mode (web, academic,
YouTube, Reddit, Wolfram Alpha, writing assistant) plus model discovery and an
upstream health check.

Configuration is loaded from environment variables (see README for details).

Examples:
  perplexica-mcp mcp-server                                  # Serve over stdio (default)
  perplexica-mcp mcp-server --transport http --port 9000     # Serve over HTTP on port 9000
  perplexica-mcp mcp-server --transport http --host 0.0.0.0 --enable-ip-auth=false  # Allow all IPs (not recommended)
  perplexica-mcp mcp-server --transport http --allowed-ips "192.168.1.0/24"         # Allow specific IP range
`,
	RunE: runMCPServer,
}

func init() {
	mcpServerCmd.Flags().StringVar(&mcpTransport, "transport", "stdio", "Transport to serve on: stdio|http")
	mcpServerCmd.Flags().StringVar(&mcpServerHost, "host", "localhost", "Server host address (http transport)")
	mcpServerCmd.Flags().IntVar(&mcpServerPort, "port", 8080, "Server port (http transport)")
	mcpServerCmd.Flags().StringSliceVar(&mcpAllowedIPs, "allowed-ips", []string{"127.0.0.1", "::1"}, "Comma-separated list of allowed IP addresses/ranges")
	mcpServerCmd.Flags().BoolVar(&mcpEnableIPAuth, "enable-ip-auth", true, "Enable IP-based authentication (http transport)")
	mcpServerCmd.Flags().BoolVar(&mcpEnableAccessLog, "enable-access-log", true, "Enable HTTP access logging")
	mcpServerCmd.Flags().StringVar(&mcpToolPrefix, "tool-prefix", "", "Prefix prepended to every registered tool name")
}

func runMCPServer(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := appcfg.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Override configuration with command line flags if provided
	if cmd.Flags().Changed("host") {
		cfg.MCPServerHost = mcpServerHost
	}
	if cmd.Flags().Changed("port") {
		cfg.MCPServerPort = mcpServerPort
	}
	if cmd.Flags().Changed("allowed-ips") {
		cfg.MCPAllowedIPs = mcpAllowedIPs
	}
	if cmd.Flags().Changed("enable-ip-auth") {
		cfg.MCPIPAuthEnabled = mcpEnableIPAuth
	}
	if cmd.Flags().Changed("enable-access-log") {
		cfg.MCPServerEnableAccessLogging = mcpEnableAccessLog
	}
	if cmd.Flags().Changed("tool-prefix") {
		cfg.MCPToolPrefix = mcpToolPrefix
	}

	switch mcpTransport {
	case "stdio", "http":
	default:
		return fmt.Errorf("invalid transport: %s (allowed: stdio|http)", mcpTransport)
	}

	// stdout carries the stdio protocol stream, so logging goes to stderr.
	logger := log.New(os.Stderr, "[MCP Server] ", log.LstdFlags)

	// Initialize OpenTelemetry (no-op unless OTEL_ENABLED=true)
	shutdownTelemetry, err := observability.Init(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.MCPServerShutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logger.Printf("telemetry shutdown error: %v", err)
		}
	}()

	// Initialize invocation stats; the server still works without them.
	if err := metrics.Init(); err != nil {
		logger.Printf("WARNING: invocation stats unavailable: %v", err)
	} else {
		defer func() {
			if err := metrics.Close(); err != nil {
				logger.Printf("failed to close metrics store: %v", err)
			}
		}()
		if err := metrics.InitOTelMetrics(); err != nil {
			logger.Printf("WARNING: failed to register OTel invocation gauge: %v", err)
		}
	}

	// Initialize Perplexica client
	clientConfig, err := perplexica.NewConfigFromTypes(cfg)
	if err != nil {
		return fmt.Errorf("failed to create Perplexica config: %w", err)
	}

	if err := clientConfig.Validate(); err != nil {
		return fmt.Errorf("Perplexica config validation failed: %w", err)
	}

	client, err := perplexica.NewClient(clientConfig)
	if err != nil {
		return fmt.Errorf("failed to create Perplexica client: %w", err)
	}

	// Probe the upstream once at startup. An unreachable Perplexica is not
	// fatal; the health_check tool lets clients observe recovery.
	health := client.HealthCheck(context.Background())
	if health.Healthy {
		logger.Printf("Perplexica connection established: %s (%dms)", cfg.BaseURL, health.LatencyMS)
	} else {
		logger.Printf("WARNING: Perplexica not reachable at startup: %s", health.Message)
	}

	server, err := mcpserver.New(cfg, client)
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}
	server.SetLogger(logger)

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Printf("Received shutdown signal, stopping server...")
		cancel()
	}()

	if mcpTransport == "http" {
		if err := server.RunHTTP(ctx); err != nil {
			return fmt.Errorf("MCP server failed: %w", err)
		}
	} else {
		if err := server.Run(ctx); err != nil && ctx.Err() == nil {
			return fmt.Errorf("MCP server failed: %w", err)
		}
	}

	logger.Printf("MCP server stopped successfully")
	return nil
}
