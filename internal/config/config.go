package config

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"strings"

	"github.com/joho/godotenv"
	env "github.com/netflix/go-env"

	"github.com/tianmu/perplexica-mcp-server/internal/types"
)

// Type alias for Config
type Config = types.Config

// localhostIPs is the allowlist applied when MCP_ALLOWED_IPS is unset.
var localhostIPs = []string{"127.0.0.1", "::1"}

// Load loads configuration from a .env file (when present) and the process
// environment, then validates it. Validation failures are configuration
// errors and fatal at startup.
func Load() (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			log.Printf("Warning: Error loading .env file: %v", err)
		}
	}

	var config Config

	_, err := env.UnmarshalFromEnviron(&config)
	if err != nil {
		return nil, fmt.Errorf("failed to parse environment variables: %w", err)
	}

	// Parse MCPAllowedIPs from comma-separated string
	if config.MCPAllowedIPsStr != "" {
		ips := strings.Split(config.MCPAllowedIPsStr, ",")
		config.MCPAllowedIPs = make([]string, 0, len(ips))
		for _, ip := range ips {
			if trimmed := strings.TrimSpace(ip); trimmed != "" {
				config.MCPAllowedIPs = append(config.MCPAllowedIPs, trimmed)
			}
		}
	} else {
		config.MCPAllowedIPs = append([]string(nil), localhostIPs...)
	}

	config.BaseURL = strings.TrimRight(strings.TrimSpace(config.BaseURL), "/")

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

// validateConfig validates configuration values and adjusts them to safe
// ranges.
func validateConfig(config *Config) error {
	if err := validateUpstreamConfig(config); err != nil {
		return fmt.Errorf("upstream configuration validation failed: %w", err)
	}

	if err := validateServerConfig(config); err != nil {
		return fmt.Errorf("server configuration validation failed: %w", err)
	}

	return nil
}

// validateUpstreamConfig validates the Perplexica-facing settings.
func validateUpstreamConfig(config *Config) error {
	if config.BaseURL == "" {
		return types.NewConfigurationError("PERPLEXICA_BASE_URL cannot be empty")
	}

	parsedURL, err := url.Parse(config.BaseURL)
	if err != nil {
		return types.NewConfigurationError("invalid PERPLEXICA_BASE_URL format: %v", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return types.NewConfigurationError("PERPLEXICA_BASE_URL scheme must be http or https")
	}
	if parsedURL.Host == "" {
		return types.NewConfigurationError("PERPLEXICA_BASE_URL must include a valid host")
	}

	if config.TimeoutSeconds <= 0 {
		return types.NewConfigurationError("PERPLEXICA_TIMEOUT must be greater than 0")
	}
	if config.TimeoutSeconds > 600 {
		return types.NewConfigurationError("PERPLEXICA_TIMEOUT cannot exceed 600 seconds")
	}

	if !types.OptimizationMode(config.OptimizationMode).IsValid() {
		return types.NewConfigurationError(
			"PERPLEXICA_OPTIMIZATION_MODE must be one of speed, balanced, quality; got %q",
			config.OptimizationMode)
	}

	if !types.OutputFormat(config.DefaultOutputFormat).IsValid() {
		return types.NewConfigurationError(
			"PERPLEXICA_DEFAULT_OUTPUT_FORMAT must be json or formatted; got %q",
			config.DefaultOutputFormat)
	}

	if config.DefaultChatProvider == "custom_openai" {
		if config.CustomOpenAIBaseURL == "" {
			return types.NewConfigurationError(
				"PERPLEXICA_CUSTOM_OPENAI_BASE_URL is required when the chat provider is custom_openai")
		}
		if config.CustomOpenAIKey == "" {
			return types.NewConfigurationError(
				"PERPLEXICA_CUSTOM_OPENAI_KEY is required when the chat provider is custom_openai")
		}
	}

	if config.RateLimit <= 0 {
		return types.NewConfigurationError("PERPLEXICA_RATE_LIMIT must be greater than 0")
	}
	if config.RateLimit > 1000 {
		return types.NewConfigurationError("PERPLEXICA_RATE_LIMIT cannot exceed 1000 requests/second")
	}
	if config.RateBurst < 1 {
		return types.NewConfigurationError("PERPLEXICA_RATE_BURST must be at least 1")
	}

	return nil
}

// validateServerConfig validates the HTTP transport settings. Stdio mode
// ignores these, but a malformed value still fails fast so a later switch to
// the HTTP transport cannot surprise anyone.
func validateServerConfig(config *Config) error {
	if config.MCPServerHost == "" {
		return types.NewConfigurationError("MCP_SERVER_HOST cannot be empty")
	}

	if config.MCPServerPort < 1 || config.MCPServerPort > 65535 {
		return types.NewConfigurationError("MCP_SERVER_PORT must be between 1 and 65535")
	}

	if config.MCPServerReadTimeout <= 0 {
		return types.NewConfigurationError("MCP_SERVER_READ_TIMEOUT must be greater than 0")
	}
	if config.MCPServerWriteTimeout <= 0 {
		return types.NewConfigurationError("MCP_SERVER_WRITE_TIMEOUT must be greater than 0")
	}
	if config.MCPServerIdleTimeout <= 0 {
		return types.NewConfigurationError("MCP_SERVER_IDLE_TIMEOUT must be greater than 0")
	}
	if config.MCPServerShutdownTimeout <= 0 {
		return types.NewConfigurationError("MCP_SERVER_SHUTDOWN_TIMEOUT must be greater than 0")
	}

	if config.MCPIPAuthEnabled && len(config.MCPAllowedIPs) == 0 {
		return types.NewConfigurationError("MCP_ALLOWED_IPS cannot be empty when IP authentication is enabled")
	}

	if config.MCPToolPrefix != "" && !isValidToolName(config.MCPToolPrefix) {
		return types.NewConfigurationError("MCP_TOOL_PREFIX contains invalid characters: %s", config.MCPToolPrefix)
	}

	return nil
}

// isValidToolName checks that a tool name or prefix stays within the
// character set MCP clients accept.
func isValidToolName(name string) bool {
	if len(name) == 0 || len(name) > 100 {
		return false
	}

	for _, char := range name {
		if !((char >= 'a' && char <= 'z') || (char >= 'A' && char <= 'Z') ||
			(char >= '0' && char <= '9') || char == '_') {
			return false
		}
	}

	return true
}
