package config

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tianmu/perplexica-mcp-server/internal/types"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "http://localhost:3000", cfg.BaseURL)
	require.Equal(t, 30, cfg.TimeoutSeconds)
	require.Equal(t, "balanced", cfg.OptimizationMode)
	require.Equal(t, "json", cfg.DefaultOutputFormat)
	require.Equal(t, []string{"127.0.0.1", "::1"}, cfg.MCPAllowedIPs)
	require.True(t, cfg.MCPIPAuthEnabled)
	require.False(t, cfg.OTelEnabled)
}

func TestLoadOverrides(t *testing.T) {
	t.Run("normalizes base URL and parses allowlist", func(t *testing.T) {
		t.Setenv("PERPLEXICA_BASE_URL", "http://perplexica.internal:3000/")
		t.Setenv("PERPLEXICA_TIMEOUT", "60")
		t.Setenv("MCP_ALLOWED_IPS", "192.168.1.10 , 10.0.0.0/8 ,,")

		cfg, err := Load()
		require.NoError(t, err)

		require.Equal(t, "http://perplexica.internal:3000", cfg.BaseURL, "trailing slash should be trimmed")
		require.Equal(t, 60, cfg.TimeoutSeconds)
		require.Equal(t, []string{"192.168.1.10", "10.0.0.0/8"}, cfg.MCPAllowedIPs)
	})

	t.Run("reads default model selections", func(t *testing.T) {
		t.Setenv("PERPLEXICA_DEFAULT_CHAT_PROVIDER", "openai")
		t.Setenv("PERPLEXICA_DEFAULT_CHAT_MODEL", "gpt-4o-mini")
		t.Setenv("PERPLEXICA_DEFAULT_EMBEDDING_PROVIDER", "openai")
		t.Setenv("PERPLEXICA_DEFAULT_EMBEDDING_MODEL", "text-embedding-3-large")

		cfg, err := Load()
		require.NoError(t, err)

		chat := cfg.DefaultChatModelSpec()
		require.NotNil(t, chat)
		require.Equal(t, "openai", chat.Provider)
		require.Equal(t, "gpt-4o-mini", chat.Name)
		require.Equal(t, "gpt-4o-mini", chat.Model, "name should mirror into model")

		embedding := cfg.DefaultEmbeddingModelSpec()
		require.NotNil(t, embedding)
		require.Equal(t, "text-embedding-3-large", embedding.ModelName())
	})

	t.Run("custom openai provider carries base URL and key", func(t *testing.T) {
		t.Setenv("PERPLEXICA_DEFAULT_CHAT_PROVIDER", "custom_openai")
		t.Setenv("PERPLEXICA_DEFAULT_CHAT_MODEL", "llama-3.1-70b")
		t.Setenv("PERPLEXICA_CUSTOM_OPENAI_BASE_URL", "http://ollama.internal:11434/v1")
		t.Setenv("PERPLEXICA_CUSTOM_OPENAI_KEY", "sk-test")

		cfg, err := Load()
		require.NoError(t, err)

		chat := cfg.DefaultChatModelSpec()
		require.NotNil(t, chat)
		require.Equal(t, "http://ollama.internal:11434/v1", chat.CustomOpenAIBaseURL)
		require.Equal(t, "sk-test", chat.CustomOpenAIKey)
	})
}

func TestLoadValidationFailures(t *testing.T) {
	tests := []struct {
		name    string
		envKey  string
		envVal  string
		wantErr string
	}{
		{
			name:    "malformed base URL",
			envKey:  "PERPLEXICA_BASE_URL",
			envVal:  "not-a-url",
			wantErr: "PERPLEXICA_BASE_URL",
		},
		{
			name:    "unsupported scheme",
			envKey:  "PERPLEXICA_BASE_URL",
			envVal:  "ftp://perplexica.internal",
			wantErr: "scheme must be http or https",
		},
		{
			name:    "zero timeout",
			envKey:  "PERPLEXICA_TIMEOUT",
			envVal:  "0",
			wantErr: "PERPLEXICA_TIMEOUT",
		},
		{
			name:    "unknown optimization mode",
			envKey:  "PERPLEXICA_OPTIMIZATION_MODE",
			envVal:  "turbo",
			wantErr: "PERPLEXICA_OPTIMIZATION_MODE",
		},
		{
			name:    "unknown output format",
			envKey:  "PERPLEXICA_DEFAULT_OUTPUT_FORMAT",
			envVal:  "xml",
			wantErr: "PERPLEXICA_DEFAULT_OUTPUT_FORMAT",
		},
		{
			name:    "zero rate limit",
			envKey:  "PERPLEXICA_RATE_LIMIT",
			envVal:  "0",
			wantErr: "PERPLEXICA_RATE_LIMIT",
		},
		{
			name:    "bad server port",
			envKey:  "MCP_SERVER_PORT",
			envVal:  "70000",
			wantErr: "MCP_SERVER_PORT",
		},
		{
			name:    "bad tool prefix",
			envKey:  "MCP_TOOL_PREFIX",
			envVal:  "perplexica-",
			wantErr: "MCP_TOOL_PREFIX",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.envKey, tt.envVal)

			_, err := Load()
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadCustomOpenAIRequirements(t *testing.T) {
	t.Run("missing base URL", func(t *testing.T) {
		t.Setenv("PERPLEXICA_DEFAULT_CHAT_PROVIDER", "custom_openai")
		t.Setenv("PERPLEXICA_DEFAULT_CHAT_MODEL", "llama-3.1-70b")
		t.Setenv("PERPLEXICA_CUSTOM_OPENAI_KEY", "sk-test")

		_, err := Load()
		require.Error(t, err)
		require.Contains(t, err.Error(), "PERPLEXICA_CUSTOM_OPENAI_BASE_URL")
	})

	t.Run("missing key", func(t *testing.T) {
		t.Setenv("PERPLEXICA_DEFAULT_CHAT_PROVIDER", "custom_openai")
		t.Setenv("PERPLEXICA_DEFAULT_CHAT_MODEL", "llama-3.1-70b")
		t.Setenv("PERPLEXICA_CUSTOM_OPENAI_BASE_URL", "http://ollama.internal:11434/v1")

		_, err := Load()
		require.Error(t, err)
		require.Contains(t, err.Error(), "PERPLEXICA_CUSTOM_OPENAI_KEY")
	})
}

func TestConfigurationErrorType(t *testing.T) {
	t.Setenv("PERPLEXICA_BASE_URL", "ftp://perplexica.internal")

	_, err := Load()
	require.Error(t, err)
	require.Equal(t, types.ErrorTypeConfiguration, types.ErrorTypeOf(err))
}
