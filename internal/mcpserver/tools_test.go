package mcpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"

	"github.com/tianmu/perplexica-mcp-server/internal/metrics"
	"github.com/tianmu/perplexica-mcp-server/internal/perplexica"
	"github.com/tianmu/perplexica-mcp-server/internal/types"
)

func testServerConfig(baseURL string) *types.Config {
	return &types.Config{
		BaseURL:             baseURL,
		TimeoutSeconds:      5,
		OptimizationMode:    string(types.OptimizationModeBalanced),
		DefaultOutputFormat: string(types.OutputFormatJSON),
		RateLimit:           100,
		RateBurst:           10,
	}
}

func newTestServer(t *testing.T, cfg *types.Config) *Server {
	t.Helper()

	clientCfg, err := perplexica.NewConfigFromTypes(cfg)
	require.NoError(t, err)
	client, err := perplexica.NewClient(clientCfg)
	require.NoError(t, err)

	server, err := New(cfg, client)
	require.NoError(t, err)
	return server
}

// setupTestStats injects a throwaway stats store so tool handlers never touch
// the user's home directory.
func setupTestStats(t *testing.T) *metrics.Store {
	t.Helper()
	metrics.ResetForTesting()
	t.Cleanup(metrics.ResetForTesting)

	store, err := metrics.NewStoreWithPath(filepath.Join(t.TempDir(), "stats.db"))
	require.NoError(t, err)
	metrics.SetStoreForTesting(store)
	return store
}

func callToolRequest(name string, args string) *mcp.CallToolRequest {
	req := &mcp.CallToolRequest{
		Params: &mcp.CallToolParamsRaw{Name: name},
	}
	if args != "" {
		req.Params.Arguments = json.RawMessage(args)
	}
	return req
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.Len(t, result.Content, 1)
	text, ok := result.Content[0].(*mcp.TextContent)
	require.True(t, ok, "tool result content must be text")
	return text.Text
}

func TestSearchToolValidatesBeforeAnyNetworkCall(t *testing.T) {
	var hits int64
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
	}))
	defer upstream.Close()

	setupTestStats(t)
	server := newTestServer(t, testServerConfig(upstream.URL))
	handler := server.makeSearchHandler(types.FocusModeWebSearch)

	tests := []struct {
		name string
		args string
	}{
		{"empty query", `{"query": "   "}`},
		{"missing query", `{}`},
		{"bad optimization mode", `{"query": "go", "optimization_mode": "turbo"}`},
		{"bad output format", `{"query": "go", "output_format": "yaml"}`},
		{"bad history role", `{"query": "go", "history": [["robot", "hello"]]}`},
		{"malformed arguments", `{"query": 42`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := handler(context.Background(), callToolRequest("search_web", tt.args))
			require.NoError(t, err, "validation failures must be tool results, not protocol errors")
			require.True(t, result.IsError)

			var body types.ToolErrorBody
			require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &body))
			require.NotEmpty(t, body.Error)
		})
	}

	require.EqualValues(t, 0, atomic.LoadInt64(&hits), "no HTTP request may be made for invalid input")
}

func TestSearchToolReturnsUpstreamJSONByDefault(t *testing.T) {
	body := `{"message":"The answer.","sources":[{"pageContent":"snippet","metadata":{"title":"A","url":"http://x"}}]}`

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/search", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	defer upstream.Close()

	setupTestStats(t)
	server := newTestServer(t, testServerConfig(upstream.URL))
	handler := server.makeSearchHandler(types.FocusModeWebSearch)

	result, err := handler(context.Background(), callToolRequest("search_web", `{"query": "anything"}`))
	require.NoError(t, err)
	require.False(t, result.IsError)
	require.JSONEq(t, body, resultText(t, result))
}

func TestSearchToolFormattedOutputListsSources(t *testing.T) {
	body := `{"message":"Go is a language.","sources":[` +
		`{"pageContent":"first","metadata":{"title":"Go Blog","url":"https://go.dev/blog"}},` +
		`{"pageContent":"second","metadata":{"title":"Spec","url":"https://go.dev/ref/spec"}}]}`

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	defer upstream.Close()

	setupTestStats(t)
	server := newTestServer(t, testServerConfig(upstream.URL))
	handler := server.makeSearchHandler(types.FocusModeWebSearch)

	result, err := handler(context.Background(), callToolRequest("search_web", `{"query": "go", "output_format": "formatted"}`))
	require.NoError(t, err)
	require.False(t, result.IsError)

	text := resultText(t, result)
	require.Contains(t, text, "Web Search Results")
	require.Contains(t, text, "Go is a language.")
	require.Contains(t, text, "https://go.dev/blog")
	require.Contains(t, text, "https://go.dev/ref/spec")
}

func TestSearchToolForwardsModelOverrides(t *testing.T) {
	var captured types.SearchRequest

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"message":"ok","sources":[]}`))
	}))
	defer upstream.Close()

	setupTestStats(t)
	cfg := testServerConfig(upstream.URL)
	cfg.CustomOpenAIBaseURL = "https://llm.internal/v1"
	cfg.CustomOpenAIKey = "sk-test"
	server := newTestServer(t, cfg)
	handler := server.makeSearchHandler(types.FocusModeAcademic)

	args := `{
		"query": "attention is all you need",
		"chat_provider": "custom_openai",
		"chat_model": "gpt-4o-mini",
		"embedding_provider": "openai",
		"embedding_model": "text-embedding-3-small",
		"history": [["human", "earlier question"], ["assistant", "earlier answer"]]
	}`

	result, err := handler(context.Background(), callToolRequest("search_academic", args))
	require.NoError(t, err)
	require.False(t, result.IsError)

	require.Equal(t, types.FocusModeAcademic, captured.FocusMode)
	require.NotNil(t, captured.ChatModel)
	require.Equal(t, "custom_openai", captured.ChatModel.Provider)
	require.Equal(t, "gpt-4o-mini", captured.ChatModel.Name)
	require.Equal(t, "gpt-4o-mini", captured.ChatModel.Model, "name must mirror into model")
	require.Equal(t, "https://llm.internal/v1", captured.ChatModel.CustomOpenAIBaseURL)
	require.Equal(t, "sk-test", captured.ChatModel.CustomOpenAIKey)
	require.NotNil(t, captured.EmbeddingModel)
	require.Equal(t, "text-embedding-3-small", captured.EmbeddingModel.Model)
	require.Len(t, captured.History, 2)
	require.Equal(t, types.HistoryRoleHuman, captured.History[0].Role)
}

func TestSearchToolPartialModelOverrideFallsBackToDefaults(t *testing.T) {
	var captured types.SearchRequest

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"message":"ok","sources":[]}`))
	}))
	defer upstream.Close()

	setupTestStats(t)
	server := newTestServer(t, testServerConfig(upstream.URL))
	handler := server.makeSearchHandler(types.FocusModeWebSearch)

	// A provider without a model is not a usable override.
	result, err := handler(context.Background(), callToolRequest("search_web", `{"query": "go", "chat_provider": "openai"}`))
	require.NoError(t, err)
	require.False(t, result.IsError)
	require.Nil(t, captured.ChatModel)
}

func TestSearchToolUpstreamFailureIsErrorResult(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal failure", http.StatusInternalServerError)
	}))
	defer upstream.Close()

	setupTestStats(t)
	server := newTestServer(t, testServerConfig(upstream.URL))
	handler := server.makeSearchHandler(types.FocusModeWebSearch)

	result, err := handler(context.Background(), callToolRequest("search_web", `{"query": "doomed"}`))
	require.NoError(t, err, "upstream failures must be tool results, not protocol errors")
	require.True(t, result.IsError)

	var body types.ToolErrorBody
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &body))
	require.Contains(t, body.Error, "500")
}

func TestModelsToolReturnsCatalogVerbatim(t *testing.T) {
	body := `{"chatModelProviders":{"openai":[{"name":"gpt-4o-mini","displayName":"GPT-4o Mini"}]},"embeddingModelProviders":{}}`

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/models", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	defer upstream.Close()

	setupTestStats(t)
	server := newTestServer(t, testServerConfig(upstream.URL))

	result, err := server.handleModelsTool(context.Background(), callToolRequest("get_available_models", ""))
	require.NoError(t, err)
	require.False(t, result.IsError)
	require.JSONEq(t, body, resultText(t, result))
}

func TestHealthToolNeverReturnsErrorResult(t *testing.T) {
	t.Run("healthy upstream", func(t *testing.T) {
		upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
		defer upstream.Close()

		setupTestStats(t)
		server := newTestServer(t, testServerConfig(upstream.URL))

		result, err := server.handleHealthTool(context.Background(), callToolRequest("health_check", ""))
		require.NoError(t, err)
		require.False(t, result.IsError)

		var status types.HealthToolResponse
		require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &status))
		require.True(t, status.Healthy)
	})

	t.Run("unreachable upstream", func(t *testing.T) {
		upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		upstream.Close()

		setupTestStats(t)
		server := newTestServer(t, testServerConfig(upstream.URL))

		result, err := server.handleHealthTool(context.Background(), callToolRequest("health_check", ""))
		require.NoError(t, err)
		require.False(t, result.IsError, "an unreachable upstream is a report, not an error")

		var status types.HealthToolResponse
		require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &status))
		require.False(t, status.Healthy)
		require.NotEmpty(t, status.Message)
	})
}

func TestSearchToolRecordsInvocationCount(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"message":"ok","sources":[]}`))
	}))
	defer upstream.Close()

	store := setupTestStats(t)
	server := newTestServer(t, testServerConfig(upstream.URL))
	handler := server.makeSearchHandler(types.FocusModeWebSearch)

	today := time.Now().Format("2006-01-02")

	for i := 1; i <= 2; i++ {
		_, err := handler(context.Background(), callToolRequest("search_web", `{"query": "count me"}`))
		require.NoError(t, err)

		count, err := store.GetCountByDate(metrics.ModeSearch, today)
		require.NoError(t, err)
		require.EqualValues(t, i, count)
	}
}

func TestSearchToolSpecsCoverEveryFocusMode(t *testing.T) {
	specs := searchToolSpecs()
	require.Len(t, specs, len(types.AllFocusModes))

	seenNames := make(map[string]bool)
	seenFocus := make(map[types.FocusMode]bool)
	for _, spec := range specs {
		require.False(t, seenNames[spec.name], "duplicate tool name %s", spec.name)
		require.False(t, seenFocus[spec.focus], "duplicate focus mode %s", spec.focus)
		seenNames[spec.name] = true
		seenFocus[spec.focus] = true
		require.NotEmpty(t, spec.description)
	}

	require.False(t, specs[len(specs)-1].withEmbedding, "writing assistant takes no embedding overrides")
}
