package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// FocusMode selects which Perplexica search pipeline handles a request.
type FocusMode string

const (
	FocusModeWebSearch    FocusMode = "webSearch"
	FocusModeAcademic     FocusMode = "academicSearch"
	FocusModeWriting      FocusMode = "writingAssistant"
	FocusModeWolframAlpha FocusMode = "wolframAlphaSearch"
	FocusModeYouTube      FocusMode = "youtubeSearch"
	FocusModeReddit       FocusMode = "redditSearch"
)

// AllFocusModes lists every focus mode accepted by the upstream API.
var AllFocusModes = []FocusMode{
	FocusModeWebSearch,
	FocusModeAcademic,
	FocusModeWriting,
	FocusModeWolframAlpha,
	FocusModeYouTube,
	FocusModeReddit,
}

// IsValid reports whether the focus mode is one the upstream API accepts.
func (m FocusMode) IsValid() bool {
	for _, known := range AllFocusModes {
		if m == known {
			return true
		}
	}
	return false
}

// Label returns a human-readable name for result headings.
func (m FocusMode) Label() string {
	switch m {
	case FocusModeWebSearch:
		return "Web Search"
	case FocusModeAcademic:
		return "Academic Search"
	case FocusModeWriting:
		return "Writing Assistant"
	case FocusModeWolframAlpha:
		return "Wolfram Alpha Search"
	case FocusModeYouTube:
		return "YouTube Search"
	case FocusModeReddit:
		return "Reddit Search"
	default:
		return "Search"
	}
}

// OptimizationMode trades answer quality against latency upstream.
type OptimizationMode string

const (
	OptimizationModeSpeed    OptimizationMode = "speed"
	OptimizationModeBalanced OptimizationMode = "balanced"
	OptimizationModeQuality  OptimizationMode = "quality"
)

// IsValid reports whether the optimization mode is a known upstream value.
func (m OptimizationMode) IsValid() bool {
	switch m {
	case OptimizationModeSpeed, OptimizationModeBalanced, OptimizationModeQuality:
		return true
	}
	return false
}

// OutputFormat selects how a tool result is rendered.
type OutputFormat string

const (
	OutputFormatJSON      OutputFormat = "json"
	OutputFormatFormatted OutputFormat = "formatted"
)

// IsValid reports whether the output format is supported.
func (f OutputFormat) IsValid() bool {
	return f == OutputFormatJSON || f == OutputFormatFormatted
}

// HistoryRole is the speaker of one conversation turn.
type HistoryRole string

const (
	HistoryRoleHuman     HistoryRole = "human"
	HistoryRoleAssistant HistoryRole = "assistant"
)

// HistoryTurn is one prior conversation turn. The upstream wire format is a
// two-element JSON array: ["human", "message text"].
type HistoryTurn struct {
	Role    HistoryRole
	Message string
}

// MarshalJSON encodes the turn as the upstream [role, message] pair.
func (h HistoryTurn) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{string(h.Role), h.Message})
}

// UnmarshalJSON decodes the upstream [role, message] pair.
func (h *HistoryTurn) UnmarshalJSON(data []byte) error {
	var pair [2]string
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("history turn must be a [role, message] pair: %w", err)
	}
	h.Role = HistoryRole(pair[0])
	h.Message = pair[1]
	return nil
}

// ChatModelSpec is the chatModel object of the upstream search body. The
// upstream accepts the model under both "name" and "model"; Normalize mirrors
// whichever is set into the other before serialization.
type ChatModelSpec struct {
	Provider            string `json:"provider"`
	Name                string `json:"name,omitempty"`
	Model               string `json:"model,omitempty"`
	CustomOpenAIBaseURL string `json:"customOpenAIBaseURL,omitempty"`
	CustomOpenAIKey     string `json:"customOpenAIKey,omitempty"`
}

// Normalize mirrors Name and Model into each other when only one is set.
func (c *ChatModelSpec) Normalize() {
	if c.Model == "" {
		c.Model = c.Name
	}
	if c.Name == "" {
		c.Name = c.Model
	}
}

// ModelName returns the effective model identifier.
func (c *ChatModelSpec) ModelName() string {
	if c.Name != "" {
		return c.Name
	}
	return c.Model
}

// EmbeddingModelSpec is the embeddingModel object of the upstream search body.
type EmbeddingModelSpec struct {
	Provider string `json:"provider"`
	Name     string `json:"name,omitempty"`
	Model    string `json:"model,omitempty"`
}

// Normalize mirrors Name and Model into each other when only one is set.
func (e *EmbeddingModelSpec) Normalize() {
	if e.Model == "" {
		e.Model = e.Name
	}
	if e.Name == "" {
		e.Name = e.Model
	}
}

// ModelName returns the effective model identifier.
func (e *EmbeddingModelSpec) ModelName() string {
	if e.Name != "" {
		return e.Name
	}
	return e.Model
}

// SearchRequest is the JSON body POSTed to {base}/api/search.
type SearchRequest struct {
	ChatModel          *ChatModelSpec      `json:"chatModel,omitempty"`
	EmbeddingModel     *EmbeddingModelSpec `json:"embeddingModel,omitempty"`
	OptimizationMode   OptimizationMode    `json:"optimizationMode,omitempty"`
	FocusMode          FocusMode           `json:"focusMode"`
	Query              string              `json:"query"`
	History            []HistoryTurn       `json:"history,omitempty"`
	SystemInstructions string              `json:"systemInstructions,omitempty"`
	Stream             bool                `json:"stream,omitempty"`
}

// SourceMetadata carries the fields of a source the formatter renders.
type SourceMetadata struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Source is one citation in a search response, in upstream order.
type Source struct {
	PageContent string         `json:"pageContent"`
	Metadata    SourceMetadata `json:"metadata"`
}

// SearchResult is a parsed upstream search response. Raw preserves the
// verbatim body bytes so json output can pass the response through unchanged.
type SearchResult struct {
	Message string          `json:"message"`
	Sources []Source        `json:"sources"`
	Raw     json.RawMessage `json:"-"`
}

// StreamMessageType tags one line of the NDJSON streaming response.
type StreamMessageType string

const (
	StreamMessageInit     StreamMessageType = "init"
	StreamMessageSources  StreamMessageType = "sources"
	StreamMessageResponse StreamMessageType = "response"
	StreamMessageDone     StreamMessageType = "done"
	StreamMessageError    StreamMessageType = "error"
)

// StreamMessage is one parsed line of a streaming search response.
type StreamMessage struct {
	Type StreamMessageType `json:"type"`
	Data json.RawMessage   `json:"data,omitempty"`
}

// ModelInfo describes one model offered by an upstream provider.
type ModelInfo struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
}

// ModelCatalog is the parsed body of {base}/api/models. Raw preserves the
// verbatim bytes for pass-through output.
type ModelCatalog struct {
	ChatModelProviders      map[string][]ModelInfo `json:"chatModelProviders"`
	EmbeddingModelProviders map[string][]ModelInfo `json:"embeddingModelProviders"`
	Raw                     json.RawMessage        `json:"-"`
}

// HealthStatus is the result of a reachability probe. The probe itself never
// fails; unreachability is reported through Healthy=false.
type HealthStatus struct {
	Healthy   bool   `json:"healthy"`
	Message   string `json:"message"`
	LatencyMS int64  `json:"latency_ms"`
}

// Diagnostics aggregates the service status surfaced by the status command
// and the perplexica://status resource.
type Diagnostics struct {
	Status          string           `json:"status"`
	BaseURL         string           `json:"base_url"`
	LatencyMS       int64            `json:"latency_ms"`
	AvailableModels json.RawMessage  `json:"available_models,omitempty"`
	Invocations     map[string]int64 `json:"invocations,omitempty"`
}

// Config is the process-wide configuration, loaded once at startup and
// read-only afterwards.
type Config struct {
	// Perplexica upstream
	BaseURL                  string  `json:"base_url" env:"PERPLEXICA_BASE_URL,default=http://localhost:3000"`
	TimeoutSeconds           int     `json:"timeout_seconds" env:"PERPLEXICA_TIMEOUT,default=30"`
	DefaultChatProvider      string  `json:"default_chat_provider" env:"PERPLEXICA_DEFAULT_CHAT_PROVIDER"`
	DefaultChatModel         string  `json:"default_chat_model" env:"PERPLEXICA_DEFAULT_CHAT_MODEL"`
	CustomOpenAIBaseURL      string  `json:"custom_openai_base_url" env:"PERPLEXICA_CUSTOM_OPENAI_BASE_URL"`
	CustomOpenAIKey          string  `json:"-" env:"PERPLEXICA_CUSTOM_OPENAI_KEY"`
	DefaultEmbeddingProvider string  `json:"default_embedding_provider" env:"PERPLEXICA_DEFAULT_EMBEDDING_PROVIDER"`
	DefaultEmbeddingModel    string  `json:"default_embedding_model" env:"PERPLEXICA_DEFAULT_EMBEDDING_MODEL"`
	OptimizationMode         string  `json:"optimization_mode" env:"PERPLEXICA_OPTIMIZATION_MODE,default=balanced"`
	DefaultOutputFormat      string  `json:"default_output_format" env:"PERPLEXICA_DEFAULT_OUTPUT_FORMAT,default=json"`
	RateLimit                float64 `json:"rate_limit" env:"PERPLEXICA_RATE_LIMIT,default=10.0"`
	RateBurst                int     `json:"rate_burst" env:"PERPLEXICA_RATE_BURST,default=5"`

	// MCP server (HTTP transport)
	MCPServerHost                string        `json:"mcp_server_host" env:"MCP_SERVER_HOST,default=localhost"`
	MCPServerPort                int           `json:"mcp_server_port" env:"MCP_SERVER_PORT,default=8080"`
	MCPServerReadTimeout         time.Duration `json:"mcp_server_read_timeout" env:"MCP_SERVER_READ_TIMEOUT,default=30s"`
	MCPServerWriteTimeout        time.Duration `json:"mcp_server_write_timeout" env:"MCP_SERVER_WRITE_TIMEOUT,default=120s"`
	MCPServerIdleTimeout         time.Duration `json:"mcp_server_idle_timeout" env:"MCP_SERVER_IDLE_TIMEOUT,default=120s"`
	MCPServerShutdownTimeout     time.Duration `json:"mcp_server_shutdown_timeout" env:"MCP_SERVER_SHUTDOWN_TIMEOUT,default=10s"`
	MCPServerEnableAccessLogging bool          `json:"mcp_server_enable_access_logging" env:"MCP_ACCESS_LOG_ENABLED,default=true"`
	MCPAllowedIPsStr             string        `json:"-" env:"MCP_ALLOWED_IPS"`
	MCPAllowedIPs                []string      `json:"mcp_allowed_ips"`
	MCPIPAuthEnabled             bool          `json:"mcp_ip_auth_enabled" env:"MCP_IP_AUTH_ENABLED,default=true"`
	MCPIPAuthEnableLogging       bool          `json:"mcp_ip_auth_enable_logging" env:"MCP_IP_AUTH_ENABLE_LOGGING,default=true"`
	MCPToolPrefix                string        `json:"mcp_tool_prefix" env:"MCP_TOOL_PREFIX"`

	// Invocation stats
	StatsDBPath string `json:"stats_db_path" env:"STATS_DB_PATH"`

	// OpenTelemetry
	OTelEnabled              bool    `json:"otel_enabled" env:"OTEL_ENABLED,default=false"`
	OTelServiceName          string  `json:"otel_service_name" env:"OTEL_SERVICE_NAME,default=perplexica-mcp"`
	OTelExporterOTLPEndpoint string  `json:"otel_exporter_otlp_endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTelExporterOTLPProtocol string  `json:"otel_exporter_otlp_protocol" env:"OTEL_EXPORTER_OTLP_PROTOCOL,default=http/protobuf"`
	OTelResourceAttributes   string  `json:"otel_resource_attributes" env:"OTEL_RESOURCE_ATTRIBUTES"`
	OTelTracesSampler        string  `json:"otel_traces_sampler" env:"OTEL_TRACES_SAMPLER,default=always_on"`
	OTelTracesSamplerArg     float64 `json:"otel_traces_sampler_arg" env:"OTEL_TRACES_SAMPLER_ARG,default=1.0"`
}

// Timeout returns the upstream request timeout as a duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// DefaultChatModelSpec builds the chat model selection configured through the
// environment, or nil when no default is configured. A custom_openai provider
// carries its base URL and key inside the model spec, the way the upstream
// expects.
func (c *Config) DefaultChatModelSpec() *ChatModelSpec {
	if c.DefaultChatProvider == "" || c.DefaultChatModel == "" {
		return nil
	}
	spec := &ChatModelSpec{
		Provider: c.DefaultChatProvider,
		Name:     c.DefaultChatModel,
	}
	if c.DefaultChatProvider == "custom_openai" {
		spec.CustomOpenAIBaseURL = c.CustomOpenAIBaseURL
		spec.CustomOpenAIKey = c.CustomOpenAIKey
	}
	spec.Normalize()
	return spec
}

// DefaultEmbeddingModelSpec builds the embedding model selection configured
// through the environment, or nil when no default is configured.
func (c *Config) DefaultEmbeddingModelSpec() *EmbeddingModelSpec {
	if c.DefaultEmbeddingProvider == "" || c.DefaultEmbeddingModel == "" {
		return nil
	}
	spec := &EmbeddingModelSpec{
		Provider: c.DefaultEmbeddingProvider,
		Name:     c.DefaultEmbeddingModel,
	}
	spec.Normalize()
	return spec
}
