package types

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// MCPToolDefinition is an alias to the SDK Tool type.
type MCPToolDefinition = mcp.Tool

// MCPToolRequest is an alias to the SDK CallToolRequest type.
type MCPToolRequest = mcp.CallToolRequest

// SearchToolRequest is the argument shape shared by the search tool family.
// Parameter names follow the tool schema (snake_case), not the upstream wire
// format; the tool dispatcher translates between the two.
type SearchToolRequest struct {
	Query              string        `json:"query"`
	ChatProvider       string        `json:"chat_provider,omitempty"`
	ChatModel          string        `json:"chat_model,omitempty"`
	EmbeddingProvider  string        `json:"embedding_provider,omitempty"`
	EmbeddingModel     string        `json:"embedding_model,omitempty"`
	OptimizationMode   string        `json:"optimization_mode,omitempty"`
	OutputFormat       string        `json:"output_format,omitempty"`
	SystemInstructions string        `json:"system_instructions,omitempty"`
	History            []HistoryTurn `json:"history,omitempty"`
}

// HealthToolResponse is the health_check tool result payload.
type HealthToolResponse struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message"`
}

// ToolErrorBody is the payload carried by an error tool result.
type ToolErrorBody struct {
	Error string `json:"error"`
}

// NewTextContent creates an SDK text content item.
func NewTextContent(text string) *mcp.TextContent {
	return &mcp.TextContent{Text: text}
}
