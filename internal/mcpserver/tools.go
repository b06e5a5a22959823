package mcpserver

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/tianmu/perplexica-mcp-server/internal/format"
	"github.com/tianmu/perplexica-mcp-server/internal/metrics"
	"github.com/tianmu/perplexica-mcp-server/internal/types"
)

// providerCustomOpenAI is the provider name that requires the configured
// OpenAI-compatible base URL and key to be carried on the wire.
const providerCustomOpenAI = "custom_openai"

// searchToolSpec describes one search-family tool.
type searchToolSpec struct {
	name          string
	description   string
	queryHint     string
	focus         types.FocusMode
	withEmbedding bool
}

func searchToolSpecs() []searchToolSpec {
	return []searchToolSpec{
		{
			name:          "search_web",
			description:   "Search the web using Perplexica's AI-powered search engine",
			queryHint:     "The search query or question",
			focus:         types.FocusModeWebSearch,
			withEmbedding: true,
		},
		{
			name:          "search_academic",
			description:   "Search academic papers and scholarly sources using Perplexica",
			queryHint:     "The academic search query",
			focus:         types.FocusModeAcademic,
			withEmbedding: true,
		},
		{
			name:          "search_youtube",
			description:   "Search YouTube videos using Perplexica",
			queryHint:     "The video search query",
			focus:         types.FocusModeYouTube,
			withEmbedding: true,
		},
		{
			name:          "search_reddit",
			description:   "Search Reddit discussions using Perplexica",
			queryHint:     "The discussion search query",
			focus:         types.FocusModeReddit,
			withEmbedding: true,
		},
		{
			name:          "search_wolfram_alpha",
			description:   "Ask Wolfram Alpha computational and factual questions through Perplexica",
			queryHint:     "The computational or factual question",
			focus:         types.FocusModeWolframAlpha,
			withEmbedding: true,
		},
		{
			name:          "writing_assistant",
			description:   "Get writing assistance from Perplexica without searching external sources",
			queryHint:     "The writing task or question",
			focus:         types.FocusModeWriting,
			withEmbedding: false,
		},
	}
}

// registerTools registers the search-family tools plus the model catalog and
// health probe tools. A configured prefix namespaces every tool name.
func (s *Server) registerTools() {
	prefix := s.config.MCPToolPrefix

	for _, spec := range searchToolSpecs() {
		tool := &mcp.Tool{
			Name:        prefix + spec.name,
			Description: spec.description,
			InputSchema: searchInputSchema(spec.queryHint, spec.withEmbedding),
		}
		s.sdkServer.AddTool(tool, s.makeSearchHandler(spec.focus))
		s.logger.Printf("tool registered: %s (focus: %s)", tool.Name, spec.focus)
	}

	s.sdkServer.AddTool(&mcp.Tool{
		Name:        prefix + "get_available_models",
		Description: "Get available chat and embedding models from Perplexica",
		InputSchema: emptyInputSchema(),
	}, s.handleModelsTool)

	s.sdkServer.AddTool(&mcp.Tool{
		Name:        prefix + "health_check",
		Description: "Check if the Perplexica API is healthy and accessible",
		InputSchema: emptyInputSchema(),
	}, s.handleHealthTool)
}

// makeSearchHandler builds the tool handler for one focus mode. All search
// tools share the same argument contract and dispatch path.
func (s *Server) makeSearchHandler(focus types.FocusMode) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		metrics.RecordInvocation(metrics.ModeSearch)

		ctx, span := mcpTracer.Start(ctx, "mcpserver.search")
		defer span.End()

		metricAttrs := make([]attribute.KeyValue, 0, 6)
		metricAttrs = append(metricAttrs, attribute.String("mcp.focus_mode", string(focus)))
		start := time.Now()
		errType := ""
		defer func() {
			recordMCPMetrics(ctx, metricAttrs, time.Since(start), errType)
		}()

		span.SetAttributes(attribute.String("mcp.focus_mode", string(focus)))
		if req.Params.Name != "" {
			span.SetAttributes(attribute.String("mcp.tool.name", req.Params.Name))
			metricAttrs = append(metricAttrs, attribute.String("mcp.tool.name", req.Params.Name))
		}
		if method := getAuthMethodFromContext(ctx); method != "" {
			span.SetAttributes(attribute.String("mcp.auth.method", method))
			metricAttrs = append(metricAttrs, attribute.String("mcp.auth.method", method))
		}
		if clientIP := getClientIPFromContext(ctx); clientIP != "" {
			span.SetAttributes(attribute.String("mcp.client.ip", clientIP))
		}

		var args types.SearchToolRequest
		if len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
				errType = "invalid_arguments"
				span.SetStatus(codes.Error, errType)
				return errorResult(types.NewValidationError("invalid tool arguments: %v", err)), nil
			}
		}
		if args.Query != "" {
			span.SetAttributes(attribute.String("mcp.query", truncateForAttribute(args.Query)))
		}

		searchReq, outputFormat, err := s.buildSearchRequest(focus, &args)
		if err != nil {
			errType = "validation_failed"
			span.SetStatus(codes.Error, errType)
			return errorResult(err), nil
		}

		result, err := s.client.Search(ctx, searchReq)
		if err != nil {
			s.logger.Printf("%s search failed: %v", focus, err)
			errType = string(types.ErrorTypeOf(err))
			if errType == "" {
				errType = "search_failed"
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, errType)
			return errorResult(err), nil
		}
		span.SetAttributes(attribute.Int("mcp.search.sources", len(result.Sources)))

		text, err := format.SearchResult(result, focus, outputFormat)
		if err != nil {
			errType = "format_failed"
			span.SetStatus(codes.Error, errType)
			return errorResult(err), nil
		}

		span.SetStatus(codes.Ok, "search_completed")
		return textResult(text), nil
	}
}

// buildSearchRequest validates tool arguments and assembles the upstream
// request. Validation failures are reported before any network traffic.
func (s *Server) buildSearchRequest(focus types.FocusMode, args *types.SearchToolRequest) (*types.SearchRequest, types.OutputFormat, error) {
	query := strings.TrimSpace(args.Query)
	if query == "" {
		return nil, "", types.NewValidationError("query cannot be empty")
	}

	outputFormat := types.OutputFormat(s.config.DefaultOutputFormat)
	if args.OutputFormat != "" {
		outputFormat = types.OutputFormat(args.OutputFormat)
	}
	if !outputFormat.IsValid() {
		return nil, "", types.NewValidationError("unknown output format: %q", outputFormat)
	}

	req := &types.SearchRequest{
		FocusMode:          focus,
		Query:              query,
		SystemInstructions: args.SystemInstructions,
	}

	if args.OptimizationMode != "" {
		mode := types.OptimizationMode(args.OptimizationMode)
		if !mode.IsValid() {
			return nil, "", types.NewValidationError("unknown optimization mode: %q", args.OptimizationMode)
		}
		req.OptimizationMode = mode
	}

	// Model overrides require both halves; a provider or model alone falls
	// back to the configured defaults.
	if args.ChatProvider != "" && args.ChatModel != "" {
		spec := &types.ChatModelSpec{Provider: args.ChatProvider, Name: args.ChatModel}
		if args.ChatProvider == providerCustomOpenAI {
			spec.CustomOpenAIBaseURL = s.config.CustomOpenAIBaseURL
			spec.CustomOpenAIKey = s.config.CustomOpenAIKey
		}
		spec.Normalize()
		req.ChatModel = spec
	}
	if args.EmbeddingProvider != "" && args.EmbeddingModel != "" {
		spec := &types.EmbeddingModelSpec{Provider: args.EmbeddingProvider, Name: args.EmbeddingModel}
		spec.Normalize()
		req.EmbeddingModel = spec
	}

	for i, turn := range args.History {
		if turn.Role != types.HistoryRoleHuman && turn.Role != types.HistoryRoleAssistant {
			return nil, "", types.NewValidationError("history turn %d has unknown role %q", i, turn.Role)
		}
	}
	req.History = args.History

	return req, outputFormat, nil
}

// handleModelsTool returns the upstream model catalog as raw JSON.
func (s *Server) handleModelsTool(ctx context.Context, _ *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	metrics.RecordInvocation(metrics.ModeModels)

	ctx, span := mcpTracer.Start(ctx, "mcpserver.models")
	defer span.End()

	metricAttrs := []attribute.KeyValue{attribute.String("mcp.tool.kind", "models")}
	start := time.Now()
	errType := ""
	defer func() {
		recordMCPMetrics(ctx, metricAttrs, time.Since(start), errType)
	}()

	catalog, err := s.client.ListModels(ctx)
	if err != nil {
		s.logger.Printf("model catalog fetch failed: %v", err)
		errType = string(types.ErrorTypeOf(err))
		if errType == "" {
			errType = "models_failed"
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, errType)
		return errorResult(err), nil
	}

	text, err := format.ModelCatalog(catalog, types.OutputFormatJSON)
	if err != nil {
		errType = "format_failed"
		span.SetStatus(codes.Error, errType)
		return errorResult(err), nil
	}

	span.SetStatus(codes.Ok, "models_completed")
	return textResult(text), nil
}

// handleHealthTool reports upstream reachability. The probe itself never
// fails, so the result is never marked as an error.
func (s *Server) handleHealthTool(ctx context.Context, _ *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	metrics.RecordInvocation(metrics.ModeHealth)

	ctx, span := mcpTracer.Start(ctx, "mcpserver.health")
	defer span.End()

	start := time.Now()
	status := s.client.HealthCheck(ctx)
	recordMCPMetrics(ctx, []attribute.KeyValue{
		attribute.String("mcp.tool.kind", "health"),
		attribute.Bool("mcp.upstream.healthy", status.Healthy),
	}, time.Since(start), "")

	span.SetAttributes(attribute.Bool("mcp.upstream.healthy", status.Healthy))

	text, err := format.HealthStatus(status)
	if err != nil {
		return errorResult(err), nil
	}

	span.SetStatus(codes.Ok, "health_completed")
	return textResult(text), nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{types.NewTextContent(text)},
	}
}

func errorResult(err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{types.NewTextContent(format.ErrorBody(err))},
		IsError: true,
	}
}
