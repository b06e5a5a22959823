package mcpserver

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/tianmu/perplexica-mcp-server/internal/metrics"
)

const (
	resourceURIConfig = "perplexica://config"
	resourceURIStatus = "perplexica://status"
)

// registerResources exposes the server configuration and a live status
// snapshot as readable MCP resources.
func (s *Server) registerResources() {
	s.sdkServer.AddResource(&mcp.Resource{
		URI:         resourceURIConfig,
		Name:        "Server Configuration",
		Description: "Current server configuration with secrets omitted",
		MIMEType:    "application/json",
	}, s.handleConfigResource)

	s.sdkServer.AddResource(&mcp.Resource{
		URI:         resourceURIStatus,
		Name:        "Upstream Status",
		Description: "Perplexica connectivity, model catalog and invocation counters",
		MIMEType:    "application/json",
	}, s.handleStatusResource)
}

// handleConfigResource serializes the active configuration. The custom
// OpenAI key is excluded from serialization and never appears here.
func (s *Server) handleConfigResource(_ context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(s.config, "", "  ")
	if err != nil {
		return nil, err
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}

// handleStatusResource probes the upstream and reports the outcome. Probe
// failures are reported in the body rather than as a read error so clients
// always get a status document.
func (s *Server) handleStatusResource(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	diag, err := s.client.Diagnose(ctx)
	if err != nil {
		body, merr := json.MarshalIndent(map[string]string{
			"status": "error",
			"error":  err.Error(),
		}, "", "  ")
		if merr != nil {
			return nil, merr
		}
		return statusResult(req.Params.URI, body), nil
	}

	diag.Invocations = metrics.GetStatsByName()

	data, err := json.MarshalIndent(diag, "", "  ")
	if err != nil {
		return nil, err
	}
	return statusResult(req.Params.URI, data), nil
}

func statusResult(uri string, body []byte) *mcp.ReadResourceResult {
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(body),
		}},
	}
}
