package mcpserver

import (
	"net/http"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// DualTransportHandler serves both MCP HTTP transports on a single path:
// streamable HTTP for current clients and SSE for older ones.
type DualTransportHandler struct {
	streamable http.Handler
	sse        http.Handler
}

// NewDualTransportHandler creates a handler that dispatches per request
// between the streamable HTTP and SSE transports.
func NewDualTransportHandler(getServer func(*http.Request) *mcp.Server) *DualTransportHandler {
	return &DualTransportHandler{
		streamable: mcp.NewStreamableHTTPHandler(getServer, nil),
		sse:        mcp.NewSSEHandler(getServer),
	}
}

func (h *DualTransportHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if wantsSSE(r) {
		h.sse.ServeHTTP(w, r)
		return
	}
	h.streamable.ServeHTTP(w, r)
}

// wantsSSE reports whether the request belongs to the SSE transport: either
// a message POST carrying an SSE session ID, or a GET whose Accept header
// asks for an event stream.
func wantsSSE(r *http.Request) bool {
	if r.Method == http.MethodPost {
		return r.URL.Query().Has("sessionid")
	}
	if r.Method != http.MethodGet {
		return false
	}
	for _, header := range r.Header.Values("Accept") {
		for _, media := range strings.Split(header, ",") {
			media = strings.TrimSpace(media)
			if media == "*/*" || media == "text/event-stream" || strings.HasPrefix(media, "text/") {
				return true
			}
		}
	}
	return false
}
