// Package format renders upstream responses for tool output. Rendering is
// deterministic and side-effect free; source ordering always follows the
// upstream response.
package format

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/tianmu/perplexica-mcp-server/internal/types"
)

// previewLimit caps the source snippet preview in formatted output, in runes.
const previewLimit = 150

func focusEmoji(mode types.FocusMode) string {
	switch mode {
	case types.FocusModeAcademic:
		return "🎓"
	case types.FocusModeYouTube:
		return "📺"
	case types.FocusModeReddit:
		return "💬"
	case types.FocusModeWriting:
		return "✍️"
	case types.FocusModeWolframAlpha:
		return "🧮"
	default:
		return "🔍"
	}
}

// SearchResult renders a search result in the requested output format.
// "json" returns the upstream response body verbatim so that callers get the
// exact JSON Perplexica produced; "formatted" renders a human-readable layout.
func SearchResult(result *types.SearchResult, focus types.FocusMode, mode types.OutputFormat) (string, error) {
	if result == nil {
		return "", fmt.Errorf("search result cannot be nil")
	}

	switch mode {
	case types.OutputFormatJSON:
		if len(result.Raw) > 0 {
			return string(result.Raw), nil
		}
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return "", fmt.Errorf("failed to serialize search result: %w", err)
		}
		return string(data), nil
	case types.OutputFormatFormatted:
		return renderSearchResult(result, focus), nil
	default:
		return "", types.NewValidationError("unknown output format: %q", mode)
	}
}

func renderSearchResult(result *types.SearchResult, focus types.FocusMode) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s **%s Results**\n\n", focusEmoji(focus), focus.Label())
	b.WriteString(result.Message)

	if len(result.Sources) > 0 {
		b.WriteString("\n\n📚 **Sources**\n")
		for i, source := range result.Sources {
			title := source.Metadata.Title
			if title == "" {
				title = "Untitled"
			}
			fmt.Fprintf(&b, "\n%d. **%s**", i+1, title)
			if source.Metadata.URL != "" {
				fmt.Fprintf(&b, "\n   🔗 %s", source.Metadata.URL)
			}
			if preview := Truncate(source.PageContent, previewLimit); preview != "" {
				fmt.Fprintf(&b, "\n   📄 %s", preview)
			}
			b.WriteString("\n")
		}
	}

	return b.String()
}

// ModelCatalog renders the provider catalog. "json" passes the upstream body
// through verbatim; "formatted" lists providers and models sorted by provider
// name so the output is stable.
func ModelCatalog(catalog *types.ModelCatalog, mode types.OutputFormat) (string, error) {
	if catalog == nil {
		return "", fmt.Errorf("model catalog cannot be nil")
	}

	switch mode {
	case types.OutputFormatJSON:
		if len(catalog.Raw) > 0 {
			return string(catalog.Raw), nil
		}
		data, err := json.MarshalIndent(catalog, "", "  ")
		if err != nil {
			return "", fmt.Errorf("failed to serialize model catalog: %w", err)
		}
		return string(data), nil
	case types.OutputFormatFormatted:
		return renderModelCatalog(catalog), nil
	default:
		return "", types.NewValidationError("unknown output format: %q", mode)
	}
}

func renderModelCatalog(catalog *types.ModelCatalog) string {
	var b strings.Builder

	b.WriteString("🤖 **Available Models**\n")
	writeProviderSection(&b, "Chat Models", catalog.ChatModelProviders)
	writeProviderSection(&b, "Embedding Models", catalog.EmbeddingModelProviders)

	return b.String()
}

func writeProviderSection(b *strings.Builder, heading string, providers map[string][]types.ModelInfo) {
	fmt.Fprintf(b, "\n**%s**\n", heading)
	if len(providers) == 0 {
		b.WriteString("\n(none)\n")
		return
	}

	names := make([]string, 0, len(providers))
	for name := range providers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		fmt.Fprintf(b, "\n- %s\n", name)
		for _, model := range providers[name] {
			if model.DisplayName != "" && model.DisplayName != model.Name {
				fmt.Fprintf(b, "  - %s (%s)\n", model.Name, model.DisplayName)
			} else {
				fmt.Fprintf(b, "  - %s\n", model.Name)
			}
		}
	}
}

// HealthStatus renders a reachability probe result as indented JSON.
func HealthStatus(status *types.HealthStatus) (string, error) {
	if status == nil {
		return "", fmt.Errorf("health status cannot be nil")
	}

	data, err := json.MarshalIndent(types.HealthToolResponse{
		Healthy: status.Healthy,
		Message: status.Message,
	}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to serialize health status: %w", err)
	}
	return string(data), nil
}

// Diagnostics renders a service status snapshot as indented JSON.
func Diagnostics(diag *types.Diagnostics) (string, error) {
	if diag == nil {
		return "", fmt.Errorf("diagnostics cannot be nil")
	}

	data, err := json.MarshalIndent(diag, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to serialize diagnostics: %w", err)
	}
	return string(data), nil
}

// ErrorBody renders an error the way tool results carry it: a JSON object
// with a single "error" field.
func ErrorBody(err error) string {
	data, marshalErr := json.MarshalIndent(types.ToolErrorBody{Error: err.Error()}, "", "  ")
	if marshalErr != nil {
		return fmt.Sprintf(`{"error": %q}`, err.Error())
	}
	return string(data)
}

// Truncate shortens s to at most limit runes, appending "..." when content
// was cut.
func Truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
