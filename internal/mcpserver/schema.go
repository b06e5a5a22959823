package mcpserver

import (
	"github.com/google/jsonschema-go/jsonschema"
)

// searchInputSchema declares the shared input contract of the search-family
// tools. The writing assistant takes no embedding parameters, so those
// properties are omitted when includeEmbedding is false.
func searchInputSchema(queryDescription string, includeEmbedding bool) *jsonschema.Schema {
	pairLen := 2
	properties := map[string]*jsonschema.Schema{
		"query": {
			Type:        "string",
			Description: queryDescription,
		},
		"chat_provider": {
			Type:        "string",
			Description: "Chat model provider override (must be set together with chat_model)",
		},
		"chat_model": {
			Type:        "string",
			Description: "Chat model override (must be set together with chat_provider)",
		},
		"optimization_mode": {
			Type:        "string",
			Description: "Speed versus quality tradeoff for the upstream search",
			Enum:        []any{"speed", "balanced", "quality"},
		},
		"output_format": {
			Type:        "string",
			Description: "Result rendering: raw upstream JSON or human-readable text",
			Enum:        []any{"json", "formatted"},
		},
		"system_instructions": {
			Type:        "string",
			Description: "Extra instructions passed to the upstream chat model",
		},
		"history": {
			Type:        "array",
			Description: "Prior conversation turns as [role, message] pairs, role is \"human\" or \"assistant\"",
			Items: &jsonschema.Schema{
				Type:     "array",
				Items:    &jsonschema.Schema{Type: "string"},
				MinItems: &pairLen,
				MaxItems: &pairLen,
			},
		},
	}

	if includeEmbedding {
		properties["embedding_provider"] = &jsonschema.Schema{
			Type:        "string",
			Description: "Embedding model provider override (must be set together with embedding_model)",
		}
		properties["embedding_model"] = &jsonschema.Schema{
			Type:        "string",
			Description: "Embedding model override (must be set together with embedding_provider)",
		}
	}

	return &jsonschema.Schema{
		Type:       "object",
		Properties: properties,
		Required:   []string{"query"},
	}
}

// emptyInputSchema is used by tools that take no arguments.
func emptyInputSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:       "object",
		Properties: map[string]*jsonschema.Schema{},
	}
}
