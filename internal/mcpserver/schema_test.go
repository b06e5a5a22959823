package mcpserver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchInputSchemaRequiresOnlyQuery(t *testing.T) {
	schema := searchInputSchema("The search query", true)

	require.Equal(t, "object", schema.Type)
	require.Equal(t, []string{"query"}, schema.Required)

	for _, name := range []string{
		"query", "chat_provider", "chat_model", "embedding_provider",
		"embedding_model", "optimization_mode", "output_format",
		"system_instructions", "history",
	} {
		assert.Contains(t, schema.Properties, name)
	}
}

func TestSearchInputSchemaEnumConstraints(t *testing.T) {
	schema := searchInputSchema("The search query", true)

	assert.Equal(t, []any{"speed", "balanced", "quality"}, schema.Properties["optimization_mode"].Enum)
	assert.Equal(t, []any{"json", "formatted"}, schema.Properties["output_format"].Enum)

	history := schema.Properties["history"]
	require.NotNil(t, history.Items)
	require.NotNil(t, history.Items.MinItems)
	require.NotNil(t, history.Items.MaxItems)
	assert.Equal(t, 2, *history.Items.MinItems)
	assert.Equal(t, 2, *history.Items.MaxItems)
}

func TestSearchInputSchemaOmitsEmbeddingForWritingAssistant(t *testing.T) {
	schema := searchInputSchema("The writing task", false)

	assert.NotContains(t, schema.Properties, "embedding_provider")
	assert.NotContains(t, schema.Properties, "embedding_model")
	assert.Contains(t, schema.Properties, "optimization_mode")
}
