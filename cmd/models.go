package cmd

import (
	"context"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	appcfg "github.com/tianmu/perplexica-mcp-server/internal/config"
	"github.com/tianmu/perplexica-mcp-server/internal/format"
	"github.com/tianmu/perplexica-mcp-server/internal/metrics"
	"github.com/tianmu/perplexica-mcp-server/internal/types"
)

var modelsJSON bool

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List chat and embedding models offered by Perplexica",
	Long: `
List the chat and embedding model providers available on the configured
Perplexica instance, as reported by its /api/models endpoint.
`,
	RunE: runModels,
}

func init() {
	modelsCmd.Flags().BoolVarP(&modelsJSON, "json", "j", false, "Output the raw upstream JSON response")
}

func runModels(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := appcfg.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	client, err := newPerplexicaClient(cfg)
	if err != nil {
		return err
	}

	recordCLIInvocation()
	defer func() { _ = metrics.Close() }()

	log.Printf("Fetching model catalog from %s", cfg.BaseURL)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout())
	defer cancel()

	catalog, err := client.ListModels(ctx)
	if err != nil {
		return fmt.Errorf("failed to list models: %w", err)
	}

	outputMode := types.OutputFormatFormatted
	if modelsJSON {
		outputMode = types.OutputFormatJSON
	}

	text, err := format.ModelCatalog(catalog, outputMode)
	if err != nil {
		return fmt.Errorf("failed to render model catalog: %w", err)
	}

	fmt.Println(text)
	return nil
}
