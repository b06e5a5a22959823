package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	appcfg "github.com/tianmu/perplexica-mcp-server/internal/config"
	"github.com/tianmu/perplexica-mcp-server/internal/format"
	"github.com/tianmu/perplexica-mcp-server/internal/metrics"
	"github.com/tianmu/perplexica-mcp-server/internal/types"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show Perplexica reachability and invocation totals",
	Long: `
Probe the configured Perplexica instance, report whether it is reachable,
which model providers it offers, and how often this adapter has been invoked.
`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVarP(&statusJSON, "json", "j", false, "Output status as JSON")
}

func runStatus(cmd *cobra.Command, args []string) error {
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

	log.Printf("Checking Perplexica at %s", cfg.BaseURL)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout())
	defer cancel()

	diag, err := client.Diagnose(ctx)
	if err != nil {
		return fmt.Errorf("failed to collect diagnostics: %w", err)
	}
	diag.Invocations = metrics.GetStatsByName()

	if statusJSON {
		text, err := format.Diagnostics(diag)
		if err != nil {
			return fmt.Errorf("failed to render diagnostics: %w", err)
		}
		fmt.Println(text)
		return nil
	}

	printStatus(diag)
	return nil
}

func printStatus(diag *types.Diagnostics) {
	fmt.Printf("\nPerplexica Status:\n")
	fmt.Printf("  Base URL: %s\n", diag.BaseURL)
	fmt.Printf("  Status:   %s\n", diag.Status)
	fmt.Printf("  Latency:  %dms\n", diag.LatencyMS)

	if len(diag.AvailableModels) > 0 {
		var catalog types.ModelCatalog
		if err := json.Unmarshal(diag.AvailableModels, &catalog); err == nil {
			fmt.Printf("  Chat providers:      %d\n", len(catalog.ChatModelProviders))
			fmt.Printf("  Embedding providers: %d\n", len(catalog.EmbeddingModelProviders))
		}
	}

	if len(diag.Invocations) > 0 {
		fmt.Println("\nInvocations:")
		for _, mode := range metrics.AllModes {
			if count, ok := diag.Invocations[string(mode)]; ok {
				fmt.Printf("  %s: %d\n", mode, count)
			}
		}
	}
}
