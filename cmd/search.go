package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/spf13/cobra"

	appcfg "github.com/tianmu/perplexica-mcp-server/internal/config"
	"github.com/tianmu/perplexica-mcp-server/internal/format"
	"github.com/tianmu/perplexica-mcp-server/internal/metrics"
	"github.com/tianmu/perplexica-mcp-server/internal/perplexica"
	"github.com/tianmu/perplexica-mcp-server/internal/types"
)

var (
	searchQuery        string
	searchFocus        string
	searchJSON         bool
	searchStream       bool
	searchOptimization string
	searchInstructions string
	searchTimeout      int
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search Perplexica from the command line",
	Long: `
Run a one-shot search against the configured Perplexica instance and print
the answer with its sources. The focus mode selects the upstream pipeline.

Examples:
  # Web search (default)
  perplexica-mcp search -q "what is the capital of France"

  # Academic search with streamed output
  perplexica-mcp search -q "transformer architectures" --focus academicSearch --stream

  # Raw upstream JSON, quality optimization
  perplexica-mcp search -q "golang generics" --json --optimization quality

  # Writing assistance with custom instructions
  perplexica-mcp search -q "rewrite this sentence" --focus writingAssistant --instructions "Be concise"
`,
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().StringVarP(&searchQuery, "query", "q", "", "Text query to search for (required)")
	searchCmd.Flags().StringVar(&searchFocus, "focus", string(types.FocusModeWebSearch), "Focus mode: "+focusModeList())
	searchCmd.Flags().BoolVarP(&searchJSON, "json", "j", false, "Output the raw upstream JSON response")
	searchCmd.Flags().BoolVar(&searchStream, "stream", false, "Stream the answer incrementally as it is generated")
	searchCmd.Flags().StringVar(&searchOptimization, "optimization", "", "Optimization mode: speed|balanced|quality (defaults to configured value)")
	searchCmd.Flags().StringVar(&searchInstructions, "instructions", "", "System instructions passed to the upstream model")
	searchCmd.Flags().IntVar(&searchTimeout, "timeout", 30, "Request timeout in seconds")

	_ = searchCmd.MarkFlagRequired("query")
}

func focusModeList() string {
	names := make([]string, len(types.AllFocusModes))
	for i, mode := range types.AllFocusModes {
		names[i] = string(mode)
	}
	return strings.Join(names, "|")
}

// newPerplexicaClient builds a client from the loaded configuration. Shared
// by the search, models and status commands.
func newPerplexicaClient(cfg *appcfg.Config) (*perplexica.Client, error) {
	clientConfig, err := perplexica.NewConfigFromTypes(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Perplexica config: %w", err)
	}

	if err := clientConfig.Validate(); err != nil {
		return nil, fmt.Errorf("Perplexica config validation failed: %w", err)
	}

	client, err := perplexica.NewClient(clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Perplexica client: %w", err)
	}
	return client, nil
}

// recordCLIInvocation bumps the cli counter in the stats store. Stats are
// best-effort; a broken store never fails the command.
func recordCLIInvocation() {
	if err := metrics.Init(); err != nil {
		return
	}
	metrics.RecordInvocation(metrics.ModeCLI)
}

func runSearch(cmd *cobra.Command, args []string) error {
	focus := types.FocusMode(searchFocus)
	if !focus.IsValid() {
		return fmt.Errorf("invalid focus mode: %s (allowed: %s)", searchFocus, focusModeList())
	}

	// Load configuration
	cfg, err := appcfg.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if cmd.Flags().Changed("timeout") {
		cfg.TimeoutSeconds = searchTimeout
	}

	client, err := newPerplexicaClient(cfg)
	if err != nil {
		return err
	}

	req := &types.SearchRequest{
		FocusMode:          focus,
		Query:              searchQuery,
		SystemInstructions: searchInstructions,
	}
	if searchOptimization != "" {
		opt := types.OptimizationMode(searchOptimization)
		if !opt.IsValid() {
			return fmt.Errorf("invalid optimization mode: %s (allowed: speed|balanced|quality)", searchOptimization)
		}
		req.OptimizationMode = opt
	}

	recordCLIInvocation()
	defer func() { _ = metrics.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout())
	defer cancel()

	if searchStream {
		return runStreamingSearch(ctx, client, req)
	}

	log.Printf("Searching Perplexica (%s) for: %s", focus.Label(), searchQuery)

	result, err := client.Search(ctx, req)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	outputMode := types.OutputFormatFormatted
	if searchJSON {
		outputMode = types.OutputFormatJSON
	}

	text, err := format.SearchResult(result, focus, outputMode)
	if err != nil {
		return fmt.Errorf("failed to render search result: %w", err)
	}

	fmt.Println(text)
	return nil
}

// runStreamingSearch prints answer chunks as they arrive and the collected
// sources once the stream ends.
func runStreamingSearch(ctx context.Context, client *perplexica.Client, req *types.SearchRequest) error {
	var sources []types.Source

	err := client.SearchStream(ctx, req, func(msg *types.StreamMessage) error {
		switch msg.Type {
		case types.StreamMessageResponse:
			var chunk string
			if err := json.Unmarshal(msg.Data, &chunk); err == nil {
				fmt.Print(chunk)
			}
		case types.StreamMessageSources:
			var batch []types.Source
			if err := json.Unmarshal(msg.Data, &batch); err == nil {
				sources = append(sources, batch...)
			}
		case types.StreamMessageError:
			var detail string
			if err := json.Unmarshal(msg.Data, &detail); err != nil {
				detail = string(msg.Data)
			}
			return fmt.Errorf("stream error from Perplexica: %s", detail)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("streaming search failed: %w", err)
	}
	fmt.Println()

	if len(sources) > 0 {
		fmt.Println("\n📚 Sources:")
		for i, source := range sources {
			title := source.Metadata.Title
			if title == "" {
				title = "Untitled"
			}
			fmt.Printf("  %d. %s\n", i+1, title)
			if source.Metadata.URL != "" {
				fmt.Printf("     🔗 %s\n", source.Metadata.URL)
			}
		}
	}

	return nil
}
