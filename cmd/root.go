package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "perplexica-mcp",
	Short: "Perplexica MCP - MCP server for Perplexica AI search",
	Long: `Perplexica MCP exposes a Perplexica instance's search capabilities
(web, academic, YouTube, Reddit, Wolfram Alpha, writing assistant) as MCP
(Model Context Protocol) tools for clients like Claude Desktop and IDEs,
and provides CLI commands for querying Perplexica directly.`,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(mcpServerCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(modelsCmd)
	rootCmd.AddCommand(statusCmd)
}
