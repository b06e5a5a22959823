package main

import (
	"log"

	"github.com/tianmu/perplexica-mcp-server/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
