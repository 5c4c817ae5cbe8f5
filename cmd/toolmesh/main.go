// Toolmesh: agent-to-agent orchestration MCP server.
//
// Exposes an agent-orchestrator tool that runs multi-tool workflows,
// either from pre-built templates or caller-supplied execution plans,
// over the MCP stdio transport.
//
// Usage:
//
//	toolmesh serve    # Start MCP server (stdio transport)
package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"

	meshserver "github.com/hupe1980/toolmesh/internal/server"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		if err := run(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "--help", "-h", "help":
		printUsage()
	case "--version", "-v", "version":
		fmt.Printf("toolmesh v%s\n", meshserver.Version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func run() error {
	s, err := meshserver.New()
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	return server.ServeStdio(s)
}

func printUsage() {
	fmt.Println(`toolmesh - agent-to-agent orchestration MCP server

Usage:
  toolmesh serve      Start the MCP server (stdio transport)
  toolmesh version    Print the version
  toolmesh help       Show this help`)
}
