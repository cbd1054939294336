package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/papo-dev/papo/internal/archive"
	"github.com/papo-dev/papo/internal/journal"
	"github.com/papo-dev/papo/internal/mcp"
)

func main() {
	// Log to stderr so stdout is clean for JSON-RPC
	log.SetOutput(os.Stderr)
	log.SetPrefix("[papo-mcp] ")

	// Load .env file if present (don't error if missing)
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded .env file")
	}

	log.Println("Starting papo MCP server...")

	statePath := os.Getenv("STATE_PATH")
	if statePath == "" {
		statePath = "state"
	}

	arch, err := archive.Open(statePath)
	if err != nil {
		log.Fatalf("Failed to open archive: %v", err)
	}
	defer arch.Close()

	server := mcp.NewServer()
	mcp.RegisterAll(server, &mcp.Dependencies{
		Archive: arch,
		Journal: journal.New(statePath),
	})

	if err := server.Run(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
