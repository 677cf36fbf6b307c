package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"mealchat/app"
	"mealchat/mcpserver"
)

func main() {
	// stdout carries the protocol
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	if err := godotenv.Load(); err != nil {
		slog.Info("SETUP: No .env file loaded", "error", err)
	}

	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to decode: %s", err)
	}

	ctx := context.Background()
	a, err := app.New(ctx, cfg, app.Options{})
	if err != nil {
		log.Fatalf("Failed to build sessions: %s", err)
	}
	defer a.Close()

	if err := mcpserver.New(a.Sessions).Run(ctx, &mcp.StdioTransport{}); err != nil {
		slog.Error("MCP: Server stopped", "error", err)
	}
}
