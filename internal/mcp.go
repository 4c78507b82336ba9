package internal

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/starford/eihwaz/internal/kb"
	"github.com/starford/eihwaz/internal/mcpserver"
	"github.com/starford/eihwaz/internal/models"
	"github.com/starford/eihwaz/internal/store"
)

// RunMCP serves the knowledge base over MCP stdio transport. It opens the
// same store the HTTP server uses, so both can run against one database.
func RunMCP(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	// Stdout carries the JSON-RPC stream, so logs go to stderr.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	db, err := store.Open(cfg.SQLite.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	svc := kb.NewService(db, nil)

	// Same admin bootstrap as the HTTP entrypoint. Listing the MCP
	// principal under admins is how an operator lets tools mutate.
	for _, principal := range cfg.Admins {
		caps := models.Capabilities{CanEdit: true, CanReceiveFeedback: true}
		if err := svc.SetPermissions(ctx, principal, caps); err != nil {
			return fmt.Errorf("grant admin %q: %w", principal, err)
		}
	}

	principal := app.mcpPrincipal
	if principal == "" {
		principal = "mcp"
	}

	logger.Info("Starting MCP server on stdio",
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("principal", principal))

	return mcpserver.New(svc, principal).ServeStdio()
}
