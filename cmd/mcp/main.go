package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"

	mcpadapter "github.com/kirillkom/legal-assistant/internal/adapters/mcp"
	"github.com/kirillkom/legal-assistant/internal/bootstrap"
	"github.com/kirillkom/legal-assistant/internal/config"
	"github.com/kirillkom/legal-assistant/internal/observability/logging"
)

const version = "1.0.0"

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config_load_failed", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logging.NewLogger(os.Stderr, "mcp", cfg.LogLevel))

	app, err := bootstrap.New(context.Background(), cfg, bootstrap.Options{})
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	s := mcpadapter.NewServer("legal-assistant", version, mcpadapter.NewHandlers(app.SearchUC, app.AskUC))
	slog.Info("mcp_server_started", "transport", "stdio")
	if err := server.ServeStdio(s); err != nil {
		slog.Error("mcp_server_failed", "error", err)
		app.Close()
		os.Exit(1)
	}
}
