package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/mark3labs/mcp-go/server"

	mcpadapter "github.com/GoBeromsu/My-awesome-RA/internal/adapters/mcp"
	"github.com/GoBeromsu/My-awesome-RA/internal/bootstrap"
	"github.com/GoBeromsu/My-awesome-RA/internal/config"
	"github.com/GoBeromsu/My-awesome-RA/internal/observability/logging"
)

const version = "1.0.0"

// stdout carries the MCP protocol, so every log line goes to stderr.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.New(os.Stderr, "", 0).Fatalf("config load: %v", err)
	}
	logger := logging.New(os.Stderr, "mcp", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	stdio := server.NewStdioServer(mcpadapter.NewServer(app.Sessions, version, logger))
	stdio.SetErrorLogger(log.New(os.Stderr, "mcp: ", log.LstdFlags))

	logger.Info("mcp_serving_stdio")
	if err := stdio.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("mcp_server_failed", "error", err)
	}
}
