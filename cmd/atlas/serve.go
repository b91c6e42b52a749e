package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/AviroopPaul/atlas-ai/internal/api"
	"github.com/AviroopPaul/atlas-ai/internal/chunk"
	"github.com/AviroopPaul/atlas-ai/internal/config"
	"github.com/AviroopPaul/atlas-ai/internal/extract"
	"github.com/AviroopPaul/atlas-ai/internal/ingest"
	"github.com/AviroopPaul/atlas-ai/internal/intent"
	"github.com/AviroopPaul/atlas-ai/internal/llm"
	"github.com/AviroopPaul/atlas-ai/internal/objectstore"
	"github.com/AviroopPaul/atlas-ai/internal/query"
	"github.com/AviroopPaul/atlas-ai/internal/respond"
	"github.com/AviroopPaul/atlas-ai/internal/storage"
	"github.com/AviroopPaul/atlas-ai/internal/vector"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the atlas API server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "atlas version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Initialize structured logging.
	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Open storage.
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	// External clients.
	objects := objectstore.NewB2(cfg.B2.BaseURL, cfg.B2.KeyID, cfg.B2.ApplicationKey, cfg.B2.Bucket)
	vectors := vector.NewClient(cfg.Chroma.BaseURL, cfg.Chroma.Tenant, cfg.Chroma.Database, cfg.Chroma.APIKey)
	groq := llm.NewClientWithBaseURL(cfg.Groq.APIKey, cfg.Groq.BaseURL)

	// Query pipeline.
	classifier := intent.NewClassifier(groq, cfg.Groq.Model)
	generator := respond.NewGenerator(groq, cfg.Groq.Model)
	orchestrator := query.NewOrchestrator(store, classifier, vectors, generator, objects)

	// Ingestion worker.
	queue := ingest.NewQueue()
	worker := ingest.NewWorker(
		queue,
		store,
		objects,
		extract.New(),
		chunk.New(cfg.Chunking.Size, cfg.Chunking.Overlap),
		vectors,
		500*time.Millisecond,
	)
	go worker.Run(ctx)

	// HTTP server.
	handler := api.NewAppHandler(api.AppDeps{
		Store:   store,
		Objects: objects,
		Vectors: vectors,
		Queue:   queue,
		Asker:   orchestrator,
		Upload:  cfg.Upload,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// Start MCP server (stdio transport) when a service token is configured.
	if mcpToken := os.Getenv("ATLAS_MCP_TOKEN"); mcpToken != "" {
		mcpUser, err := store.GetUserByToken(mcpToken)
		if err != nil {
			return fmt.Errorf("resolving MCP service token: %w", err)
		}
		mcpSrv := api.NewMCPServer(api.MCPDeps{
			Store:    store,
			Asker:    orchestrator,
			Searcher: vectors,
			UserID:   mcpUser.ID,
		})
		stdioSrv := server.NewStdioServer(mcpSrv)
		go func() {
			if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
		}()
		slog.Info("MCP server started (stdio transport)", "user_id", mcpUser.ID)
	}

	// Start server in a goroutine.
	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "atlas listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for signal or server error.
	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	// Graceful shutdown with timeout.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	// Give the worker the same bound to finish its in-flight file.
	select {
	case <-worker.Done():
	case <-shutdownCtx.Done():
		slog.Warn("worker did not stop before the shutdown deadline")
	}
	return nil
}
