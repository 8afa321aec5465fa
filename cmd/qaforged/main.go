// Qaforged is the qaforge daemon: a document ingestion and semantic
// retrieval server that powers QA test-case and Selenium-script generation.
//
// Configuration is loaded from an optional YAML file and environment
// variables. See internal/config for details.
//
// Usage:
//
//	# Start server with defaults
//	qaforged
//
//	# Configure via flags and environment
//	SERVER_PORT=8000 EMBEDDINGS_PROVIDER=fastembed qaforged --config config.yaml
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/silvanlabs/qaforge/internal/chunker"
	"github.com/silvanlabs/qaforge/internal/config"
	"github.com/silvanlabs/qaforge/internal/embeddings"
	"github.com/silvanlabs/qaforge/internal/extraction"
	"github.com/silvanlabs/qaforge/internal/generation"
	"github.com/silvanlabs/qaforge/internal/httpapi"
	"github.com/silvanlabs/qaforge/internal/ingest"
	"github.com/silvanlabs/qaforge/internal/logging"
	"github.com/silvanlabs/qaforge/internal/retrieval"
	"github.com/silvanlabs/qaforge/internal/session"
	"github.com/silvanlabs/qaforge/internal/vectorstore"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	_ = godotenv.Load()

	var (
		configPath  string
		showVersion bool
	)
	flag.StringVar(&configPath, "config", "", "path to YAML config file (optional)")
	flag.BoolVar(&showVersion, "version", false, "print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("qaforged\nVersion:    %s\nCommit:     %s\nBuild Date: %s\n", version, gitCommit, buildDate)
		os.Exit(0)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx, configPath); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server shutdown complete")
}

// run initializes all dependencies, starts the HTTP server and blocks until
// the context is cancelled.
func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger, err := logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() {
		_ = logging.Sync(logger)
	}()

	logger.Info("starting qaforged",
		zap.String("version", version),
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.String("embeddings_provider", cfg.Embeddings.Provider),
		zap.String("vectorstore_provider", cfg.VectorStore.Provider),
	)

	splitter, err := chunker.NewSplitter(cfg.SplitterConfig())
	if err != nil {
		return fmt.Errorf("initializing chunker: %w", err)
	}

	embedder, err := embeddings.NewProvider(cfg.Embeddings)
	if err != nil {
		return fmt.Errorf("initializing embedder: %w", err)
	}
	defer embedder.Close()

	store, err := vectorstore.NewStore(cfg.VectorStore, logger.Named("vectorstore"))
	if err != nil {
		return fmt.Errorf("initializing vector store: %w", err)
	}
	defer store.Close()

	sessions, err := session.NewManager(cfg.Resources.Dir, logger.Named("session"))
	if err != nil {
		return fmt.Errorf("initializing session manager: %w", err)
	}

	extractor := extraction.NewExtractor(logger.Named("extraction"))
	pipeline := ingest.NewPipeline(splitter, embedder, store, logger.Named("ingest"))
	engine := retrieval.NewEngine(embedder, store, cfg.Retrieval.TopK, logger.Named("retrieval"))

	var generator httpapi.TestGenerator
	if cfg.Generation.APIKey == "" {
		logger.Warn("no generation API key configured; test and script generation endpoints disabled")
	} else {
		g, err := generation.NewGenerator(cfg.Generation, engine, logger.Named("generation"))
		if err != nil {
			return fmt.Errorf("initializing generator: %w", err)
		}
		generator = g
	}

	srv, err := httpapi.NewServer(httpapi.Config{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
	}, pipeline, store, generator, extractor, sessions, logger.Named("http"))
	if err != nil {
		return fmt.Errorf("initializing http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}

	return <-errCh
}
