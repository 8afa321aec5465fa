// Package main implements the qaforge CLI for offline knowledge-base
// operations: ingesting documents into the vector store and running
// semantic queries against it without a running server.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/silvanlabs/qaforge/internal/chunker"
	"github.com/silvanlabs/qaforge/internal/config"
	"github.com/silvanlabs/qaforge/internal/embeddings"
	"github.com/silvanlabs/qaforge/internal/extraction"
	"github.com/silvanlabs/qaforge/internal/ingest"
	"github.com/silvanlabs/qaforge/internal/logging"
	"github.com/silvanlabs/qaforge/internal/retrieval"
	"github.com/silvanlabs/qaforge/internal/vectorstore"
)

var (
	// configPath is an optional YAML config file, env vars still apply
	configPath string
	// topK overrides the configured result count for query
	topK int
	// rebuild clears the store before ingesting
	rebuild bool
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "qaforge",
	Short: "CLI for qaforge knowledge-base operations",
	Long: `qaforge is a command-line interface for building and querying the
document knowledge base used by the qaforged server. It operates directly
on the configured vector store, no server required.`,
	Version: version,
}

func init() {
	_ = godotenv.Load()

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file (optional)")
	ingestCmd.Flags().BoolVar(&rebuild, "rebuild", false, "clear the store before ingesting")
	queryCmd.Flags().IntVar(&topK, "top-k", 0, "number of results to return (0 = configured default)")
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(queryCmd)
}

// ingestCmd extracts, chunks, embeds and stores documents
var ingestCmd = &cobra.Command{
	Use:   "ingest <file>...",
	Short: "Ingest documents into the knowledge base",
	Long: `Ingest one or more documents into the vector store.

Supported formats: .txt, .md, .pdf, .json, .html, .htm.

Examples:
  # Ingest a set of requirement documents
  qaforge ingest docs/login.md docs/checkout.pdf

  # Rebuild the knowledge base from scratch
  qaforge ingest --rebuild docs/*.md`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

// queryCmd runs a semantic search against the knowledge base
var queryCmd = &cobra.Command{
	Use:   "query <text>",
	Short: "Query the knowledge base",
	Long: `Run a semantic search against the vector store and print the most
relevant chunks with their distances.

Examples:
  # Default result count
  qaforge query "how does password reset work"

  # More results
  qaforge query --top-k 10 "checkout flow"`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

// runIngest handles the ingest command
func runIngest(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadEnv()
	if err != nil {
		return err
	}
	defer func() {
		_ = logging.Sync(logger)
	}()

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

	extractor := extraction.NewExtractor(logger.Named("extraction"))
	docs := extractor.ExtractAll(args)

	pipelineDocs := make([]ingest.Document, 0, len(docs))
	for _, d := range docs {
		pipelineDocs = append(pipelineDocs, ingest.Document{Text: d.Text, Metadata: d.Metadata})
	}

	pipeline := ingest.NewPipeline(splitter, embedder, store, logger.Named("ingest"))

	ctx := context.Background()
	var report *ingest.Report
	if rebuild {
		report, err = pipeline.Rebuild(ctx, pipelineDocs)
	} else {
		report, err = pipeline.Ingest(ctx, pipelineDocs)
	}
	if err != nil {
		return fmt.Errorf("ingesting documents: %w", err)
	}

	fmt.Printf("Ingested %d document(s) as %d chunk(s)\n", report.DocumentCount, report.ChunkCount)
	return nil
}

// runQuery handles the query command
func runQuery(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadEnv()
	if err != nil {
		return err
	}
	defer func() {
		_ = logging.Sync(logger)
	}()

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

	engine := retrieval.NewEngine(embedder, store, cfg.Retrieval.TopK, logger.Named("retrieval"))

	results, err := engine.Retrieve(context.Background(), args[0], topK)
	if err != nil {
		return fmt.Errorf("querying knowledge base: %w", err)
	}

	if len(results) == 0 {
		fmt.Println("No results found. Have you ingested any documents?")
		return nil
	}

	for i, r := range results {
		source := "unknown"
		if name, ok := r.Metadata["filename"].(string); ok && name != "" {
			source = name
		}
		fmt.Printf("--- Result %d (distance %.4f, source %s) ---\n%s\n\n", i+1, r.Distance, source, r.Content)
	}
	return nil
}

// loadEnv loads configuration and builds a logger for CLI runs.
func loadEnv() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading configuration: %w", err)
	}

	logger, err := logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("initializing logger: %w", err)
	}

	return cfg, logger, nil
}
