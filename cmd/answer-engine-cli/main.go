// Package main provides the Answer Engine CLI entrypoint.
package main

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/answerline/answer-engine/internal/config"
	"github.com/answerline/answer-engine/internal/embedding"
	"github.com/answerline/answer-engine/internal/observability"
	"github.com/answerline/answer-engine/internal/retrieval"
	"github.com/answerline/answer-engine/internal/storage"
)

var (
	// Global flags
	cfgFile    string
	outputJSON bool
	noColor    bool

	// Configuration and logger
	cfg    *config.Config
	logger *observability.Logger
)

// rootCmd represents the base command.
var rootCmd = &cobra.Command{
	Use:   "answer-engine-cli",
	Short: "Answer Engine CLI for ingestion, querying, and administration",
	Long: `Answer Engine CLI provides commands for managing tenant knowledge.

Use this tool to:
- Ingest documents (PDF, DOCX, CSV, XLSX, TXT, MD) into a tenant's knowledge base
- Ask questions against the indexed corpus
- Purge a tenant's data

All commands support --json for automation.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		logFormat := "console"
		if outputJSON {
			logFormat = "json"
		}

		logger = observability.NewLogger(observability.LogConfig{
			Level:       cfg.Observability.LogLevel,
			Format:      logFormat,
			ServiceName: "answer-engine-cli",
		})

		return nil
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (default: uses env vars)")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	// Add subcommands
	rootCmd.AddCommand(newIngestCmd())
	rootCmd.AddCommand(newQueryCmd())
	rootCmd.AddCommand(newPurgeCmd())
	rootCmd.AddCommand(newVersionCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newVersionCmd creates the version subcommand.
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			if outputJSON {
				fmt.Println(`{"version":"0.1.0"}`)
				return
			}
			fmt.Println("answer-engine-cli v0.1.0")
		},
	}
}

// resolveID parses a string as UUID, or derives a deterministic UUID from a
// name so dev setups can address tenants by slug.
func resolveID(idOrName string) (uuid.UUID, error) {
	if idOrName == "" {
		return uuid.Nil, fmt.Errorf("empty ID or name")
	}

	if id, err := uuid.Parse(idOrName); err == nil {
		return id, nil
	}

	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(idOrName)), nil
}

// openStore opens the configured database.
func openStore() (*storage.Store, error) {
	return storage.Open(cfg, logger)
}

// buildEmbedder selects the remote embedder when configured and the
// deterministic fallback otherwise.
func buildEmbedder() embedding.Embedder {
	if cfg.Embedding.ProviderURL != "" {
		cli, err := embedding.NewClient(embedding.Config{
			BaseURL:    cfg.Embedding.ProviderURL,
			APIKey:     cfg.Embedding.APIKey,
			Model:      cfg.Embedding.Model,
			Dimension:  cfg.Embedding.Dimension,
			BatchLimit: cfg.Embedding.BatchTokenLimit,
			Timeout:    cfg.Embedding.Timeout,
		})
		if err == nil {
			return cli
		}
		logger.Warn().Err(err).Msg("Embedding provider misconfigured, using deterministic fallback")
	}
	return embedding.NewFallback(cfg.Embedding.Dimension)
}

// buildVectorIndex connects to the remote vector service when configured and
// falls back to a process-local index otherwise.
func buildVectorIndex() retrieval.VectorIndex {
	if cfg.Vector.Adapter == "http" && cfg.Vector.URL != "" {
		idx, err := retrieval.NewHTTPIndex(retrieval.HTTPIndexConfig{
			BaseURL:    cfg.Vector.URL,
			APIKey:     cfg.Vector.APIKey,
			Collection: cfg.Vector.Collection,
			Timeout:    cfg.Vector.Timeout,
			Retries:    cfg.Vector.RetryAttempts,
			RetryDelay: cfg.Vector.RetryDelay,
		}, logger)
		if err == nil {
			return idx
		}
		logger.Warn().Err(err).Msg("Vector service misconfigured, using in-memory index")
	}
	return retrieval.NewMemoryIndex(cfg.Vector.Dimension)
}
