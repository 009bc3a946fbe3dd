// Package cli implements the diya-ingest command line tool for bulk
// reference ingestion and store maintenance.
package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/tamgam-edu/diya-core/internal/logging"
)

var version = "dev"

var (
	catalogFile string
	cacheDir    string
	logger      *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "diya-ingest",
	Short: "Bulk reference ingestion and vector store maintenance for Diya",
	Long: `diya-ingest downloads reference textbooks from the catalog, extracts and
chunks them, embeds every chunk and stores it in the vector store.

Connection settings are read from the environment (DATABASE_URL, REDIS_URL,
AI_PROVIDER, AI_API_KEY_1..5, AI_API_KEYS, EMBEDDING_DIMENSIONS). A .env file
in the working directory is loaded first.

Example usage:
  diya-ingest catalog --grades 9,10          # Ingest two grades
  diya-ingest catalog --chapters '9/0[1-3]'  # Only chapters 1-3 of grade 9
  diya-ingest catalog --grades 9 --force     # Re-embed an ingested grade
  diya-ingest stats                          # Coverage per grade
  diya-ingest keys                           # Credential slot status`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()
		logger = logging.New(getEnv("LOG_FORMAT", "text"), getEnv("LOG_LEVEL", "warn"))
		slog.SetDefault(logger)
		return nil
	},
}

// Execute runs the root command.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

// SetVersion sets the version reported by the version command.
func SetVersion(v string) {
	version = v
}

func init() {
	rootCmd.PersistentFlags().StringVar(&catalogFile, "catalog", "", "catalog YAML file (default is the built-in NCERT catalog, or $CATALOG_FILE)")
	rootCmd.PersistentFlags().StringVar(&cacheDir, "cache-dir", "", "download cache directory (default is $CATALOG_CACHE_DIR or /tmp/ncert_pdfs)")
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Printf("diya-ingest version %s\n", version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
