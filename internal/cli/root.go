package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"pdfrag/config"
	"pdfrag/internal/logger"
)

var (
	cfgFile  string
	cfg      *config.Config
	rootDir  string
	backend  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "pdfrag",
	Short: "PDF retrieval-augmented generation - ingest PDFs and answer questions from them",
	Long: `pdfrag extracts text from PDF documents, splits it into overlapping windows,
embeds and stores the windows in a vector index, and answers questions by
retrieving the most similar windows and handing them to a language model.

Example usage:
  pdfrag ingest ./docs                        # Ingest every PDF under ./docs
  pdfrag query -q "termination clause"        # Show the best matching chunks
  pdfrag ask -q "How long is the warranty?"   # Answer from the indexed documents
  pdfrag serve                                # Start the HTTP API`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error

		if rootDir == "" {
			rootDir, err = os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to get working directory: %w", err)
			}
		}

		if cfgFile != "" {
			if err := config.LoadDotEnv(".env"); err != nil {
				return err
			}
			cfg, err = config.Load(cfgFile)
		} else {
			cfg, err = config.LoadFromDir(rootDir)
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		if backend != "" {
			cfg.Index.Backend = backend
		}
		if logLevel != "" {
			cfg.Logging.Level = logLevel
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		level, err := logger.ParseLevel(cfg.Logging.Level)
		if err != nil {
			return err
		}
		logger.New(logger.Config{Level: level, Format: cfg.Logging.Format})
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./pdfrag.yaml)")
	rootCmd.PersistentFlags().StringVarP(&rootDir, "dir", "d", "", "project directory (default is current directory)")
	rootCmd.PersistentFlags().StringVar(&backend, "backend", "", "vector index backend: memory, bolt, pinecone, qdrant, pgvector")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
}

func GetConfig() *config.Config {
	return cfg
}

func GetRootDir() string {
	return rootDir
}
