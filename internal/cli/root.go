// Package cli provides the command-line interface for biocurator.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/biocurator-go/internal/config"
	"github.com/raphaelgruber/biocurator-go/internal/db"
	"github.com/raphaelgruber/biocurator-go/internal/platform"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose bool
	envFile string

	// Global config, loaded before every command
	cfg        config.Config
	logCleanup func() error
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "biocurator",
	Short: "Curate biological literature with hosted assistants and a local ontology",
	Long: `Biocurator runs a fixed set of curation prompts against every PDF in a
directory using a hosted OpenAI assistant with file search, and writes one
normalized answer file per document and prompt.

It also maintains a local disease ontology in SurrealDB and resolves curated
disease mentions against it with hybrid search and an LLM judgement.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip setup for version and help commands
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		var err error
		cfg, err = config.Load(envFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		level := cfg.LogLevel
		if verbose {
			level = slog.LevelDebug
		}
		logger, cleanup := config.SetupLogger(cfg.LogFile, level)
		slog.SetDefault(logger)
		logCleanup = cleanup
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logCleanup != nil {
			if err := logCleanup(); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close log file: %v\n", err)
			}
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// Cancelling ctx stops the running command; remote resources are still released.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file with environment overrides")

	rootCmd.AddCommand(assistantCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(ontologyCmd)
	rootCmd.AddCommand(resolveCmd)
}

// apiKeyOr returns flagValue, falling back to OPENAI_API_KEY.
func apiKeyOr(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if cfg.OpenAIAPIKey != "" {
		return cfg.OpenAIAPIKey, nil
	}
	return "", fmt.Errorf("an OpenAI API key is required: pass --api_key or set OPENAI_API_KEY")
}

// newPlatform creates the hosted assistant platform client.
func newPlatform(apiKey string) *platform.OpenAI {
	return platform.NewOpenAI(apiKey, cfg.OpenAIBaseURL, slog.Default())
}

// connectDB connects to SurrealDB and initializes the schema for the
// configured embedding dimension.
func connectDB(ctx context.Context) (*db.Client, error) {
	client, err := db.NewClient(ctx, db.Config{
		URL:       cfg.SurrealDBURL,
		Namespace: cfg.SurrealDBNamespace,
		Database:  cfg.SurrealDBDatabase,
		Username:  cfg.SurrealDBUser,
		Password:  cfg.SurrealDBPass,
		AuthLevel: cfg.SurrealDBAuthLevel,
	}, slog.Default())
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if err := client.InitSchema(ctx, cfg.EmbedDimension); err != nil {
		_ = client.Close(ctx)
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return client, nil
}

// closeDB closes the database connection, warning on failure.
func closeDB(ctx context.Context, client *db.Client) {
	if err := client.Close(context.WithoutCancel(ctx)); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to close database: %v\n", err)
	}
}
