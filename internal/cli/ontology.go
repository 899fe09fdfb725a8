package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/biocurator-go/internal/db"
	"github.com/raphaelgruber/biocurator-go/internal/embedding"
	"github.com/raphaelgruber/biocurator-go/internal/llm"
	"github.com/raphaelgruber/biocurator-go/internal/metrics"
	"github.com/raphaelgruber/biocurator-go/internal/models"
	"github.com/raphaelgruber/biocurator-go/internal/service"
)

var (
	ontologyOBO       string
	ontologyReset     bool
	ontologyBatchSize int
	ontologyOut       string
)

var ontologyCmd = &cobra.Command{
	Use:   "ontology",
	Short: "Manage the local disease ontology",
}

var ontologyLoadCmd = &cobra.Command{
	Use:   "load",
	Short: "Load an OBO ontology into SurrealDB",
	Long: `Parse an OBO file and store every non-obsolete term with an embedding of
its name, definition and synonyms for hybrid search.

Examples:
  biocurator ontology load --obo doid.obo
  biocurator ontology load --obo doid.obo --reset`,
	RunE: runOntologyLoad,
}

var ontologyEmbedCmd = &cobra.Command{
	Use:   "embed",
	Short: "Write per-field term embeddings to a JSON file",
	Long: `Embed the name, definition and synonyms of every non-obsolete term
separately and write them keyed by ontology ID.

Examples:
  biocurator ontology embed --obo doid.obo --out embeddings.json`,
	RunE: runOntologyEmbed,
}

var ontologyShowCmd = &cobra.Command{
	Use:   "show <ontology-id>",
	Short: "Print a stored term",
	Long: `Print a stored term as the matcher sees it.

Examples:
  biocurator ontology show DOID:1612`,
	Args: cobra.ExactArgs(1),
	RunE: runOntologyShow,
}

func init() {
	ontologyCmd.PersistentFlags().StringVar(&ontologyOBO, "obo", "doid.obo", "OBO ontology file")
	ontologyCmd.PersistentFlags().IntVar(&ontologyBatchSize, "batch-size", embedding.DefaultBatchSize, "terms per embedding request")

	ontologyLoadCmd.Flags().BoolVar(&ontologyReset, "reset", false, "delete stored terms before loading")
	ontologyEmbedCmd.Flags().StringVar(&ontologyOut, "out", "embeddings.json", "output JSON file")

	ontologyCmd.AddCommand(ontologyLoadCmd)
	ontologyCmd.AddCommand(ontologyEmbedCmd)
	ontologyCmd.AddCommand(ontologyShowCmd)
}

func runOntologyLoad(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	embedder, err := llm.NewEmbedder(cfg)
	if err != nil {
		return fmt.Errorf("init embedder: %w", err)
	}
	slog.Info("loading ontology", "obo", ontologyOBO, "embed_model", embedder.Model(), "dimension", embedder.Dimension())
	client, err := connectDB(ctx)
	if err != nil {
		return err
	}
	defer closeDB(ctx, client)

	collector := metrics.NewCollector()
	svc := service.NewOntologyService(client, embedder, collector)

	var result service.LoadResult
	err = runWithProgress(ctx, "Loading terms", "terms", func(ctx context.Context, report reportFunc) error {
		var err error
		result, err = svc.Load(ctx, ontologyOBO, service.LoadOptions{
			Reset:     ontologyReset,
			BatchSize: ontologyBatchSize,
			Progress:  report,
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("load ontology: %w", err)
	}

	fmt.Printf("Parsed %d terms (%d obsolete skipped, %d removed), loaded %d, %d stored in %.2f seconds\n",
		result.Parsed, result.Obsolete, result.Removed, result.Loaded, result.Stored, collector.Elapsed().Seconds())
	return nil
}

func runOntologyEmbed(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	embedder, err := llm.NewEmbedder(cfg)
	if err != nil {
		return fmt.Errorf("init embedder: %w", err)
	}

	// Export needs no database.
	svc := service.NewOntologyService(nil, embedder, nil)

	var written int
	err = runWithProgress(ctx, "Embedding terms", "terms", func(ctx context.Context, report reportFunc) error {
		var err error
		written, err = svc.Embed(ctx, ontologyOBO, ontologyOut, embedding.Options{
			BatchSize: ontologyBatchSize,
			Progress:  report,
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("embed ontology: %w", err)
	}

	fmt.Printf("Wrote embeddings for %d terms to %s\n", written, ontologyOut)
	return nil
}

func runOntologyShow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	client, err := connectDB(ctx)
	if err != nil {
		return err
	}
	defer closeDB(ctx, client)

	term, err := client.QueryGetTerm(ctx, args[0])
	if errors.Is(err, db.ErrNotFound) {
		fmt.Printf("Term %s is not loaded.\n", args[0])
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Println(term.Describe())
	if verbose {
		if key, err := models.RecordIDString(term.ID); err == nil {
			fmt.Printf("Record: %s:%s\n", db.TermTable, key)
		}
	}
	return nil
}
