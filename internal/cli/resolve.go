package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/biocurator-go/internal/llm"
	"github.com/raphaelgruber/biocurator-go/internal/metrics"
	"github.com/raphaelgruber/biocurator-go/internal/models"
	"github.com/raphaelgruber/biocurator-go/internal/parser"
	"github.com/raphaelgruber/biocurator-go/internal/service"
)

var (
	resolveTSV    string
	resolveAPIKey string
	resolveLimit  int
	resolveOut    string
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Match curated disease mentions to ontology terms",
	Long: `Resolve each Disease/Evidence row of a TSV file against the loaded
ontology. Candidate terms come from hybrid (BM25 + vector) search; the
configured LLM picks the best match among them.

Examples:
  biocurator resolve --tsv mentions.tsv
  biocurator resolve --tsv mentions.tsv --limit 10 --out matches.json`,
	RunE: runResolve,
}

func init() {
	resolveCmd.Flags().StringVar(&resolveTSV, "tsv", "", "TSV file with Disease and Evidence columns")
	resolveCmd.Flags().StringVar(&resolveAPIKey, "api_key", "", "OpenAI API key for the matcher (default $OPENAI_API_KEY)")
	resolveCmd.Flags().IntVarP(&resolveLimit, "limit", "n", service.DefaultResolveLimit, "candidate terms per mention")
	resolveCmd.Flags().StringVar(&resolveOut, "out", "", "write matches as JSON to this file")
	_ = resolveCmd.MarkFlagRequired("tsv")
}

func runResolve(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	mentions, err := parser.LoadMentionsFile(resolveTSV)
	if err != nil {
		return err
	}
	if len(mentions) == 0 {
		fmt.Println("No mentions found.")
		return nil
	}

	if resolveAPIKey != "" {
		cfg.OpenAIAPIKey = resolveAPIKey
	}
	embedder, err := llm.NewEmbedder(cfg)
	if err != nil {
		return fmt.Errorf("init embedder: %w", err)
	}
	model, err := llm.NewModel(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init model: %w", err)
	}
	slog.Info("resolving mentions", "tsv", resolveTSV, "mentions", len(mentions), "embed_model", embedder.Model(), "llm_model", model.Model())
	client, err := connectDB(ctx)
	if err != nil {
		return err
	}
	defer closeDB(ctx, client)

	collector := metrics.NewCollector()
	svc := service.NewResolveService(client, embedder, model, collector)

	var matches []models.TermMatch
	err = runWithProgress(ctx, "Resolving", "mentions", func(ctx context.Context, report reportFunc) error {
		var err error
		matches, err = svc.Resolve(ctx, mentions, service.ResolveOptions{
			Limit:    resolveLimit,
			Progress: report,
		})
		return err
	})
	// partial results are still reported
	printMatches(matches)
	if resolveOut != "" {
		if writeErr := writeMatches(resolveOut, matches); writeErr != nil {
			return writeErr
		}
		fmt.Printf("Wrote %d matches to %s\n", len(matches), resolveOut)
	}
	if err != nil {
		return fmt.Errorf("resolve: %w", err)
	}

	if verbose {
		snap := collector.Snapshot()
		if g := snap.LLMGenerate; g != nil && g.TotalInputTokens != nil && g.TotalOutputTokens != nil {
			fmt.Printf("LLM calls: %d, tokens in/out: %d/%d, avg %.0f ms\n",
				g.Count, *g.TotalInputTokens, *g.TotalOutputTokens, g.AvgTimeMs)
		}
	}
	return nil
}

func printMatches(matches []models.TermMatch) {
	theme := defaultTheme
	for _, m := range matches {
		fmt.Printf("Query: %s\n", m.Query)
		fmt.Printf("Candidates: %v\n", m.Candidates)
		if m.Error != "" {
			fmt.Println(theme.errorStyle().Render("Error: " + m.Error))
		} else {
			fmt.Printf("Answer: %s\n", m.Answer)
		}
		fmt.Println()
	}
}

func writeMatches(path string, matches []models.TermMatch) error {
	data, err := json.MarshalIndent(matches, "", "  ")
	if err != nil {
		return fmt.Errorf("encode matches: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
