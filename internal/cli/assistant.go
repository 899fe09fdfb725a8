package cli

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/biocurator-go/internal/config"
	"github.com/raphaelgruber/biocurator-go/internal/metrics"
	"github.com/raphaelgruber/biocurator-go/internal/parser"
	"github.com/raphaelgruber/biocurator-go/internal/service"
)

var (
	assistantAPIKey string
	assistantConfig string
)

var assistantCmd = &cobra.Command{
	Use:   "assistant",
	Short: "Run every curation prompt against every PDF in the input directory",
	Long: `Run a curation batch.

A fresh document index is created and the assistant is created or reused and
bound to it. Each PDF in input_dir is uploaded, asked every prompt from the
prompts file in a new conversation, and removed again. Answers are written to
output_dir as <document>_<prompt>.txt. The index and the assistant are
deleted when the batch ends, also after a failure.

Examples:
  biocurator assistant --api_key sk-...
  biocurator assistant --config curation.cfg`,
	RunE: runAssistant,
}

func init() {
	assistantCmd.Flags().StringVar(&assistantAPIKey, "api_key", "", "OpenAI API key (default $OPENAI_API_KEY)")
	assistantCmd.Flags().StringVar(&assistantConfig, "config", "config.cfg", "curation config file")
}

func runAssistant(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	apiKey, err := apiKeyOr(assistantAPIKey)
	if err != nil {
		return err
	}

	cur, err := config.LoadCuration(assistantConfig)
	if err != nil {
		return err
	}
	if err := cur.Validate(); err != nil {
		return err
	}

	prompts, err := parser.LoadPromptsFile(cur.PromptsFile)
	if err != nil {
		return err
	}
	tools, err := parser.LoadToolsFile(cur.FunctionsFile)
	if err != nil {
		return err
	}
	documents, err := service.ListDocuments(cur.InputDir)
	if err != nil {
		return err
	}
	slog.Info("starting batch", "documents", len(documents), "prompts", len(prompts), "model", cur.Model)

	p := newPlatform(apiKey)
	provisioner := service.NewProvisioner(p, service.NewStateStore(cur.StateFile), service.ProvisionOptions{
		Name:         cur.AssistantName,
		Model:        cur.Model,
		Instructions: cur.AssistantInstructions,
		Tools:        tools,
	})

	teardown := service.NewTeardown()
	defer func() {
		report := teardown.Release(context.WithoutCancel(ctx))
		if relErr := report.Err(); relErr != nil {
			slog.Warn("teardown incomplete, run 'biocurator cleanup' to remove leftovers", "error", relErr)
		}
	}()

	res, err := provisioner.Provision(ctx, teardown)
	if err != nil {
		return err
	}

	collector := metrics.NewCollector()
	driver := service.NewBatchDriver(p,
		service.NewIngestor(p),
		service.NewOrchestrator(p, service.WithPollInterval(cur.PollInterval)),
		collector,
		service.BatchOptions{
			OutputDir: cur.OutputDir,
			Timeout:   cur.Timeout,
			Progress: func(done, total int, document string) {
				fmt.Printf("[%d/%d] %s\n", done, total, filepath.Base(document))
			},
		})

	result, err := driver.ProcessAll(ctx, documents, prompts, res.AssistantID, res.Index.ID)
	printBatchSummary(result)
	return err
}

func printBatchSummary(result service.BatchResult) {
	theme := defaultTheme

	fmt.Println()
	fmt.Printf("Total time elapsed: %.2f seconds\n", result.Elapsed.Seconds())
	if result.Documents == 0 {
		fmt.Println("No files were processed.")
		return
	}
	fmt.Printf("Average time per input file: %.2f seconds\n", result.AveragePerDocument().Seconds())
	fmt.Printf("Answers written: %d\n", len(result.Written))

	if len(result.DocumentFailures) > 0 {
		fmt.Println(theme.errorStyle().Render(fmt.Sprintf("Skipped documents (%d):", len(result.DocumentFailures))))
		for _, f := range result.DocumentFailures {
			fmt.Printf("  • %s: %v\n", filepath.Base(f.Document), f.Err)
		}
	}
	if len(result.PromptFailures) > 0 {
		fmt.Println(theme.errorStyle().Render(fmt.Sprintf("Failed prompts (%d):", len(result.PromptFailures))))
		for _, f := range result.PromptFailures {
			fmt.Printf("  • %s / %s: %v\n", filepath.Base(f.Document), f.Prompt, f.Err)
		}
	}
}
