package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/biocurator-go/internal/service"
)

var (
	cleanupAPIKey   string
	cleanupMarker   string
	cleanupAttempts int
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete leftover assistants, files and indexes",
	Long: `Delete remote resources left behind by interrupted batches.

Assistants whose name contains the marker, every uploaded file and every
document index are deleted. Each category is re-listed after deletion and
retried until empty or out of attempts.

Examples:
  biocurator cleanup --api_key sk-...
  biocurator cleanup --marker Biocurator --attempts 3`,
	RunE: runCleanup,
}

func init() {
	cleanupCmd.Flags().StringVar(&cleanupAPIKey, "api_key", "", "OpenAI API key (default $OPENAI_API_KEY)")
	cleanupCmd.Flags().StringVar(&cleanupMarker, "marker", service.DefaultAssistantName, "delete assistants whose name contains this")
	cleanupCmd.Flags().IntVar(&cleanupAttempts, "attempts", service.DefaultSweepAttempts, "delete-and-verify rounds per category")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	apiKey, err := apiKeyOr(cleanupAPIKey)
	if err != nil {
		return err
	}

	sweeper := service.NewSweeper(newPlatform(apiKey), service.SweepOptions{
		Marker:   cleanupMarker,
		Attempts: cleanupAttempts,
	})
	report := sweeper.SweepAll(ctx)

	theme := defaultTheme
	for _, c := range report.Categories {
		if c.Clean() {
			fmt.Printf("%s %s: %d deleted\n", theme.completedStyle().Render("✓"), c.Category, c.Deleted)
			continue
		}
		fmt.Printf("%s %s: %d deleted, %d remaining after %d attempts\n",
			theme.errorStyle().Render("✗"), c.Category, c.Deleted, len(c.Remaining), c.Attempts)
		if len(c.Remaining) > 0 {
			fmt.Printf("  %s\n", strings.Join(c.Remaining, ", "))
		}
		if c.Err != nil {
			fmt.Printf("  %v\n", c.Err)
		}
	}

	if !report.Clean() {
		return fmt.Errorf("cleanup incomplete")
	}
	return nil
}
