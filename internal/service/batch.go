package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/raphaelgruber/biocurator-go/internal/metrics"
	"github.com/raphaelgruber/biocurator-go/internal/models"
)

// DocumentExt is the extension of the documents a batch processes.
const DocumentExt = ".pdf"

// ListDocuments returns the PDF files directly inside dir in lexicographic
// order. Hidden files and subdirectories are skipped.
func ListDocuments(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}

	var docs []string
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") || !e.Type().IsRegular() {
			continue
		}
		if !strings.EqualFold(filepath.Ext(name), DocumentExt) {
			continue
		}
		docs = append(docs, filepath.Join(dir, name))
	}
	sort.Strings(docs)
	return docs, nil
}

// OutputPath returns the file the answer to prompt for document is written to.
func OutputPath(outputDir, document, prompt string) string {
	base := filepath.Base(document)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(outputDir, stem+"_"+prompt+".txt")
}

// PromptFailure records a prompt that produced no output.
type PromptFailure struct {
	Document string
	Prompt   string
	Err      error
}

// DocumentFailure records a document that could not be prepared.
type DocumentFailure struct {
	Document string
	Err      error
}

// BatchResult summarizes a batch.
type BatchResult struct {
	Documents        int
	Written          []string
	PromptFailures   []PromptFailure
	DocumentFailures []DocumentFailure
	Elapsed          time.Duration
}

// AveragePerDocument is the mean wall-clock time per processed document.
func (r BatchResult) AveragePerDocument() time.Duration {
	if r.Documents == 0 {
		return 0
	}
	return r.Elapsed / time.Duration(r.Documents)
}

// BatchOptions configures a batch.
type BatchOptions struct {
	OutputDir string
	Timeout   time.Duration
	// Progress, when set, is called after each document.
	Progress func(done, total int, document string)
}

// BatchDriver runs every prompt against every document.
type BatchDriver struct {
	conversations RunPlatform
	ingestor      *Ingestor
	orchestrator  *Orchestrator
	metrics       *metrics.Collector
	opts          BatchOptions
}

// NewBatchDriver creates a batch driver. collector may be nil.
func NewBatchDriver(p RunPlatform, ingestor *Ingestor, orchestrator *Orchestrator, collector *metrics.Collector, opts BatchOptions) *BatchDriver {
	if collector == nil {
		collector = metrics.NewCollector()
	}
	return &BatchDriver{
		conversations: p,
		ingestor:      ingestor,
		orchestrator:  orchestrator,
		metrics:       collector,
		opts:          opts,
	}
}

// ProcessAll processes documents one at a time. Failures of single prompts or
// documents are recorded in the result and do not stop the batch; only
// cancellation of ctx and an unusable output directory are returned as errors.
func (b *BatchDriver) ProcessAll(ctx context.Context, documents []string, prompts []models.Prompt, assistantID, indexID string) (result BatchResult, err error) {
	start := time.Now()
	defer func() { result.Elapsed = time.Since(start) }()

	if err := os.MkdirAll(b.opts.OutputDir, 0o755); err != nil {
		return result, fmt.Errorf("create output dir: %w", err)
	}

	for n, path := range documents {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		slog.Info("processing document", "path", path, "position", n+1, "total", len(documents))

		docStart := time.Now()
		err = b.processDocument(ctx, path, prompts, assistantID, indexID, &result)
		b.metrics.RecordTiming(metrics.OpDocument, time.Since(docStart))
		result.Documents++
		if b.opts.Progress != nil {
			b.opts.Progress(n+1, len(documents), path)
		}
		if err != nil {
			return result, err
		}
	}
	return result, nil
}

// processDocument returns an error only when ctx was cancelled.
func (b *BatchDriver) processDocument(ctx context.Context, path string, prompts []models.Prompt, assistantID, indexID string, result *BatchResult) error {
	doc, err := b.ingestor.Ingest(ctx, path, indexID)
	defer b.ingestor.Evict(context.WithoutCancel(ctx), indexID, doc)
	if err != nil {
		slog.Error("skipping document", "path", path, "error", err)
		result.DocumentFailures = append(result.DocumentFailures, DocumentFailure{Document: path, Err: err})
		return ctx.Err()
	}

	conversationID, err := b.conversations.CreateConversation(ctx)
	if err != nil {
		slog.Error("skipping document", "path", path, "error", err)
		result.DocumentFailures = append(result.DocumentFailures, DocumentFailure{Document: path, Err: err})
		return ctx.Err()
	}

	for _, prompt := range prompts {
		slog.Info("processing prompt", "path", path, "prompt", prompt.Name)

		promptStart := time.Now()
		out, err := b.answer(ctx, conversationID, assistantID, path, prompt)
		b.metrics.RecordTiming(metrics.OpPrompt, time.Since(promptStart))
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			slog.Error("prompt failed, proceeding to the next prompt", "path", path, "prompt", prompt.Name, "error", err)
			result.PromptFailures = append(result.PromptFailures, PromptFailure{Document: path, Prompt: prompt.Name, Err: err})
			continue
		}
		result.Written = append(result.Written, out)
	}
	return nil
}

// answer runs one prompt and writes its normalized output.
func (b *BatchDriver) answer(ctx context.Context, conversationID, assistantID, path string, prompt models.Prompt) (string, error) {
	payload, err := b.orchestrator.RunPrompt(ctx, conversationID, assistantID, prompt.Text, b.opts.Timeout)
	if err != nil {
		return "", err
	}
	text, err := payload.Render()
	if err != nil {
		return "", fmt.Errorf("render answer: %w", err)
	}

	out := OutputPath(b.opts.OutputDir, path, prompt.Name)
	if err := os.WriteFile(out, []byte(text), 0o644); err != nil {
		return "", fmt.Errorf("write answer: %w", err)
	}
	slog.Info("answer written", "path", out)
	return out, nil
}
