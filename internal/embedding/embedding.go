// Package embedding generates per-field embedding vectors for ontology terms
// and stores them as JSON.
package embedding

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/raphaelgruber/biocurator-go/internal/models"
)

// DefaultBatchSize is the number of terms embedded per provider call.
const DefaultBatchSize = 32

// Embedder defines the interface for text embedding providers.
type Embedder interface {
	// EmbedBatch generates embeddings for multiple texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the embedding vector dimension.
	Dimension() int
}

// Options configures Generate.
type Options struct {
	BatchSize int
	// Progress, when set, is called after each batch.
	Progress func(done, total int)
}

// fieldTexts returns the name, definition and synonym texts of a term.
func fieldTexts(t models.Term) [3]string {
	return [3]string{t.Name, t.Definition, strings.Join(t.Synonyms, " ")}
}

// Generate embeds the name, definition and synonyms of every term. Empty
// fields are not sent to the provider and get an empty vector. The result is
// keyed by ontology ID.
func Generate(ctx context.Context, e Embedder, terms []models.Term, opts Options) (map[string]models.TermVectors, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}

	out := make(map[string]models.TermVectors, len(terms))
	for start := 0; start < len(terms); start += opts.BatchSize {
		end := min(start+opts.BatchSize, len(terms))
		batch := terms[start:end]

		// slot i*3+f holds field f of term i; only non-empty texts are sent
		var texts []string
		var slots []int
		for i, t := range batch {
			for f, text := range fieldTexts(t) {
				if strings.TrimSpace(text) == "" {
					continue
				}
				texts = append(texts, text)
				slots = append(slots, i*3+f)
			}
		}

		vectors, err := e.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embed terms %d-%d: %w", start+1, end, err)
		}

		fields := make([][]float32, len(batch)*3)
		for n, slot := range slots {
			fields[slot] = vectors[n]
		}
		for i, t := range batch {
			out[t.ID] = models.TermVectors{
				NameVector:       orEmpty(fields[i*3]),
				DefinitionVector: orEmpty(fields[i*3+1]),
				SynonymsVector:   orEmpty(fields[i*3+2]),
			}
		}

		if opts.Progress != nil {
			opts.Progress(end, len(terms))
		}
	}
	return out, nil
}

func orEmpty(v []float32) []float32 {
	if v == nil {
		return []float32{}
	}
	return v
}

// WriteFile stores vectors as a JSON object keyed by ontology ID.
func WriteFile(path string, vectors map[string]models.TermVectors) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := json.NewEncoder(f).Encode(vectors); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

// ReadFile loads vectors written by WriteFile.
func ReadFile(path string) (map[string]models.TermVectors, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var vectors map[string]models.TermVectors
	if err := json.Unmarshal(data, &vectors); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return vectors, nil
}
