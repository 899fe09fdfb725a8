package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/raphaelgruber/biocurator-go/internal/embedding"
	"github.com/raphaelgruber/biocurator-go/internal/metrics"
	"github.com/raphaelgruber/biocurator-go/internal/models"
	"github.com/raphaelgruber/biocurator-go/internal/parser"
)

// TermEmbedder turns text into vectors.
type TermEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// TermStore is the subset of the database the ontology services use.
type TermStore interface {
	QueryUpsertTerm(ctx context.Context, term models.Term, embedding []float32) (*models.DiseaseTerm, error)
	QueryHybridSearch(ctx context.Context, query string, embedding []float32, limit int) ([]models.DiseaseTerm, error)
	QueryCountTerms(ctx context.Context) (int, error)
	QueryDeleteTerms(ctx context.Context, ontologyIDs ...string) (int, error)
	WipeData(ctx context.Context) error
}

// LoadOptions configures OntologyService.Load.
type LoadOptions struct {
	// Reset wipes stored terms before loading.
	Reset     bool
	BatchSize int
	Progress  func(done, total int)
}

// LoadResult summarizes an ontology load.
type LoadResult struct {
	Parsed   int
	Obsolete int
	Loaded   int
	// Removed counts previously stored terms that are now obsolete.
	Removed int
	Stored  int
}

// OntologyService loads OBO ontologies into the term store and exports
// per-field term embeddings.
type OntologyService struct {
	store     TermStore
	embedder  TermEmbedder
	collector *metrics.Collector
}

// NewOntologyService creates an ontology service. collector may be nil.
func NewOntologyService(store TermStore, embedder TermEmbedder, collector *metrics.Collector) *OntologyService {
	if collector == nil {
		collector = metrics.NewCollector()
	}
	return &OntologyService{store: store, embedder: embedder, collector: collector}
}

// Load parses the OBO file at path and upserts every non-obsolete term with
// an embedding of its search text.
func (s *OntologyService) Load(ctx context.Context, path string, opts LoadOptions) (LoadResult, error) {
	var result LoadResult

	parsed, err := parser.ParseOBOFile(path)
	if err != nil {
		return result, err
	}
	result.Parsed = len(parsed)

	terms := make([]models.Term, 0, len(parsed))
	var obsolete []string
	for _, t := range parsed {
		if t.Obsolete {
			obsolete = append(obsolete, t.ID)
			continue
		}
		terms = append(terms, t.Term)
	}
	result.Obsolete = len(obsolete)

	if opts.Reset {
		slog.Info("resetting ontology store")
		if err := s.store.WipeData(ctx); err != nil {
			return result, fmt.Errorf("reset store: %w", err)
		}
	} else if len(obsolete) > 0 {
		removed, err := s.store.QueryDeleteTerms(ctx, obsolete...)
		if err != nil {
			return result, err
		}
		result.Removed = removed
	}

	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = embedding.DefaultBatchSize
	}

	for start := 0; start < len(terms); start += batchSize {
		end := min(start+batchSize, len(terms))
		batch := terms[start:end]

		texts := make([]string, len(batch))
		for i, t := range batch {
			texts[i] = t.SearchText()
		}

		var vectors [][]float32
		err := s.collector.Time(metrics.OpEmbedding, func() error {
			var err error
			vectors, err = s.embedder.EmbedBatch(ctx, texts)
			return err
		})
		if err != nil {
			return result, fmt.Errorf("embed terms %d-%d: %w", start+1, end, err)
		}

		for i, t := range batch {
			err := s.collector.Time(metrics.OpDBUpsert, func() error {
				_, err := s.store.QueryUpsertTerm(ctx, t, vectors[i])
				return err
			})
			if err != nil {
				return result, err
			}
			result.Loaded++
		}

		if opts.Progress != nil {
			opts.Progress(end, len(terms))
		}
	}

	count, err := s.store.QueryCountTerms(ctx)
	if err != nil {
		return result, err
	}
	result.Stored = count

	slog.Info("ontology loaded",
		"path", path,
		"parsed", result.Parsed,
		"obsolete", result.Obsolete,
		"loaded", result.Loaded,
		"removed", result.Removed,
		"stored", result.Stored,
		"elapsed", s.collector.Elapsed().Round(time.Millisecond))
	return result, nil
}

// Embed writes name, definition and synonym vectors for every non-obsolete
// term of the OBO file at oboPath to outPath as JSON. It returns the number
// of terms written.
func (s *OntologyService) Embed(ctx context.Context, oboPath, outPath string, opts embedding.Options) (int, error) {
	parsed, err := parser.ParseOBOFile(oboPath)
	if err != nil {
		return 0, err
	}

	terms := make([]models.Term, 0, len(parsed))
	for _, t := range parsed {
		if !t.Obsolete {
			terms = append(terms, t.Term)
		}
	}

	var vectors map[string]models.TermVectors
	err = s.collector.Time(metrics.OpEmbedding, func() error {
		var err error
		vectors, err = embedding.Generate(ctx, s.embedder, terms, opts)
		return err
	})
	if err != nil {
		return 0, err
	}

	if err := embedding.WriteFile(outPath, vectors); err != nil {
		return 0, err
	}
	slog.Info("term embeddings written", "path", outPath, "terms", len(vectors))
	return len(vectors), nil
}
