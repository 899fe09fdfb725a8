package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/raphaelgruber/biocurator-go/internal/llm"
	"github.com/raphaelgruber/biocurator-go/internal/metrics"
	"github.com/raphaelgruber/biocurator-go/internal/models"
)

// DefaultResolveLimit is the number of candidate terms retrieved per mention.
const DefaultResolveLimit = 5

// TermMatcher picks the best ontology term for a question among retrieved
// contexts.
type TermMatcher interface {
	MatchTerm(ctx context.Context, question string, contexts []string) (string, llm.Usage, error)
}

// ResolveOptions configures ResolveService.Resolve.
type ResolveOptions struct {
	Limit    int
	Progress func(done, total int)
}

// ResolveService maps curated disease mentions onto ontology terms with
// hybrid retrieval followed by an LLM judgement.
type ResolveService struct {
	store     TermStore
	embedder  TermEmbedder
	matcher   TermMatcher
	collector *metrics.Collector
}

// NewResolveService creates a resolve service. collector may be nil.
func NewResolveService(store TermStore, embedder TermEmbedder, matcher TermMatcher, collector *metrics.Collector) *ResolveService {
	if collector == nil {
		collector = metrics.NewCollector()
	}
	return &ResolveService{store: store, embedder: embedder, matcher: matcher, collector: collector}
}

// Resolve matches every mention in order. A failure on one mention is
// recorded in its TermMatch and the loop moves on, except for fatal provider
// errors and cancellation, which stop it. The matches resolved so far are
// returned together with the stopping error.
func (s *ResolveService) Resolve(ctx context.Context, mentions []models.DiseaseMention, opts ResolveOptions) ([]models.TermMatch, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultResolveLimit
	}

	matches := make([]models.TermMatch, 0, len(mentions))
	for i, mention := range mentions {
		if err := ctx.Err(); err != nil {
			return matches, err
		}

		match, err := s.resolveOne(ctx, mention, limit)
		if err != nil {
			if errors.Is(err, llm.ErrFatalAPI) || ctx.Err() != nil {
				return matches, err
			}
			slog.Warn("mention not resolved", "row", mention.Row, "disease", mention.Disease, "error", err)
			match.Error = err.Error()
		}
		matches = append(matches, match)

		if opts.Progress != nil {
			opts.Progress(i+1, len(mentions))
		}
	}
	return matches, nil
}

func (s *ResolveService) resolveOne(ctx context.Context, mention models.DiseaseMention, limit int) (models.TermMatch, error) {
	query := mention.Query()
	match := models.TermMatch{Row: mention.Row, Query: query}

	var vector []float32
	err := s.collector.Time(metrics.OpEmbedding, func() error {
		var err error
		vector, err = s.embedder.Embed(ctx, query)
		return err
	})
	if err != nil {
		return match, fmt.Errorf("embed query: %w", err)
	}

	var terms []models.DiseaseTerm
	err = s.collector.Time(metrics.OpDBSearch, func() error {
		var err error
		terms, err = s.store.QueryHybridSearch(ctx, query, vector, limit)
		return err
	})
	if err != nil {
		return match, err
	}

	contexts := make([]string, len(terms))
	match.Candidates = make([]string, len(terms))
	for i, term := range terms {
		contexts[i] = term.Describe()
		match.Candidates[i] = term.OntologyID
	}

	start := time.Now()
	answer, usage, err := s.matcher.MatchTerm(ctx, query, contexts)
	if err != nil {
		return match, fmt.Errorf("match term: %w", err)
	}
	s.collector.RecordLLMUsage(metrics.OpLLMGenerate, time.Since(start), usage.InputTokens, usage.OutputTokens)

	match.Answer = answer
	slog.Debug("mention resolved", "row", mention.Row, "candidates", len(terms), "answer", answer)
	return match, nil
}
