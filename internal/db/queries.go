package db

import (
	"context"
	"fmt"

	"github.com/raphaelgruber/biocurator-go/internal/models"
	"github.com/surrealdb/surrealdb.go"
)

// QueryUpsertTerm creates or replaces the record for an ontology term.
// The record key is derived from the ontology ID, so reloading a term
// overwrites it instead of duplicating it.
func (c *Client) QueryUpsertTerm(
	ctx context.Context,
	term models.Term,
	embedding []float32,
) (*models.DiseaseTerm, error) {
	synonyms := term.Synonyms
	if synonyms == nil {
		synonyms = []string{}
	}
	var definition *string
	if term.Definition != "" {
		definition = &term.Definition
	}

	sql := `
		UPSERT type::record("disease_term", $key) SET
			ontology_id = $ontology_id,
			name = $name,
			definition = $definition,
			synonyms = $synonyms,
			content = $content,
			embedding = $embedding
		RETURN AFTER
	`

	results, err := surrealdb.Query[[]models.DiseaseTerm](ctx, c.db, sql, map[string]any{
		"key":         models.TermKey(term.ID),
		"ontology_id": term.ID,
		"name":        term.Name,
		"definition":  definition,
		"synonyms":    synonyms,
		"content":     term.SearchText(),
		"embedding":   embedding,
	})
	if err != nil {
		return nil, fmt.Errorf("upsert term %s: %w", term.ID, wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("upsert term %s: no result returned", term.ID)
	}
	return &(*results)[0].Result[0], nil
}

// QueryGetTerm retrieves a term by ontology ID.
// Returns ErrNotFound if no record holds it.
func (c *Client) QueryGetTerm(ctx context.Context, ontologyID string) (*models.DiseaseTerm, error) {
	results, err := surrealdb.Query[[]models.DiseaseTerm](ctx, c.db, `
		SELECT * FROM type::record("disease_term", $key)
	`, map[string]any{"key": models.TermKey(ontologyID)})
	if err != nil {
		return nil, fmt.Errorf("get term: %w", err)
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("get term %s: %w", ontologyID, ErrNotFound)
	}
	return &(*results)[0].Result[0], nil
}

// QueryHybridSearch performs RRF fusion of BM25 + vector search results.
// Returns terms ranked by combined relevance score.
func (c *Client) QueryHybridSearch(
	ctx context.Context,
	query string,
	embedding []float32,
	limit int,
) ([]models.DiseaseTerm, error) {
	if limit <= 0 {
		return []models.DiseaseTerm{}, nil
	}

	// Vector side fetches 2x limit for variety, HNSW ef=40.
	// RRF k=60 (standard constant for rank fusion).
	sql := fmt.Sprintf(`
		SELECT * FROM search::rrf([
			(SELECT id, ontology_id, name, definition, synonyms, content
			 FROM disease_term
			 WHERE embedding <|%d,40|> $emb),
			(SELECT id, ontology_id, name, definition, synonyms, content
			 FROM disease_term
			 WHERE content @0@ $q)
		], $limit, 60)
	`, limit*2)

	results, err := surrealdb.Query[[]models.DiseaseTerm](ctx, c.db, sql, map[string]any{
		"q":     query,
		"emb":   embedding,
		"limit": limit,
	})
	if err != nil {
		return nil, fmt.Errorf("hybrid search: %w", err)
	}

	if results != nil && len(*results) > 0 {
		return (*results)[0].Result, nil
	}
	return []models.DiseaseTerm{}, nil
}

// QueryCountTerms returns the number of stored terms.
func (c *Client) QueryCountTerms(ctx context.Context) (int, error) {
	results, err := surrealdb.Query[[]struct{ C int }](ctx, c.db,
		`SELECT count() AS c FROM disease_term GROUP ALL`, nil)
	if err != nil {
		return 0, fmt.Errorf("count terms: %w", err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return 0, nil
	}
	return (*results)[0].Result[0].C, nil
}

// QueryDeleteTerms deletes terms by ontology ID.
// Returns count of deleted terms (0 if none found - idempotent).
func (c *Client) QueryDeleteTerms(ctx context.Context, ontologyIDs ...string) (int, error) {
	if len(ontologyIDs) == 0 {
		return 0, nil
	}

	results, err := surrealdb.Query[[]models.DiseaseTerm](ctx, c.db,
		`DELETE disease_term WHERE ontology_id IN $ids RETURN BEFORE`,
		map[string]any{"ids": ontologyIDs})
	if err != nil {
		return 0, fmt.Errorf("delete terms: %w", err)
	}

	if results == nil || len(*results) == 0 {
		return 0, nil
	}
	return len((*results)[0].Result), nil
}
