package db

import "fmt"

// TermTable holds one record per ontology term, keyed by models.TermKey.
const TermTable = "disease_term"

// SchemaSQL returns the schema initialization SQL for embeddings of the given
// dimension.
func SchemaSQL(dimension int) string {
	return fmt.Sprintf(`
    -- ==========================================================================
    -- DISEASE_TERM TABLE
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS disease_term SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS ontology_id ON disease_term TYPE string;
    DEFINE FIELD IF NOT EXISTS name ON disease_term TYPE string;
    DEFINE FIELD IF NOT EXISTS definition ON disease_term TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS synonyms ON disease_term TYPE array<string>;
    -- name, definition and synonyms joined; the text behind both indexes
    DEFINE FIELD IF NOT EXISTS content ON disease_term TYPE string;
    DEFINE FIELD IF NOT EXISTS embedding ON disease_term TYPE array<float>;
    DEFINE FIELD IF NOT EXISTS created ON disease_term TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS disease_term_ontology_id ON disease_term FIELDS ontology_id UNIQUE;
    DEFINE INDEX IF NOT EXISTS disease_term_embedding ON disease_term FIELDS embedding HNSW DIMENSION %d DIST COSINE TYPE F32;
    DEFINE ANALYZER IF NOT EXISTS disease_term_analyzer TOKENIZERS class FILTERS lowercase, ascii, snowball(english);
    DEFINE INDEX IF NOT EXISTS disease_term_content_ft ON disease_term FIELDS content FULLTEXT ANALYZER disease_term_analyzer BM25;
`, dimension)
}
