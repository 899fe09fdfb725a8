package models

import (
	"fmt"
	"strings"
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// Term is one ontology entry parsed from an OBO file.
type Term struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Definition string   `json:"definition,omitempty"`
	Synonyms   []string `json:"synonyms,omitempty"`
}

// SearchText is the text indexed for full-text and vector search: name,
// definition and synonyms, one per line.
func (t Term) SearchText() string {
	parts := []string{t.Name}
	if t.Definition != "" {
		parts = append(parts, t.Definition)
	}
	if len(t.Synonyms) > 0 {
		parts = append(parts, strings.Join(t.Synonyms, "; "))
	}
	return strings.Join(parts, "\n")
}

// DiseaseTerm is an ontology term as stored in the vector database.
type DiseaseTerm struct {
	ID         surrealmodels.RecordID `json:"id"`
	OntologyID string                 `json:"ontology_id"`
	Name       string                 `json:"name"`
	Definition *string                `json:"definition,omitempty"`
	Synonyms   []string               `json:"synonyms"`
	Content    string                 `json:"content"`
	Embedding  []float32              `json:"embedding,omitempty"`
	Created    time.Time              `json:"created,omitempty"`
}

// Describe renders the term as retrieval context for the matcher prompt.
func (d DiseaseTerm) Describe() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s)", d.Name, d.OntologyID)
	if d.Definition != nil && *d.Definition != "" {
		fmt.Fprintf(&b, "\nDefinition: %s", *d.Definition)
	}
	if len(d.Synonyms) > 0 {
		fmt.Fprintf(&b, "\nSynonyms: %s", strings.Join(d.Synonyms, ", "))
	}
	return b.String()
}

// TermVectors holds the per-field embeddings of one term.
type TermVectors struct {
	NameVector       []float32 `json:"nameVector"`
	DefinitionVector []float32 `json:"definitionVector"`
	SynonymsVector   []float32 `json:"synonymsVector"`
}

// DiseaseMention is one row of a curated disease spreadsheet.
type DiseaseMention struct {
	Row      int
	Disease  string
	Evidence string
}

// Query is the text sent to hybrid search for the mention.
func (m DiseaseMention) Query() string {
	return fmt.Sprintf("Disease: %s. Evidence: %s.", m.Disease, m.Evidence)
}

// TermMatch is the outcome of resolving one mention against the ontology.
type TermMatch struct {
	Row        int      `json:"row"`
	Query      string   `json:"query"`
	Candidates []string `json:"candidates"`
	Answer     string   `json:"answer,omitempty"`
	Error      string   `json:"error,omitempty"`
}
