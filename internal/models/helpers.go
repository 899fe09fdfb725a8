// Package models defines the data structures shared by the curation batch and
// the ontology pipeline.
package models

import (
	"fmt"
	"strings"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// RecordIDString safely extracts the string ID from a SurrealDB RecordID.
// Returns an error if the ID is not a string type.
func RecordIDString(id surrealmodels.RecordID) (string, error) {
	s, ok := id.ID.(string)
	if !ok {
		return "", fmt.Errorf("unexpected ID type: %T (expected string)", id.ID)
	}
	return s, nil
}

// TermKey converts an ontology identifier such as "DOID:0001816" into the
// record key used for the term ("doid_0001816").
func TermKey(ontologyID string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(ontologyID)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
