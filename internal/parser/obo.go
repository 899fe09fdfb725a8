// Package parser reads the flat input files of the curation tools: OBO
// ontologies, disease-mention spreadsheets, prompt sets and tool declarations.
package parser

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/raphaelgruber/biocurator-go/internal/models"
)

const maxOBOLine = 1024 * 1024

// OBOTerm is a parsed [Term] stanza.
type OBOTerm struct {
	models.Term
	Obsolete bool
}

// ParseOBOFile parses the [Term] stanzas of an OBO file on disk.
func ParseOBOFile(path string) ([]OBOTerm, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open obo file: %w", err)
	}
	defer f.Close()

	terms, err := ParseOBO(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return terms, nil
}

// ParseOBO parses the [Term] stanzas of an OBO document. Header tags and other
// stanza types ([Typedef], [Instance]) are ignored. Stanzas without an id are
// dropped.
func ParseOBO(r io.Reader) ([]OBOTerm, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxOBOLine)

	var (
		terms   []OBOTerm
		current *OBOTerm
	)
	flush := func() {
		if current != nil && current.ID != "" {
			terms = append(terms, *current)
		}
		current = nil
	}

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "!") {
			continue
		}

		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			flush()
			if line == "[Term]" {
				current = &OBOTerm{}
			}
			continue
		}
		if current == nil {
			continue
		}

		tag, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		value = stripTrailingComment(strings.TrimSpace(value))

		switch tag {
		case "id":
			current.ID = value
		case "name":
			current.Name = value
		case "def":
			current.Definition = quotedValue(value)
		case "synonym":
			if syn := quotedValue(value); syn != "" {
				current.Synonyms = append(current.Synonyms, syn)
			}
		case "is_obsolete":
			current.Obsolete = value == "true"
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	flush()

	return terms, nil
}

// quotedValue extracts the leading quoted string of an OBO tag value such as
// `"text with \"quotes\"" EXACT [ref:1]`. Unquoted values are cut before the
// cross-reference list.
func quotedValue(s string) string {
	if !strings.HasPrefix(s, `"`) {
		before, _, _ := strings.Cut(s, " [")
		return strings.TrimSpace(before)
	}

	var b strings.Builder
	escaped := false
	for _, r := range s[1:] {
		switch {
		case escaped:
			b.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
		case r == '"':
			return b.String()
		default:
			b.WriteRune(r)
		}
	}
	// Unterminated quote: keep what was read.
	return b.String()
}

// stripTrailingComment removes an unquoted " ! comment" suffix.
func stripTrailingComment(s string) string {
	inQuote := false
	escaped := false
	for i, r := range s {
		switch {
		case escaped:
			escaped = false
		case r == '\\':
			escaped = true
		case r == '"':
			inQuote = !inQuote
		case r == '!' && !inQuote && i > 0 && s[i-1] == ' ':
			return strings.TrimSpace(s[:i])
		}
	}
	return s
}
