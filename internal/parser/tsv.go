package parser

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/raphaelgruber/biocurator-go/internal/models"
)

// Column headers of a disease-mention spreadsheet.
const (
	ColumnDisease  = "Disease"
	ColumnEvidence = "Evidence"
)

// ErrMissingColumn is returned when a spreadsheet lacks a required header.
var ErrMissingColumn = errors.New("missing column")

// LoadMentionsFile reads a tab-separated disease-mention file from disk.
func LoadMentionsFile(path string) ([]models.DiseaseMention, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open tsv: %w", err)
	}
	defer f.Close()
	return LoadMentions(f)
}

// LoadMentions reads the Disease and Evidence columns of a tab-separated file.
// Header names are matched case-insensitively. Rows with an empty disease cell
// are skipped; Row numbers count data rows from 1.
func LoadMentions(r io.Reader) ([]models.DiseaseMention, error) {
	reader := csv.NewReader(r)
	reader.Comma = '\t'
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: empty file", ErrMissingColumn)
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	diseaseCol, evidenceCol := -1, -1
	for i, h := range header {
		name := strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		switch {
		case strings.EqualFold(name, ColumnDisease):
			diseaseCol = i
		case strings.EqualFold(name, ColumnEvidence):
			evidenceCol = i
		}
	}
	if diseaseCol < 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumn, ColumnDisease)
	}
	if evidenceCol < 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumn, ColumnEvidence)
	}

	var mentions []models.DiseaseMention
	row := 0
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", row+1, err)
		}
		row++

		disease := cell(record, diseaseCol)
		if disease == "" {
			continue
		}
		mentions = append(mentions, models.DiseaseMention{
			Row:      row,
			Disease:  disease,
			Evidence: cell(record, evidenceCol),
		})
	}
	return mentions, nil
}

func cell(record []string, i int) string {
	if i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}
