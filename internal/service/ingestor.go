package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/raphaelgruber/biocurator-go/internal/models"
	"github.com/raphaelgruber/biocurator-go/internal/platform"
)

// IngestPlatform is the subset of the platform the ingestor uses.
type IngestPlatform interface {
	UploadFile(ctx context.Context, path string) (platform.File, error)
	DeleteFile(ctx context.Context, id string) error
	AddIndexMember(ctx context.Context, indexID, fileID string) (string, error)
	RemoveIndexMember(ctx context.Context, indexID, fileID string) error
}

// Ingestor uploads documents into the batch index and removes them again.
type Ingestor struct {
	platform IngestPlatform
}

// NewIngestor creates an ingestor.
func NewIngestor(p IngestPlatform) *Ingestor {
	return &Ingestor{platform: p}
}

// Ingest uploads the file at path and adds it to the index. When the upload
// succeeds but indexing fails, the returned document still carries the file
// ID so the caller can evict it.
func (i *Ingestor) Ingest(ctx context.Context, path, indexID string) (models.Document, error) {
	doc := models.Document{Path: path}

	f, err := i.platform.UploadFile(ctx, path)
	if err != nil {
		return doc, fmt.Errorf("ingest %s: %w", path, err)
	}
	doc.FileID = f.ID

	membershipID, err := i.platform.AddIndexMember(ctx, indexID, f.ID)
	if err != nil {
		return doc, fmt.Errorf("ingest %s: %w", path, err)
	}
	doc.MembershipID = membershipID

	slog.Info("document ingested", "path", path, "file", doc.FileID, "index", indexID)
	return doc, nil
}

// Evict removes the document from the index and deletes the uploaded file.
// Failures are logged and never returned.
func (i *Ingestor) Evict(ctx context.Context, indexID string, doc models.Document) {
	if doc.MembershipID != "" {
		if err := i.platform.RemoveIndexMember(ctx, indexID, doc.FileID); err != nil {
			slog.Warn("failed to remove document from index", "path", doc.Path, "file", doc.FileID, "index", indexID, "error", err)
		}
	}
	if doc.FileID != "" {
		if err := i.platform.DeleteFile(ctx, doc.FileID); err != nil {
			slog.Warn("failed to delete uploaded file", "path", doc.Path, "file", doc.FileID, "error", err)
		} else {
			slog.Info("deleted uploaded file", "path", doc.Path, "file", doc.FileID)
		}
	}
}
