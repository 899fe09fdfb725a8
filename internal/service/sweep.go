package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cenkalti/backoff/v4"

	"github.com/raphaelgruber/biocurator-go/internal/platform"
)

// Sweep defaults.
const (
	DefaultSweepAttempts = 6
	indexPageSize        = 100
)

// SweepPlatform is the subset of the platform the sweeper uses.
type SweepPlatform interface {
	ListAssistants(ctx context.Context) ([]platform.Assistant, error)
	DeleteAssistant(ctx context.Context, id string) error
	ListFiles(ctx context.Context) ([]platform.File, error)
	DeleteFile(ctx context.Context, id string) error
	ListIndexes(ctx context.Context, req platform.PageRequest) (platform.IndexPage, error)
	DeleteIndex(ctx context.Context, id string) error
}

// CategoryReport is the outcome of sweeping one kind of resource.
type CategoryReport struct {
	Category  string
	Attempts  int
	Deleted   int
	Remaining []string
	Err       error
}

// Clean reports whether nothing was left behind.
func (c CategoryReport) Clean() bool {
	return c.Err == nil && len(c.Remaining) == 0
}

// SweepReport collects the category reports in sweep order.
type SweepReport struct {
	Categories []CategoryReport
}

// Clean reports whether every category was emptied.
func (r SweepReport) Clean() bool {
	for _, c := range r.Categories {
		if !c.Clean() {
			return false
		}
	}
	return true
}

// SweepOptions configures a sweep.
type SweepOptions struct {
	// Marker selects assistants whose name contains it.
	Marker string
	// Attempts bounds delete-and-verify rounds per category.
	Attempts int
	// NewBackOff returns the pause schedule between attempts.
	NewBackOff func() backoff.BackOff
}

// Sweeper deletes leftover remote resources of earlier batches.
type Sweeper struct {
	platform SweepPlatform
	opts     SweepOptions
}

// NewSweeper creates a sweeper.
func NewSweeper(p SweepPlatform, opts SweepOptions) *Sweeper {
	if opts.Marker == "" {
		opts.Marker = DefaultAssistantName
	}
	if opts.Attempts <= 0 {
		opts.Attempts = DefaultSweepAttempts
	}
	if opts.NewBackOff == nil {
		opts.NewBackOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }
	}
	return &Sweeper{platform: p, opts: opts}
}

type sweepCategory struct {
	name   string
	list   func(ctx context.Context) ([]string, error)
	delete func(ctx context.Context, id string) error
}

// SweepAll sweeps assistants, files and indexes in that order. Each category
// is deleted and re-enumerated until empty or out of attempts.
func (s *Sweeper) SweepAll(ctx context.Context) SweepReport {
	categories := []sweepCategory{
		{name: "assistants", list: s.markedAssistants, delete: s.platform.DeleteAssistant},
		{name: "files", list: s.allFiles, delete: s.platform.DeleteFile},
		{name: "indexes", list: s.allIndexes, delete: s.platform.DeleteIndex},
	}

	var report SweepReport
	for _, c := range categories {
		report.Categories = append(report.Categories, s.sweep(ctx, c))
	}
	return report
}

func (s *Sweeper) sweep(ctx context.Context, c sweepCategory) CategoryReport {
	report := CategoryReport{Category: c.name}

	op := func() error {
		report.Attempts++
		ids, err := c.list(ctx)
		if err != nil {
			report.Remaining = nil
			return fmt.Errorf("list %s: %w", c.name, err)
		}
		for _, id := range ids {
			if err := c.delete(ctx, id); err != nil {
				slog.Warn("failed to delete", "category", c.name, "id", id, "error", err)
				continue
			}
			report.Deleted++
			slog.Info("deleted", "category", c.name, "id", id)
		}

		remaining, err := c.list(ctx)
		if err != nil {
			report.Remaining = nil
			return fmt.Errorf("list %s: %w", c.name, err)
		}
		report.Remaining = remaining
		if len(remaining) > 0 {
			slog.Info("retrying deletion", "category", c.name, "attempt", report.Attempts, "of", s.opts.Attempts, "remaining", len(remaining))
			return fmt.Errorf("%d %s remaining", len(remaining), c.name)
		}
		return nil
	}

	schedule := backoff.WithContext(backoff.WithMaxRetries(s.opts.NewBackOff(), uint64(s.opts.Attempts-1)), ctx)
	if err := backoff.Retry(op, schedule); err != nil {
		report.Err = err
		if len(report.Remaining) == 0 {
			slog.Error("failed to verify deletion", "category", c.name, "attempts", report.Attempts, "error", err)
			return report
		}
		slog.Error("failed to delete all", "category", c.name, "attempts", report.Attempts, "remaining", strings.Join(report.Remaining, ", "))
		return report
	}
	slog.Info("all deleted", "category", c.name)
	return report
}

func (s *Sweeper) markedAssistants(ctx context.Context) ([]string, error) {
	assistants, err := s.platform.ListAssistants(ctx)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, a := range assistants {
		if strings.Contains(a.Name, s.opts.Marker) {
			ids = append(ids, a.ID)
		}
	}
	return ids, nil
}

func (s *Sweeper) allFiles(ctx context.Context) ([]string, error) {
	files, err := s.platform.ListFiles(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(files))
	for _, f := range files {
		ids = append(ids, f.ID)
	}
	return ids, nil
}

func (s *Sweeper) allIndexes(ctx context.Context) ([]string, error) {
	var ids []string
	req := platform.PageRequest{Limit: indexPageSize}
	for {
		page, err := s.platform.ListIndexes(ctx, req)
		if err != nil {
			return nil, err
		}
		for _, idx := range page.Indexes {
			ids = append(ids, idx.ID)
		}
		if !page.HasMore || page.LastID == "" || page.LastID == req.After {
			return ids, nil
		}
		req.After = page.LastID
	}
}
