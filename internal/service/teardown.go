package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Resource kinds tracked by a Teardown.
const (
	KindAssistant = "assistant"
	KindIndex     = "index"
	KindFile      = "file"
)

type release struct {
	kind string
	id   string
	fn   func(ctx context.Context) error
}

// ReleaseFailure is a resource that could not be released.
type ReleaseFailure struct {
	Kind string
	ID   string
	Err  error
}

// TeardownReport lists the outcome of a Release call.
type TeardownReport struct {
	Released []string
	Failures []ReleaseFailure
}

// Err returns nil when every release succeeded, otherwise an error matching
// ErrTeardown that joins the individual failures.
func (r TeardownReport) Err() error {
	if len(r.Failures) == 0 {
		return nil
	}
	errs := make([]error, 0, len(r.Failures)+1)
	errs = append(errs, ErrTeardown)
	for _, f := range r.Failures {
		errs = append(errs, fmt.Errorf("release %s %s: %w", f.Kind, f.ID, f.Err))
	}
	return errors.Join(errs...)
}

// Teardown releases acquired remote resources in reverse order of acquisition.
type Teardown struct {
	mu       sync.Mutex
	releases []release
	done     bool
}

// NewTeardown creates an empty teardown stack.
func NewTeardown() *Teardown {
	return &Teardown{}
}

// Track registers fn as the release of resource id.
func (t *Teardown) Track(kind, id string, fn func(ctx context.Context) error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.releases = append(t.releases, release{kind: kind, id: id, fn: fn})
}

// Release runs every registered release, most recent first. A failing release
// does not prevent the others. Calls after the first return an empty report.
func (t *Teardown) Release(ctx context.Context) TeardownReport {
	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return TeardownReport{}
	}
	t.done = true
	releases := t.releases
	t.releases = nil
	t.mu.Unlock()

	var report TeardownReport
	for i := len(releases) - 1; i >= 0; i-- {
		r := releases[i]
		slog.Info("releasing resource", "kind", r.kind, "id", r.id)
		if err := r.fn(ctx); err != nil {
			slog.Error("failed to release resource", "kind", r.kind, "id", r.id, "error", err)
			report.Failures = append(report.Failures, ReleaseFailure{Kind: r.kind, ID: r.id, Err: err})
			continue
		}
		report.Released = append(report.Released, r.kind+" "+r.id)
	}
	return report
}
