package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/biocurator-go/internal/platform"
)

func TestSweepAll_DeletesEverything(t *testing.T) {
	p := newFakePlatform()
	p.assistants["asst_1"] = platform.Assistant{ID: "asst_1", Name: "Biocurator"}
	p.assistants["asst_2"] = platform.Assistant{ID: "asst_2", Name: "My Biocurator test"}
	p.assistants["asst_3"] = platform.Assistant{ID: "asst_3", Name: "Unrelated"}
	p.files["file_1"] = platform.File{ID: "file_1"}
	for i := 0; i < 250; i++ {
		_, err := p.CreateIndex(context.Background(), fmt.Sprintf("idx-%d", i))
		require.NoError(t, err)
	}

	report := NewSweeper(p, SweepOptions{}).SweepAll(context.Background())

	require.True(t, report.Clean())
	require.Len(t, report.Categories, 3)
	assert.Equal(t, "assistants", report.Categories[0].Category)
	assert.Equal(t, 2, report.Categories[0].Deleted)
	assert.Equal(t, 1, report.Categories[0].Attempts)
	assert.Equal(t, 1, report.Categories[1].Deleted)
	assert.Equal(t, 250, report.Categories[2].Deleted, "all index pages are followed")

	assert.Contains(t, p.assistants, "asst_3", "assistants without the marker are kept")
	assert.Empty(t, p.indexes)
}

func TestSweepAll_RetriesUntilEmpty(t *testing.T) {
	p := newFakePlatform()
	p.files["file_1"] = platform.File{ID: "file_1"}
	p.failDelete["file_1"] = 2

	report := NewSweeper(p, SweepOptions{}).SweepAll(context.Background())

	files := report.Categories[1]
	assert.True(t, files.Clean())
	assert.Equal(t, 3, files.Attempts, "stops as soon as the category is empty")
	assert.Empty(t, p.files)
}

func TestSweepAll_ReportsRemainingAfterBound(t *testing.T) {
	p := newFakePlatform()
	p.files["file_stuck"] = platform.File{ID: "file_stuck"}
	p.files["file_ok"] = platform.File{ID: "file_ok"}
	p.undeletable["file_stuck"] = true
	idx, _ := p.CreateIndex(context.Background(), "idx")

	report := NewSweeper(p, SweepOptions{Attempts: 4}).SweepAll(context.Background())

	assert.False(t, report.Clean())
	files := report.Categories[1]
	assert.Equal(t, 4, files.Attempts)
	assert.Equal(t, []string{"file_stuck"}, files.Remaining)
	assert.Error(t, files.Err)

	// the next category is still swept
	assert.True(t, report.Categories[2].Clean())
	assert.NotContains(t, p.indexes, idx.ID)
}

func TestSweepAll_DefaultBoundIsSix(t *testing.T) {
	p := newFakePlatform()
	p.assistants["asst_1"] = platform.Assistant{ID: "asst_1", Name: "Biocurator"}
	p.undeletable["asst_1"] = true

	report := NewSweeper(p, SweepOptions{}).SweepAll(context.Background())
	assert.Equal(t, DefaultSweepAttempts, report.Categories[0].Attempts)
	assert.Equal(t, []string{"asst_1"}, report.Categories[0].Remaining)
}

// listFailPlatform lists files normally okCalls times, then fails.
type listFailPlatform struct {
	*fakePlatform
	okCalls int
	calls   int
}

func (l *listFailPlatform) ListFiles(ctx context.Context) ([]platform.File, error) {
	l.calls++
	if l.calls > l.okCalls {
		return nil, errFake
	}
	return l.fakePlatform.ListFiles(ctx)
}

func TestSweepAll_ListFailureDropsStaleRemaining(t *testing.T) {
	p := newFakePlatform()
	p.files["file_stuck"] = platform.File{ID: "file_stuck"}
	p.undeletable["file_stuck"] = true
	// attempt 1 lists and verifies, attempt 2 lists, then verification fails
	lp := &listFailPlatform{fakePlatform: p, okCalls: 3}

	report := NewSweeper(lp, SweepOptions{Attempts: 2}).SweepAll(context.Background())

	files := report.Categories[1]
	assert.False(t, files.Clean())
	assert.Equal(t, 2, files.Attempts)
	assert.Empty(t, files.Remaining, "no leftover IDs without a successful listing")
	require.ErrorIs(t, files.Err, errFake)
	assert.Contains(t, files.Err.Error(), "list files")
}
