package service

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/biocurator-go/internal/platform"
)

func newTestProvisioner(t *testing.T, p *fakePlatform) (*Provisioner, *StateStore) {
	t.Helper()
	state := NewStateStore(filepath.Join(t.TempDir(), "state.yaml"))
	prov := NewProvisioner(p, state, ProvisionOptions{
		Model:        "gpt-4o",
		Instructions: "You are a biocurator.",
		Tools: []platform.Tool{{
			Type:     platform.ToolTypeFunction,
			Function: &platform.Function{Name: "record_genes"},
		}},
	})
	return prov, state
}

func TestEnsureAssistant_ReusesByName(t *testing.T) {
	p := newFakePlatform()
	p.assistants["asst_existing"] = platform.Assistant{ID: "asst_existing", Name: "Biocurator"}
	p.assistants["asst_other"] = platform.Assistant{ID: "asst_other", Name: "Biocurator v2"}
	prov, state := newTestProvisioner(t, p)

	id, err := prov.EnsureAssistant(context.Background(), "vs_1")
	require.NoError(t, err)
	assert.Equal(t, "asst_existing", id)
	assert.Empty(t, p.created, "existing assistant must not be recreated")
	assert.Equal(t, []string{"asst_existing->vs_1"}, p.bindCalls)

	st, err := state.Load()
	require.NoError(t, err)
	assert.Equal(t, "asst_existing", st.AssistantID)
}

func TestEnsureAssistant_CreatesWithFileSearch(t *testing.T) {
	p := newFakePlatform()
	prov, _ := newTestProvisioner(t, p)

	id, err := prov.EnsureAssistant(context.Background(), "vs_1")
	require.NoError(t, err)
	require.Len(t, p.created, 1)

	spec := p.created[0]
	assert.Equal(t, "Biocurator", spec.Name)
	assert.Equal(t, "Assistant for Biocuration", spec.Description)
	assert.Equal(t, "gpt-4o", spec.Model)
	assert.Equal(t, "You are a biocurator.", spec.Instructions)
	require.Len(t, spec.Tools, 2)
	assert.Equal(t, platform.ToolTypeFunction, spec.Tools[0].Type)
	assert.Equal(t, platform.ToolTypeFileSearch, spec.Tools[1].Type)
	assert.Equal(t, []string{id + "->vs_1"}, p.bindCalls)
}

func TestEnsureAssistant_PrefersRecordedID(t *testing.T) {
	p := newFakePlatform()
	p.assistants["asst_a"] = platform.Assistant{ID: "asst_a", Name: "Biocurator"}
	p.assistants["asst_b"] = platform.Assistant{ID: "asst_b", Name: "Biocurator"}
	prov, state := newTestProvisioner(t, p)
	require.NoError(t, state.Save(State{AssistantID: "asst_b"}))

	id, err := prov.EnsureAssistant(context.Background(), "vs_1")
	require.NoError(t, err)
	assert.Equal(t, "asst_b", id)
	assert.Empty(t, p.created)
}

func TestEnsureAssistant_StaleRecordFallsBackToName(t *testing.T) {
	p := newFakePlatform()
	p.assistants["asst_live"] = platform.Assistant{ID: "asst_live", Name: "Biocurator"}
	prov, state := newTestProvisioner(t, p)
	require.NoError(t, state.Save(State{AssistantID: "asst_deleted"}))

	id, err := prov.EnsureAssistant(context.Background(), "vs_1")
	require.NoError(t, err)
	assert.Equal(t, "asst_live", id)

	st, err := state.Load()
	require.NoError(t, err)
	assert.Equal(t, "asst_live", st.AssistantID)
}

func TestEnsureAssistant_DuplicateNamesAreReported(t *testing.T) {
	p := newFakePlatform()
	p.assistants["asst_a"] = platform.Assistant{ID: "asst_a", Name: "Biocurator"}
	p.assistants["asst_b"] = platform.Assistant{ID: "asst_b", Name: "Biocurator"}
	prov, _ := newTestProvisioner(t, p)

	_, err := prov.EnsureAssistant(context.Background(), "vs_1")
	require.ErrorIs(t, err, ErrProvisioning)
	require.ErrorIs(t, err, ErrAmbiguousAssistant)
	assert.Contains(t, err.Error(), "asst_a")
	assert.Contains(t, err.Error(), "asst_b")
	assert.Empty(t, p.created)
	assert.Empty(t, p.bindCalls)
}

type emptyIDPlatform struct {
	*fakePlatform
}

func (e emptyIDPlatform) CreateAssistant(context.Context, platform.AssistantSpec) (platform.Assistant, error) {
	return platform.Assistant{}, nil
}

func TestEnsureAssistant_EmptyIDIsProvisioningError(t *testing.T) {
	prov := NewProvisioner(emptyIDPlatform{newFakePlatform()}, nil, ProvisionOptions{Model: "gpt-4o"})

	_, err := prov.EnsureAssistant(context.Background(), "vs_1")
	assert.ErrorIs(t, err, ErrProvisioning)
}

func TestCreateIndex(t *testing.T) {
	p := newFakePlatform()
	prov, _ := newTestProvisioner(t, p)

	idx, err := prov.CreateIndex(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, idx.ID)
	assert.Regexp(t, `^biocurator-[0-9a-f]{8}$`, idx.Name)
}

func TestForget(t *testing.T) {
	p := newFakePlatform()
	prov, state := newTestProvisioner(t, p)
	require.NoError(t, state.Save(State{AssistantID: "asst_1"}))

	require.NoError(t, prov.Forget("asst_other"))
	st, _ := state.Load()
	assert.Equal(t, "asst_1", st.AssistantID)

	require.NoError(t, prov.Forget("asst_1"))
	st, _ = state.Load()
	assert.Empty(t, st.AssistantID)
}

func TestWithFileSearch(t *testing.T) {
	fn := platform.Tool{Type: platform.ToolTypeFunction, Function: &platform.Function{Name: "f"}}
	search := platform.Tool{Type: platform.ToolTypeFileSearch}

	assert.Equal(t, []platform.Tool{search}, WithFileSearch(nil))
	assert.Equal(t, []platform.Tool{fn, search}, WithFileSearch([]platform.Tool{fn}))
	assert.Equal(t, []platform.Tool{search, fn}, WithFileSearch([]platform.Tool{search, fn}))
}

type bindFailPlatform struct {
	*fakePlatform
}

func (b bindFailPlatform) BindIndex(context.Context, string, string, string) error {
	return errFake
}

type indexFailPlatform struct {
	*fakePlatform
}

func (i indexFailPlatform) CreateIndex(context.Context, string) (platform.Index, error) {
	return platform.Index{}, errFake
}

func TestEnsureAssistant_BindFailureReturnsCreatedID(t *testing.T) {
	p := newFakePlatform()
	prov := NewProvisioner(bindFailPlatform{p}, nil, ProvisionOptions{Model: "gpt-4o"})

	id, err := prov.EnsureAssistant(context.Background(), "vs_x")
	require.ErrorIs(t, err, ErrProvisioning)
	require.ErrorIs(t, err, errFake)
	assert.Equal(t, "asst_1", id)
	assert.Contains(t, p.assistants, id)
}

func TestProvision_ReleaseRemovesEverything(t *testing.T) {
	p := newFakePlatform()
	prov, state := newTestProvisioner(t, p)
	td := NewTeardown()

	res, err := prov.Provision(context.Background(), td)
	require.NoError(t, err)
	assert.Contains(t, p.indexes, res.Index.ID)
	assert.Contains(t, p.assistants, res.AssistantID)

	report := td.Release(context.Background())
	require.NoError(t, report.Err())
	assert.Equal(t, []string{"assistant " + res.AssistantID, "index " + res.Index.ID}, report.Released)
	assert.Empty(t, p.assistants)
	assert.Empty(t, p.indexes)

	st, err := state.Load()
	require.NoError(t, err)
	assert.Empty(t, st.AssistantID)

	assert.Empty(t, td.Release(context.Background()).Released, "resources are released once")
}

func TestProvision_IndexFailureLeavesNothing(t *testing.T) {
	p := newFakePlatform()
	prov := NewProvisioner(indexFailPlatform{p}, nil, ProvisionOptions{Model: "gpt-4o"})
	td := NewTeardown()

	_, err := prov.Provision(context.Background(), td)
	require.ErrorIs(t, err, errFake)
	assert.Empty(t, p.created, "no assistant after a failed index")

	report := td.Release(context.Background())
	assert.Empty(t, report.Released)
	assert.Empty(t, p.assistants)
	assert.Empty(t, p.indexes)
}

func TestProvision_AssistantFailureReleasesIndexAndAssistant(t *testing.T) {
	p := newFakePlatform()
	prov := NewProvisioner(bindFailPlatform{p}, nil, ProvisionOptions{Model: "gpt-4o"})
	td := NewTeardown()

	_, err := prov.Provision(context.Background(), td)
	require.ErrorIs(t, err, ErrProvisioning)
	require.Len(t, p.assistants, 1)
	require.Len(t, p.indexes, 1)

	report := td.Release(context.Background())
	require.NoError(t, report.Err())
	assert.Len(t, report.Released, 2)
	assert.Empty(t, p.assistants)
	assert.Empty(t, p.indexes)
}

func TestProvision_AmbiguousAssistantReleasesIndex(t *testing.T) {
	p := newFakePlatform()
	p.assistants["asst_a"] = platform.Assistant{ID: "asst_a", Name: "Biocurator"}
	p.assistants["asst_b"] = platform.Assistant{ID: "asst_b", Name: "Biocurator"}
	prov, _ := newTestProvisioner(t, p)
	td := NewTeardown()

	_, err := prov.Provision(context.Background(), td)
	require.ErrorIs(t, err, ErrAmbiguousAssistant)

	report := td.Release(context.Background())
	require.NoError(t, report.Err())
	assert.Len(t, report.Released, 1)
	assert.Empty(t, p.indexes)
	assert.Len(t, p.assistants, 2, "assistants not created by this batch stay")
}
