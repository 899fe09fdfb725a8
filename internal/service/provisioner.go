package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/raphaelgruber/biocurator-go/internal/platform"
)

// Assistant defaults.
const (
	DefaultAssistantName        = "Biocurator"
	DefaultAssistantDescription = "Assistant for Biocuration"
)

// ProvisionOptions describes the assistant a batch runs against.
type ProvisionOptions struct {
	Name         string
	Description  string
	Model        string
	Instructions string
	// Tools are the declared function tools. The file search tool is added
	// when missing.
	Tools []platform.Tool
}

// ProvisionPlatform is the subset of the platform the provisioner uses.
type ProvisionPlatform interface {
	AssistantPlatform
	CreateIndex(ctx context.Context, name string) (platform.Index, error)
	DeleteIndex(ctx context.Context, id string) error
}

// Resources are the remote resources one batch runs against.
type Resources struct {
	Index       platform.Index
	AssistantID string
}

// Provisioner creates the document index and creates or reuses the assistant.
type Provisioner struct {
	platform ProvisionPlatform
	state    *StateStore
	opts     ProvisionOptions
	now      func() time.Time
}

// NewProvisioner creates a provisioner. state may be nil.
func NewProvisioner(p ProvisionPlatform, state *StateStore, opts ProvisionOptions) *Provisioner {
	if opts.Name == "" {
		opts.Name = DefaultAssistantName
	}
	if opts.Description == "" {
		opts.Description = DefaultAssistantDescription
	}
	if state == nil {
		state = NewStateStore("")
	}
	return &Provisioner{platform: p, state: state, opts: opts, now: time.Now}
}

// CreateIndex creates a fresh document index for one batch.
func (p *Provisioner) CreateIndex(ctx context.Context) (platform.Index, error) {
	name := fmt.Sprintf("%s-%s", strings.ToLower(p.opts.Name), uuid.New().String()[:8])
	idx, err := p.platform.CreateIndex(ctx, name)
	if err != nil {
		return platform.Index{}, err
	}
	if idx.ID == "" {
		return platform.Index{}, fmt.Errorf("%w: index %s created without an ID", ErrProvisioning, name)
	}
	slog.Info("created document index", "index", idx.ID, "name", name)
	return idx, nil
}

// EnsureAssistant returns the ID of an assistant bound to indexID.
//
// The assistant recorded in the state file is reused while it exists. Failing
// that, an assistant with the configured name is adopted; more than one such
// assistant is reported as ErrAmbiguousAssistant. Otherwise a new assistant is
// created. The chosen ID is written back to the state file.
//
// If binding fails the assistant ID is returned along with the error so the
// caller can release it.
func (p *Provisioner) EnsureAssistant(ctx context.Context, indexID string) (string, error) {
	id, err := p.findAssistant(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrProvisioning, err)
	}

	if id == "" {
		a, err := p.platform.CreateAssistant(ctx, platform.AssistantSpec{
			Name:         p.opts.Name,
			Description:  p.opts.Description,
			Model:        p.opts.Model,
			Instructions: p.opts.Instructions,
			Tools:        WithFileSearch(p.opts.Tools),
		})
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrProvisioning, err)
		}
		if a.ID == "" {
			return "", fmt.Errorf("%w: assistant created without an ID", ErrProvisioning)
		}
		id = a.ID
		slog.Info("created assistant", "assistant", id, "name", p.opts.Name)
	}

	if err := p.platform.BindIndex(ctx, id, p.opts.Model, indexID); err != nil {
		return id, fmt.Errorf("%w: bind assistant %s: %w", ErrProvisioning, id, err)
	}

	if err := p.state.Save(State{AssistantID: id, UpdatedAt: p.now().UTC()}); err != nil {
		slog.Warn("failed to record assistant", "assistant", id, "error", err)
	}
	return id, nil
}

// Provision creates the batch index and ensures the assistant, registering
// each resource with td as soon as it exists. On error the resources created
// so far are already tracked, so releasing td removes them.
func (p *Provisioner) Provision(ctx context.Context, td *Teardown) (Resources, error) {
	var res Resources

	idx, err := p.CreateIndex(ctx)
	if err != nil {
		return res, err
	}
	res.Index = idx
	td.Track(KindIndex, idx.ID, func(ctx context.Context) error {
		return p.platform.DeleteIndex(ctx, idx.ID)
	})

	id, err := p.EnsureAssistant(ctx, idx.ID)
	if id != "" {
		td.Track(KindAssistant, id, func(ctx context.Context) error {
			if err := p.platform.DeleteAssistant(ctx, id); err != nil {
				return err
			}
			return p.Forget(id)
		})
	}
	if err != nil {
		return res, err
	}
	res.AssistantID = id
	return res, nil
}

// Forget clears the recorded assistant after it was deleted.
func (p *Provisioner) Forget(assistantID string) error {
	st, err := p.state.Load()
	if err != nil {
		return err
	}
	if st.AssistantID != assistantID {
		return nil
	}
	return p.state.Save(State{UpdatedAt: p.now().UTC()})
}

// findAssistant returns the ID of a reusable assistant, or "" if none exists.
func (p *Provisioner) findAssistant(ctx context.Context) (string, error) {
	st, err := p.state.Load()
	if err != nil {
		slog.Warn("ignoring unreadable state file", "error", err)
	}
	if st.AssistantID != "" {
		a, err := p.platform.GetAssistant(ctx, st.AssistantID)
		switch {
		case err == nil:
			slog.Info("reusing recorded assistant", "assistant", a.ID)
			return a.ID, nil
		case errors.Is(err, platform.ErrNotFound):
			slog.Info("recorded assistant no longer exists", "assistant", st.AssistantID)
		default:
			return "", err
		}
	}

	assistants, err := p.platform.ListAssistants(ctx)
	if err != nil {
		return "", err
	}
	var matches []string
	for _, a := range assistants {
		if a.Name == p.opts.Name {
			matches = append(matches, a.ID)
		}
	}
	switch len(matches) {
	case 0:
		return "", nil
	case 1:
		slog.Info("reusing assistant found by name", "assistant", matches[0], "name", p.opts.Name)
		return matches[0], nil
	default:
		return "", fmt.Errorf("%w: %q matches %s", ErrAmbiguousAssistant, p.opts.Name, strings.Join(matches, ", "))
	}
}

// WithFileSearch returns tools with the file search tool appended unless it
// is already present.
func WithFileSearch(tools []platform.Tool) []platform.Tool {
	out := make([]platform.Tool, 0, len(tools)+1)
	for _, t := range tools {
		if t.Type == platform.ToolTypeFileSearch {
			return append(out, tools...)
		}
	}
	out = append(out, tools...)
	return append(out, platform.Tool{Type: platform.ToolTypeFileSearch})
}
