package platform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

// assistantsPageSize is the largest page the assistants listing accepts.
const assistantsPageSize = 100

// OpenAI implements the platform operations on the OpenAI Assistants API.
type OpenAI struct {
	client *openai.Client
	logger *slog.Logger
}

// NewOpenAI creates a client authenticated with apiKey.
// An empty baseURL selects the public API endpoint.
func NewOpenAI(apiKey, baseURL string, logger *slog.Logger) *OpenAI {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimSuffix(baseURL, "/")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenAI{client: openai.NewClientWithConfig(cfg), logger: logger}
}

// ListAssistants returns every assistant visible to the API key.
func (o *OpenAI) ListAssistants(ctx context.Context) ([]Assistant, error) {
	limit := assistantsPageSize
	var after *string
	var out []Assistant
	for {
		page, err := o.client.ListAssistants(ctx, &limit, nil, after, nil)
		if err != nil {
			return nil, fmt.Errorf("list assistants: %w", wrapAPIError(err))
		}
		for _, a := range page.Assistants {
			out = append(out, toAssistant(a))
		}
		if !page.HasMore || page.LastID == nil || len(page.Assistants) == 0 {
			return out, nil
		}
		after = page.LastID
	}
}

// GetAssistant retrieves an assistant by ID. Returns ErrNotFound if it is gone.
func (o *OpenAI) GetAssistant(ctx context.Context, id string) (Assistant, error) {
	a, err := o.client.RetrieveAssistant(ctx, id)
	if err != nil {
		return Assistant{}, fmt.Errorf("retrieve assistant %s: %w", id, wrapAPIError(err))
	}
	return toAssistant(a), nil
}

// CreateAssistant creates a new assistant.
func (o *OpenAI) CreateAssistant(ctx context.Context, spec AssistantSpec) (Assistant, error) {
	tools := make([]openai.AssistantTool, 0, len(spec.Tools))
	for _, t := range spec.Tools {
		tools = append(tools, toOpenAITool(t))
	}

	req := openai.AssistantRequest{
		Model:        spec.Model,
		Name:         &spec.Name,
		Description:  &spec.Description,
		Instructions: &spec.Instructions,
		Tools:        tools,
	}
	a, err := o.client.CreateAssistant(ctx, req)
	if err != nil {
		return Assistant{}, fmt.Errorf("create assistant: %w", wrapAPIError(err))
	}
	return toAssistant(a), nil
}

// BindIndex points the assistant's file search at indexID.
func (o *OpenAI) BindIndex(ctx context.Context, assistantID, model, indexID string) error {
	req := openai.AssistantRequest{
		Model: model,
		ToolResources: &openai.AssistantToolResource{
			FileSearch: &openai.AssistantToolFileSearch{
				VectorStoreIDs: []string{indexID},
			},
		},
	}
	if _, err := o.client.ModifyAssistant(ctx, assistantID, req); err != nil {
		return fmt.Errorf("bind index %s to assistant %s: %w", indexID, assistantID, wrapAPIError(err))
	}
	return nil
}

// DeleteAssistant deletes an assistant.
func (o *OpenAI) DeleteAssistant(ctx context.Context, id string) error {
	if _, err := o.client.DeleteAssistant(ctx, id); err != nil {
		return fmt.Errorf("delete assistant %s: %w", id, wrapAPIError(err))
	}
	return nil
}

// CreateIndex creates an empty vector store.
func (o *OpenAI) CreateIndex(ctx context.Context, name string) (Index, error) {
	vs, err := o.client.CreateVectorStore(ctx, openai.VectorStoreRequest{Name: name})
	if err != nil {
		return Index{}, fmt.Errorf("create vector store: %w", wrapAPIError(err))
	}
	return Index{ID: vs.ID, Name: vs.Name}, nil
}

// ListIndexes returns one page of vector stores.
func (o *OpenAI) ListIndexes(ctx context.Context, req PageRequest) (IndexPage, error) {
	pagination := openai.Pagination{}
	if req.Limit > 0 {
		limit := req.Limit
		pagination.Limit = &limit
	}
	if req.After != "" {
		after := req.After
		pagination.After = &after
	}

	list, err := o.client.ListVectorStores(ctx, pagination)
	if err != nil {
		return IndexPage{}, fmt.Errorf("list vector stores: %w", wrapAPIError(err))
	}

	o.logger.Debug("listed vector stores", "count", len(list.VectorStores), "has_more", list.HasMore)
	page := IndexPage{HasMore: list.HasMore}
	for _, vs := range list.VectorStores {
		page.Indexes = append(page.Indexes, Index{ID: vs.ID, Name: vs.Name})
	}
	switch {
	case list.LastID != nil:
		page.LastID = *list.LastID
	case len(page.Indexes) > 0:
		page.LastID = page.Indexes[len(page.Indexes)-1].ID
	}
	return page, nil
}

// DeleteIndex deletes a vector store.
func (o *OpenAI) DeleteIndex(ctx context.Context, id string) error {
	if _, err := o.client.DeleteVectorStore(ctx, id); err != nil {
		return fmt.Errorf("delete vector store %s: %w", id, wrapAPIError(err))
	}
	return nil
}

// UploadFile uploads a local document for assistant use.
func (o *OpenAI) UploadFile(ctx context.Context, path string) (File, error) {
	f, err := o.client.CreateFile(ctx, openai.FileRequest{
		FileName: filepath.Base(path),
		FilePath: path,
		Purpose:  string(openai.PurposeAssistants),
	})
	if err != nil {
		return File{}, fmt.Errorf("upload %s: %w", path, wrapAPIError(err))
	}
	o.logger.Debug("uploaded file", "path", path, "file", f.ID, "bytes", f.Bytes)
	return File{ID: f.ID, Name: f.FileName}, nil
}

// ListFiles returns every uploaded file.
func (o *OpenAI) ListFiles(ctx context.Context) ([]File, error) {
	list, err := o.client.ListFiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", wrapAPIError(err))
	}
	out := make([]File, 0, len(list.Files))
	for _, f := range list.Files {
		out = append(out, File{ID: f.ID, Name: f.FileName})
	}
	return out, nil
}

// DeleteFile deletes an uploaded file.
func (o *OpenAI) DeleteFile(ctx context.Context, id string) error {
	if err := o.client.DeleteFile(ctx, id); err != nil {
		return fmt.Errorf("delete file %s: %w", id, wrapAPIError(err))
	}
	return nil
}

// AddIndexMember attaches an uploaded file to a vector store.
func (o *OpenAI) AddIndexMember(ctx context.Context, indexID, fileID string) (string, error) {
	vsf, err := o.client.CreateVectorStoreFile(ctx, indexID, openai.VectorStoreFileRequest{FileID: fileID})
	if err != nil {
		return "", fmt.Errorf("attach file %s to vector store %s: %w", fileID, indexID, wrapAPIError(err))
	}
	return vsf.ID, nil
}

// RemoveIndexMember detaches a file from a vector store.
func (o *OpenAI) RemoveIndexMember(ctx context.Context, indexID, fileID string) error {
	if err := o.client.DeleteVectorStoreFile(ctx, indexID, fileID); err != nil {
		return fmt.Errorf("detach file %s from vector store %s: %w", fileID, indexID, wrapAPIError(err))
	}
	return nil
}

// CreateConversation creates an empty thread.
func (o *OpenAI) CreateConversation(ctx context.Context) (string, error) {
	th, err := o.client.CreateThread(ctx, openai.ThreadRequest{})
	if err != nil {
		return "", fmt.Errorf("create thread: %w", wrapAPIError(err))
	}
	return th.ID, nil
}

// PostMessage appends a user message to a thread.
func (o *OpenAI) PostMessage(ctx context.Context, conversationID, text string) error {
	_, err := o.client.CreateMessage(ctx, conversationID, openai.MessageRequest{
		Role:    RoleUser,
		Content: text,
	})
	if err != nil {
		return fmt.Errorf("post message to thread %s: %w", conversationID, wrapAPIError(err))
	}
	return nil
}

// CreateRun starts the assistant on a thread.
func (o *OpenAI) CreateRun(ctx context.Context, conversationID, assistantID string) (Run, error) {
	r, err := o.client.CreateRun(ctx, conversationID, openai.RunRequest{AssistantID: assistantID})
	if err != nil {
		return Run{}, fmt.Errorf("create run on thread %s: %w", conversationID, wrapAPIError(err))
	}
	return toRun(r), nil
}

// GetRun fetches the current state of a run.
func (o *OpenAI) GetRun(ctx context.Context, conversationID, runID string) (Run, error) {
	r, err := o.client.RetrieveRun(ctx, conversationID, runID)
	if err != nil {
		return Run{}, fmt.Errorf("retrieve run %s: %w", runID, wrapAPIError(err))
	}
	o.logger.Debug("polled run", "run", r.ID, "status", r.Status)
	return toRun(r), nil
}

// ListMessages returns the thread's messages, newest first.
func (o *OpenAI) ListMessages(ctx context.Context, conversationID string) ([]Message, error) {
	list, err := o.client.ListMessage(ctx, conversationID, nil, nil, nil, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("list messages of thread %s: %w", conversationID, wrapAPIError(err))
	}
	out := make([]Message, 0, len(list.Messages))
	for _, m := range list.Messages {
		out = append(out, toMessage(m))
	}
	return out, nil
}

func toAssistant(a openai.Assistant) Assistant {
	out := Assistant{ID: a.ID}
	if a.Name != nil {
		out.Name = *a.Name
	}
	return out
}

func toOpenAITool(t Tool) openai.AssistantTool {
	out := openai.AssistantTool{Type: openai.AssistantToolType(t.Type)}
	if t.Function != nil {
		def := &openai.FunctionDefinition{
			Name:        t.Function.Name,
			Description: t.Function.Description,
			Strict:      t.Function.Strict,
		}
		if len(t.Function.Parameters) > 0 {
			def.Parameters = t.Function.Parameters
		}
		out.Function = def
	}
	return out
}

func toRun(r openai.Run) Run {
	out := Run{
		ID:          r.ID,
		Status:      RunStatus(r.Status),
		CancelledAt: unixTime(r.CancelledAt),
		CompletedAt: unixTime(r.CompletedAt),
		FailedAt:    unixTime(r.FailedAt),
	}
	if r.LastError != nil {
		out.LastError = &RunError{Code: string(r.LastError.Code), Message: r.LastError.Message}
	}
	if r.RequiredAction != nil && r.RequiredAction.SubmitToolOutputs != nil {
		for _, tc := range r.RequiredAction.SubmitToolOutputs.ToolCalls {
			out.ToolCalls = append(out.ToolCalls, ToolCall{
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			})
		}
	}
	return out
}

func toMessage(m openai.Message) Message {
	out := Message{ID: m.ID, Role: m.Role}
	for _, c := range m.Content {
		if c.Text != nil {
			out.Text = c.Text.Value
			break
		}
	}
	return out
}

func unixTime(ts *int64) *time.Time {
	if ts == nil {
		return nil
	}
	t := time.Unix(*ts, 0).UTC()
	return &t
}

// wrapAPIError maps a 404 response onto ErrNotFound.
func wrapAPIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrNotFound, apiErr.Message)
	}
	return err
}
