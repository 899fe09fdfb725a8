package service

import (
	"context"

	"github.com/raphaelgruber/biocurator-go/internal/platform"
)

// AssistantPlatform manages assistants and their index binding.
type AssistantPlatform interface {
	ListAssistants(ctx context.Context) ([]platform.Assistant, error)
	GetAssistant(ctx context.Context, id string) (platform.Assistant, error)
	CreateAssistant(ctx context.Context, spec platform.AssistantSpec) (platform.Assistant, error)
	BindIndex(ctx context.Context, assistantID, model, indexID string) error
	DeleteAssistant(ctx context.Context, id string) error
}

// IndexPlatform manages document indexes and their members.
type IndexPlatform interface {
	CreateIndex(ctx context.Context, name string) (platform.Index, error)
	ListIndexes(ctx context.Context, req platform.PageRequest) (platform.IndexPage, error)
	DeleteIndex(ctx context.Context, id string) error
	AddIndexMember(ctx context.Context, indexID, fileID string) (string, error)
	RemoveIndexMember(ctx context.Context, indexID, fileID string) error
}

// FilePlatform manages uploaded files.
type FilePlatform interface {
	UploadFile(ctx context.Context, path string) (platform.File, error)
	ListFiles(ctx context.Context) ([]platform.File, error)
	DeleteFile(ctx context.Context, id string) error
}

// RunPlatform drives conversations and runs.
type RunPlatform interface {
	CreateConversation(ctx context.Context) (string, error)
	PostMessage(ctx context.Context, conversationID, text string) error
	CreateRun(ctx context.Context, conversationID, assistantID string) (platform.Run, error)
	GetRun(ctx context.Context, conversationID, runID string) (platform.Run, error)
	ListMessages(ctx context.Context, conversationID string) ([]platform.Message, error)
}

// Platform is the full hosted assistant platform.
type Platform interface {
	AssistantPlatform
	IndexPlatform
	FilePlatform
	RunPlatform
}

var _ Platform = (*platform.OpenAI)(nil)
