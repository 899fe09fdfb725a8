// Package platform describes the hosted assistant platform that curation runs
// against: assistants, document indexes (vector stores), uploaded files,
// conversations (threads), messages and runs.
package platform

import (
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound indicates the requested remote object does not exist.
var ErrNotFound = errors.New("remote object not found")

// RunStatus is the lifecycle state of a run as reported by the platform.
type RunStatus string

const (
	RunStatusQueued         RunStatus = "queued"
	RunStatusInProgress     RunStatus = "in_progress"
	RunStatusRequiresAction RunStatus = "requires_action"
	RunStatusCancelling     RunStatus = "cancelling"
	RunStatusCompleted      RunStatus = "completed"
	RunStatusFailed         RunStatus = "failed"
	RunStatusCancelled      RunStatus = "cancelled"
	RunStatusExpired        RunStatus = "expired"
	RunStatusIncomplete     RunStatus = "incomplete"
)

// Tool types understood by the platform.
const (
	ToolTypeFunction   = "function"
	ToolTypeFileSearch = "file_search"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Assistant is a configured conversational agent.
type Assistant struct {
	ID   string
	Name string
}

// Function declares a callable tool the assistant may request.
type Function struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Strict      bool            `json:"strict,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// Tool is one entry of an assistant toolset.
type Tool struct {
	Type     string    `json:"type"`
	Function *Function `json:"function,omitempty"`
}

// AssistantSpec holds the fields used to create an assistant.
type AssistantSpec struct {
	Name         string
	Description  string
	Model        string
	Instructions string
	Tools        []Tool
}

// ToolCall is a function invocation requested by a run.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// RunError is the diagnostic detail the platform attaches to a failed run.
type RunError struct {
	Code    string
	Message string
}

func (e RunError) String() string {
	if e.Code == "" {
		return e.Message
	}
	return e.Code + ": " + e.Message
}

// Run is a single asynchronous execution of an assistant on a conversation.
type Run struct {
	ID          string
	Status      RunStatus
	ToolCalls   []ToolCall
	LastError   *RunError
	CancelledAt *time.Time
	CompletedAt *time.Time
	FailedAt    *time.Time
}

// Message is one entry of a conversation.
type Message struct {
	ID   string
	Role string
	Text string
}

// File is an uploaded document.
type File struct {
	ID   string
	Name string
}

// Index is a searchable collection of uploaded documents.
type Index struct {
	ID   string
	Name string
}

// PageRequest selects one page of a cursor-paginated listing.
type PageRequest struct {
	Limit int
	After string
}

// IndexPage is one page of indexes.
type IndexPage struct {
	Indexes []Index
	HasMore bool
	LastID  string
}
