package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/raphaelgruber/biocurator-go/internal/platform"
)

var errFake = errors.New("fake platform error")

// fakeClock advances only when the orchestrator sleeps.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
	return ctx.Err()
}

// fakePlatform is an in-memory hosted platform. Runs answer immediately: the
// reply depends on the prompt text through the respond hook.
type fakePlatform struct {
	mu sync.Mutex

	assistants map[string]platform.Assistant
	files      map[string]platform.File
	indexes    map[string]platform.Index
	members    map[string]map[string]bool

	messages map[string][]platform.Message // newest first
	runs     map[string]platform.Run

	respond func(conversationID, prompt string) (platform.Run, string)

	failUpload       map[string]bool
	failDelete       map[string]int // id -> remaining failures, -1 forever
	failConversation bool
	undeletable      map[string]bool

	seq       int
	deleted   []string
	created   []platform.AssistantSpec
	bindCalls []string
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		assistants:  map[string]platform.Assistant{},
		files:       map[string]platform.File{},
		indexes:     map[string]platform.Index{},
		members:     map[string]map[string]bool{},
		messages:    map[string][]platform.Message{},
		runs:        map[string]platform.Run{},
		failUpload:  map[string]bool{},
		failDelete:  map[string]int{},
		undeletable: map[string]bool{},
		respond: func(_, prompt string) (platform.Run, string) {
			return platform.Run{Status: platform.RunStatusCompleted}, "reply to " + prompt
		},
	}
}

func (f *fakePlatform) nextID(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s_%d", prefix, f.seq)
}

func (f *fakePlatform) shouldFailDelete(id string) bool {
	if f.undeletable[id] {
		return true
	}
	n, ok := f.failDelete[id]
	if !ok || n == 0 {
		return false
	}
	if n > 0 {
		f.failDelete[id] = n - 1
	}
	return true
}

func (f *fakePlatform) ListAssistants(_ context.Context) ([]platform.Assistant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]platform.Assistant, 0, len(f.assistants))
	for _, a := range f.assistants {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakePlatform) GetAssistant(_ context.Context, id string) (platform.Assistant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.assistants[id]
	if !ok {
		return platform.Assistant{}, fmt.Errorf("retrieve assistant %s: %w", id, platform.ErrNotFound)
	}
	return a, nil
}

func (f *fakePlatform) CreateAssistant(_ context.Context, spec platform.AssistantSpec) (platform.Assistant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a := platform.Assistant{ID: f.nextID("asst"), Name: spec.Name}
	f.assistants[a.ID] = a
	f.created = append(f.created, spec)
	return a, nil
}

func (f *fakePlatform) BindIndex(_ context.Context, assistantID, _, indexID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.assistants[assistantID]; !ok {
		return platform.ErrNotFound
	}
	f.bindCalls = append(f.bindCalls, assistantID+"->"+indexID)
	return nil
}

func (f *fakePlatform) DeleteAssistant(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.shouldFailDelete(id) {
		return errFake
	}
	delete(f.assistants, id)
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakePlatform) CreateIndex(_ context.Context, name string) (platform.Index, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := platform.Index{ID: f.nextID("vs"), Name: name}
	f.indexes[idx.ID] = idx
	f.members[idx.ID] = map[string]bool{}
	return idx, nil
}

func (f *fakePlatform) ListIndexes(_ context.Context, req platform.PageRequest) (platform.IndexPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.indexes))
	for id := range f.indexes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	start := 0
	if req.After != "" {
		start = sort.SearchStrings(ids, req.After)
		if start < len(ids) && ids[start] == req.After {
			start++
		}
	}
	end := len(ids)
	if req.Limit > 0 && start+req.Limit < end {
		end = start + req.Limit
	}

	var page platform.IndexPage
	for _, id := range ids[start:end] {
		page.Indexes = append(page.Indexes, f.indexes[id])
	}
	page.HasMore = end < len(ids)
	if len(page.Indexes) > 0 {
		page.LastID = page.Indexes[len(page.Indexes)-1].ID
	}
	return page, nil
}

func (f *fakePlatform) DeleteIndex(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.shouldFailDelete(id) {
		return errFake
	}
	delete(f.indexes, id)
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakePlatform) AddIndexMember(_ context.Context, indexID, fileID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.members[indexID]
	if !ok {
		return "", platform.ErrNotFound
	}
	m[fileID] = true
	return fileID, nil
}

func (f *fakePlatform) RemoveIndexMember(_ context.Context, indexID, fileID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.shouldFailDelete("member:" + fileID) {
		return errFake
	}
	delete(f.members[indexID], fileID)
	return nil
}

func (f *fakePlatform) UploadFile(_ context.Context, path string) (platform.File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpload[filepath.Base(path)] {
		return platform.File{}, errFake
	}
	file := platform.File{ID: f.nextID("file"), Name: filepath.Base(path)}
	f.files[file.ID] = file
	return file, nil
}

func (f *fakePlatform) ListFiles(_ context.Context) ([]platform.File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]platform.File, 0, len(f.files))
	for _, file := range f.files {
		out = append(out, file)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakePlatform) DeleteFile(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.shouldFailDelete(id) {
		return errFake
	}
	delete(f.files, id)
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakePlatform) CreateConversation(_ context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failConversation {
		return "", errFake
	}
	id := f.nextID("thread")
	f.messages[id] = nil
	return id, nil
}

func (f *fakePlatform) PostMessage(_ context.Context, conversationID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg := platform.Message{ID: f.nextID("msg"), Role: platform.RoleUser, Text: text}
	f.messages[conversationID] = append([]platform.Message{msg}, f.messages[conversationID]...)
	return nil
}

func (f *fakePlatform) CreateRun(_ context.Context, conversationID, _ string) (platform.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	prompt := f.messages[conversationID][0].Text
	run, reply := f.respond(conversationID, prompt)
	run.ID = f.nextID("run")
	if reply != "" {
		msg := platform.Message{ID: f.nextID("msg"), Role: platform.RoleAssistant, Text: reply}
		f.messages[conversationID] = append([]platform.Message{msg}, f.messages[conversationID]...)
	}
	f.runs[run.ID] = run
	return platform.Run{ID: run.ID, Status: platform.RunStatusQueued}, nil
}

func (f *fakePlatform) GetRun(_ context.Context, _, runID string) (platform.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[runID]
	if !ok {
		return platform.Run{}, platform.ErrNotFound
	}
	return run, nil
}

func (f *fakePlatform) ListMessages(_ context.Context, conversationID string) ([]platform.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]platform.Message(nil), f.messages[conversationID]...), nil
}

var _ Platform = (*fakePlatform)(nil)
