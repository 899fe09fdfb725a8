package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/biocurator-go/internal/platform"
)

type mockRunPlatform struct {
	mock.Mock
}

func (m *mockRunPlatform) CreateConversation(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *mockRunPlatform) PostMessage(ctx context.Context, conversationID, text string) error {
	args := m.Called(ctx, conversationID, text)
	return args.Error(0)
}

func (m *mockRunPlatform) CreateRun(ctx context.Context, conversationID, assistantID string) (platform.Run, error) {
	args := m.Called(ctx, conversationID, assistantID)
	return args.Get(0).(platform.Run), args.Error(1)
}

func (m *mockRunPlatform) GetRun(ctx context.Context, conversationID, runID string) (platform.Run, error) {
	args := m.Called(ctx, conversationID, runID)
	return args.Get(0).(platform.Run), args.Error(1)
}

func (m *mockRunPlatform) ListMessages(ctx context.Context, conversationID string) ([]platform.Message, error) {
	args := m.Called(ctx, conversationID)
	msgs, _ := args.Get(0).([]platform.Message)
	return msgs, args.Error(1)
}

// newStartedRun expects the prompt post and run creation every test shares.
func newStartedRun(t *testing.T) (*mockRunPlatform, *fakeClock, *Orchestrator) {
	t.Helper()
	m := &mockRunPlatform{}
	m.On("PostMessage", mock.Anything, "thread_1", "Extract genes").Return(nil).Once()
	m.On("CreateRun", mock.Anything, "thread_1", "asst_1").Return(platform.Run{ID: "run_1", Status: platform.RunStatusQueued}, nil).Once()

	clock := newFakeClock()
	o := NewOrchestrator(m, WithClock(clock.Now), WithSleep(clock.Sleep))
	return m, clock, o
}

func runStatus(s platform.RunStatus) platform.Run {
	return platform.Run{ID: "run_1", Status: s}
}

func TestDecideRun(t *testing.T) {
	tests := []struct {
		name string
		run  platform.Run
		want runAction
	}{
		{"queued", runStatus(platform.RunStatusQueued), actionWait},
		{"in progress", runStatus(platform.RunStatusInProgress), actionWait},
		{"cancelling", runStatus(platform.RunStatusCancelling), actionWait},
		{"unknown", runStatus("paused"), actionWait},
		{"requires action", runStatus(platform.RunStatusRequiresAction), actionToolCall},
		{"completed", runStatus(platform.RunStatusCompleted), actionCollect},
		{"failed with detail", platform.Run{Status: platform.RunStatusFailed, LastError: &platform.RunError{Code: "server_error"}}, actionFail},
		{"failed without detail", runStatus(platform.RunStatusFailed), actionAbandon},
		{"cancelled", runStatus(platform.RunStatusCancelled), actionAbandon},
		{"expired", runStatus(platform.RunStatusExpired), actionAbandon},
		{"incomplete", runStatus(platform.RunStatusIncomplete), actionAbandon},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, decideRun(tt.run))
		})
	}
}

func TestRunPrompt_ToolCallSkipsMessages(t *testing.T) {
	m, _, o := newStartedRun(t)
	m.On("GetRun", mock.Anything, "thread_1", "run_1").Return(runStatus(platform.RunStatusQueued), nil).Once()
	m.On("GetRun", mock.Anything, "thread_1", "run_1").Return(runStatus(platform.RunStatusInProgress), nil).Once()
	m.On("GetRun", mock.Anything, "thread_1", "run_1").Return(platform.Run{
		ID:        "run_1",
		Status:    platform.RunStatusRequiresAction,
		ToolCalls: []platform.ToolCall{{ID: "call_1", Name: "record_genes", Arguments: `{"a":1}`}},
	}, nil).Once()

	payload, err := o.RunPrompt(context.Background(), "thread_1", "asst_1", "Extract genes", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, payload.Structured)

	out, err := payload.Render()
	require.NoError(t, err)
	assert.Equal(t, "{\n    \"a\": 1\n}", out)

	m.AssertExpectations(t)
	m.AssertNotCalled(t, "ListMessages", mock.Anything, mock.Anything)
}

func TestRunPrompt_CompletedReturnsAssistantReply(t *testing.T) {
	m, _, o := newStartedRun(t)
	m.On("GetRun", mock.Anything, "thread_1", "run_1").Return(runStatus(platform.RunStatusCompleted), nil).Once()
	m.On("ListMessages", mock.Anything, "thread_1").Return([]platform.Message{
		{ID: "msg_2", Role: platform.RoleAssistant, Text: `{"genes":["daf-2[1†evidence]"]}`},
		{ID: "msg_1", Role: platform.RoleUser, Text: "Extract genes"},
	}, nil).Once()

	payload, err := o.RunPrompt(context.Background(), "thread_1", "asst_1", "Extract genes", time.Minute)
	require.NoError(t, err)
	assert.Nil(t, payload.Structured)
	assert.Equal(t, `{"genes":["daf-2[1†evidence]"]}`, payload.Text)

	out, err := payload.Render()
	require.NoError(t, err)
	assert.NotContains(t, out, "†")
	m.AssertExpectations(t)
}

func TestRunPrompt_CompletedPicksNewestAssistantMessage(t *testing.T) {
	m, _, o := newStartedRun(t)
	m.On("GetRun", mock.Anything, "thread_1", "run_1").Return(runStatus(platform.RunStatusCompleted), nil).Once()
	m.On("ListMessages", mock.Anything, "thread_1").Return([]platform.Message{
		{ID: "msg_3", Role: platform.RoleAssistant, Text: "newest answer"},
		{ID: "msg_2", Role: platform.RoleAssistant, Text: "earlier answer"},
		{ID: "msg_1", Role: platform.RoleUser, Text: "Extract genes"},
	}, nil).Once()

	payload, err := o.RunPrompt(context.Background(), "thread_1", "asst_1", "Extract genes", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "newest answer", payload.Text)
	m.AssertExpectations(t)
}

func TestRunPrompt_CompletedWithOneMessageIsIncomplete(t *testing.T) {
	m, _, o := newStartedRun(t)
	m.On("GetRun", mock.Anything, "thread_1", "run_1").Return(runStatus(platform.RunStatusCompleted), nil).Once()
	m.On("ListMessages", mock.Anything, "thread_1").Return([]platform.Message{
		{ID: "msg_1", Role: platform.RoleUser, Text: "Extract genes"},
	}, nil).Once()

	_, err := o.RunPrompt(context.Background(), "thread_1", "asst_1", "Extract genes", time.Minute)
	assert.ErrorIs(t, err, ErrRunIncomplete)
	m.AssertExpectations(t)
}

func TestRunPrompt_CompletedWithoutAssistantReply(t *testing.T) {
	m, _, o := newStartedRun(t)
	m.On("GetRun", mock.Anything, "thread_1", "run_1").Return(runStatus(platform.RunStatusCompleted), nil).Once()
	m.On("ListMessages", mock.Anything, "thread_1").Return([]platform.Message{
		{ID: "msg_2", Role: platform.RoleUser, Text: "Extract genes"},
		{ID: "msg_1", Role: platform.RoleUser, Text: "earlier prompt"},
	}, nil).Once()

	_, err := o.RunPrompt(context.Background(), "thread_1", "asst_1", "Extract genes", time.Minute)
	assert.ErrorIs(t, err, ErrRunIncomplete)
}

func TestRunPrompt_TimeoutWhileInProgress(t *testing.T) {
	m, clock, o := newStartedRun(t)
	m.On("GetRun", mock.Anything, "thread_1", "run_1").Return(runStatus(platform.RunStatusInProgress), nil)

	start := clock.Now()
	_, err := o.RunPrompt(context.Background(), "thread_1", "asst_1", "Extract genes", 12*time.Second)
	require.ErrorIs(t, err, ErrRunIncomplete)
	assert.NotErrorIs(t, err, ErrRunFailed)

	// polled at 0s, 5s and 10s; the 15s check hits the timeout
	m.AssertNumberOfCalls(t, "GetRun", 3)
	assert.Equal(t, 15*time.Second, clock.Now().Sub(start))
}

func TestRunPrompt_FailedCarriesDetail(t *testing.T) {
	m, _, o := newStartedRun(t)
	m.On("GetRun", mock.Anything, "thread_1", "run_1").Return(platform.Run{
		ID:        "run_1",
		Status:    platform.RunStatusFailed,
		LastError: &platform.RunError{Code: "rate_limit_exceeded", Message: "slow down"},
	}, nil).Once()

	_, err := o.RunPrompt(context.Background(), "thread_1", "asst_1", "Extract genes", time.Minute)
	require.ErrorIs(t, err, ErrRunFailed)

	var runErr *RunFailedError
	require.True(t, errors.As(err, &runErr))
	assert.Equal(t, "run_1", runErr.RunID)
	assert.Equal(t, "rate_limit_exceeded", runErr.Code)
	assert.Equal(t, "slow down", runErr.Message)
}

func TestRunPrompt_TerminalWithoutResult(t *testing.T) {
	for _, status := range []platform.RunStatus{platform.RunStatusCancelled, platform.RunStatusExpired, platform.RunStatusFailed} {
		t.Run(string(status), func(t *testing.T) {
			m, _, o := newStartedRun(t)
			m.On("GetRun", mock.Anything, "thread_1", "run_1").Return(runStatus(status), nil).Once()

			_, err := o.RunPrompt(context.Background(), "thread_1", "asst_1", "Extract genes", time.Minute)
			assert.ErrorIs(t, err, ErrRunIncomplete)
		})
	}
}

func TestRunPrompt_ToolCallWithBadArguments(t *testing.T) {
	m, _, o := newStartedRun(t)
	m.On("GetRun", mock.Anything, "thread_1", "run_1").Return(platform.Run{
		ID:        "run_1",
		Status:    platform.RunStatusRequiresAction,
		ToolCalls: []platform.ToolCall{{Name: "record_genes", Arguments: `{"a":`}},
	}, nil).Once()

	_, err := o.RunPrompt(context.Background(), "thread_1", "asst_1", "Extract genes", time.Minute)
	assert.ErrorIs(t, err, ErrRunIncomplete)
}

func TestRunPrompt_PlatformErrorsPropagate(t *testing.T) {
	m := &mockRunPlatform{}
	m.On("PostMessage", mock.Anything, "thread_1", "Extract genes").Return(errFake).Once()

	o := NewOrchestrator(m)
	_, err := o.RunPrompt(context.Background(), "thread_1", "asst_1", "Extract genes", time.Minute)
	assert.ErrorIs(t, err, errFake)
	m.AssertNotCalled(t, "CreateRun", mock.Anything, mock.Anything, mock.Anything)
}

func TestRunPrompt_ContextCancelledWhileWaiting(t *testing.T) {
	m := &mockRunPlatform{}
	m.On("PostMessage", mock.Anything, "thread_1", "Extract genes").Return(nil).Once()
	m.On("CreateRun", mock.Anything, "thread_1", "asst_1").Return(platform.Run{ID: "run_1"}, nil).Once()
	m.On("GetRun", mock.Anything, "thread_1", "run_1").Return(runStatus(platform.RunStatusInProgress), nil)

	ctx, cancel := context.WithCancel(context.Background())
	o := NewOrchestrator(m, WithPollInterval(time.Hour), WithSleep(func(ctx context.Context, d time.Duration) error {
		cancel()
		return sleepContext(ctx, d)
	}))

	_, err := o.RunPrompt(ctx, "thread_1", "asst_1", "Extract genes", 24*time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
	m.AssertNumberOfCalls(t, "GetRun", 1)
}

func TestRunPrompt_ExhaustedScheduleIsIncomplete(t *testing.T) {
	m, _, _ := newStartedRun(t)
	m.On("GetRun", mock.Anything, "thread_1", "run_1").Return(runStatus(platform.RunStatusQueued), nil)

	o := NewOrchestrator(m, WithBackOff(func() backoff.BackOff {
		return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 2)
	}), WithSleep(func(context.Context, time.Duration) error { return nil }))

	_, err := o.RunPrompt(context.Background(), "thread_1", "asst_1", "Extract genes", time.Hour)
	assert.ErrorIs(t, err, ErrRunIncomplete)
	m.AssertNumberOfCalls(t, "GetRun", 3)
}
