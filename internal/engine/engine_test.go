// ABOUTME: Engine tests over a scripted chat backend
// ABOUTME: Covers init, hydration, switching, feedback, and opening statements

package engine

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/parley/internal/backend"
	"github.com/2389/parley/internal/convo"
	"github.com/2389/parley/internal/notify"
	"github.com/2389/parley/internal/stream"
	"github.com/2389/parley/internal/transcript"
)

// fakeBackend scripts the chat backend. When script is nil the test
// drives the event channel by hand through emit/closeStream.
type fakeBackend struct {
	mu sync.Mutex

	conversations []*convo.Conversation
	params        *backend.AppParams
	history       map[string][]backend.HistoryMessage

	script  []*stream.Event
	sendErr error

	generatedName string
	nameErr       error
	feedbackErr   error

	events    chan *stream.Event
	cancelled bool
	lastReq   *backend.ChatRequest
	nameCalls []string
	feedback  map[string]string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		params:        &backend.AppParams{},
		history:       make(map[string][]backend.HistoryMessage),
		feedback:      make(map[string]string),
		generatedName: "Generated name",
	}
}

func (f *fakeBackend) SendChatMessage(_ context.Context, req *backend.ChatRequest) (<-chan *stream.Event, context.CancelFunc, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return nil, nil, f.sendErr
	}
	f.lastReq = req
	ch := make(chan *stream.Event, 64)
	f.events = ch
	if f.script != nil {
		for _, event := range f.script {
			ch <- event
		}
		close(ch)
	}
	cancel := func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.cancelled = true
	}
	return ch, cancel, nil
}

func (f *fakeBackend) emit(event *stream.Event) {
	f.mu.Lock()
	ch := f.events
	f.mu.Unlock()
	ch <- event
}

func (f *fakeBackend) closeStream() {
	f.mu.Lock()
	ch := f.events
	f.events = nil
	f.mu.Unlock()
	close(ch)
}

func (f *fakeBackend) wasCancelled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancelled
}

func (f *fakeBackend) request() *backend.ChatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastReq
}

func (f *fakeBackend) FetchConversations(context.Context) ([]*convo.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*convo.Conversation(nil), f.conversations...), nil
}

func (f *fakeBackend) FetchAppParams(context.Context) (*backend.AppParams, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.params, nil
}

func (f *fakeBackend) FetchChatHistory(_ context.Context, conversationID string) ([]backend.HistoryMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.history[conversationID], nil
}

func (f *fakeBackend) GenerateConversationName(_ context.Context, conversationID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nameCalls = append(f.nameCalls, conversationID)
	if f.nameErr != nil {
		return "", f.nameErr
	}
	return f.generatedName, nil
}

func (f *fakeBackend) SubmitFeedback(_ context.Context, messageID, rating string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.feedbackErr != nil {
		return f.feedbackErr
	}
	f.feedback[messageID] = rating
	return nil
}

func newTestEngine(t *testing.T, fake *fakeBackend) (*Engine, *notify.Recorder) {
	t.Helper()
	recorder := notify.NewRecorder()
	convos := convo.NewStore("app-test", nil, nil)
	e := New(fake, convos, recorder, nil)
	t.Cleanup(e.Close)
	require.NoError(t, e.Init(context.Background()))
	return e, recorder
}

func tokenEvent(text, messageID, conversationID string, first bool) *stream.Event {
	return &stream.Event{Type: stream.EventToken, Token: &stream.TokenEvent{
		Text: text, MessageID: messageID, ConversationID: conversationID, First: first,
	}}
}

func endEvent(messageID string) *stream.Event {
	return &stream.Event{Type: stream.EventMessageEnd, End: &stream.EndEvent{MessageID: messageID}}
}

func completedEvent() *stream.Event {
	return &stream.Event{Type: stream.EventCompleted, Completed: &stream.CompletedEvent{Success: true}}
}

func contents(entries []*transcript.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Content
	}
	return out
}

func TestEngine_InitRestoresSentinelAndParams(t *testing.T) {
	fake := newFakeBackend()
	fake.params = &backend.AppParams{
		OpeningStatement:   "Hello {{name}}!",
		SuggestedQuestions: []string{"What can you do?"},
		Variables:          []convo.PromptVariable{{Key: "name", Name: "Name"}},
	}
	e, _ := newTestEngine(t, fake)

	assert.Equal(t, StateIdle, e.State())
	assert.False(t, e.IsResponding())

	// No inputs collected yet: the placeholder stays verbatim.
	snapshot := e.Snapshot()
	require.Len(t, snapshot, 1)
	assert.True(t, snapshot[0].IsOpeningStatement)
	assert.Equal(t, "Hello {{name}}!", snapshot[0].Content)
	assert.Equal(t, []string{"What can you do?"}, snapshot[0].SuggestedQuestions)
	assert.True(t, snapshot[0].FeedbackDisabled)
}

func TestEngine_OpeningStatementSubstitutesInputs(t *testing.T) {
	fake := newFakeBackend()
	fake.params = &backend.AppParams{
		OpeningStatement: "Hello {{name}}!",
		Variables:        []convo.PromptVariable{{Key: "name", Name: "Name"}},
	}
	e, _ := newTestEngine(t, fake)

	require.NoError(t, e.StartNew(context.Background(), convo.Inputs{
		"name": {Kind: convo.ValueText, Text: "Ada"},
	}))

	snapshot := e.Snapshot()
	require.Len(t, snapshot, 1)
	assert.Equal(t, "Hello Ada!", snapshot[0].Content)
}

func TestEngine_SwitchConversationHydratesHistory(t *testing.T) {
	fake := newFakeBackend()
	fake.conversations = []*convo.Conversation{{ID: "c1", Name: "first"}}
	fake.history["c1"] = []backend.HistoryMessage{
		{
			ID: "m1", Query: "hello", Answer: "hi there",
			Feedback: &transcript.Feedback{Rating: "like"},
			MessageFiles: []transcript.MessageFile{
				{ID: "f-user", BelongsTo: transcript.FileBelongsToUser},
				{ID: "f-bot", BelongsTo: transcript.FileBelongsToAssistant},
			},
		},
		{
			ID: "m2", Query: "and then?", Answer: "then this",
			AgentThoughts: []transcript.AgentThought{{ID: "t1", Thought: "recall", Position: 1}},
		},
	}
	e, _ := newTestEngine(t, fake)

	require.NoError(t, e.SwitchConversation(context.Background(), "c1"))

	snapshot := e.Snapshot()
	require.Len(t, snapshot, 4)
	assert.Equal(t, []string{"hello", "hi there", "and then?", "then this"}, contents(snapshot))

	assert.Equal(t, "question-m1", snapshot[0].ID)
	require.Len(t, snapshot[0].Files, 1)
	assert.Equal(t, "f-user", snapshot[0].Files[0].ID)

	assert.Equal(t, "m1", snapshot[1].ID)
	require.Len(t, snapshot[1].Files, 1)
	assert.Equal(t, "f-bot", snapshot[1].Files[0].ID)
	require.NotNil(t, snapshot[1].Feedback)
	assert.Equal(t, "like", snapshot[1].Feedback.Rating)

	require.Len(t, snapshot[3].AgentThoughts, 1)
	assert.Equal(t, "recall", snapshot[3].AgentThoughts[0].Thought)
}

func TestEngine_SwitchToUnknownConversation(t *testing.T) {
	fake := newFakeBackend()
	e, _ := newTestEngine(t, fake)

	err := e.SwitchConversation(context.Background(), "missing")
	assert.ErrorIs(t, err, convo.ErrConversationNotFound)
}

func TestEngine_SubmitFeedbackUpdatesEntry(t *testing.T) {
	fake := newFakeBackend()
	fake.conversations = []*convo.Conversation{{ID: "c1", Name: "first"}}
	fake.history["c1"] = []backend.HistoryMessage{{ID: "m1", Query: "q", Answer: "a"}}
	e, recorder := newTestEngine(t, fake)
	require.NoError(t, e.SwitchConversation(context.Background(), "c1"))

	require.NoError(t, e.SubmitFeedback(context.Background(), "m1", "like"))

	var target *transcript.Entry
	for _, entry := range e.Snapshot() {
		if entry.ID == "m1" {
			target = entry
		}
	}
	require.NotNil(t, target)
	require.NotNil(t, target.Feedback)
	assert.Equal(t, "like", target.Feedback.Rating)
	assert.Equal(t, 1, recorder.CountKind("success"))
}

func TestEngine_SubmitFeedbackFailureLeavesTranscript(t *testing.T) {
	fake := newFakeBackend()
	fake.conversations = []*convo.Conversation{{ID: "c1", Name: "first"}}
	fake.history["c1"] = []backend.HistoryMessage{{ID: "m1", Query: "q", Answer: "a"}}
	fake.feedbackErr = errors.New("backend down")
	e, recorder := newTestEngine(t, fake)
	require.NoError(t, e.SwitchConversation(context.Background(), "c1"))

	err := e.SubmitFeedback(context.Background(), "m1", "like")
	require.Error(t, err)
	assert.Equal(t, 1, recorder.CountKind("error"))

	for _, entry := range e.Snapshot() {
		assert.Nil(t, entry.Feedback)
	}
}

func TestEngine_SubscribeReceivesSnapshots(t *testing.T) {
	fake := newFakeBackend()
	fake.script = []*stream.Event{
		tokenEvent("hi", "m1", "conv-new", true),
		endEvent("m1"),
		completedEvent(),
	}
	e, _ := newTestEngine(t, fake)

	ch, subID := e.Subscribe(context.Background())
	defer e.Unsubscribe(subID)

	require.NoError(t, e.Send(context.Background(), "hello", nil))
	e.Wait()

	// Every mutation published a snapshot; the buffered channel holds
	// them all once the send has settled.
	var last []*transcript.Entry
	for {
		select {
		case snapshot := <-ch:
			last = snapshot
			continue
		default:
		}
		break
	}
	require.NotEmpty(t, last)
	assert.Equal(t, "hi", last[len(last)-1].Content)
}
