// ABOUTME: The streaming conversation engine: wires store, transcript, backend and notifier
// ABOUTME: Owns initialization, conversation switching, history hydration, and feedback

package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/2389/parley/internal/backend"
	"github.com/2389/parley/internal/convo"
	"github.com/2389/parley/internal/notify"
	"github.com/2389/parley/internal/stream"
	"github.com/2389/parley/internal/transcript"
)

// ErrSendInProgress indicates a send is already active; at most one
// concurrent send is allowed per engine.
var ErrSendInProgress = errors.New("send already in progress")

// ErrMissingRequiredInputs indicates required input variables are unset
// before the first send of a new conversation.
var ErrMissingRequiredInputs = errors.New("required inputs missing")

// State is the send state machine's position.
type State int

const (
	StateIdle State = iota
	StateSending
	StateStreaming
	StateSettling
)

// ChatBackend defines what the engine needs from the inference and
// conversation listing backends.
type ChatBackend interface {
	SendChatMessage(ctx context.Context, req *backend.ChatRequest) (<-chan *stream.Event, context.CancelFunc, error)
	FetchConversations(ctx context.Context) ([]*convo.Conversation, error)
	FetchAppParams(ctx context.Context) (*backend.AppParams, error)
	FetchChatHistory(ctx context.Context, conversationID string) ([]backend.HistoryMessage, error)
	GenerateConversationName(ctx context.Context, conversationID string) (string, error)
	SubmitFeedback(ctx context.Context, messageID, rating string) error
}

// Engine drives sends, reconciles the event stream into the transcript,
// and mediates conversation switches. The runtime model is cooperative:
// the internal mutex serializes stream events against UI-triggered
// actions, so between any two suspension points transcript mutations
// are atomic.
type Engine struct {
	mu          sync.Mutex
	backend     ChatBackend
	convos      *convo.Store
	model       *transcript.Model
	notifier    notify.Notifier
	broadcaster *Broadcaster
	logger      *slog.Logger

	promptVars []convo.PromptVariable

	state        State
	cancelStream context.CancelFunc
	cancelled    bool
	activeTaskID string

	// respondingToCurrent is false while an active stream belongs to a
	// conversation the user has navigated away from.
	respondingToCurrent bool

	// done is closed when the active send reaches a terminal state.
	done chan struct{}
}

// New creates an engine. notifier and logger may be nil.
func New(b ChatBackend, convos *convo.Store, notifier notify.Notifier, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if notifier == nil {
		notifier = notify.NewLogNotifier(logger)
	}
	return &Engine{
		backend:             b,
		convos:              convos,
		model:               transcript.New(logger),
		notifier:            notifier,
		broadcaster:         NewBroadcaster(logger),
		logger:              logger.With("component", "engine"),
		respondingToCurrent: true,
	}
}

// Init fetches the conversation list and app parameters, restores the
// last-open conversation, and hydrates the transcript.
func (e *Engine) Init(ctx context.Context) error {
	conversations, err := e.backend.FetchConversations(ctx)
	if err != nil {
		return fmt.Errorf("initializing conversations: %w", err)
	}
	params, err := e.backend.FetchAppParams(ctx)
	if err != nil {
		return fmt.Errorf("initializing app parameters: %w", err)
	}

	e.mu.Lock()
	e.promptVars = params.Variables
	e.mu.Unlock()

	e.convos.SetNewConversationInfo("New conversation", params.OpeningStatement, params.SuggestedQuestions)
	e.convos.Load(ctx, conversations)

	// Landing on a not-yet-created conversation materializes the
	// sentinel so the opening statement has a home.
	if e.convos.IsNewConversation() {
		e.convos.StartNew(nil)
	}

	return e.hydrateCurrent(ctx)
}

// SwitchConversation changes the current conversation and reloads the
// transcript. An in-flight send keeps streaming but its transcript
// mutations are suppressed from this point on.
func (e *Engine) SwitchConversation(ctx context.Context, id string) error {
	if err := e.convos.Select(ctx, id); err != nil {
		return err
	}
	return e.hydrateCurrent(ctx)
}

// StartNew inserts a sentinel conversation seeded with the given inputs
// and switches to it. A no-op reusing the existing sentinel when one is
// already present.
func (e *Engine) StartNew(ctx context.Context, inputs convo.Inputs) error {
	e.convos.StartNew(inputs)
	if inputs != nil {
		// An existing sentinel is reused; make sure it carries the
		// caller's inputs either way.
		e.convos.SetSentinelInputs(inputs)
	}
	return e.SwitchConversation(ctx, convo.SentinelID)
}

// SetNewConversationInputs stores input values for the next new
// conversation and refreshes the opening statement when the sentinel is
// on screen.
func (e *Engine) SetNewConversationInputs(inputs convo.Inputs) {
	e.convos.SetSentinelInputs(inputs)
	if !e.convos.IsNewConversation() {
		return
	}
	e.mu.Lock()
	e.model.Reset(e.openingEntryLocked())
	e.publishLocked()
	e.mu.Unlock()
}

// Conversations returns the known conversations, newest first.
func (e *Engine) Conversations() []*convo.Conversation {
	return e.convos.List()
}

// CurrentConversation returns the selected conversation, or nil before
// any sentinel exists.
func (e *Engine) CurrentConversation() *convo.Conversation {
	return e.convos.Current()
}

// CurrentInputsForNew returns the cached input values for the next new
// conversation.
func (e *Engine) CurrentInputsForNew() convo.Inputs {
	return e.convos.SentinelInputs()
}

// PromptVariables returns the input variable form declared by the app.
func (e *Engine) PromptVariables() []convo.PromptVariable {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]convo.PromptVariable(nil), e.promptVars...)
}

// SubmitFeedback records a rating on a finalized message. On success
// the transcript entry is updated and a success notice raised; failure
// is surfaced without touching any transcript state.
func (e *Engine) SubmitFeedback(ctx context.Context, messageID, rating string) error {
	if err := e.backend.SubmitFeedback(ctx, messageID, rating); err != nil {
		e.notifier.Error("Failed to submit feedback")
		return err
	}

	e.mu.Lock()
	e.model.SetFeedback(messageID, transcript.Feedback{Rating: rating})
	e.publishLocked()
	e.mu.Unlock()

	e.notifier.Success("Feedback submitted")
	return nil
}

// Snapshot returns a deep-copied view of the current transcript.
func (e *Engine) Snapshot() []*transcript.Entry {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.model.Entries()
}

// Subscribe registers a rendering observer for transcript snapshots.
func (e *Engine) Subscribe(ctx context.Context) (<-chan []*transcript.Entry, string) {
	return e.broadcaster.Subscribe(ctx)
}

// Unsubscribe removes a snapshot observer.
func (e *Engine) Unsubscribe(subID string) {
	e.broadcaster.Unsubscribe(subID)
}

// State returns the send state machine's current position.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// IsResponding reports whether a send is active.
func (e *Engine) IsResponding() bool {
	return e.State() != StateIdle
}

// RespondingToCurrent reports whether the active stream (if any)
// belongs to the currently displayed conversation.
func (e *Engine) RespondingToCurrent() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.respondingToCurrent
}

// Wait blocks until the active send (if any) reaches a terminal state.
func (e *Engine) Wait() {
	e.mu.Lock()
	done := e.done
	e.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Close shuts down the snapshot broadcaster.
func (e *Engine) Close() {
	e.broadcaster.Close()
}

// hydrateCurrent rebuilds the transcript for the current conversation:
// the opening statement for the sentinel, fetched history otherwise.
func (e *Engine) hydrateCurrent(ctx context.Context) error {
	id := e.convos.CurrentID()

	if id == convo.SentinelID {
		e.mu.Lock()
		e.model.Reset(e.openingEntryLocked())
		e.publishLocked()
		e.mu.Unlock()
		return nil
	}

	history, err := e.backend.FetchChatHistory(ctx, id)
	if err != nil {
		e.notifier.Error("Failed to load conversation history")
		e.mu.Lock()
		e.model.Reset(e.openingEntryLocked())
		e.publishLocked()
		e.mu.Unlock()
		return err
	}

	e.mu.Lock()
	e.model.Reset(e.openingEntryLocked())
	for _, msg := range history {
		question := &transcript.Entry{
			ID:      "question-" + msg.ID,
			Role:    transcript.RoleQuestion,
			Content: msg.Query,
			Files:   partitionFiles(msg.MessageFiles, transcript.FileBelongsToUser),
		}
		answer := &transcript.Entry{
			ID:            msg.ID,
			Role:          transcript.RoleAnswer,
			Content:       msg.Answer,
			AgentThoughts: msg.AgentThoughts,
			Files:         partitionFiles(msg.MessageFiles, transcript.FileBelongsToAssistant),
			Feedback:      msg.Feedback,
		}
		e.model.Append(question)
		e.model.Append(answer)
	}
	e.publishLocked()
	e.mu.Unlock()
	return nil
}

// openingEntryLocked builds the synthetic opening statement entry for
// the current conversation, substituting input values into the
// introduction template. Returns nil when there is no introduction.
func (e *Engine) openingEntryLocked() *transcript.Entry {
	current := e.convos.Current()
	if current == nil {
		return nil
	}
	introduction := convo.ReplaceVars(current.Introduction, e.promptVars, e.convos.InputsFor(current.ID))
	if strings.TrimSpace(introduction) == "" {
		return nil
	}
	return &transcript.Entry{
		ID:                 "opening-" + uuid.New().String(),
		Role:               transcript.RoleAnswer,
		Content:            introduction,
		IsOpeningStatement: true,
		FeedbackDisabled:   true,
		SuggestedQuestions: current.SuggestedQuestions,
	}
}

// publishLocked broadcasts a snapshot. Must be called with mu held.
func (e *Engine) publishLocked() {
	e.broadcaster.Publish(e.model.Entries())
}

// partitionFiles returns the files belonging to the given side.
func partitionFiles(files []transcript.MessageFile, belongsTo string) []transcript.MessageFile {
	var out []transcript.MessageFile
	for _, f := range files {
		if f.BelongsTo == belongsTo {
			out = append(out, f)
		}
	}
	return out
}
