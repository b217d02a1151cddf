// ABOUTME: Send orchestration: placeholder creation, stream consumption, cancellation, settling
// ABOUTME: One reducer applies each stream event under the same-conversation guard

package engine

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/2389/parley/internal/backend"
	"github.com/2389/parley/internal/convo"
	"github.com/2389/parley/internal/stream"
	"github.com/2389/parley/internal/transcript"
)

// nameTimeout bounds the post-send conversation naming call.
const nameTimeout = 10 * time.Second

// sendState is the per-send context captured when a send starts. The
// working answer entry accumulates stream data and is pushed into the
// transcript through UpsertAnswer after every event.
type sendState struct {
	origin        string // conversation id current at send time
	generation    uint64 // selection generation captured at send time
	questionID    string
	placeholderID string
	priorID       string // id the answer entry currently lives under in the model
	question      *transcript.Entry
	answer        *transcript.Entry

	agentMode         bool
	hasSetID          bool
	annotated         bool
	suppressed        bool
	errored           bool
	completedOK       bool
	newConversationID string
}

// Send issues a message to the inference backend and streams the
// response into the transcript. At most one send may be active; a
// second attempt raises an info notice and returns ErrSendInProgress.
func (e *Engine) Send(ctx context.Context, message string, files []convo.FileRef) error {
	e.mu.Lock()
	if e.state != StateIdle {
		e.mu.Unlock()
		e.notifier.Info("Please wait for the current response to finish")
		return ErrSendInProgress
	}

	origin := e.convos.CurrentID()
	inputs := e.convos.InputsFor(origin)
	if origin == convo.SentinelID {
		// Make sure a sentinel conversation exists even when the
		// frontend never called StartNew explicitly.
		e.convos.StartNew(inputs)
		if missing := convo.MissingRequired(e.promptVars, inputs); len(missing) > 0 {
			e.mu.Unlock()
			e.notifier.Error("Please fill in the required fields: " + strings.Join(missing, ", "))
			return ErrMissingRequiredInputs
		}
	}

	st := &sendState{
		origin:        origin,
		generation:    e.convos.Generation(),
		questionID:    "question-" + uuid.New().String(),
		placeholderID: "answer-placeholder-" + uuid.New().String(),
	}
	st.priorID = st.placeholderID
	st.question = &transcript.Entry{
		ID:      st.questionID,
		Role:    transcript.RoleQuestion,
		Content: message,
		Files:   displayFiles(files),
	}
	placeholder := &transcript.Entry{
		ID:            st.placeholderID,
		Role:          transcript.RoleAnswer,
		IsPlaceholder: true,
	}
	st.answer = &transcript.Entry{
		ID:   uuid.New().String(),
		Role: transcript.RoleAnswer,
	}

	e.model.AppendPair(st.question, placeholder)
	e.state = StateSending
	e.cancelled = false
	e.respondingToCurrent = true
	e.done = make(chan struct{})
	e.publishLocked()
	e.mu.Unlock()

	req := &backend.ChatRequest{
		Inputs: buildInputs(inputs),
		Query:  message,
		Files:  files,
	}
	if origin != convo.SentinelID {
		req.ConversationID = origin
	}

	events, cancel, err := e.backend.SendChatMessage(ctx, req)
	if err != nil {
		e.mu.Lock()
		if e.guardLocked(st) {
			e.model.RemoveByID(st.placeholderID)
			e.publishLocked()
		}
		e.state = StateIdle
		done := e.done
		e.done = nil
		e.mu.Unlock()
		close(done)
		e.notifier.Error("Failed to send message: " + err.Error())
		return err
	}

	e.mu.Lock()
	e.cancelStream = cancel
	e.mu.Unlock()

	e.logger.Debug("send started",
		"conversation_id", origin,
		"question_id", st.questionID)

	go e.consume(st, events)
	return nil
}

// Cancel aborts the active send, if any. Cancellation is cooperative:
// the stream resource is released but the state machine stays out of
// Idle until the event channel closes. The placeholder, if still
// unresolved, is left in place — cancellation is a user choice, not a
// failure.
func (e *Engine) Cancel() {
	e.mu.Lock()
	cancel := e.cancelStream
	if cancel != nil {
		e.cancelled = true
	}
	e.mu.Unlock()

	if cancel != nil {
		e.logger.Debug("send cancelled")
		cancel()
	}
}

// consume drains the event stream to completion. Events are always
// consumed even when their mutations are suppressed, so resource
// cleanup and the terminal transition stay correct.
func (e *Engine) consume(st *sendState, events <-chan *stream.Event) {
	for event := range events {
		e.mu.Lock()
		e.applyLocked(st, event)
		e.mu.Unlock()
	}
	e.finish(st)
}

// applyLocked is the reducer: one stream event in, at most one
// transcript mutation out. Must be called with mu held.
func (e *Engine) applyLocked(st *sendState, event *stream.Event) {
	if e.state == StateSending {
		e.state = StateStreaming
	}
	if event.TaskID != "" {
		e.activeTaskID = event.TaskID
	}

	switch event.Type {
	case stream.EventToken:
		token := event.Token
		if token.MessageID != "" && !st.hasSetID {
			st.answer.ID = token.MessageID
			st.hasSetID = true
		}
		if token.First && token.ConversationID != "" {
			st.newConversationID = token.ConversationID
		}
		if st.annotated {
			return
		}
		if st.agentMode {
			if last := st.answer.LastThought(); last != nil {
				last.Thought += token.Text
			}
		} else {
			st.answer.Content += token.Text
		}
		e.upsertLocked(st)

	case stream.EventThought:
		thought := event.Thought
		if thought.MessageID != "" && !st.hasSetID {
			st.answer.ID = thought.MessageID
			st.hasSetID = true
		}
		st.agentMode = true
		st.answer.UpsertThought(transcript.AgentThought{
			ID:       thought.ID,
			Thought:  thought.Thought,
			Position: thought.Position,
		})
		e.upsertLocked(st)

	case stream.EventFile:
		file := transcript.MessageFile{
			ID:        event.File.ID,
			Type:      event.File.FileType,
			URL:       event.File.URL,
			BelongsTo: event.File.BelongsTo,
		}
		if file.BelongsTo == "" {
			file.BelongsTo = transcript.FileBelongsToAssistant
		}
		if last := st.answer.LastThought(); st.agentMode && last != nil {
			last.Files = append(last.Files, file)
		} else {
			st.answer.Files = append(st.answer.Files, file)
		}
		e.upsertLocked(st)

	case stream.EventMessageEnd:
		st.answer.ID = event.End.MessageID
		st.hasSetID = true
		if event.End.Annotation != nil {
			st.answer.Annotation = &transcript.Annotation{
				ID:         event.End.Annotation.ID,
				AuthorName: event.End.Annotation.AuthorName,
			}
			st.annotated = true
		}
		e.upsertLocked(st)

	case stream.EventMessageReplace:
		replace := event.Replace
		if replace.MessageID == st.answer.ID {
			st.answer.Content = replace.Content
		}
		if !e.guardLocked(st) {
			return
		}
		if e.model.ReplaceContent(replace.MessageID, replace.Content) {
			e.publishLocked()
		}

	case stream.EventWorkflowStarted:
		st.answer.WorkflowRun = &transcript.WorkflowRun{
			ID:     event.Workflow.RunID,
			Status: transcript.WorkflowRunning,
		}
		e.upsertLocked(st)

	case stream.EventNodeStarted, stream.EventNodeFinished:
		if st.answer.WorkflowRun == nil {
			e.logger.Warn("workflow node event without workflow run",
				"node_id", event.Node.NodeID)
			return
		}
		node := transcript.WorkflowNode{
			NodeID:   event.Node.NodeID,
			Title:    event.Node.Title,
			NodeType: event.Node.NodeType,
			Status:   event.Node.Status,
			Error:    event.Node.Error,
			Elapsed:  event.Node.Elapsed,
		}
		appendMissing := event.Type == stream.EventNodeStarted
		st.answer.WorkflowRun.Patch(node, appendMissing)
		if !e.guardLocked(st) {
			return
		}
		if e.model.PatchWorkflowNode(st.answer.ID, node, appendMissing) {
			e.publishLocked()
		}

	case stream.EventWorkflowFinished:
		if st.answer.WorkflowRun != nil {
			st.answer.WorkflowRun.Status = event.Workflow.Status
		}
		e.upsertLocked(st)

	case stream.EventError:
		st.errored = true
		if e.guardLocked(st) {
			// Roll back the placeholder but keep the question so the
			// user's input is not lost.
			e.model.RemoveByID(st.placeholderID)
			e.publishLocked()
		}
		e.notifier.Error(event.Err)

	case stream.EventCompleted:
		st.completedOK = event.Completed.Success
	}
}

// upsertLocked pushes the working answer into the transcript unless the
// same-conversation guard suppresses the write. priorID follows the
// answer's id so a mid-stream id change replaces instead of duplicating.
func (e *Engine) upsertLocked(st *sendState) {
	if !e.guardLocked(st) {
		return
	}
	e.model.UpsertAnswer(st.answer, st.priorID, st.question)
	st.priorID = st.answer.ID
	e.publishLocked()
}

// guardLocked is the same-conversation guard: once the user navigates
// away from the send's origin conversation the selection generation no
// longer matches and every later mutation of this send is suppressed,
// permanently. Must be called with mu held.
func (e *Engine) guardLocked(st *sendState) bool {
	if st.suppressed {
		return false
	}
	if e.convos.Generation() != st.generation {
		st.suppressed = true
		e.respondingToCurrent = false
		e.logger.Debug("suppressing stale stream writes",
			"origin_conversation", st.origin,
			"current_conversation", e.convos.CurrentID())
		return false
	}
	return true
}

// finish runs the terminal transition once the event channel closes:
// rollback on a dropped stream, sentinel promotion on success, and the
// release of the send lock.
func (e *Engine) finish(st *sendState) {
	e.mu.Lock()
	cancelled := e.cancelled
	if !st.errored && !st.completedOK && !cancelled {
		// Stream ended without a terminal event: transport failure.
		if e.guardLocked(st) {
			e.model.RemoveByID(st.placeholderID)
			e.publishLocked()
		}
		e.notifier.Error("Connection to the assistant was lost")
	}
	promote := st.completedOK && st.origin == convo.SentinelID && st.newConversationID != ""
	if promote {
		e.state = StateSettling
	}
	e.mu.Unlock()

	if promote {
		e.settle(st)
	}

	e.mu.Lock()
	e.state = StateIdle
	e.cancelStream = nil
	e.cancelled = false
	e.activeTaskID = ""
	e.respondingToCurrent = true
	done := e.done
	e.done = nil
	e.publishLocked()
	e.mu.Unlock()

	if done != nil {
		close(done)
	}
}

// settle promotes the sentinel conversation after a successful first
// exchange: derive a display name, rewrite the sentinel id in place,
// and clear the cached sentinel inputs so the next new-chat start is
// clean. The current selection moves to the promoted id only when the
// user has not navigated elsewhere (PromoteSentinel handles that).
func (e *Engine) settle(st *sendState) {
	ctx, cancel := context.WithTimeout(context.Background(), nameTimeout)
	defer cancel()

	name, err := e.backend.GenerateConversationName(ctx, st.newConversationID)
	if err != nil {
		e.logger.Warn("failed to generate conversation name",
			"conversation_id", st.newConversationID,
			"error", err)
	}

	if err := e.convos.PromoteSentinel(st.newConversationID, name); err != nil {
		e.logger.Warn("sentinel promotion failed",
			"conversation_id", st.newConversationID,
			"error", err)
		return
	}
	e.convos.ClearSentinelInputs()

	// Persist the new selection when the promoted conversation is the
	// one on screen.
	if e.convos.CurrentID() == st.newConversationID {
		if err := e.convos.Select(ctx, st.newConversationID); err != nil {
			e.logger.Warn("failed to persist promoted selection", "error", err)
		}
	}

	e.logger.Debug("sentinel promoted",
		"conversation_id", st.newConversationID,
		"name", name)
}

// buildInputs converts typed input values into the backend payload
// shape: scalars pass through, file-bearing values become
// file references.
func buildInputs(inputs convo.Inputs) map[string]any {
	if len(inputs) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(inputs))
	for key, value := range inputs {
		switch value.Kind {
		case convo.ValueFile:
			out[key] = value.File
		case convo.ValueFileList:
			out[key] = value.Files
		default:
			out[key] = value.Text
		}
	}
	return out
}

// displayFiles converts outbound file references into user-side
// message files for the question entry.
func displayFiles(files []convo.FileRef) []transcript.MessageFile {
	var out []transcript.MessageFile
	for _, f := range files {
		out = append(out, transcript.MessageFile{
			ID:        f.UploadFileID,
			Type:      f.Type,
			URL:       f.URL,
			BelongsTo: transcript.FileBelongsToUser,
		})
	}
	return out
}
