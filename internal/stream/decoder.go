// ABOUTME: SSE decoder turning the backend's chat-messages byte stream into Events
// ABOUTME: Parses data: lines with an event discriminator field, tolerating unknown event names

package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
)

// maxLineSize bounds a single SSE line; answers stream as small chunks
// but node payloads can be large.
const maxLineSize = 1024 * 1024

// wireEvent is the JSON shape of one data: line. The backend multiplexes
// all event kinds over the same object with an event discriminator.
type wireEvent struct {
	Event          string          `json:"event"`
	TaskID         string          `json:"task_id"`
	ID             string          `json:"id"`
	MessageID      string          `json:"message_id"`
	ConversationID string          `json:"conversation_id"`
	Answer         string          `json:"answer"`
	Thought        string          `json:"thought"`
	Position       int             `json:"position"`
	Type           string          `json:"type"`
	URL            string          `json:"url"`
	BelongsTo      string          `json:"belongs_to"`
	WorkflowRunID  string          `json:"workflow_run_id"`
	Data           json.RawMessage `json:"data"`
	Metadata       *wireMetadata   `json:"metadata"`
	Message        string          `json:"message"` // error detail
}

type wireMetadata struct {
	AnnotationReply *struct {
		ID      string `json:"id"`
		Account struct {
			Name string `json:"name"`
		} `json:"account"`
	} `json:"annotation_reply"`
}

// wireNodeData is the data payload of workflow and node events.
type wireNodeData struct {
	ID          string  `json:"id"`
	NodeID      string  `json:"node_id"`
	Title       string  `json:"title"`
	NodeType    string  `json:"node_type"`
	Status      string  `json:"status"`
	Error       string  `json:"error"`
	ElapsedTime float64 `json:"elapsed_time"`
}

// Decode reads the SSE body and delivers parsed events on the returned
// channel, in arrival order. The channel is closed when the stream
// ends: after an error event, after a synthesized completed event at
// natural end of stream, or with no terminal event when ctx is
// cancelled mid-stream. Unknown event names are skipped.
func Decode(ctx context.Context, body io.Reader, logger *slog.Logger) <-chan *Event {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "stream")

	out := make(chan *Event, 16)
	go func() {
		defer close(out)

		scanner := bufio.NewScanner(body)
		scanner.Buffer(make([]byte, 64*1024), maxLineSize)

		first := true
		for scanner.Scan() {
			select {
			case <-ctx.Done():
				return
			default:
			}

			line := scanner.Text()
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if payload == "" || payload == "[DONE]" {
				continue
			}

			var wire wireEvent
			if err := json.Unmarshal([]byte(payload), &wire); err != nil {
				logger.Debug("skipping malformed stream chunk", "error", err)
				continue
			}

			event, terminal := convert(&wire, first, logger)
			if event == nil {
				continue
			}
			if event.Type == EventToken {
				first = false
			}

			select {
			case out <- event:
			case <-ctx.Done():
				return
			}
			if terminal {
				return
			}
		}

		if err := scanner.Err(); err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Debug("stream read failed", "error", err)
			out <- &Event{Type: EventError, Err: err.Error()}
			return
		}
		if ctx.Err() != nil {
			return
		}
		out <- &Event{Type: EventCompleted, Completed: &CompletedEvent{Success: true}}
	}()
	return out
}

// convert maps a wire event to the Event union. Returns nil for events
// the engine does not consume (ping, unknown names).
func convert(wire *wireEvent, first bool, logger *slog.Logger) (*Event, bool) {
	event := &Event{TaskID: wire.TaskID}

	switch wire.Event {
	case "message", "agent_message":
		event.Type = EventToken
		event.Token = &TokenEvent{
			Text:           wire.Answer,
			MessageID:      wire.ID,
			ConversationID: wire.ConversationID,
			First:          first,
		}

	case "agent_thought":
		event.Type = EventThought
		event.Thought = &ThoughtEvent{
			ID:        wire.ID,
			MessageID: wire.MessageID,
			Thought:   wire.Thought,
			Position:  wire.Position,
		}

	case "message_file":
		event.Type = EventFile
		event.File = &FileEvent{
			ID:        wire.ID,
			FileType:  wire.Type,
			URL:       wire.URL,
			BelongsTo: wire.BelongsTo,
		}

	case "message_end":
		event.Type = EventMessageEnd
		end := &EndEvent{MessageID: wire.ID}
		if wire.Metadata != nil && wire.Metadata.AnnotationReply != nil {
			end.Annotation = &AnnotationEvent{
				ID:         wire.Metadata.AnnotationReply.ID,
				AuthorName: wire.Metadata.AnnotationReply.Account.Name,
			}
		}
		event.End = end

	case "message_replace":
		event.Type = EventMessageReplace
		event.Replace = &ReplaceEvent{
			MessageID: wire.ID,
			Content:   wire.Answer,
		}

	case "workflow_started":
		data, ok := decodeNodeData(wire.Data, logger)
		if !ok {
			return nil, false
		}
		runID := wire.WorkflowRunID
		if runID == "" {
			runID = data.ID
		}
		event.Type = EventWorkflowStarted
		event.Workflow = &WorkflowEvent{RunID: runID}

	case "workflow_finished":
		data, ok := decodeNodeData(wire.Data, logger)
		if !ok {
			return nil, false
		}
		event.Type = EventWorkflowFinished
		event.Workflow = &WorkflowEvent{RunID: wire.WorkflowRunID, Status: data.Status}

	case "node_started", "node_finished":
		data, ok := decodeNodeData(wire.Data, logger)
		if !ok {
			return nil, false
		}
		if wire.Event == "node_started" {
			event.Type = EventNodeStarted
		} else {
			event.Type = EventNodeFinished
		}
		event.Node = &NodeEvent{
			NodeID:   data.NodeID,
			Title:    data.Title,
			NodeType: data.NodeType,
			Status:   data.Status,
			Error:    data.Error,
			Elapsed:  data.ElapsedTime,
		}

	case "error":
		msg := wire.Message
		if msg == "" {
			msg = "stream error"
		}
		event.Type = EventError
		event.Err = msg
		return event, true

	case "ping":
		return nil, false

	default:
		logger.Debug("skipping unknown stream event", "event", wire.Event)
		return nil, false
	}

	return event, false
}

func decodeNodeData(raw json.RawMessage, logger *slog.Logger) (*wireNodeData, bool) {
	if len(raw) == 0 {
		return &wireNodeData{}, true
	}
	var data wireNodeData
	if err := json.Unmarshal(raw, &data); err != nil {
		logger.Debug("skipping malformed workflow payload", "error", err)
		return nil, false
	}
	return &data, true
}
