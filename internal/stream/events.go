// ABOUTME: Closed event union for the chat message stream
// ABOUTME: One tagged Event per backend chunk, consumed in arrival order by the engine's reducer

package stream

// EventType indicates the kind of stream event.
type EventType int

const (
	EventToken EventType = iota
	EventThought
	EventFile
	EventMessageEnd
	EventMessageReplace
	EventWorkflowStarted
	EventNodeStarted
	EventNodeFinished
	EventWorkflowFinished
	EventError
	EventCompleted
)

// String returns the event name for logging.
func (t EventType) String() string {
	switch t {
	case EventToken:
		return "token"
	case EventThought:
		return "thought"
	case EventFile:
		return "file"
	case EventMessageEnd:
		return "message_end"
	case EventMessageReplace:
		return "message_replace"
	case EventWorkflowStarted:
		return "workflow_started"
	case EventNodeStarted:
		return "node_started"
	case EventNodeFinished:
		return "node_finished"
	case EventWorkflowFinished:
		return "workflow_finished"
	case EventError:
		return "error"
	case EventCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// Event is one discrete event from a send's response stream. TaskID is
// the correlation identifier established by the first event.
type Event struct {
	Type   EventType
	TaskID string

	Token     *TokenEvent
	Thought   *ThoughtEvent
	File      *FileEvent
	End       *EndEvent
	Replace   *ReplaceEvent
	Workflow  *WorkflowEvent
	Node      *NodeEvent
	Err       string
	Completed *CompletedEvent
}

// TokenEvent carries a text fragment to append to the current answer
// (or to the last agent thought when agent mode is active). First marks
// the stream's first message, which carries the backend-assigned
// conversation id for a brand-new conversation.
type TokenEvent struct {
	Text           string
	MessageID      string
	ConversationID string
	First          bool
}

// ThoughtEvent is one agent-mode sub-step. Thought text is cumulative
// per sub-step id: a repeated id replaces, never concatenates.
type ThoughtEvent struct {
	ID        string
	MessageID string
	Thought   string
	Position  int
}

// FileEvent is a file descriptor attached mid-stream.
type FileEvent struct {
	ID        string
	FileType  string
	URL       string
	BelongsTo string
}

// EndEvent finalizes the answer's id; a non-nil Annotation marks the
// answer as served from a curated annotation.
type EndEvent struct {
	MessageID  string
	Annotation *AnnotationEvent
}

// AnnotationEvent describes an annotation reply.
type AnnotationEvent struct {
	ID         string
	AuthorName string
}

// ReplaceEvent overwrites the content of the addressed message wherever
// it currently lives in the transcript.
type ReplaceEvent struct {
	MessageID string
	Content   string
}

// WorkflowEvent signals workflow run start (RunID set) or finish
// (Status set).
type WorkflowEvent struct {
	RunID  string
	Status string
}

// NodeEvent carries node data for node_started and node_finished.
type NodeEvent struct {
	NodeID   string
	Title    string
	NodeType string
	Status   string
	Error    string
	Elapsed  float64
}

// CompletedEvent is the terminal event of a successful stream.
type CompletedEvent struct {
	Success bool
}
