// ABOUTME: Ordered chat transcript model for the current conversation
// ABOUTME: All streaming mutations funnel through UpsertAnswer to keep one entry per logical answer

package transcript

import (
	"log/slog"
)

// Role identifies which side of the exchange an entry belongs to.
type Role string

const (
	RoleQuestion Role = "question"
	RoleAnswer   Role = "answer"
)

// File ownership constants, matching the backend's belongs_to field.
const (
	FileBelongsToUser      = "user"
	FileBelongsToAssistant = "assistant"
)

// Workflow run status values reported by the backend.
const (
	WorkflowRunning   = "running"
	WorkflowSucceeded = "succeeded"
	WorkflowFailed    = "failed"
	WorkflowStopped   = "stopped"
)

// MessageFile is a file attached to an entry or an agent thought.
type MessageFile struct {
	ID        string
	Type      string // "image" etc.
	URL       string
	BelongsTo string // FileBelongsToUser or FileBelongsToAssistant
}

// AgentThought is one sub-step of an agent-mode answer. Thought text is
// cumulative: the backend resends the full text per sub-step, so an update
// for an existing ID is a replacement, never a concatenation.
type AgentThought struct {
	ID       string
	Thought  string
	Position int
	Files    []MessageFile
}

// WorkflowNode is one node record inside a workflow trace. Records are
// looked up by NodeID: started and finished events for the same node
// mutate the same record.
type WorkflowNode struct {
	NodeID   string
	Title    string
	NodeType string
	Status   string
	Error    string
	Elapsed  float64
}

// WorkflowRun traces a multi-node workflow execution on an answer.
type WorkflowRun struct {
	ID     string
	Status string
	Nodes  []WorkflowNode
}

// Patch merges a node record into the trace by NodeID. An unknown id
// appends only when appendMissing is set; otherwise the record is
// dropped. Reports whether a record was created or updated.
func (r *WorkflowRun) Patch(node WorkflowNode, appendMissing bool) bool {
	for i := range r.Nodes {
		if r.Nodes[i].NodeID == node.NodeID {
			r.Nodes[i] = node
			return true
		}
	}
	if !appendMissing {
		return false
	}
	r.Nodes = append(r.Nodes, node)
	return true
}

// Feedback is a user rating on a finalized answer.
type Feedback struct {
	Rating string // "like" or "dislike"
}

// Annotation marks an answer served from a curated annotation rather
// than generated live.
type Annotation struct {
	ID         string
	AuthorName string
}

// Entry is a single transcript item: a question, an answer, or the
// synthetic opening statement.
type Entry struct {
	ID                 string
	Role               Role
	Content            string
	AgentThoughts      []AgentThought
	Files              []MessageFile
	Feedback           *Feedback
	Annotation         *Annotation
	WorkflowRun        *WorkflowRun
	IsPlaceholder      bool
	IsOpeningStatement bool
	SuggestedQuestions []string
	FeedbackDisabled   bool
}

// Clone returns a deep copy of the entry. Snapshots handed to observers
// are built from clones so callers can treat them as immutable.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	c := *e
	if e.AgentThoughts != nil {
		c.AgentThoughts = make([]AgentThought, len(e.AgentThoughts))
		for i, t := range e.AgentThoughts {
			c.AgentThoughts[i] = t
			if t.Files != nil {
				c.AgentThoughts[i].Files = append([]MessageFile(nil), t.Files...)
			}
		}
	}
	if e.Files != nil {
		c.Files = append([]MessageFile(nil), e.Files...)
	}
	if e.Feedback != nil {
		fb := *e.Feedback
		c.Feedback = &fb
	}
	if e.Annotation != nil {
		an := *e.Annotation
		c.Annotation = &an
	}
	if e.WorkflowRun != nil {
		run := *e.WorkflowRun
		run.Nodes = append([]WorkflowNode(nil), e.WorkflowRun.Nodes...)
		c.WorkflowRun = &run
	}
	if e.SuggestedQuestions != nil {
		c.SuggestedQuestions = append([]string(nil), e.SuggestedQuestions...)
	}
	return &c
}

// UpsertThought merges a thought sub-step into the entry. A new ID
// appends; an existing ID is updated in place wherever it sits in the
// list. Accumulated text and files survive when the incoming thought
// carries none.
func (e *Entry) UpsertThought(thought AgentThought) {
	for i := range e.AgentThoughts {
		if e.AgentThoughts[i].ID == thought.ID {
			if thought.Thought == "" {
				thought.Thought = e.AgentThoughts[i].Thought
			}
			if thought.Files == nil {
				thought.Files = e.AgentThoughts[i].Files
			}
			e.AgentThoughts[i] = thought
			return
		}
	}
	e.AgentThoughts = append(e.AgentThoughts, thought)
}

// LastThought returns the most recent agent thought, or nil.
func (e *Entry) LastThought() *AgentThought {
	if len(e.AgentThoughts) == 0 {
		return nil
	}
	return &e.AgentThoughts[len(e.AgentThoughts)-1]
}

// Model is the ordered transcript for the currently displayed
// conversation. It is not safe for concurrent use; the engine owns it
// and serializes access.
type Model struct {
	entries []*Entry
	logger  *slog.Logger
}

// New creates an empty transcript. Pass nil logger for default.
func New(logger *slog.Logger) *Model {
	if logger == nil {
		logger = slog.Default()
	}
	return &Model{logger: logger.With("component", "transcript")}
}

// Reset replaces the transcript with either nothing or a single opening
// statement entry. Used when switching to a conversation without
// history or before hydrating from the backend.
func (m *Model) Reset(opening *Entry) {
	m.entries = nil
	if opening != nil {
		m.entries = []*Entry{opening.Clone()}
	}
}

// Append adds an entry at the end of the transcript.
func (m *Model) Append(entry *Entry) {
	m.entries = append(m.entries, entry.Clone())
}

// AppendPair atomically adds a question and its placeholder answer in
// order. Called when a send begins.
func (m *Model) AppendPair(question, placeholder *Entry) {
	m.entries = append(m.entries, question.Clone(), placeholder.Clone())
}

// UpsertAnswer replaces any entry sharing the answer's own id or
// priorID (the id the logical answer previously lived under: the
// placeholder's, or a provisional id superseded mid-stream) with the
// given answer, preserving position; if neither exists the answer is
// appended after its question. This is the single mutation point all
// streaming events funnel through, so at most one entry per logical
// answer exists no matter how many events arrive. The question is
// inserted if it is somehow absent.
func (m *Model) UpsertAnswer(answer *Entry, priorID string, question *Entry) {
	replaced := false
	kept := m.entries[:0]
	for _, entry := range m.entries {
		if entry.ID == answer.ID || (priorID != "" && entry.ID == priorID) {
			if !replaced {
				kept = append(kept, answer.Clone())
				replaced = true
			}
			continue
		}
		kept = append(kept, entry)
	}
	m.entries = kept
	if replaced {
		return
	}
	if question != nil && m.indexOf(question.ID) < 0 {
		m.entries = append(m.entries, question.Clone())
	}
	m.entries = append(m.entries, answer.Clone())
}

// RemoveByID deletes the entry with the given id, reporting whether it
// was present. Used to roll back a placeholder on error.
func (m *Model) RemoveByID(id string) bool {
	for i, entry := range m.entries {
		if entry.ID == id {
			m.entries = append(m.entries[:i], m.entries[i+1:]...)
			return true
		}
	}
	return false
}

// ReplaceContent overwrites the content of the addressed entry wherever
// it currently lives, leaving thoughts, files and workflow untouched.
// Shared by message_replace events and manual replacement.
func (m *Model) ReplaceContent(answerID, content string) bool {
	for _, entry := range m.entries {
		if entry.ID == answerID {
			entry.Content = content
			return true
		}
	}
	return false
}

// SetFeedback records a rating on a finalized entry.
func (m *Model) SetFeedback(messageID string, fb Feedback) bool {
	for _, entry := range m.entries {
		if entry.ID == messageID {
			entry.Feedback = &fb
			return true
		}
	}
	return false
}

// PatchWorkflowNode merges a node record into the answer's workflow
// trace. With appendMissing set (node_started) an unknown NodeID
// appends a new record; without it (node_finished) an unknown NodeID is
// logged and ignored so backend protocol drift degrades gracefully.
// Returns whether a record was created or updated.
func (m *Model) PatchWorkflowNode(answerID string, node WorkflowNode, appendMissing bool) bool {
	entry := m.findByID(answerID)
	if entry == nil || entry.WorkflowRun == nil {
		m.logger.Warn("workflow node patch for unknown answer",
			"answer_id", answerID,
			"node_id", node.NodeID)
		return false
	}
	if !entry.WorkflowRun.Patch(node, appendMissing) {
		m.logger.Warn("workflow node finish for unknown node",
			"answer_id", answerID,
			"node_id", node.NodeID)
		return false
	}
	return true
}

// Entries returns a deep-copied snapshot of the transcript. Callers
// must treat prior snapshots as immutable.
func (m *Model) Entries() []*Entry {
	out := make([]*Entry, len(m.entries))
	for i, entry := range m.entries {
		out[i] = entry.Clone()
	}
	return out
}

// Len reports the number of entries.
func (m *Model) Len() int {
	return len(m.entries)
}

// FindByID returns a copy of the entry with the given id, or nil.
func (m *Model) FindByID(id string) *Entry {
	return m.findByID(id).Clone()
}

// PlaceholderCount reports how many placeholder answers are present.
func (m *Model) PlaceholderCount() int {
	n := 0
	for _, entry := range m.entries {
		if entry.IsPlaceholder {
			n++
		}
	}
	return n
}

func (m *Model) findByID(id string) *Entry {
	for _, entry := range m.entries {
		if entry.ID == id {
			return entry
		}
	}
	return nil
}

func (m *Model) indexOf(id string) int {
	for i, entry := range m.entries {
		if entry.ID == id {
			return i
		}
	}
	return -1
}
