// ABOUTME: Tests for the transcript model's ordering and upsert semantics
// ABOUTME: Covers placeholder replacement, thought merging, workflow patching, rollback

package transcript

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func question(id, content string) *Entry {
	return &Entry{ID: id, Role: RoleQuestion, Content: content}
}

func answer(id, content string) *Entry {
	return &Entry{ID: id, Role: RoleAnswer, Content: content}
}

func placeholder(id string) *Entry {
	return &Entry{ID: id, Role: RoleAnswer, IsPlaceholder: true}
}

func ids(entries []*Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.ID
	}
	return out
}

func TestModel_AppendPairKeepsOrder(t *testing.T) {
	m := New(nil)
	m.AppendPair(question("q1", "hello"), placeholder("p1"))

	entries := m.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, []string{"q1", "p1"}, ids(entries))
	assert.True(t, entries[1].IsPlaceholder)
}

func TestModel_UpsertAnswerReplacesPlaceholderInPlace(t *testing.T) {
	m := New(nil)
	m.Append(question("q0", "earlier"))
	m.Append(answer("a0", "earlier answer"))
	q := question("q1", "hello")
	m.AppendPair(q, placeholder("p1"))

	m.UpsertAnswer(answer("a1", "partial"), "p1", q)

	entries := m.Entries()
	assert.Equal(t, []string{"q0", "a0", "q1", "a1"}, ids(entries))
	assert.Equal(t, "partial", entries[3].Content)
	assert.Equal(t, 0, m.PlaceholderCount())
}

func TestModel_UpsertAnswerIsIdempotentPerAnswerID(t *testing.T) {
	m := New(nil)
	q := question("q1", "hello")
	m.AppendPair(q, placeholder("p1"))

	m.UpsertAnswer(answer("a1", "one"), "p1", q)
	m.UpsertAnswer(answer("a1", "one two"), "p1", q)
	m.UpsertAnswer(answer("a1", "one two three"), "p1", q)

	entries := m.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "one two three", entries[1].Content)
}

func TestModel_UpsertAnswerSurvivesIDChange(t *testing.T) {
	// The working answer starts with a provisional id and adopts the
	// backend-assigned one mid-stream. Both generations must collapse
	// into a single entry.
	m := New(nil)
	q := question("q1", "hello")
	m.AppendPair(q, placeholder("p1"))

	m.UpsertAnswer(answer("provisional", "one"), "p1", q)

	// The reducer passes the id the entry previously lived under.
	m.UpsertAnswer(answer("msg-real", "one two"), "provisional", q)

	entries := m.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "msg-real", entries[1].ID)
	assert.Equal(t, "one two", entries[1].Content)
}

func TestModel_UpsertAnswerAppendsWhenNothingMatches(t *testing.T) {
	m := New(nil)
	m.UpsertAnswer(answer("a1", "orphan"), "p-missing", question("q1", "hello"))

	entries := m.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, []string{"q1", "a1"}, ids(entries))
}

func TestModel_RemoveByID(t *testing.T) {
	m := New(nil)
	m.AppendPair(question("q1", "hello"), placeholder("p1"))

	assert.True(t, m.RemoveByID("p1"))
	assert.False(t, m.RemoveByID("p1"))

	entries := m.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "q1", entries[0].ID)
}

func TestModel_ReplaceContentLeavesStructure(t *testing.T) {
	m := New(nil)
	a := answer("a1", "offensive")
	a.AgentThoughts = []AgentThought{{ID: "t1", Thought: "step", Position: 1}}
	m.Append(question("q1", "hello"))
	m.Append(a)

	assert.True(t, m.ReplaceContent("a1", "moderated"))
	assert.False(t, m.ReplaceContent("missing", "x"))

	got := m.FindByID("a1")
	require.NotNil(t, got)
	assert.Equal(t, "moderated", got.Content)
	require.Len(t, got.AgentThoughts, 1)
	assert.Equal(t, "step", got.AgentThoughts[0].Thought)
}

func TestModel_SetFeedback(t *testing.T) {
	m := New(nil)
	m.Append(answer("a1", "done"))

	assert.True(t, m.SetFeedback("a1", Feedback{Rating: "like"}))
	got := m.FindByID("a1")
	require.NotNil(t, got.Feedback)
	assert.Equal(t, "like", got.Feedback.Rating)

	assert.False(t, m.SetFeedback("missing", Feedback{Rating: "like"}))
}

func TestModel_ResetWithOpening(t *testing.T) {
	m := New(nil)
	m.Append(question("q1", "old"))

	m.Reset(&Entry{ID: "opening-1", Role: RoleAnswer, Content: "welcome", IsOpeningStatement: true})

	entries := m.Entries()
	require.Len(t, entries, 1)
	assert.True(t, entries[0].IsOpeningStatement)

	m.Reset(nil)
	assert.Equal(t, 0, m.Len())
}

func TestEntry_UpsertThoughtReplacesByID(t *testing.T) {
	e := answer("a1", "")
	e.UpsertThought(AgentThought{ID: "t1", Thought: "searching", Position: 1})
	e.UpsertThought(AgentThought{ID: "t2", Thought: "reading", Position: 2})

	// A repeated id overwrites in place, wherever it sits.
	e.UpsertThought(AgentThought{ID: "t1", Thought: "searching the web", Position: 1})

	require.Len(t, e.AgentThoughts, 2)
	assert.Equal(t, "searching the web", e.AgentThoughts[0].Thought)
	assert.Equal(t, "reading", e.AgentThoughts[1].Thought)
}

func TestEntry_UpsertThoughtKeepsAccumulatedTextAndFiles(t *testing.T) {
	e := answer("a1", "")
	e.UpsertThought(AgentThought{ID: "t1", Thought: "partial text", Position: 1,
		Files: []MessageFile{{ID: "f1", Type: "image"}}})

	// An empty resend must not wipe what tokens accumulated.
	e.UpsertThought(AgentThought{ID: "t1", Position: 1})

	require.Len(t, e.AgentThoughts, 1)
	assert.Equal(t, "partial text", e.AgentThoughts[0].Thought)
	require.Len(t, e.AgentThoughts[0].Files, 1)
}

func TestEntry_LastThought(t *testing.T) {
	e := answer("a1", "")
	assert.Nil(t, e.LastThought())

	e.UpsertThought(AgentThought{ID: "t1", Position: 1})
	e.UpsertThought(AgentThought{ID: "t2", Position: 2})

	last := e.LastThought()
	require.NotNil(t, last)
	assert.Equal(t, "t2", last.ID)

	// The pointer addresses the live slice element.
	last.Thought += "tok"
	assert.Equal(t, "tok", e.AgentThoughts[1].Thought)
}

func TestModel_PatchWorkflowNodeUpdatesByNodeID(t *testing.T) {
	m := New(nil)
	a := answer("a1", "")
	a.WorkflowRun = &WorkflowRun{ID: "run-1", Status: WorkflowRunning}
	m.Append(a)

	started := WorkflowNode{NodeID: "n1", Title: "retrieve", Status: WorkflowRunning}
	require.True(t, m.PatchWorkflowNode("a1", started, true))

	finished := WorkflowNode{NodeID: "n1", Title: "retrieve", Status: WorkflowSucceeded, Elapsed: 0.42}
	require.True(t, m.PatchWorkflowNode("a1", finished, false))

	got := m.FindByID("a1")
	require.Len(t, got.WorkflowRun.Nodes, 1)
	assert.Equal(t, WorkflowSucceeded, got.WorkflowRun.Nodes[0].Status)
	assert.InDelta(t, 0.42, got.WorkflowRun.Nodes[0].Elapsed, 1e-9)
}

func TestModel_PatchWorkflowNodeIgnoresUnknownFinish(t *testing.T) {
	m := New(nil)
	a := answer("a1", "")
	a.WorkflowRun = &WorkflowRun{ID: "run-1", Status: WorkflowRunning}
	m.Append(a)

	node := WorkflowNode{NodeID: "ghost", Status: WorkflowSucceeded}
	assert.False(t, m.PatchWorkflowNode("a1", node, false))
	assert.Empty(t, m.FindByID("a1").WorkflowRun.Nodes)

	assert.False(t, m.PatchWorkflowNode("missing-answer", node, true))
}

func TestEntry_CloneIsDeep(t *testing.T) {
	original := answer("a1", "content")
	original.AgentThoughts = []AgentThought{{ID: "t1", Thought: "x", Files: []MessageFile{{ID: "f1"}}}}
	original.Files = []MessageFile{{ID: "f2"}}
	original.Feedback = &Feedback{Rating: "like"}
	original.Annotation = &Annotation{ID: "an1", AuthorName: "curator"}
	original.WorkflowRun = &WorkflowRun{ID: "run-1", Nodes: []WorkflowNode{{NodeID: "n1"}}}
	original.SuggestedQuestions = []string{"next?"}

	clone := original.Clone()
	clone.Content = "mutated"
	clone.AgentThoughts[0].Thought = "mutated"
	clone.AgentThoughts[0].Files[0].ID = "mutated"
	clone.Files[0].ID = "mutated"
	clone.Feedback.Rating = "dislike"
	clone.Annotation.AuthorName = "mutated"
	clone.WorkflowRun.Nodes[0].NodeID = "mutated"
	clone.SuggestedQuestions[0] = "mutated"

	assert.Equal(t, "content", original.Content)
	assert.Equal(t, "x", original.AgentThoughts[0].Thought)
	assert.Equal(t, "f1", original.AgentThoughts[0].Files[0].ID)
	assert.Equal(t, "f2", original.Files[0].ID)
	assert.Equal(t, "like", original.Feedback.Rating)
	assert.Equal(t, "curator", original.Annotation.AuthorName)
	assert.Equal(t, "n1", original.WorkflowRun.Nodes[0].NodeID)
	assert.Equal(t, "next?", original.SuggestedQuestions[0])
}

func TestModel_EntriesSnapshotsAreIndependent(t *testing.T) {
	m := New(nil)
	m.Append(answer("a1", "one"))

	before := m.Entries()
	m.ReplaceContent("a1", "two")
	after := m.Entries()

	assert.Equal(t, "one", before[0].Content)
	assert.Equal(t, "two", after[0].Content)
}
