// Package transcript models the ordered chat transcript.
//
// # Entries
//
// A transcript is an ordered list of entries: questions, answers, and
// at most one synthetic opening statement at the head. Answers may
// carry agent thoughts (sub-steps of an agent-mode response), attached
// files, a workflow trace, feedback, and an annotation marker.
//
// # Upsert Discipline
//
// Streaming mutations funnel through Model.UpsertAnswer: the caller
// maintains one working answer entry and re-upserts it after every
// event. The upsert replaces by the answer's current or prior id and
// preserves position, so an answer occupies exactly one slot from
// placeholder to final text regardless of how many events arrive.
//
// Agent thoughts are merged by id: the backend resends cumulative
// thought text per sub-step, so an update replaces the stored text
// rather than concatenating. Workflow nodes are merged by node id;
// a finish for an unknown node is dropped.
//
// # Ownership
//
// The Model is not safe for concurrent use. The engine owns it and
// serializes access; everyone else sees deep-copied snapshots from
// Entries.
package transcript
