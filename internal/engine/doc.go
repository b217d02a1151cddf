// Package engine drives the streaming conversation loop.
//
// # Overview
//
// The engine sits between a frontend (the TUI, or anything else that
// renders transcripts) and the inference backend. It owns the
// transcript for the currently displayed conversation, issues sends,
// reconciles the response event stream into the transcript, and
// broadcasts deep-copied snapshots to rendering observers.
//
// # Send Lifecycle
//
// A send moves through four states:
//
//	Idle -> Sending -> Streaming -> (Settling) -> Idle
//
// At most one send is active at a time; a second Send while not Idle
// returns ErrSendInProgress. When a send starts, the user's question
// and a placeholder answer are appended together. Every stream event
// then funnels through a single reducer that mutates one working
// answer entry and upserts it into the transcript, so no matter how
// many events arrive there is exactly one entry per logical answer.
//
// Settling happens only when a send that started on the sentinel (not
// yet persisted) conversation completes successfully: the engine asks
// the backend for a display name and rewrites the sentinel's id in
// place (see the convo package).
//
// # Same-Conversation Guard
//
// Switching conversations does not cancel an in-flight send. Instead,
// the send captures the selection generation at start; once the user
// navigates away the generation no longer matches and every later
// transcript mutation of that send is suppressed, permanently, even if
// the user navigates back. The stream is still consumed to completion
// so resources are released and promotion still happens.
//
// # Cancellation
//
// Cancel is cooperative. It releases the underlying stream but the
// engine stays out of Idle until the event channel closes. A cancelled
// send leaves its placeholder (or partial answer) in the transcript;
// cancellation is a user choice, not a failure, so nothing is rolled
// back and no notice is raised.
//
// # Failure Handling
//
//   - Request failure (no stream opened): placeholder rolled back,
//     error notice raised, Send returns the error.
//   - Error event mid-stream: placeholder rolled back, error notice,
//     the stream ends.
//   - Stream dropped without a terminal event: treated as a transport
//     failure, placeholder rolled back, error notice.
//
// The question entry is never rolled back; the user's input survives
// every failure mode.
//
// # Snapshots
//
// Observers subscribe through the Broadcaster and receive a deep
// copied snapshot after every transcript mutation. Snapshots are
// immutable from the observer's point of view; slow observers drop
// snapshots rather than block the reducer.
package engine
