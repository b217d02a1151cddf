// Package convo tracks known conversations and the current selection.
//
// # Sentinel Conversation
//
// A conversation does not exist on the backend until its first message
// completes. Until then it lives in the store under the reserved
// SentinelID ("-1"), pinned to the head of the list. After the first
// successful exchange the backend assigns a real id and the sentinel
// is promoted: its id is rewritten in place, without reordering the
// list or touching the transcript. At most one sentinel exists at a
// time; starting a new conversation while one is pending reuses it.
//
// # Selection Generation
//
// Every Select bumps a monotonically increasing generation counter.
// An in-flight send captures the generation at its start; the engine
// compares it on every stream event to decide whether the event may
// still mutate the visible transcript. The counter only grows, which
// makes the suppression sticky: navigating away and back does not
// reattach a stale stream.
//
// # Inputs
//
// Apps can declare input variables the user fills in before the first
// message (see PromptVariable). Values are typed: scalar text, a file
// reference, or a list of file references. The sentinel's inputs are
// cached in the store until promotion clears them.
//
// # Persistence
//
// Which conversation was last open is persisted through the
// LastOpenStore hook (see the store package for the SQLite
// implementation). The sentinel is never persisted.
package convo
