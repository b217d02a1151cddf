// Package store persists durable local state in SQLite.
//
// The only state parley keeps locally is which conversation was last
// open per app, so the next start can restore the selection. The
// database lives alongside the user's data directory, uses WAL mode,
// and creates its schema on open. LocalState satisfies the
// convo.LastOpenStore hook.
package store
