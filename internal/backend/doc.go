// Package backend talks to the inference backend's HTTP API.
//
// # Endpoints
//
// The client covers the app-scoped API surface the engine needs:
//
//   - POST /chat-messages: streaming send (SSE response)
//   - GET /conversations: known conversations, newest first
//   - GET /parameters: opening statement and input variable form
//   - GET /messages: persisted history of one conversation
//   - POST /conversations/{id}/name: derive a display name
//   - POST /messages/{id}/feedbacks: rate a finalized answer
//
// All requests authenticate with a bearer API key and identify the end
// user with a stable user string.
//
// # Streaming
//
// SendChatMessage opens the stream and hands back the decoded event
// channel plus a cancel handle. Two HTTP clients are used: a
// timeout-bounded one for plain requests and one without a per-request
// timeout for streams, whose lifetime is bounded by the caller's
// context instead.
package backend
