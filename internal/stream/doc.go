// Package stream decodes the backend's streaming chat responses.
//
// # Wire Format
//
// The backend answers POST /chat-messages with Server-Sent Events.
// Each data: line carries one JSON object with an event discriminator:
//
//	data: {"event": "message", "id": "...", "answer": "chunk", ...}
//	data: {"event": "agent_thought", "id": "...", "position": 1, ...}
//	data: {"event": "message_end", "id": "...", "metadata": {...}}
//
// # Event Union
//
// Decode turns each wire object into one Event, a closed tagged union:
// exactly one payload field is set, selected by Type. The engine's
// reducer switches over Type and never inspects raw JSON.
//
// Token events ("message" and "agent_message" on the wire) carry the
// First flag on the stream's first message; for a brand-new
// conversation that message also carries the backend-assigned
// conversation id.
//
// # Terminal Behavior
//
// The event channel closes when the stream ends. Three endings exist:
//
//   - natural end of stream: a Completed event is synthesized first
//   - an error event: delivered, then the channel closes
//   - context cancellation: the channel closes with no terminal event
//
// The absence of a terminal event is how the consumer distinguishes
// cancellation and transport failure from success.
//
// Unknown event names and ping keepalives are skipped, so protocol
// additions degrade gracefully.
package stream
