// Package broker implements the server side of the push channel: a
// websocket endpoint speaking a small JSON text-frame pub/sub protocol.
//
// Clients subscribe by topic; the REST layer publishes events through the
// Hub as it persists them. Three topic families exist:
//
//   - /topic/chats           general conversation-summary updates
//   - /topic/chats/support   agent-only summary updates (SUPPORT role)
//   - /topic/chats/{id}      per-conversation message and status events
//
// The channel is strictly server-to-client for data: the only frames a
// client sends are subscribe, unsubscribe and ping. Fan-out is
// non-blocking; slow subscribers lose frames rather than stalling the
// publisher, since the REST API remains the authoritative data path.
package broker
