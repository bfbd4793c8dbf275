// ABOUTME: Client-side synchronization core for the support chat
// ABOUTME: Keeps list and conversation views live over the broker channel

// Package client implements the synchronization core used by chat
// frontends. REST calls establish authoritative snapshots; a broker
// channel then delivers incremental events that are folded into
// in-memory state.
//
// The moving parts:
//
//   - Channel: one reconnectable websocket subscription with a fixed
//     retry delay and an outbound heartbeat. At most one channel is
//     live per client session.
//   - ChatList: the conversation summary collection, merged from REST
//     snapshots and list-topic events.
//   - Conversation: one open conversation's message stream, with
//     optimistic send and reconcile against the REST response.
//   - Session: owns the logged-in identity and bearer token, exposed
//     as a subscribable stream.
//   - Coordinator: switches between the list screen and a detail
//     screen, tearing down one channel before opening the next.
//
// The REST backend remains the source of truth; the channel is
// receive-only and any missed event is recovered by the next REST
// refresh.
package client
