// Package server wires the support-chat gateway's HTTP surface: account
// registration and login, the /api/support REST endpoints, and the /ws
// push-channel upgrade.
//
// REST is the source of truth for ordering and persistence. Handlers
// publish to broker topics only after the store write succeeds, so a frame
// on the push channel always describes committed state. Clients that miss
// frames recover by refetching; nothing here retries delivery.
package server
