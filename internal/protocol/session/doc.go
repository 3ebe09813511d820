// Package session drives one client connection to a Grebe arbiter.
//
// Ownership boundary:
//   - the New -> Connected -> Authenticating -> Authenticated -> InTurn -> Ended
//     state machine
//   - login, move and turn exchange over protocol.Conn
//   - translating END into a GameOutcome through the bound game.Adapter
//   - backoff primitives for callers that own reconnect policy
//
// A Session is driven by one goroutine. Close is the only method that may be
// called concurrently; it unblocks any pending read. Nothing inside the
// package retries.
package session
