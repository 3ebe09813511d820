// Package protocol owns the Grebe wire contract above the frame codec.
//
// Ownership boundary:
//   - message type names and per-type argument schemas
//   - the error taxonomy shared by every layer
//   - classification of server messages into pass-through, rejection or
//     terminal outcome
//   - Conn, the framed message stream over one socket
package protocol
