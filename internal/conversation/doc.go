// Package conversation implements two-party conversations: who is talking to
// whom, what they said, and in which order.
//
// # Registry
//
// Registry maps an unordered pair of users to exactly one conversation. The
// pair is canonicalized (sorted) so (alice, bob) and (bob, alice) resolve to
// the same record, and check-then-create runs under a per-pair lock.
//
// # Ledger
//
// Ledger appends messages with a per-conversation position and lists them
// oldest first. Content is validated before anything touches storage.
//
// # Service
//
// Service is the one send pipeline used by both the HTTP API and the
// WebSocket handler:
//
//  1. Validate content
//  2. Resolve the target conversation (by receiver or by conversation id)
//  3. Append to the ledger
//  4. Hand the stored message to the delivery router
//
// Delivery is best effort. A failed or skipped push never rolls back the
// append, and a failed append never delivers.
//
// # Errors
//
// Every error returned by this package matches one of ErrInvalidArgument,
// ErrPermissionDenied, ErrNotFound or ErrStorageUnavailable via errors.Is.
package conversation
