// Package store provides persistent storage for the gateway using SQLite.
//
// # Architecture
//
// The store package splits persistence into small interfaces:
//
//   - UserStore: registered users (read-only from the chat core's point of view)
//   - ConversationStore: one record per unordered pair of users
//   - MessageStore: the append-only, position-ordered message ledger
//
// Store composes all three plus Ping and Close. SQLiteStore implements Store in
// a single struct; MockStore is the in-memory equivalent for unit tests.
//
// # Data Models
//
//   - User: id, unique username, display name, bcrypt password hash
//   - Conversation: id plus the participant pair in canonical order (UserA < UserB)
//   - Message: immutable content with a 1-based Position inside its conversation
//
// # Invariants enforced by the schema
//
//	UNIQUE(user_low, user_high)         -- at most one conversation per pair
//	CHECK(user_low < user_high)         -- canonical order, no self-conversations
//	UNIQUE(conversation_id, position)   -- total order inside a conversation
//
// # SQLite Configuration
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//	PRAGMA busy_timeout=5000;
//
// The pool is limited to one open connection.
//
// # Error Handling
//
//   - ErrNotFound: requested entity does not exist
//   - ErrDuplicateConversation: the pair already has a conversation
//   - ErrUsernameTaken: username already registered
//
// Any other error means the database itself failed; callers treat it as
// storage being unavailable.
//
// # Testing
//
// Use NewMockStore() for unit tests. Its AppendErr, ListMessagesErr,
// CreateConversationErr, GetConversationErr and PingErr fields inject failures.
// Use NewSQLiteStore with a t.TempDir() path (or ":memory:") for integration tests.
package store
