// ABOUTME: Store interfaces and data types for nexial-gateway persistence
// ABOUTME: Defines User, Conversation, Message and the storage contracts used by the core

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateConversation is returned when a conversation for the same pair already exists
var ErrDuplicateConversation = errors.New("conversation already exists")

// ErrUsernameTaken is returned when registering a username that is already in use
var ErrUsernameTaken = errors.New("username already taken")

// User is a registered participant. The core only reads users.
type User struct {
	ID           string
	Username     string
	DisplayName  string
	PasswordHash string
	CreatedAt    time.Time
}

// Conversation is the durable record of a two-party relationship.
// UserA and UserB are always stored in canonical order (UserA < UserB).
type Conversation struct {
	ID        string
	UserA     string
	UserB     string
	CreatedAt time.Time
}

// HasParticipant reports whether userID is one of the two participants.
func (c *Conversation) HasParticipant(userID string) bool {
	return userID != "" && (c.UserA == userID || c.UserB == userID)
}

// Counterpart returns the participant that is not userID.
// Returns "" when userID is not a participant.
func (c *Conversation) Counterpart(userID string) string {
	switch userID {
	case c.UserA:
		return c.UserB
	case c.UserB:
		return c.UserA
	default:
		return ""
	}
}

// Message is an immutable entry in a conversation's ledger.
// Position is 1-based and strictly increasing within a conversation.
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	Content        string
	Position       int64
	CreatedAt      time.Time
}

// CanonicalPair orders two user ids so that the same unordered pair always
// produces the same key.
func CanonicalPair(a, b string) (low, high string) {
	if a <= b {
		return a, b
	}
	return b, a
}

// UserStore persists registered users
type UserStore interface {
	CreateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	ListUsers(ctx context.Context) ([]*User, error)
}

// ConversationStore persists conversation records
type ConversationStore interface {
	// CreateConversation inserts a conversation. Returns ErrDuplicateConversation
	// if a conversation for the same canonical pair already exists.
	CreateConversation(ctx context.Context, conv *Conversation) error
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	GetConversationByPair(ctx context.Context, userA, userB string) (*Conversation, error)
	ListConversationsForUser(ctx context.Context, userID string) ([]*Conversation, error)
}

// MessageStore persists conversation messages
type MessageStore interface {
	// AppendMessage assigns the next position in msg.ConversationID and inserts
	// msg in one transaction. msg.Position is set on success.
	AppendMessage(ctx context.Context, msg *Message) error
	// ListMessages returns messages with position > afterPosition in ascending
	// position order. A limit <= 0 returns all of them.
	ListMessages(ctx context.Context, conversationID string, afterPosition int64, limit int) ([]*Message, error)
}

// Store is the full persistence surface used by the gateway
type Store interface {
	UserStore
	ConversationStore
	MessageStore

	Ping(ctx context.Context) error
	Close() error
}
