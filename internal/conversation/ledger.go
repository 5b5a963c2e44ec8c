// ABOUTME: Message ledger appending and reading a conversation's ordered messages
// ABOUTME: Validates content and participation before anything touches storage

package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/nexial/nexial-gateway/internal/store"
)

// DefaultMaxContentLength is used when the ledger is built with a zero limit.
const DefaultMaxContentLength = 4000

// Ledger owns message persistence for conversations.
type Ledger struct {
	conversations store.ConversationStore
	messages      store.MessageStore
	locks         *keyedMutex
	maxContent    int
	logger        *slog.Logger

	now func() time.Time
}

// NewLedger creates a Ledger. maxContent limits message length in runes; zero
// means DefaultMaxContentLength. Pass nil logger for default.
func NewLedger(conversations store.ConversationStore, messages store.MessageStore, maxContent int, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	if maxContent <= 0 {
		maxContent = DefaultMaxContentLength
	}
	return &Ledger{
		conversations: conversations,
		messages:      messages,
		locks:         newKeyedMutex(),
		maxContent:    maxContent,
		logger:        logger.With("component", "ledger"),
		now:           time.Now,
	}
}

// ValidateContent rejects blank or oversized message bodies.
func (l *Ledger) ValidateContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return invalidArgument("message content cannot be empty")
	}
	if n := utf8.RuneCountInString(content); n > l.maxContent {
		return invalidArgument("message content exceeds %d characters", l.maxContent)
	}
	return nil
}

// Append records a message from senderID in the conversation and returns it
// with its assigned position. Appends to one conversation are serialized;
// different conversations proceed in parallel.
func (l *Ledger) Append(ctx context.Context, conversationID, senderID, content string) (*store.Message, error) {
	if err := l.ValidateContent(content); err != nil {
		return nil, err
	}

	conv, err := l.conversations.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, storageError("conversation "+conversationID, err)
	}
	if !conv.HasParticipant(senderID) {
		l.logger.Warn("rejected append from non-participant",
			"conversation_id", conversationID,
			"sender_id", senderID)
		return nil, fmt.Errorf("%w: sender is not a participant in this conversation", ErrPermissionDenied)
	}

	// Stamped under the lock so created_at never runs backwards against position.
	unlock := l.locks.Lock(conv.ID)
	msg := &store.Message{
		ID:             uuid.New().String(),
		ConversationID: conv.ID,
		SenderID:       senderID,
		Content:        content,
		CreatedAt:      l.now().UTC(),
	}
	err = l.messages.AppendMessage(ctx, msg)
	unlock()
	if err != nil {
		l.logger.Error("append failed", "error", err, "conversation_id", conv.ID)
		return nil, storageError("appending message", err)
	}

	l.logger.Debug("message appended",
		"conversation_id", conv.ID,
		"message_id", msg.ID,
		"position", msg.Position)
	return msg, nil
}

// List returns every message in the conversation, oldest first.
func (l *Ledger) List(ctx context.Context, conversationID string) ([]*store.Message, error) {
	return l.ListAfter(ctx, conversationID, 0, 0)
}

// ListAfter returns up to limit messages positioned after afterPosition,
// oldest first. A limit <= 0 returns everything remaining. Passing the last
// seen position resumes the sequence.
func (l *Ledger) ListAfter(ctx context.Context, conversationID string, afterPosition int64, limit int) ([]*store.Message, error) {
	if afterPosition < 0 {
		return nil, invalidArgument("after position cannot be negative")
	}
	msgs, err := l.messages.ListMessages(ctx, conversationID, afterPosition, limit)
	if err != nil {
		return nil, storageError("listing messages", err)
	}
	if msgs == nil {
		msgs = []*store.Message{}
	}
	return msgs, nil
}
