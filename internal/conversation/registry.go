// ABOUTME: Conversation registry resolving an unordered user pair to its single conversation
// ABOUTME: Check-then-create runs under a per-pair lock and falls back to a re-read on duplicates

package conversation

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nexial/nexial-gateway/internal/store"
)

// Registry resolves user pairs to conversations, creating them on first use.
type Registry struct {
	store  store.ConversationStore
	locks  *keyedMutex
	logger *slog.Logger
}

// NewRegistry creates a Registry. Pass nil logger for default.
func NewRegistry(s store.ConversationStore, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		store:  s,
		locks:  newKeyedMutex(),
		logger: logger.With("component", "registry"),
	}
}

// ResolveOrCreate returns the conversation between userA and userB, creating
// it if the pair has never talked. Argument order does not matter.
func (r *Registry) ResolveOrCreate(ctx context.Context, userA, userB string) (*store.Conversation, error) {
	if userA == "" || userB == "" {
		return nil, invalidArgument("both participants are required")
	}
	if userA == userB {
		return nil, invalidArgument("cannot start a conversation with yourself")
	}

	low, high := store.CanonicalPair(userA, userB)
	unlock := r.locks.Lock(low + "\x00" + high)
	defer unlock()

	conv, err := r.store.GetConversationByPair(ctx, low, high)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, storageError("looking up conversation", err)
	}

	conv = &store.Conversation{
		ID:        uuid.New().String(),
		UserA:     low,
		UserB:     high,
		CreatedAt: time.Now().UTC(),
	}
	if err := r.store.CreateConversation(ctx, conv); err != nil {
		// Another process sharing the database won the insert
		if errors.Is(err, store.ErrDuplicateConversation) {
			existing, lookupErr := r.store.GetConversationByPair(ctx, low, high)
			if lookupErr == nil {
				r.logger.Debug("found existing conversation after race", "conversation_id", existing.ID)
				return existing, nil
			}
			r.logger.Error("retry lookup failed after duplicate error", "lookup_error", lookupErr)
			return nil, storageError("re-reading conversation", lookupErr)
		}
		return nil, storageError("creating conversation", err)
	}

	r.logger.Info("conversation created", "conversation_id", conv.ID, "user_low", low, "user_high", high)
	return conv, nil
}

// Get returns a conversation by id.
func (r *Registry) Get(ctx context.Context, id string) (*store.Conversation, error) {
	if id == "" {
		return nil, invalidArgument("conversation id is required")
	}
	conv, err := r.store.GetConversation(ctx, id)
	if err != nil {
		return nil, storageError("conversation "+id, err)
	}
	return conv, nil
}

// ListForUser returns every conversation userID participates in.
func (r *Registry) ListForUser(ctx context.Context, userID string) ([]*store.Conversation, error) {
	convs, err := r.store.ListConversationsForUser(ctx, userID)
	if err != nil {
		return nil, storageError("listing conversations", err)
	}
	return convs, nil
}
