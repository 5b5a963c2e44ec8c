// ABOUTME: Conversation persistence for SQLiteStore
// ABOUTME: Conversations are keyed by the canonical (user_low, user_high) pair

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// CreateConversation inserts a conversation record. The participants are
// stored in canonical order regardless of how the caller filled UserA/UserB,
// and conv is updated to reflect that order.
// Returns ErrDuplicateConversation if the pair already has a conversation.
func (s *SQLiteStore) CreateConversation(ctx context.Context, conv *Conversation) error {
	conv.UserA, conv.UserB = CanonicalPair(conv.UserA, conv.UserB)

	query := `
		INSERT INTO conversations (id, user_low, user_high, created_at)
		VALUES (?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		conv.ID,
		conv.UserA,
		conv.UserB,
		conv.CreatedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicateConversation
		}
		return fmt.Errorf("inserting conversation: %w", err)
	}

	s.logger.Debug("created conversation", "id", conv.ID, "user_low", conv.UserA, "user_high", conv.UserB)
	return nil
}

// GetConversation retrieves a conversation by ID.
// Returns ErrNotFound if the conversation doesn't exist.
func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	query := `
		SELECT id, user_low, user_high, created_at
		FROM conversations
		WHERE id = ?
	`
	return scanConversation(s.db.QueryRowContext(ctx, query, id))
}

// GetConversationByPair retrieves the conversation between two users in
// either argument order. Uses the idx_conversations_pair index.
// Returns ErrNotFound if the pair has never talked.
func (s *SQLiteStore) GetConversationByPair(ctx context.Context, userA, userB string) (*Conversation, error) {
	low, high := CanonicalPair(userA, userB)
	query := `
		SELECT id, user_low, user_high, created_at
		FROM conversations
		WHERE user_low = ? AND user_high = ?
	`
	return scanConversation(s.db.QueryRowContext(ctx, query, low, high))
}

// ListConversationsForUser returns every conversation userID participates in,
// oldest first.
func (s *SQLiteStore) ListConversationsForUser(ctx context.Context, userID string) ([]*Conversation, error) {
	query := `
		SELECT id, user_low, user_high, created_at
		FROM conversations
		WHERE user_low = ? OR user_high = ?
		ORDER BY created_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("querying conversations: %w", err)
	}
	defer rows.Close()

	var convs []*Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		convs = append(convs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating conversation rows: %w", err)
	}

	return convs, nil
}

func scanConversation(row rowScanner) (*Conversation, error) {
	var c Conversation
	var createdAtStr string

	err := row.Scan(&c.ID, &c.UserA, &c.UserB, &createdAtStr)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning conversation: %w", err)
	}

	if c.CreatedAt, err = parseTime("created_at", createdAtStr); err != nil {
		return nil, err
	}
	return &c, nil
}
