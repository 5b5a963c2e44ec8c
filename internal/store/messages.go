// ABOUTME: Message ledger persistence for SQLiteStore
// ABOUTME: Appends assign per-conversation positions inside a single transaction

package store

import (
	"context"
	"fmt"
)

// AppendMessage assigns the next position for msg.ConversationID and inserts
// the message. The read of the current maximum and the insert share one
// transaction, and the (conversation_id, position) unique index rejects any
// second writer that slipped past it.
func (s *SQLiteStore) AppendMessage(ctx context.Context, msg *Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning append: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var next int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(position), 0) + 1 FROM messages WHERE conversation_id = ?`,
		msg.ConversationID,
	).Scan(&next)
	if err != nil {
		return fmt.Errorf("reading next position: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, sender_id, content, position, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		msg.ID,
		msg.ConversationID,
		msg.SenderID,
		msg.Content,
		next,
		msg.CreatedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing append: %w", err)
	}

	msg.Position = next
	s.logger.Debug("appended message", "id", msg.ID, "conversation_id", msg.ConversationID, "position", next)
	return nil
}

// ListMessages returns messages in ascending position order (oldest first),
// starting after afterPosition. If limit is 0 or negative, all remaining
// messages are returned.
func (s *SQLiteStore) ListMessages(ctx context.Context, conversationID string, afterPosition int64, limit int) ([]*Message, error) {
	query := `
		SELECT id, conversation_id, sender_id, content, position, created_at
		FROM messages
		WHERE conversation_id = ? AND position > ?
		ORDER BY position ASC
	`
	args := []any{conversationID, afterPosition}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		var msg Message
		var createdAtStr string

		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.Content, &msg.Position, &createdAtStr); err != nil {
			return nil, fmt.Errorf("scanning message row: %w", err)
		}
		if msg.CreatedAt, err = parseTime("message created_at", createdAtStr); err != nil {
			return nil, err
		}

		messages = append(messages, &msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating message rows: %w", err)
	}

	return messages, nil
}
