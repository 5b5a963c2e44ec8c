// ABOUTME: Delivery router that pushes a persisted message to the receiver's live session
// ABOUTME: Best effort: offline receivers and send failures are logged, never surfaced

package delivery

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nexial/nexial-gateway/internal/session"
	"github.com/nexial/nexial-gateway/internal/store"
)

// EventNewMessage is the push event type for a newly persisted message.
const EventNewMessage = "new_message"

// Outcome reports what happened to a delivery attempt.
type Outcome int

const (
	// Delivered means the payload was queued on the receiver's connection.
	Delivered Outcome = iota
	// Offline means the receiver had no live session.
	Offline
	// Failed means the receiver was online but the push could not be queued.
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Delivered:
		return "delivered"
	case Offline:
		return "offline"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// SessionLookup resolves a user to their live connection.
type SessionLookup interface {
	Lookup(userID string) (session.Conn, bool)
}

// MessageEvent is the JSON payload pushed to the receiver.
type MessageEvent struct {
	Type           string    `json:"type"`
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Content        string    `json:"content"`
	SenderID       string    `json:"sender_id"`
	ReceiverID     string    `json:"receiver_id"`
	Position       int64     `json:"position"`
	Timestamp      time.Time `json:"timestamp"`
}

// NewMessageEvent builds the push payload for msg in conv.
func NewMessageEvent(conv *store.Conversation, msg *store.Message) MessageEvent {
	return MessageEvent{
		Type:           EventNewMessage,
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		Content:        msg.Content,
		SenderID:       msg.SenderID,
		ReceiverID:     conv.Counterpart(msg.SenderID),
		Position:       msg.Position,
		Timestamp:      msg.CreatedAt,
	}
}

// Router pushes messages to exactly one connection: the receiver's.
type Router struct {
	sessions SessionLookup
	logger   *slog.Logger
}

// NewRouter creates a Router over the given session lookup. Pass nil logger for default.
func NewRouter(sessions SessionLookup, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		sessions: sessions,
		logger:   logger.With("component", "delivery"),
	}
}

// Deliver pushes msg to the participant of conv who did not send it. It never
// blocks on the network and never returns an error; the Outcome is for
// logging and tests.
func (r *Router) Deliver(ctx context.Context, conv *store.Conversation, msg *store.Message) Outcome {
	receiverID := conv.Counterpart(msg.SenderID)
	if receiverID == "" {
		r.logger.Warn("sender is not a participant, not delivering",
			"conversation_id", conv.ID,
			"sender_id", msg.SenderID)
		return Failed
	}

	conn, ok := r.sessions.Lookup(receiverID)
	if !ok {
		r.logger.Debug("receiver offline", "receiver_id", receiverID, "message_id", msg.ID)
		return Offline
	}

	payload, err := json.Marshal(NewMessageEvent(conv, msg))
	if err != nil {
		r.logger.Error("encoding message event", "error", err, "message_id", msg.ID)
		return Failed
	}

	if err := conn.Send(payload); err != nil {
		r.logger.Warn("live delivery failed",
			"error", err,
			"receiver_id", receiverID,
			"conn_id", conn.ID(),
			"message_id", msg.ID)
		return Failed
	}

	r.logger.Debug("message delivered",
		"receiver_id", receiverID,
		"conn_id", conn.ID(),
		"message_id", msg.ID)
	return Delivered
}
