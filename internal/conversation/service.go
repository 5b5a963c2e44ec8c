// ABOUTME: Conversation service: the single send pipeline shared by HTTP and WebSocket
// ABOUTME: Resolve conversation, append to the ledger, then hand off to live delivery

package conversation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nexial/nexial-gateway/internal/delivery"
	"github.com/nexial/nexial-gateway/internal/store"
)

// UserDirectory is what the service needs to know about users
type UserDirectory interface {
	GetUser(ctx context.Context, id string) (*store.User, error)
	ListUsers(ctx context.Context) ([]*store.User, error)
}

// Deliverer pushes a persisted message to its receiver
type Deliverer interface {
	Deliver(ctx context.Context, conv *store.Conversation, msg *store.Message) delivery.Outcome
}

// Service composes the registry, ledger and delivery router.
type Service struct {
	users     UserDirectory
	registry  *Registry
	ledger    *Ledger
	deliverer Deliverer
	logger    *slog.Logger
}

// New creates a Service. Pass nil logger for default.
func New(users UserDirectory, registry *Registry, ledger *Ledger, deliverer Deliverer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		users:     users,
		registry:  registry,
		ledger:    ledger,
		deliverer: deliverer,
		logger:    logger.With("component", "conversation"),
	}
}

// SendRequest identifies who is sending what to whom. Exactly one of
// ReceiverID or ConversationID selects the target.
type SendRequest struct {
	SenderID       string
	ReceiverID     string
	ConversationID string
	Content        string
}

// SendResult is the persisted message plus how live delivery went.
type SendResult struct {
	Conversation *store.Conversation
	Message      *store.Message
	Delivery     delivery.Outcome
}

// SendMessage persists the message and then attempts live delivery.
//
// Record first, then deliver: nothing is pushed unless the append succeeded,
// and a failed push never undoes the append.
func (s *Service) SendMessage(ctx context.Context, req *SendRequest) (*SendResult, error) {
	if req.SenderID == "" {
		return nil, invalidArgument("sender is required")
	}
	if err := s.ledger.ValidateContent(req.Content); err != nil {
		return nil, err
	}

	conv, err := s.resolveTarget(ctx, req)
	if err != nil {
		return nil, err
	}

	msg, err := s.ledger.Append(ctx, conv.ID, req.SenderID, req.Content)
	if err != nil {
		return nil, err
	}

	outcome := s.deliverer.Deliver(ctx, conv, msg)

	s.logger.Info("message sent",
		"conversation_id", conv.ID,
		"message_id", msg.ID,
		"sender_id", msg.SenderID,
		"position", msg.Position,
		"delivery", outcome.String())

	return &SendResult{Conversation: conv, Message: msg, Delivery: outcome}, nil
}

func (s *Service) resolveTarget(ctx context.Context, req *SendRequest) (*store.Conversation, error) {
	switch {
	case req.ConversationID != "" && req.ReceiverID != "":
		return nil, invalidArgument("specify either receiver_id or conversation_id, not both")

	case req.ConversationID != "":
		conv, err := s.registry.Get(ctx, req.ConversationID)
		if err != nil {
			return nil, err
		}
		if !conv.HasParticipant(req.SenderID) {
			return nil, fmt.Errorf("%w: not a participant in this conversation", ErrPermissionDenied)
		}
		return conv, nil

	case req.ReceiverID != "":
		if req.ReceiverID == req.SenderID {
			return nil, invalidArgument("cannot send a message to yourself")
		}
		if err := s.requireUser(ctx, req.ReceiverID); err != nil {
			return nil, err
		}
		return s.registry.ResolveOrCreate(ctx, req.SenderID, req.ReceiverID)

	default:
		return nil, invalidArgument("receiver_id or conversation_id is required")
	}
}

// History returns the full conversation between userID and otherUserID,
// oldest first, creating an empty conversation if none exists yet.
func (s *Service) History(ctx context.Context, userID, otherUserID string) (*store.Conversation, []*store.Message, error) {
	return s.HistoryAfter(ctx, userID, otherUserID, 0, 0)
}

// HistoryAfter is History starting after a known position, bounded by limit.
func (s *Service) HistoryAfter(ctx context.Context, userID, otherUserID string, afterPosition int64, limit int) (*store.Conversation, []*store.Message, error) {
	if userID == otherUserID {
		return nil, nil, invalidArgument("cannot load a conversation with yourself")
	}
	if err := s.requireUser(ctx, otherUserID); err != nil {
		return nil, nil, err
	}

	conv, err := s.registry.ResolveOrCreate(ctx, userID, otherUserID)
	if err != nil {
		return nil, nil, err
	}

	msgs, err := s.ledger.ListAfter(ctx, conv.ID, afterPosition, limit)
	if err != nil {
		return nil, nil, err
	}
	return conv, msgs, nil
}

// Contact is another user as seen from the requesting user.
type Contact struct {
	User            *store.User
	ConversationID  string
	HasConversation bool
}

// Contacts lists every other registered user. Users the caller already has a
// conversation with carry its id.
func (s *Service) Contacts(ctx context.Context, userID string) ([]Contact, error) {
	users, err := s.users.ListUsers(ctx)
	if err != nil {
		return nil, storageError("listing users", err)
	}

	convs, err := s.registry.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	byCounterpart := make(map[string]string, len(convs))
	for _, c := range convs {
		byCounterpart[c.Counterpart(userID)] = c.ID
	}

	contacts := make([]Contact, 0, len(users))
	for _, u := range users {
		if u.ID == userID {
			continue
		}
		convID, ok := byCounterpart[u.ID]
		contacts = append(contacts, Contact{User: u, ConversationID: convID, HasConversation: ok})
	}
	return contacts, nil
}

func (s *Service) requireUser(ctx context.Context, id string) error {
	if id == "" {
		return invalidArgument("user id is required")
	}
	if _, err := s.users.GetUser(ctx, id); err != nil {
		return storageError("user "+id, err)
	}
	return nil
}
