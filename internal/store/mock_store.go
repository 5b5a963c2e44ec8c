// ABOUTME: Mock Store implementation for testing
// ABOUTME: In-memory maps with optional error injection so tests run without SQLite

package store

import (
	"context"
	"sort"
	"sync"
)

// MockStore is an in-memory Store implementation for testing.
// Setting one of the *Err fields makes the matching operation fail with it.
type MockStore struct {
	mu            sync.RWMutex
	users         map[string]*User         // keyed by user ID
	usernames     map[string]string        // username -> user ID
	conversations map[string]*Conversation // keyed by conversation ID
	pairs         map[string]string        // "low\x00high" -> conversation ID
	messages      map[string][]*Message    // keyed by conversation ID

	AppendErr             error
	ListMessagesErr       error
	CreateConversationErr error
	GetConversationErr    error
	PingErr               error

	appendCalls int
}

// Ensure MockStore implements Store.
var _ Store = (*MockStore)(nil)

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		users:         make(map[string]*User),
		usernames:     make(map[string]string),
		conversations: make(map[string]*Conversation),
		pairs:         make(map[string]string),
		messages:      make(map[string][]*Message),
	}
}

func pairKey(a, b string) string {
	low, high := CanonicalPair(a, b)
	return low + "\x00" + high
}

// CreateUser stores a new user.
func (m *MockStore) CreateUser(ctx context.Context, user *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.usernames[user.Username]; exists {
		return ErrUsernameTaken
	}

	u := *user
	m.users[u.ID] = &u
	m.usernames[u.Username] = u.ID
	return nil
}

// GetUser retrieves a user by ID.
func (m *MockStore) GetUser(ctx context.Context, id string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	result := *u
	return &result, nil
}

// GetUserByUsername retrieves a user by username.
func (m *MockStore) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.usernames[username]
	if !ok {
		return nil, ErrNotFound
	}
	result := *m.users[id]
	return &result, nil
}

// ListUsers returns all users ordered by username.
func (m *MockStore) ListUsers(ctx context.Context) ([]*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	users := make([]*User, 0, len(m.users))
	for _, u := range m.users {
		c := *u
		users = append(users, &c)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, nil
}

// CreateConversation stores a conversation in canonical order.
func (m *MockStore) CreateConversation(ctx context.Context, conv *Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.CreateConversationErr != nil {
		return m.CreateConversationErr
	}

	conv.UserA, conv.UserB = CanonicalPair(conv.UserA, conv.UserB)
	key := pairKey(conv.UserA, conv.UserB)
	if _, exists := m.pairs[key]; exists {
		return ErrDuplicateConversation
	}

	c := *conv
	m.conversations[c.ID] = &c
	m.pairs[key] = c.ID
	return nil
}

// GetConversation retrieves a conversation by ID.
func (m *MockStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.GetConversationErr != nil {
		return nil, m.GetConversationErr
	}

	c, ok := m.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	result := *c
	return &result, nil
}

// GetConversationByPair retrieves a conversation by its participants.
func (m *MockStore) GetConversationByPair(ctx context.Context, userA, userB string) (*Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.GetConversationErr != nil {
		return nil, m.GetConversationErr
	}

	id, ok := m.pairs[pairKey(userA, userB)]
	if !ok {
		return nil, ErrNotFound
	}
	result := *m.conversations[id]
	return &result, nil
}

// ListConversationsForUser returns the user's conversations, oldest first.
func (m *MockStore) ListConversationsForUser(ctx context.Context, userID string) ([]*Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var convs []*Conversation
	for _, c := range m.conversations {
		if c.HasParticipant(userID) {
			cp := *c
			convs = append(convs, &cp)
		}
	}
	sort.Slice(convs, func(i, j int) bool { return convs[i].CreatedAt.Before(convs[j].CreatedAt) })
	return convs, nil
}

// AppendMessage assigns the next position and stores the message.
func (m *MockStore) AppendMessage(ctx context.Context, msg *Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.appendCalls++
	if m.AppendErr != nil {
		return m.AppendErr
	}
	if _, ok := m.conversations[msg.ConversationID]; !ok {
		return ErrNotFound
	}

	msg.Position = int64(len(m.messages[msg.ConversationID]) + 1)
	c := *msg
	m.messages[msg.ConversationID] = append(m.messages[msg.ConversationID], &c)
	return nil
}

// ListMessages returns messages after afterPosition in position order.
func (m *MockStore) ListMessages(ctx context.Context, conversationID string, afterPosition int64, limit int) ([]*Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.ListMessagesErr != nil {
		return nil, m.ListMessagesErr
	}

	var out []*Message
	for _, msg := range m.messages[conversationID] {
		if msg.Position <= afterPosition {
			continue
		}
		c := *msg
		out = append(out, &c)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// AppendCalls reports how many times AppendMessage was invoked.
func (m *MockStore) AppendCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.appendCalls
}

// Ping returns PingErr.
func (m *MockStore) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.PingErr
}

// Close is a no-op.
func (m *MockStore) Close() error {
	return nil
}
