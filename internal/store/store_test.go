package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestStore creates a temporary SQLite store for testing.
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)

	t.Cleanup(func() {
		store.Close()
	})

	return store
}

// seedUser inserts a user with the given username and returns it.
func seedUser(t *testing.T, s UserStore, username string) *User {
	t.Helper()
	u := &User{
		ID:           uuid.New().String(),
		Username:     username,
		DisplayName:  username,
		PasswordHash: "hash",
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, s.CreateUser(context.Background(), u))
	return u
}

func TestStore_CreateAndGetUser(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	alice := seedUser(t, store, "alice")

	got, err := store.GetUser(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)
	assert.Equal(t, "alice", got.DisplayName)
	assert.Equal(t, "hash", got.PasswordHash)
	assert.WithinDuration(t, alice.CreatedAt, got.CreatedAt, time.Millisecond)

	byName, err := store.GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, byName.ID)
}

func TestStore_GetUser_NotFound(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.GetUser(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.GetUserByUsername(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_CreateUser_DuplicateUsername(t *testing.T) {
	store := setupTestStore(t)
	seedUser(t, store, "alice")

	err := store.CreateUser(context.Background(), &User{
		ID:        uuid.New().String(),
		Username:  "alice",
		CreatedAt: time.Now().UTC(),
	})
	assert.ErrorIs(t, err, ErrUsernameTaken)
}

func TestStore_ListUsers_OrderedByUsername(t *testing.T) {
	store := setupTestStore(t)
	seedUser(t, store, "carol")
	seedUser(t, store, "alice")
	seedUser(t, store, "bob")

	users, err := store.ListUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 3)
	assert.Equal(t, "alice", users[0].Username)
	assert.Equal(t, "bob", users[1].Username)
	assert.Equal(t, "carol", users[2].Username)
}

func TestStore_CreateConversation_CanonicalOrder(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	a := seedUser(t, store, "alice")
	b := seedUser(t, store, "bob")

	low, high := CanonicalPair(a.ID, b.ID)
	conv := &Conversation{ID: uuid.New().String(), UserA: high, UserB: low, CreatedAt: time.Now().UTC()}
	require.NoError(t, store.CreateConversation(ctx, conv))
	assert.Equal(t, low, conv.UserA)
	assert.Equal(t, high, conv.UserB)

	got, err := store.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, low, got.UserA)
	assert.Equal(t, high, got.UserB)

	// Lookup works in both argument orders
	byPair, err := store.GetConversationByPair(ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, conv.ID, byPair.ID)

	byPair, err = store.GetConversationByPair(ctx, b.ID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, conv.ID, byPair.ID)
}

func TestStore_CreateConversation_DuplicatePair(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	a := seedUser(t, store, "alice")
	b := seedUser(t, store, "bob")

	require.NoError(t, store.CreateConversation(ctx, &Conversation{
		ID: uuid.New().String(), UserA: a.ID, UserB: b.ID, CreatedAt: time.Now().UTC(),
	}))

	// Reversed order is the same pair
	err := store.CreateConversation(ctx, &Conversation{
		ID: uuid.New().String(), UserA: b.ID, UserB: a.ID, CreatedAt: time.Now().UTC(),
	})
	assert.ErrorIs(t, err, ErrDuplicateConversation)
}

func TestStore_GetConversation_NotFound(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.GetConversation(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.GetConversationByPair(context.Background(), "x", "y")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_ListConversationsForUser(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	a := seedUser(t, store, "alice")
	b := seedUser(t, store, "bob")
	c := seedUser(t, store, "carol")

	for _, pair := range [][2]string{{a.ID, b.ID}, {c.ID, a.ID}, {b.ID, c.ID}} {
		require.NoError(t, store.CreateConversation(ctx, &Conversation{
			ID: uuid.New().String(), UserA: pair[0], UserB: pair[1], CreatedAt: time.Now().UTC(),
		}))
	}

	convs, err := store.ListConversationsForUser(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, convs, 2)
	for _, conv := range convs {
		assert.True(t, conv.HasParticipant(a.ID))
	}
}

func TestStore_ListConversationsForUser_OrderedByCreation(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	a := seedUser(t, store, "alice")
	b := seedUser(t, store, "bob")
	c := seedUser(t, store, "carol")

	// A whole second and a half second share a prefix; the later one is
	// inserted first so only created_at can order them.
	base := time.Date(2026, 3, 1, 12, 0, 5, 0, time.UTC)
	later := &Conversation{ID: uuid.New().String(), UserA: a.ID, UserB: c.ID, CreatedAt: base.Add(500 * time.Millisecond)}
	earlier := &Conversation{ID: uuid.New().String(), UserA: a.ID, UserB: b.ID, CreatedAt: base}
	require.NoError(t, store.CreateConversation(ctx, later))
	require.NoError(t, store.CreateConversation(ctx, earlier))

	convs, err := store.ListConversationsForUser(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, convs, 2)
	assert.Equal(t, earlier.ID, convs[0].ID)
	assert.Equal(t, later.ID, convs[1].ID)
	assert.True(t, convs[0].CreatedAt.Equal(base))
	assert.True(t, convs[1].CreatedAt.Equal(base.Add(500*time.Millisecond)))
}

func TestConversation_Counterpart(t *testing.T) {
	conv := &Conversation{UserA: "a", UserB: "b"}

	assert.Equal(t, "b", conv.Counterpart("a"))
	assert.Equal(t, "a", conv.Counterpart("b"))
	assert.Equal(t, "", conv.Counterpart("c"))
	assert.False(t, conv.HasParticipant(""))
}
