// ABOUTME: Tests for the HTTP authentication middleware
// ABOUTME: Covers header and query tokens, expired tokens and deleted users

package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexial/nexial-gateway/internal/store"
)

func setupMiddleware(t *testing.T, allowQuery bool) (http.Handler, *JWTVerifier, *store.MockStore, *AuthContext) {
	t.Helper()
	users := store.NewMockStore()
	require.NoError(t, users.CreateUser(context.Background(), &store.User{
		ID: "u-alice", Username: "alice", DisplayName: "Alice",
	}))

	verifier := newTestVerifier(t)
	seen := &AuthContext{}
	handler := HTTPAuthMiddleware(users, verifier, allowQuery)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*seen = *MustFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))
	return handler, verifier, users, seen
}

func TestHTTPAuthMiddleware_ValidBearer(t *testing.T) {
	handler, verifier, _, seen := setupMiddleware(t, false)
	token, err := verifier.Generate("u-alice", time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/chat/contacts", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "u-alice", seen.UserID)
	assert.Equal(t, "alice", seen.Username)
	assert.Equal(t, "Alice", seen.DisplayName)
}

func TestHTTPAuthMiddleware_Rejections(t *testing.T) {
	handler, verifier, _, _ := setupMiddleware(t, false)
	expired, err := verifier.Generate("u-alice", -time.Minute)
	require.NoError(t, err)
	unknownUser, err := verifier.Generate("u-deleted", time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name    string
		header  string
		wantMsg string
	}{
		{"missing header", "", "missing authorization header"},
		{"wrong scheme", "Basic abc", "invalid authorization header format"},
		{"garbage", "Bearer nope", "invalid token"},
		{"expired", "Bearer " + expired, "token expired"},
		{"unknown user", "Bearer " + unknownUser, "invalid token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/chat/contacts", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantMsg)
		})
	}
}

func TestHTTPAuthMiddleware_QueryToken(t *testing.T) {
	token := ""
	{
		_, verifier, _, _ := setupMiddleware(t, false)
		var err error
		token, err = verifier.Generate("u-alice", time.Hour)
		require.NoError(t, err)
	}

	// Query tokens are ignored unless explicitly allowed
	strict, _, _, _ := setupMiddleware(t, false)
	rec := httptest.NewRecorder()
	strict.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws?token="+token, nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	lenient, _, _, seen := setupMiddleware(t, true)
	rec = httptest.NewRecorder()
	lenient.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws?token="+token, nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "u-alice", seen.UserID)
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse battery staple", hash)

	assert.NoError(t, CheckPassword(hash, "correct horse battery staple"))
	assert.ErrorIs(t, CheckPassword(hash, "wrong"), ErrInvalidCredentials)
}
