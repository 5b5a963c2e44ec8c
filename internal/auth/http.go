// ABOUTME: HTTP middleware for JWT authentication on API and WebSocket endpoints
// ABOUTME: Resolves the bearer token to a stored user and adds it to the request context

package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/nexial/nexial-gateway/internal/store"
)

// UserLookup resolves a verified user ID to the stored user
type UserLookup interface {
	GetUser(ctx context.Context, id string) (*store.User, error)
}

// extractBearerToken extracts a bearer token from the Authorization header.
// Returns the token and an error message (empty if successful).
func extractBearerToken(authHeader string) (string, string) {
	if authHeader == "" {
		return "", "missing authorization header"
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", "invalid authorization header format"
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == "" {
		return "", "empty token"
	}
	return token, ""
}

// TokenFromRequest returns the bearer token from the Authorization header or,
// when allowQuery is set, the "token" query parameter. Browsers cannot set
// headers on WebSocket upgrades, so the socket endpoint allows the query form.
func TokenFromRequest(r *http.Request, allowQuery bool) (string, string) {
	token, errMsg := extractBearerToken(r.Header.Get("Authorization"))
	if errMsg == "" {
		return token, ""
	}
	if allowQuery {
		if q := r.URL.Query().Get("token"); q != "" {
			return q, ""
		}
	}
	return "", errMsg
}

// Authenticate verifies token and loads the user it names.
func Authenticate(ctx context.Context, users UserLookup, verifier TokenVerifier, token string) (*AuthContext, error) {
	userID, err := verifier.Verify(token)
	if err != nil {
		return nil, err
	}

	user, err := users.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}

	return &AuthContext{
		UserID:      user.ID,
		Username:    user.Username,
		DisplayName: user.DisplayName,
	}, nil
}

// HTTPAuthMiddleware creates an HTTP middleware that extracts and validates JWT tokens.
// On success it adds an AuthContext to the request context; otherwise it
// responds 401 and the handler never runs.
func HTTPAuthMiddleware(users UserLookup, verifier TokenVerifier, allowQuery bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, errMsg := TokenFromRequest(r, allowQuery)
			if errMsg != "" {
				writeUnauthorized(w, errMsg)
				return
			}

			authCtx, err := Authenticate(r.Context(), users, verifier, token)
			switch {
			case errors.Is(err, ErrExpiredToken):
				writeUnauthorized(w, "token expired")
				return
			case errors.Is(err, ErrInvalidToken), errors.Is(err, ErrMissingClaim):
				writeUnauthorized(w, "invalid token")
				return
			case err != nil:
				http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithAuth(r.Context(), authCtx)))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}
