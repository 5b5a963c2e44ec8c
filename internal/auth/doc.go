// Package auth authenticates chat users.
//
// Users log in with a username and password (bcrypt hashes, see HashPassword
// and CheckPassword) and receive an HS256 JWT whose "sub" claim is their user
// ID. Every other request presents that token:
//
//	Authorization: Bearer <token>
//
// The WebSocket endpoint also accepts ?token=<token> because browsers cannot
// set headers on an upgrade request.
//
// HTTPAuthMiddleware verifies the token, loads the user and stores an
// AuthContext on the request context. Handlers read it back with FromContext.
// Tokens for users that no longer exist are rejected as invalid.
package auth
