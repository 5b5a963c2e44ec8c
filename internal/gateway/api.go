// ABOUTME: HTTP API handlers for accounts, contacts, history, sending and the assistant
// ABOUTME: JSON in and out; service errors are mapped to status codes in one place

package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/nexial/nexial-gateway/internal/auth"
	"github.com/nexial/nexial-gateway/internal/conversation"
	"github.com/nexial/nexial-gateway/internal/store"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report json field names so errors match what the client sent.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// RegisterRequest is the JSON request body for POST /auth/register.
type RegisterRequest struct {
	Username    string `json:"username" validate:"required,min=3,max=50,alphanum"`
	Password    string `json:"password" validate:"required,min=8,max=72"`
	DisplayName string `json:"display_name" validate:"max=100"`
}

// LoginRequest is the JSON request body for POST /auth/login.
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// SendRequest is the JSON request body for POST /chat/send.
// Exactly one of ReceiverID or ConversationID must be set.
type SendRequest struct {
	ReceiverID     string `json:"receiver_id" validate:"required_without=ConversationID,excluded_with=ConversationID"`
	ConversationID string `json:"conversation_id" validate:"required_without=ReceiverID"`
	Content        string `json:"content" validate:"required"`
}

// AssistantRequest is the JSON request body for POST /chat/assistant.
type AssistantRequest struct {
	Message string `json:"message" validate:"required,max=4000"`
}

// UserResponse is the public view of a user.
type UserResponse struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
}

// TokenResponse is returned by register and login.
type TokenResponse struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	ExpiresAt   string       `json:"expires_at"`
	User        UserResponse `json:"user"`
}

// ContactResponse is one entry of GET /chat/contacts.
type ContactResponse struct {
	UserResponse
	ConversationID  string `json:"conversation_id,omitempty"`
	HasConversation bool   `json:"has_conversation"`
}

// MessageResponse is a persisted message as returned to clients.
type MessageResponse struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
	SenderID       string `json:"sender_id"`
	ReceiverID     string `json:"receiver_id"`
	Content        string `json:"content"`
	Position       int64  `json:"position"`
	Timestamp      string `json:"timestamp"`
}

// HistoryResponse is the JSON response for GET /chat/messages/{otherUserID}.
type HistoryResponse struct {
	ConversationID string            `json:"conversation_id"`
	Messages       []MessageResponse `json:"messages"`
}

// AssistantResponse is the JSON response for POST /chat/assistant.
type AssistantResponse struct {
	Response string `json:"response"`
}

func toUserResponse(u *store.User) UserResponse {
	return UserResponse{ID: u.ID, Username: u.Username, DisplayName: u.DisplayName}
}

func toMessageResponse(conv *store.Conversation, m *store.Message) MessageResponse {
	return MessageResponse{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		ReceiverID:     conv.Counterpart(m.SenderID),
		Content:        m.Content,
		Position:       m.Position,
		Timestamp:      m.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// handleRegister handles POST /auth/register.
func (g *Gateway) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !g.decodeAndValidate(w, r, &req) {
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		g.logger.Error("hashing password", "error", err)
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	displayName := req.DisplayName
	if displayName == "" {
		displayName = req.Username
	}
	user := &store.User{
		ID:           uuid.New().String(),
		Username:     req.Username,
		DisplayName:  displayName,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := g.store.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, store.ErrUsernameTaken) {
			respondError(w, http.StatusConflict, "username already taken")
			return
		}
		g.logger.Error("creating user", "error", err)
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	g.logger.Info("user registered", "user_id", user.ID, "username", user.Username)
	g.respondToken(w, http.StatusCreated, user)
}

// handleLogin handles POST /auth/login.
func (g *Gateway) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !g.decodeAndValidate(w, r, &req) {
		return
	}

	user, err := g.store.GetUserByUsername(r.Context(), req.Username)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		g.logger.Error("loading user", "error", err)
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if user == nil || auth.CheckPassword(user.PasswordHash, req.Password) != nil {
		w.Header().Set("WWW-Authenticate", "Bearer")
		respondError(w, http.StatusUnauthorized, auth.ErrInvalidCredentials.Error())
		return
	}

	g.respondToken(w, http.StatusOK, user)
}

func (g *Gateway) respondToken(w http.ResponseWriter, status int, user *store.User) {
	ttl := g.config.Auth.TokenTTL
	token, err := g.verifier.Generate(user.ID, ttl)
	if err != nil {
		g.logger.Error("issuing token", "error", err)
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	respondJSON(w, status, TokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresAt:   time.Now().Add(ttl).UTC().Format(time.RFC3339),
		User:        toUserResponse(user),
	})
}

// handleMe handles GET /auth/me.
func (g *Gateway) handleMe(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.MustFromContext(r.Context())
	respondJSON(w, http.StatusOK, UserResponse{
		ID:          authCtx.UserID,
		Username:    authCtx.Username,
		DisplayName: authCtx.DisplayName,
	})
}

// handleContacts handles GET /chat/contacts.
func (g *Gateway) handleContacts(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.MustFromContext(r.Context())

	contacts, err := g.conversation.Contacts(r.Context(), authCtx.UserID)
	if err != nil {
		g.writeServiceError(w, err)
		return
	}

	response := make([]ContactResponse, 0, len(contacts))
	for _, c := range contacts {
		response = append(response, ContactResponse{
			UserResponse:    toUserResponse(c.User),
			ConversationID:  c.ConversationID,
			HasConversation: c.HasConversation,
		})
	}
	respondJSON(w, http.StatusOK, response)
}

// handleMessages handles GET /chat/messages/{otherUserID}.
// Optional ?after=N resumes after a known position; ?limit=M bounds the page
// and is capped by chat.history_limit.
func (g *Gateway) handleMessages(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.MustFromContext(r.Context())
	otherUserID := chi.URLParam(r, "otherUserID")

	after, err := queryInt(r, "after", 0)
	if err != nil || after < 0 {
		respondError(w, http.StatusBadRequest, "after must be a non-negative integer")
		return
	}
	limit, err := queryInt(r, "limit", 0)
	if err != nil || limit < 0 {
		respondError(w, http.StatusBadRequest, "limit must be a non-negative integer")
		return
	}
	if capLimit := int64(g.config.Chat.HistoryLimit); capLimit > 0 && (limit == 0 || limit > capLimit) {
		limit = capLimit
	}

	conv, msgs, err := g.conversation.HistoryAfter(r.Context(), authCtx.UserID, otherUserID, after, int(limit))
	if err != nil {
		g.writeServiceError(w, err)
		return
	}

	out := HistoryResponse{
		ConversationID: conv.ID,
		Messages:       make([]MessageResponse, 0, len(msgs)),
	}
	for _, m := range msgs {
		out.Messages = append(out.Messages, toMessageResponse(conv, m))
	}
	respondJSON(w, http.StatusOK, out)
}

// handleSend handles POST /chat/send. It runs the same pipeline as a
// send_message WebSocket frame.
func (g *Gateway) handleSend(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.MustFromContext(r.Context())

	var req SendRequest
	if !g.decodeAndValidate(w, r, &req) {
		return
	}

	result, err := g.conversation.SendMessage(r.Context(), &conversation.SendRequest{
		SenderID:       authCtx.UserID,
		ReceiverID:     req.ReceiverID,
		ConversationID: req.ConversationID,
		Content:        req.Content,
	})
	if err != nil {
		g.writeServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, toMessageResponse(result.Conversation, result.Message))
}

// handleAssistant handles POST /chat/assistant. Upstream failures come back
// as a normal reply carrying a fallback message.
func (g *Gateway) handleAssistant(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.MustFromContext(r.Context())

	var req AssistantRequest
	if !g.decodeAndValidate(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		respondError(w, http.StatusBadRequest, "message is required")
		return
	}

	reply := g.assistant.Complete(r.Context(), req.Message)
	g.logger.Debug("assistant request", "user_id", authCtx.UserID)
	respondJSON(w, http.StatusOK, AssistantResponse{Response: reply})
}

// writeServiceError maps conversation errors to HTTP statuses. Storage
// failures are logged and reported without detail.
func (g *Gateway) writeServiceError(w http.ResponseWriter, err error) {
	status, msg := classifyError(err)
	if status == http.StatusInternalServerError {
		g.logger.Error("request failed", "error", err)
	}
	respondError(w, status, msg)
}

// classifyError returns the status code and client-safe message for err.
func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, conversation.ErrInvalidArgument):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, conversation.ErrPermissionDenied):
		return http.StatusForbidden, err.Error()
	case errors.Is(err, conversation.ErrNotFound):
		return http.StatusNotFound, err.Error()
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

// decodeAndValidate decodes a JSON body into dst and validates it, writing a
// 400 response and returning false on failure.
func (g *Gateway) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		respondError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

// validationMessage turns the first validator failure into a short message.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid request"
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "required_without":
		return "receiver_id or conversation_id is required"
	case "excluded_with":
		return "specify either receiver_id or conversation_id, not both"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	case "alphanum":
		return fe.Field() + " must contain only letters and digits"
	default:
		return fe.Field() + " is invalid"
	}
}

func queryInt(r *http.Request, key string, def int64) (int64, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
