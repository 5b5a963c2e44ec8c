// ABOUTME: WebSocket endpoint: authenticate, bind the live session, run the read loop
// ABOUTME: send_message frames go through the same conversation pipeline as POST /chat/send

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/nexial/nexial-gateway/internal/auth"
	"github.com/nexial/nexial-gateway/internal/conversation"
	"github.com/nexial/nexial-gateway/internal/dedupe"
	"github.com/nexial/nexial-gateway/internal/session"
)

// Event types exchanged over the socket. new_message is defined by the
// delivery package.
const (
	EventSendMessage = "send_message"
	EventMessageSent = "message_sent"
	EventError       = "error"
)

// ClientFrame is a client to server WebSocket frame.
type ClientFrame struct {
	Type           string `json:"type"`
	ID             string `json:"id,omitempty"`
	ReceiverID     string `json:"receiver_id,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	Content        string `json:"content"`
}

// SentEvent acknowledges a send_message frame to its sender.
type SentEvent struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Message   MessageResponse `json:"message"`
}

// ErrorEvent reports a rejected frame.
type ErrorEvent struct {
	Type      string `json:"type"`
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// handleWebSocket handles GET /ws. The credential is checked before the
// upgrade so a rejected client never gets a socket.
func (g *Gateway) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	token, errMsg := auth.TokenFromRequest(r, true)
	if errMsg != "" {
		w.Header().Set("WWW-Authenticate", "Bearer")
		respondError(w, http.StatusUnauthorized, errMsg)
		return
	}

	authCtx, err := auth.Authenticate(r.Context(), g.store, g.verifier, token)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) || errors.Is(err, auth.ErrMissingClaim) {
			w.Header().Set("WWW-Authenticate", "Bearer")
			respondError(w, http.StatusUnauthorized, err.Error())
			return
		}
		g.logger.Error("authenticating websocket", "error", err)
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written the HTTP error.
		g.logger.Debug("websocket upgrade failed", "error", err, "user_id", authCtx.UserID)
		return
	}

	conn := session.NewConnection(authCtx.UserID, ws, session.Options{
		WriteWait:  g.config.WebSocket.WriteWait,
		PongWait:   g.config.WebSocket.PongWait,
		SendBuffer: g.config.WebSocket.SendBuffer,
	})
	conn.Start()

	if prev := g.sessions.Bind(conn); prev != nil {
		prev.Close(session.CloseSessionReplaced, "session replaced")
	}
	g.logger.Info("websocket connected", "user_id", authCtx.UserID, "conn_id", conn.ID())

	defer func() {
		g.sessions.Unbind(conn.ID())
		conn.Close(websocket.CloseNormalClosure, "")
		g.logger.Info("websocket disconnected", "user_id", authCtx.UserID, "conn_id", conn.ID())
	}()

	// The request context is not canceled when a hijacked socket drops.
	ctx := context.WithoutCancel(auth.WithAuth(r.Context(), authCtx))
	err = conn.ReadLoop(func(payload []byte) {
		g.handleFrame(ctx, conn, payload)
	})
	if err != nil {
		g.logger.Debug("websocket read ended", "error", err, "conn_id", conn.ID())
	}
}

// handleFrame processes one inbound frame. Replies go back on conn only.
func (g *Gateway) handleFrame(ctx context.Context, conn *session.Connection, payload []byte) {
	var frame ClientFrame
	if err := json.Unmarshal(payload, &frame); err != nil {
		g.sendEvent(conn, ErrorEvent{Type: EventError, Error: "invalid JSON frame"})
		return
	}
	if frame.Type != EventSendMessage {
		g.sendEvent(conn, ErrorEvent{Type: EventError, Error: "unknown event type: " + frame.Type, RequestID: frame.ID})
		return
	}

	var key string
	if frame.ID != "" {
		key = dedupe.Key(conn.UserID(), frame.ID)
		if ack, ok := g.sent.Get(key); ok {
			g.logger.Debug("duplicate send_message, re-acknowledging", "user_id", conn.UserID(), "request_id", frame.ID)
			_ = conn.Send(ack)
			return
		}
	}

	result, err := g.conversation.SendMessage(ctx, &conversation.SendRequest{
		SenderID:       conn.UserID(),
		ReceiverID:     frame.ReceiverID,
		ConversationID: frame.ConversationID,
		Content:        frame.Content,
	})
	if err != nil {
		status, msg := classifyError(err)
		if status == http.StatusInternalServerError {
			g.logger.Error("websocket send failed", "error", err, "user_id", conn.UserID())
		}
		g.sendEvent(conn, ErrorEvent{Type: EventError, Error: msg, RequestID: frame.ID})
		return
	}

	ack, err := json.Marshal(SentEvent{
		Type:      EventMessageSent,
		RequestID: frame.ID,
		Message:   toMessageResponse(result.Conversation, result.Message),
	})
	if err != nil {
		g.logger.Error("encoding ack", "error", err)
		return
	}
	if key != "" {
		g.sent.Put(key, ack)
	}
	_ = conn.Send(ack)
}

func (g *Gateway) sendEvent(conn session.Conn, event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		g.logger.Error("encoding event", "error", err)
		return
	}
	if err := conn.Send(payload); err != nil {
		g.logger.Debug("event not sent", "error", err, "conn_id", conn.ID())
	}
}
