// ABOUTME: HTTP and WebSocket client for the nexial-gateway API
// ABOUTME: Used by the nexial-chat CLI; one method per endpoint

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"
)

type user struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresAt   string `json:"expires_at"`
	User        user   `json:"user"`
}

type contact struct {
	user
	ConversationID  string `json:"conversation_id"`
	HasConversation bool   `json:"has_conversation"`
}

type message struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
	SenderID       string `json:"sender_id"`
	ReceiverID     string `json:"receiver_id"`
	Content        string `json:"content"`
	Position       int64  `json:"position"`
	Timestamp      string `json:"timestamp"`
}

type historyResponse struct {
	ConversationID string    `json:"conversation_id"`
	Messages       []message `json:"messages"`
}

// serverEvent is any frame the gateway pushes over the socket. new_message
// fields are inline; a message_sent ack nests the message under Sent.
type serverEvent struct {
	Type      string  `json:"type"`
	RequestID string  `json:"request_id"`
	Error     string  `json:"error"`
	Sent      message `json:"message"`
	message
}

// apiError is a non-2xx response.
type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("server returned status %d", e.Status)
}

type apiClient struct {
	server string
	token  string
	http   *http.Client
}

func newAPIClient(server, token string) *apiClient {
	return &apiClient{
		server: strings.TrimRight(server, "/"),
		token:  token,
		http:   http.DefaultClient,
	}
}

func (c *apiClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.server+path, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &apiError{Status: resp.StatusCode}
		var errResp map[string]string
		if json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&errResp) == nil {
			apiErr.Message = errResp["error"]
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	return nil
}

func (c *apiClient) register(ctx context.Context, username, password string) (*tokenResponse, error) {
	var out tokenResponse
	err := c.do(ctx, http.MethodPost, "/auth/register", map[string]string{
		"username": username,
		"password": password,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) login(ctx context.Context, username, password string) (*tokenResponse, error) {
	var out tokenResponse
	err := c.do(ctx, http.MethodPost, "/auth/login", map[string]string{
		"username": username,
		"password": password,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) me(ctx context.Context) (*user, error) {
	var out user
	if err := c.do(ctx, http.MethodGet, "/auth/me", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) contacts(ctx context.Context) ([]contact, error) {
	var out []contact
	if err := c.do(ctx, http.MethodGet, "/chat/contacts", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// findContact resolves a username (or user id) among the caller's contacts.
func (c *apiClient) findContact(ctx context.Context, nameOrID string) (*contact, error) {
	contacts, err := c.contacts(ctx)
	if err != nil {
		return nil, err
	}
	for i := range contacts {
		if contacts[i].Username == nameOrID || contacts[i].ID == nameOrID {
			return &contacts[i], nil
		}
	}
	return nil, fmt.Errorf("no contact named %q", nameOrID)
}

func (c *apiClient) history(ctx context.Context, otherUserID string, after int64) (*historyResponse, error) {
	path := "/chat/messages/" + url.PathEscape(otherUserID)
	if after > 0 {
		path += "?after=" + strconv.FormatInt(after, 10)
	}
	var out historyResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) send(ctx context.Context, receiverID, content string) (*message, error) {
	var out message
	err := c.do(ctx, http.MethodPost, "/chat/send", map[string]string{
		"receiver_id": receiverID,
		"content":     content,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) ask(ctx context.Context, question string) (string, error) {
	var out struct {
		Response string `json:"response"`
	}
	if err := c.do(ctx, http.MethodPost, "/chat/assistant", map[string]string{"message": question}, &out); err != nil {
		return "", err
	}
	return out.Response, nil
}

// socketURL maps the server's http(s) URL onto ws(s)://.../ws.
func (c *apiClient) socketURL() (string, error) {
	u, err := url.Parse(c.server)
	if err != nil {
		return "", fmt.Errorf("parsing server URL: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("unsupported server scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String(), nil
}

func (c *apiClient) dial(ctx context.Context) (*websocket.Conn, error) {
	if c.token == "" {
		return nil, errors.New("not logged in")
	}
	wsURL, err := c.socketURL()
	if err != nil {
		return nil, err
	}

	header := http.Header{"Authorization": []string{"Bearer " + c.token}}
	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("connecting: server returned status %d", resp.StatusCode)
		}
		return nil, fmt.Errorf("connecting: %w", err)
	}
	return ws, nil
}
