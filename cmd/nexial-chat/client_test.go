// ABOUTME: Tests for the nexial-chat API client
// ABOUTME: Uses httptest servers standing in for the gateway

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientSendsBearerToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode(user{ID: "u1", Username: "alice", DisplayName: "Alice"})
	}))
	defer srv.Close()

	c := newAPIClient(srv.URL+"/", "tok")
	me, err := c.me(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, "alice", me.Username)
}

func TestClientMapsErrorResponses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":"not a participant"}`))
	}))
	defer srv.Close()

	_, err := newAPIClient(srv.URL, "tok").send(context.Background(), "u2", "hi")
	require.Error(t, err)

	var apiErr *apiError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.Status)
	assert.Equal(t, "not a participant", apiErr.Error())
}

func TestClientErrorWithoutBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newAPIClient(srv.URL, "").contacts(context.Background())
	assert.EqualError(t, err, "server returned status 502")
}

func TestHistoryPath(t *testing.T) {
	var gotPath, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		_ = json.NewEncoder(w).Encode(historyResponse{ConversationID: "c1"})
	}))
	defer srv.Close()

	c := newAPIClient(srv.URL, "tok")

	hist, err := c.history(context.Background(), "u2", 0)
	require.NoError(t, err)
	assert.Equal(t, "/chat/messages/u2", gotPath)
	assert.Empty(t, gotQuery)
	assert.Equal(t, "c1", hist.ConversationID)

	_, err = c.history(context.Background(), "u2", 7)
	require.NoError(t, err)
	assert.Equal(t, "after=7", gotQuery)
}

func TestFindContact(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]contact{
			{user: user{ID: "u2", Username: "bob"}},
			{user: user{ID: "u3", Username: "carol"}, ConversationID: "c9", HasConversation: true},
		})
	}))
	defer srv.Close()

	c := newAPIClient(srv.URL, "tok")

	ct, err := c.findContact(context.Background(), "carol")
	require.NoError(t, err)
	assert.Equal(t, "u3", ct.ID)
	assert.True(t, ct.HasConversation)

	ct, err = c.findContact(context.Background(), "u2")
	require.NoError(t, err)
	assert.Equal(t, "bob", ct.Username)

	_, err = c.findContact(context.Background(), "dave")
	assert.Error(t, err)
}

func TestSocketURL(t *testing.T) {
	tests := []struct {
		server  string
		want    string
		wantErr bool
	}{
		{"http://localhost:8000", "ws://localhost:8000/ws", false},
		{"https://chat.example.com/", "wss://chat.example.com/ws", false},
		{"https://example.com/nexial", "wss://example.com/nexial/ws", false},
		{"ftp://example.com", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.server, func(t *testing.T) {
			got, err := newAPIClient(tt.server, "").socketURL()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDialRequiresLogin(t *testing.T) {
	_, err := newAPIClient("http://localhost:1", "").dial(context.Background())
	assert.EqualError(t, err, "not logged in")
}

func TestServerEventDecoding(t *testing.T) {
	var push serverEvent
	require.NoError(t, json.Unmarshal([]byte(`{"type":"new_message","id":"m1","sender_id":"u2","content":"hi","position":3}`), &push))
	assert.Equal(t, "new_message", push.Type)
	assert.Equal(t, "u2", push.SenderID)
	assert.Equal(t, "hi", push.Content)

	var ack serverEvent
	require.NoError(t, json.Unmarshal([]byte(`{"type":"message_sent","request_id":"r1","message":{"id":"m2","position":4}}`), &ack))
	assert.Equal(t, "r1", ack.RequestID)
	assert.Equal(t, int64(4), ack.Sent.Position)
}

func TestRunCommandAsk(t *testing.T) {
	color.NoColor = true

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/assistant", r.URL.Path)
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		assert.Equal(t, "what is up", body["message"])
		_, _ = w.Write([]byte(`{"response":"not much"}`))
	}))
	defer srv.Close()

	var out bytes.Buffer
	err := runCommand(context.Background(), newAPIClient(srv.URL, "tok"), "ask", []string{"what", "is", "up"}, nil, &out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "not much")
}

func TestRunCommandUsageErrors(t *testing.T) {
	c := newAPIClient("http://localhost:1", "tok")
	var out bytes.Buffer

	assert.Error(t, runCommand(context.Background(), c, "send", []string{"bob"}, nil, &out))
	assert.Error(t, runCommand(context.Background(), c, "history", nil, nil, &out))
	assert.Error(t, runCommand(context.Background(), c, "login", []string{"bob"}, nil, &out))
	assert.Error(t, runCommand(context.Background(), c, "nope", nil, nil, &out))
}
