// ABOUTME: Tests for the assistant gateway client
// ABOUTME: Uses an httptest server standing in for the inference endpoint

package assistant

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{
		Endpoint:     srv.URL,
		APIToken:     "test-token",
		Timeout:      2 * time.Second,
		MaxNewTokens: 500,
		Temperature:  0.7,
		TopP:         0.9,
	}, nil)
}

func respond(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, body)
	}
}

func TestCompleteSendsPromptAndParameters(t *testing.T) {
	var got generationRequest
	var auth string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `[{"generated_text":"Hi there"}]`)
	})

	reply := client.Complete(context.Background(), "hello")

	assert.Equal(t, "Hi there", reply)
	assert.Equal(t, "Bearer test-token", auth)
	assert.Equal(t, "Human: hello\n\nAssistant:", got.Inputs)
	assert.Equal(t, 500, got.Parameters.MaxNewTokens)
	assert.InDelta(t, 0.7, got.Parameters.Temperature, 1e-9)
	assert.InDelta(t, 0.9, got.Parameters.TopP, 1e-9)
	assert.True(t, got.Parameters.DoSample)
	assert.False(t, got.Parameters.ReturnFullText)
}

func TestCompleteResponseShapes(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"list", `[{"generated_text":"  from list  "}]`, "from list"},
		{"object", `{"generated_text":"from object"}`, "from object"},
		{"choices", `{"choices":[{"text":"from choices"}]}`, "from choices"},
		{"echoed prompt", `[{"generated_text":"Human: hi\n\nAssistant: stripped reply"}]`, "stripped reply"},
		{"empty list", `[]`, FallbackEmpty},
		{"blank text", `[{"generated_text":"   "}]`, FallbackEmpty},
		{"unknown object", `{"other":"field"}`, FallbackEmpty},
		{"not json", `<html>oops</html>`, FallbackUnexpected},
		{"scalar", `"just a string"`, FallbackUnexpected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, respond(tt.body))
			assert.Equal(t, tt.want, client.Complete(context.Background(), "q"))
		})
	}
}

func TestCompleteUpstreamError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model loading", http.StatusServiceUnavailable)
	})

	assert.Equal(t, FallbackUnavailable, client.Complete(context.Background(), "q"))
}

func TestCompleteTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	client := New(Config{Endpoint: srv.URL, APIToken: "t", Timeout: 50 * time.Millisecond}, nil)

	start := time.Now()
	reply := client.Complete(context.Background(), "q")

	assert.Equal(t, FallbackTimeout, reply)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestCompleteUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := New(Config{Endpoint: url, APIToken: "t", Timeout: time.Second}, nil)
	assert.Equal(t, FallbackUnavailable, client.Complete(context.Background(), "q"))
}

func TestCompleteDisabled(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	t.Cleanup(srv.Close)

	client := New(Config{Endpoint: srv.URL}, nil)

	assert.False(t, client.Enabled())
	assert.Equal(t, FallbackDisabled, client.Complete(context.Background(), "q"))
	assert.False(t, called)
}

func TestCleanReply(t *testing.T) {
	assert.Equal(t, "plain", cleanReply("  plain \n"))
	assert.Equal(t, "last", cleanReply("Human: a\nAssistant: first\nHuman: b\nAssistant: last"))
	assert.Equal(t, "Assistant: kept", cleanReply("Assistant: kept"))
}
