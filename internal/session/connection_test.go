package session

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newSocketPair starts an httptest server that upgrades one request and hands
// the server-side Connection to the test along with the client-side socket.
func newSocketPair(t *testing.T, opts Options) (*Connection, *websocket.Conn) {
	t.Helper()

	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	serverConn := make(chan *Connection, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		conn := NewConnection("alice", ws, opts)
		conn.Start()
		serverConn <- conn
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	select {
	case conn := <-serverConn:
		t.Cleanup(func() { conn.Close(CloseGoingAway, "test done") })
		return conn, client
	case <-time.After(2 * time.Second):
		t.Fatal("server never accepted the socket")
		return nil, nil
	}
}

func TestConnection_SendDeliversTextFrame(t *testing.T) {
	conn, client := newSocketPair(t, Options{})

	require.NoError(t, conn.Send([]byte(`{"type":"new_message"}`)))

	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	msgType, payload, err := client.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, msgType)
	assert.JSONEq(t, `{"type":"new_message"}`, string(payload))
	assert.Equal(t, "alice", conn.UserID())
	assert.NotEmpty(t, conn.ID())
}

func TestConnection_SendAfterCloseFails(t *testing.T) {
	conn, _ := newSocketPair(t, Options{})

	conn.Close(CloseGoingAway, "bye")
	conn.Close(CloseGoingAway, "bye again")

	err := conn.Send([]byte("late"))
	assert.ErrorIs(t, err, ErrConnectionClosed)

	select {
	case <-conn.Done():
	default:
		t.Fatal("Done should be closed")
	}
}

func TestConnection_CloseSendsCodeToPeer(t *testing.T) {
	conn, client := newSocketPair(t, Options{})

	conn.Close(CloseSessionReplaced, "session replaced")

	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := client.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, CloseSessionReplaced), "got %v", err)
}

func TestConnection_ReadLoopHandlesFrames(t *testing.T) {
	conn, client := newSocketPair(t, Options{})

	received := make(chan string, 2)
	loopDone := make(chan error, 1)
	go func() {
		loopDone <- conn.ReadLoop(func(p []byte) { received <- string(p) })
	}()

	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte("hello")))
	require.NoError(t, client.WriteMessage(websocket.BinaryMessage, []byte("ignored")))
	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte("world")))

	assert.Equal(t, "hello", <-received)
	assert.Equal(t, "world", <-received)

	require.NoError(t, client.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))

	select {
	case err := <-loopDone:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("ReadLoop did not return after client close")
	}
}

func TestConnection_FullBufferClosesConnection(t *testing.T) {
	conn, client := newSocketPair(t, Options{SendBuffer: 1})
	_ = client

	// Fill the queue faster than the writer can drain it. Eventually a send
	// lands on a full buffer or a closed connection.
	var lastErr error
	for i := 0; i < 10000 && lastErr == nil; i++ {
		lastErr = conn.Send(make([]byte, 32*1024))
	}
	require.Error(t, lastErr)

	select {
	case <-conn.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("connection should close when the buffer overflows")
	}
}
