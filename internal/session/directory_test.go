package session

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	id     string
	userID string

	mu         sync.Mutex
	sent       [][]byte
	closeCode  int
	closeCount int
}

func newFakeConn(id, userID string) *fakeConn {
	return &fakeConn{id: id, userID: userID}
}

func (f *fakeConn) ID() string     { return f.id }
func (f *fakeConn) UserID() string { return f.userID }

func (f *fakeConn) Send(payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, payload)
	return nil
}

func (f *fakeConn) Close(code int, reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeCode = code
	f.closeCount++
}

func TestDirectory_BindAndLookup(t *testing.T) {
	d := NewDirectory(nil)
	c := newFakeConn("c1", "alice")

	prev := d.Bind(c)
	assert.Nil(t, prev)

	got, ok := d.Lookup("alice")
	require.True(t, ok)
	assert.Equal(t, "c1", got.ID())
	assert.Equal(t, 1, d.Count())
}

func TestDirectory_LookupOffline(t *testing.T) {
	d := NewDirectory(nil)

	got, ok := d.Lookup("nobody")
	assert.False(t, ok)
	assert.Nil(t, got)
}

func TestDirectory_LastBindWins(t *testing.T) {
	d := NewDirectory(nil)
	old := newFakeConn("c1", "alice")
	fresh := newFakeConn("c2", "alice")

	d.Bind(old)
	prev := d.Bind(fresh)

	require.NotNil(t, prev)
	assert.Equal(t, "c1", prev.ID())

	got, ok := d.Lookup("alice")
	require.True(t, ok)
	assert.Equal(t, "c2", got.ID())
	assert.Equal(t, 1, d.Count())

	// The directory hands the old conn back and leaves closing to the caller
	assert.Equal(t, 0, old.closeCount)
}

func TestDirectory_UnbindSupersededKeepsNewBinding(t *testing.T) {
	d := NewDirectory(nil)
	d.Bind(newFakeConn("c1", "alice"))
	d.Bind(newFakeConn("c2", "alice"))

	// The first socket's read loop ending must not knock out the second
	assert.False(t, d.Unbind("c1"))

	got, ok := d.Lookup("alice")
	require.True(t, ok)
	assert.Equal(t, "c2", got.ID())
}

func TestDirectory_UnbindIdempotent(t *testing.T) {
	d := NewDirectory(nil)
	d.Bind(newFakeConn("c1", "alice"))

	assert.True(t, d.Unbind("c1"))
	assert.False(t, d.Unbind("c1"))
	assert.False(t, d.Unbind("never-bound"))

	_, ok := d.Lookup("alice")
	assert.False(t, ok)
	assert.Equal(t, 0, d.Count())
}

func TestDirectory_RebindSameConnection(t *testing.T) {
	d := NewDirectory(nil)
	c := newFakeConn("c1", "alice")

	d.Bind(c)
	prev := d.Bind(c)
	assert.Nil(t, prev, "rebinding the same connection is not a replacement")
	assert.Equal(t, 1, d.Count())
}

func TestDirectory_UsersAreIndependent(t *testing.T) {
	d := NewDirectory(nil)
	d.Bind(newFakeConn("c1", "alice"))
	d.Bind(newFakeConn("c2", "bob"))

	d.Unbind("c1")

	_, ok := d.Lookup("alice")
	assert.False(t, ok)
	got, ok := d.Lookup("bob")
	require.True(t, ok)
	assert.Equal(t, "c2", got.ID())
}

func TestDirectory_Close(t *testing.T) {
	d := NewDirectory(nil)
	a := newFakeConn("c1", "alice")
	b := newFakeConn("c2", "bob")
	d.Bind(a)
	d.Bind(b)

	d.Close()

	assert.Equal(t, 0, d.Count())
	assert.Equal(t, CloseGoingAway, a.closeCode)
	assert.Equal(t, CloseGoingAway, b.closeCode)
}

func TestDirectory_ConcurrentBindUnbind(t *testing.T) {
	d := NewDirectory(nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			user := fmt.Sprintf("user-%d", i%5)
			c := newFakeConn(fmt.Sprintf("conn-%d", i), user)
			d.Bind(c)
			d.Lookup(user)
			if i%2 == 0 {
				d.Unbind(c.ID())
			}
		}(i)
	}
	wg.Wait()

	// Every remaining binding must point at a connection owned by that user
	for i := 0; i < 5; i++ {
		user := fmt.Sprintf("user-%d", i)
		if c, ok := d.Lookup(user); ok {
			assert.Equal(t, user, c.UserID())
		}
	}
	assert.LessOrEqual(t, d.Count(), 5)
}
