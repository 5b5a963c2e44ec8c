// ABOUTME: Live session directory mapping each user to their current connection
// ABOUTME: Last bind wins; unbinding a superseded connection leaves the newer binding intact

package session

import (
	"log/slog"
	"sync"
)

// Conn is a live, authenticated connection owned by exactly one user.
type Conn interface {
	ID() string
	UserID() string
	// Send queues payload for delivery without blocking.
	Send(payload []byte) error
	Close(code int, reason string)
}

// Directory tracks the single active connection for each user.
type Directory struct {
	mu     sync.RWMutex
	conns  map[string]Conn   // connID -> conn
	byUser map[string]string // userID -> connID
	logger *slog.Logger
}

// NewDirectory creates an empty directory. Pass nil logger for default.
func NewDirectory(logger *slog.Logger) *Directory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Directory{
		conns:  make(map[string]Conn),
		byUser: make(map[string]string),
		logger: logger.With("component", "sessions"),
	}
}

// Bind makes conn the active connection for conn.UserID(). If the user already
// had a different connection bound, it is detached and returned so the caller
// can close it.
func (d *Directory) Bind(conn Conn) Conn {
	var previous Conn

	d.mu.Lock()
	if existingID, ok := d.byUser[conn.UserID()]; ok && existingID != conn.ID() {
		previous = d.conns[existingID]
		delete(d.conns, existingID)
	}
	d.conns[conn.ID()] = conn
	d.byUser[conn.UserID()] = conn.ID()
	d.mu.Unlock()

	if previous != nil {
		d.logger.Info("session superseded",
			"user_id", conn.UserID(),
			"old_conn_id", previous.ID(),
			"new_conn_id", conn.ID())
	} else {
		d.logger.Debug("session bound", "user_id", conn.UserID(), "conn_id", conn.ID())
	}

	return previous
}

// Unbind removes the connection with the given id. It only clears the user's
// binding if that binding still points at connID. Returns false if the
// connection was not bound; calling it twice is harmless.
func (d *Directory) Unbind(connID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	conn, ok := d.conns[connID]
	if !ok {
		return false
	}
	delete(d.conns, connID)

	if current, ok := d.byUser[conn.UserID()]; ok && current == connID {
		delete(d.byUser, conn.UserID())
	}

	d.logger.Debug("session unbound", "user_id", conn.UserID(), "conn_id", connID)
	return true
}

// Lookup returns the user's active connection. ok is false when the user has
// no live session, which is not an error.
func (d *Directory) Lookup(userID string) (Conn, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	connID, ok := d.byUser[userID]
	if !ok {
		return nil, false
	}
	conn, ok := d.conns[connID]
	return conn, ok
}

// Count returns the number of bound connections.
func (d *Directory) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.conns)
}

// Close unbinds and closes every connection. Used at shutdown.
func (d *Directory) Close() {
	d.mu.Lock()
	conns := make([]Conn, 0, len(d.conns))
	for _, c := range d.conns {
		conns = append(conns, c)
	}
	d.conns = make(map[string]Conn)
	d.byUser = make(map[string]string)
	d.mu.Unlock()

	for _, c := range conns {
		c.Close(CloseGoingAway, "server shutdown")
	}

	d.logger.Debug("directory closed", "closed", len(conns))
}
