// Package session tracks which live connection, if any, currently represents
// each user.
//
// # Directory
//
// Directory maps user ids to at most one Conn:
//
//	dir := session.NewDirectory(logger)
//	prev := dir.Bind(conn)      // last bind wins; prev is the superseded conn or nil
//	conn, ok := dir.Lookup(uid) // ok == false means the user is offline
//	dir.Unbind(conn.ID())       // idempotent
//
// The directory trusts its caller: the gateway authenticates the socket before
// binding it. It never closes connections on Bind; the caller decides what to
// do with the superseded connection.
//
// # Connection
//
// Connection wraps a gorilla/websocket conn with a buffered outbound queue and a
// single writer goroutine. Send never blocks: a closed connection returns
// ErrConnectionClosed and a full queue closes the connection.
package session
