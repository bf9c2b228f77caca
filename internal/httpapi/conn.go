package httpapi

import (
	"sync"

	"github.com/gorilla/websocket"
)

// syncConn serializes writes to a single websocket connection. Gorilla's
// *websocket.Conn permits only one concurrent writer/closer; this engine
// writes to a given socket from several goroutines at once — the socket's
// own read loop, a peer's goroutine notifying it of a connect/confirm/close
// event, and the per-tunnel child-process watcher — so every write and
// close must go through this adapter rather than the raw connection.
// Reads are unaffected: only engine.Run's own goroutine ever reads a given
// connection.
type syncConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func newSyncConn(conn *websocket.Conn) *syncConn {
	return &syncConn{conn: conn}
}

func (c *syncConn) WriteJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

func (c *syncConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Close()
}

func (c *syncConn) ReadJSON(v interface{}) error {
	return c.conn.ReadJSON(v)
}
