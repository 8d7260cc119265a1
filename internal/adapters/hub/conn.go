package hub

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// conn is one live participant channel. The websocket write side is not
// safe for concurrent use, so every outbound frame goes through writeMu.
// The closed flag makes teardown idempotent no matter how many paths
// observe the failure first.
type conn struct {
	id          string
	displayName string
	remoteAddr  string
	joinedAt    time.Time

	ws           *websocket.Conn
	writeTimeout time.Duration

	writeMu sync.Mutex
	closed  bool
}

func newConn(id, displayName string, ws *websocket.Conn, writeTimeout time.Duration) *conn {
	return &conn{
		id:           id,
		displayName:  displayName,
		remoteAddr:   ws.RemoteAddr().String(),
		joinedAt:     time.Now().UTC(),
		ws:           ws,
		writeTimeout: writeTimeout,
	}
}

// write sends one encoded envelope. Returns ErrConnectionClosed after the
// connection has been torn down.
func (c *conn) write(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.closed {
		return ErrConnectionClosed
	}

	if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// close tears the connection down exactly once.
func (c *conn) close() {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	_ = c.ws.Close()
}
