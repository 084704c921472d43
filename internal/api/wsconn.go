package api

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/adtimokhin/handover/internal/session"
)

const writeTimeout = 10 * time.Second

// wsConn adapts a gorilla websocket connection to session.Conn. Reads
// are single-goroutine by construction (the session reader pump);
// writes are serialized with a mutex because relay delivery and close
// notifications can race.
type wsConn struct {
	writeMu sync.Mutex
	conn    *websocket.Conn
}

func newWSConn(conn *websocket.Conn, readLimit int64) *wsConn {
	if readLimit > 0 {
		conn.SetReadLimit(readLimit)
	}
	return &wsConn{conn: conn}
}

func (c *wsConn) ReadEnvelope() (session.Envelope, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return session.Envelope{}, err
	}
	return session.Decode(data), nil
}

func (c *wsConn) WriteEnvelope(env session.Envelope) error {
	data, err := env.Encode()
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// WriteText sends a raw text frame, bypassing envelope encoding. Used
// by the echo and broadcast endpoints which relay payloads untouched.
func (c *wsConn) WriteText(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// ReadText reads one raw frame without envelope decoding.
func (c *wsConn) ReadText() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	return data, err
}

// Close sends a close control frame so the peer sees the reason, then
// tears the connection down.
func (c *wsConn) Close(code int, reason string) error {
	c.writeMu.Lock()
	msg := websocket.FormatCloseMessage(code, reason)
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout))
	c.writeMu.Unlock()
	return c.conn.Close()
}
