// network/connection.go
package network

import (
	"encoding/json"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// MaxFrameSize bounds inbound frames.
const MaxFrameSize = 8 << 10

type Connection interface {
	Write(data []byte) error
	Ping() error
	Close() error
	RemoteAddr() net.Addr
	SetHeartbeat(interval time.Duration)
	ReadPacket() (*Packet, error)
}

type WSConnection struct {
	conn         *websocket.Conn
	sendMutex    sync.Mutex
	heartbeat    time.Duration
	writeTimeout time.Duration
}

func NewWSConnection(conn *websocket.Conn, writeTimeout time.Duration) *WSConnection {
	conn.SetReadLimit(MaxFrameSize)
	return &WSConnection{conn: conn, writeTimeout: writeTimeout}
}

func (c *WSConnection) Write(data []byte) error {
	c.sendMutex.Lock()
	defer c.sendMutex.Unlock()

	if c.writeTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *WSConnection) Ping() error {
	c.sendMutex.Lock()
	defer c.sendMutex.Unlock()

	deadline := time.Now().Add(time.Second)
	if c.writeTimeout > 0 {
		deadline = time.Now().Add(c.writeTimeout)
	}
	return c.conn.WriteControl(websocket.PingMessage, nil, deadline)
}

// ReadPacket blocks for the next frame. Every frame, pong or heartbeat pushes
// the read deadline out again.
func (c *WSConnection) ReadPacket() (*Packet, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	c.extendDeadline()

	var p Packet
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, &DecodeError{Err: err}
	}
	if p.Event == "" {
		return nil, &DecodeError{Err: ErrMissingEvent}
	}
	return &p, nil
}

func (c *WSConnection) SetHeartbeat(interval time.Duration) {
	c.heartbeat = interval
	c.extendDeadline()
	c.conn.SetPongHandler(func(string) error {
		c.extendDeadline()
		return nil
	})
}

func (c *WSConnection) extendDeadline() {
	if c.heartbeat > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(c.heartbeat * 2))
	}
}

func (c *WSConnection) Close() error {
	return c.conn.Close()
}

func (c *WSConnection) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// DecodeError marks a frame that arrived intact but could not be parsed.
// The connection stays usable.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return "decode packet: " + e.Err.Error() }

func (e *DecodeError) Unwrap() error { return e.Err }
