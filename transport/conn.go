package transport

import (
	"bufio"
	"bytes"
	"io"
	"sync"

	"github.com/gorilla/websocket"
)

// WebsocketConn carries one protocol message per websocket text frame.
type WebsocketConn struct {
	conn *websocket.Conn
}

func NewWebsocketConn(conn *websocket.Conn) *WebsocketConn {
	return &WebsocketConn{conn: conn}
}

func (c *WebsocketConn) ReadMessage() ([]byte, error) {
	for {
		messageType, data, err := c.conn.ReadMessage()
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return nil, io.EOF
		}
		if err != nil {
			return nil, err
		}
		if messageType == websocket.TextMessage || messageType == websocket.BinaryMessage {
			return data, nil
		}
	}
}

func (c *WebsocketConn) WriteMessage(payload []byte) error {
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

func (c *WebsocketConn) Close() error {
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return c.conn.Close()
}

// maxLineSize bounds one stdio message; database images travel inline.
const maxLineSize = 256 << 20

// StdioConn carries one protocol message per line.
type StdioConn struct {
	scanner *bufio.Scanner

	mu sync.Mutex
	w  io.Writer
}

func NewStdioConn(r io.Reader, w io.Writer) *StdioConn {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &StdioConn{scanner: scanner, w: w}
}

func (c *StdioConn) ReadMessage() ([]byte, error) {
	for c.scanner.Scan() {
		line := bytes.TrimSpace(c.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		return bytes.Clone(line), nil
	}
	if err := c.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

func (c *StdioConn) WriteMessage(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.w.Write(append(bytes.Clone(payload), '\n')); err != nil {
		return err
	}
	return nil
}
