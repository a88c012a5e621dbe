package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomyedwab/sqlight/worker/types"
)

// RemoteHost is a connection to a worker served by Server. Its Call method
// satisfies client.CallHost.
type RemoteHost struct {
	mu   sync.Mutex
	conn *WebsocketConn
}

// Dial connects to the worker endpoint at url and waits for the host to
// report ready. token may be empty when the server does not require auth.
func Dial(ctx context.Context, url, token string) (*RemoteHost, error) {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to connect to %s: %s: %w", url, resp.Status, err)
		}
		return nil, fmt.Errorf("failed to connect to %s: %w", url, err)
	}
	conn := NewWebsocketConn(ws)

	payload, err := conn.ReadMessage()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to read ready message: %w", err)
	}
	var ready types.Response
	if err := json.Unmarshal(payload, &ready); err != nil || ready.Command != types.CommandReady {
		conn.Close()
		return nil, fmt.Errorf("unexpected first message from worker: %s", payload)
	}
	return &RemoteHost{conn: conn}, nil
}

// Call sends one request and waits for its response. Calls are serialized;
// the host answers requests in order.
func (h *RemoteHost) Call(ctx context.Context, requestPayload []byte) ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if deadline, ok := ctx.Deadline(); ok {
		h.conn.conn.SetReadDeadline(deadline)
		defer h.conn.conn.SetReadDeadline(time.Time{})
	}
	if err := h.conn.WriteMessage(requestPayload); err != nil {
		return nil, err
	}
	return h.conn.ReadMessage()
}

func (h *RemoteHost) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.conn.Close()
}
