package network

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// RobotNameHeader carries the robot identity on the websocket handshake.
const RobotNameHeader = "X-Robot-Name"

// WebsocketConnector connects robots to a real endpoint over websockets.
// Every message is sent as one JSON text frame.
type WebsocketConnector struct {
	URL          string
	Dialer       *websocket.Dialer
	WriteTimeout time.Duration
}

// Connect dials URL announcing name in the handshake.
func (c *WebsocketConnector) Connect(ctx context.Context, name string) (Conn, error) {
	dialer := c.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	hdr := http.Header{}
	hdr.Set(RobotNameHeader, name)
	ws, _, err := dialer.DialContext(ctx, c.URL, hdr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.URL, err)
	}
	timeout := c.WriteTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &wsConn{ws: ws, session: uuid.New().String(), timeout: timeout}, nil
}

type wsConn struct {
	mu      sync.Mutex
	ws      *websocket.Conn
	session string
	timeout time.Duration
}

func (c *wsConn) Send(ctx context.Context, msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	msg.Session = c.session
	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.ws.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.ws.WriteJSON(msg)
}

func (c *wsConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return c.ws.Close()
}
