// In-process fake networking and the boundary to real robot transports
package network

import (
	"context"
	"errors"
	"time"
)

// Message types published by virtual robots.
const (
	TypeRobotState = "robot.state"
	TypeHello      = "robot.hello"
)

// ErrNotConnected is returned when sending on an endpoint that is not connected.
var ErrNotConnected = errors.New("endpoint not connected")

// Message is one unit of robot traffic.
type Message struct {
	Robot     string    `json:"robot"`
	Session   string    `json:"session"`
	Type      string    `json:"type"`
	Seq       uint64    `json:"seq"`
	Payload   []byte    `json:"payload"`
	Timestamp time.Time `json:"ts"`
}

// Endpoint is a robot's view of the network. Fake and real endpoints are
// indistinguishable to callers.
type Endpoint interface {
	Connect(ctx context.Context) error
	Connected() bool
	Send(ctx context.Context, msg Message) error
	Close() error
}

// Connector opens a real transport connection for a named robot.
type Connector interface {
	Connect(ctx context.Context, name string) (Conn, error)
}

// Conn is an open real-transport connection.
type Conn interface {
	Send(ctx context.Context, msg Message) error
	Close() error
}
