package network

import (
	"context"
	"fmt"
	"sync"
)

// TransportEndpoint is an Endpoint backed by an external Connector. The lock
// is never held across a dial, so Connected and Send do not wait on a slow
// handshake.
type TransportEndpoint struct {
	name      string
	connector Connector

	mu      sync.Mutex
	conn    Conn
	dialing chan struct{} // closed when the in-flight dial finishes
	closes  uint64
}

// NewTransportEndpoint creates an endpoint that connects through connector
// using name as its identity.
func NewTransportEndpoint(name string, connector Connector) *TransportEndpoint {
	return &TransportEndpoint{name: name, connector: connector}
}

// Connect dials the transport unless already connected. Concurrent callers
// wait for the in-flight dial instead of starting another. Failures are
// returned to the caller and not retried.
func (e *TransportEndpoint) Connect(ctx context.Context) error {
	e.mu.Lock()
	if e.conn != nil {
		e.mu.Unlock()
		return nil
	}
	if e.connector == nil {
		e.mu.Unlock()
		return fmt.Errorf("no transport connector configured for %s", e.name)
	}
	if wait := e.dialing; wait != nil {
		e.mu.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
			return ctx.Err()
		}
		if e.Connected() {
			return nil
		}
		return fmt.Errorf("concurrent connect for %s failed", e.name)
	}
	done := make(chan struct{})
	e.dialing = done
	closes := e.closes
	e.mu.Unlock()

	conn, err := e.connector.Connect(ctx, e.name)

	e.mu.Lock()
	e.dialing = nil
	close(done)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	if e.closes != closes {
		e.mu.Unlock()
		_ = conn.Close()
		return fmt.Errorf("%s closed while connecting", e.name)
	}
	e.conn = conn
	e.mu.Unlock()
	return nil
}

// Connected reports whether a connection is open.
func (e *TransportEndpoint) Connected() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conn != nil
}

// Send forwards msg on the open connection.
func (e *TransportEndpoint) Send(ctx context.Context, msg Message) error {
	e.mu.Lock()
	conn := e.conn
	e.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	msg.Robot = e.name
	return conn.Send(ctx, msg)
}

// Close closes the connection if open.
func (e *TransportEndpoint) Close() error {
	e.mu.Lock()
	conn := e.conn
	e.conn = nil
	e.closes++
	e.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}
