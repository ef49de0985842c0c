package network

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// FakeNetwork is an in-process message bus standing in for the robot network.
// Delivery never blocks the sender: subscribers that fall behind lose messages.
type FakeNetwork struct {
	mu      sync.Mutex
	nextID  int
	subs    map[int]chan Message
	online  map[string]string // robot name -> session
	dropped uint64
}

// NewFakeNetwork creates an empty bus.
func NewFakeNetwork() *FakeNetwork {
	return &FakeNetwork{
		subs:   make(map[int]chan Message),
		online: make(map[string]string),
	}
}

// Subscribe registers a consumer with the given channel buffer. The returned
// cancel function unregisters it and closes the channel.
func (n *FakeNetwork) Subscribe(buffer int) (<-chan Message, func()) {
	ch := make(chan Message, buffer)
	n.mu.Lock()
	id := n.nextID
	n.nextID++
	n.subs[id] = ch
	n.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.subs, id)
			n.mu.Unlock()
			close(ch)
		})
	}
}

// Online returns the names of connected robots.
func (n *FakeNetwork) Online() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	names := make([]string, 0, len(n.online))
	for name := range n.online {
		names = append(names, name)
	}
	return names
}

// Dropped reports how many deliveries were discarded because a subscriber's
// buffer was full.
func (n *FakeNetwork) Dropped() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.dropped
}

func (n *FakeNetwork) deliver(msg Message) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, ch := range n.subs {
		select {
		case ch <- msg:
		default:
			n.dropped++
		}
	}
}

func (n *FakeNetwork) join(name string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if s, ok := n.online[name]; ok {
		return s
	}
	s := uuid.New().String()
	n.online[name] = s
	return s
}

func (n *FakeNetwork) leave(name string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.online, name)
}

// Endpoint returns a fake endpoint for the named robot on this bus.
func (n *FakeNetwork) Endpoint(name string) *FakeEndpoint {
	return &FakeEndpoint{net: n, name: name}
}

// FakeEndpoint is an Endpoint whose connect is a pure state flip.
type FakeEndpoint struct {
	net     *FakeNetwork
	name    string
	mu      sync.Mutex
	session string
}

// Connect joins the bus. Connecting twice keeps the original session.
func (e *FakeEndpoint) Connect(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session != "" {
		return nil
	}
	e.session = e.net.join(e.name)
	e.net.deliver(Message{Robot: e.name, Session: e.session, Type: TypeHello})
	return nil
}

// Connected reports whether Connect has succeeded.
func (e *FakeEndpoint) Connected() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session != ""
}

// Send delivers msg to every subscriber of the bus.
func (e *FakeEndpoint) Send(_ context.Context, msg Message) error {
	e.mu.Lock()
	session := e.session
	e.mu.Unlock()
	if session == "" {
		return ErrNotConnected
	}
	msg.Robot = e.name
	msg.Session = session
	e.net.deliver(msg)
	return nil
}

// Close leaves the bus.
func (e *FakeEndpoint) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == "" {
		return nil
	}
	e.net.leave(e.name)
	e.session = ""
	return nil
}
