package core

import (
	"errors"
	"sync"
)

// ConnState is the lifecycle state of a connection.
type ConnState int

const (
	// StateConnecting is a transport that has not identified yet.
	StateConnecting ConnState = iota
	// StateAuthenticated is a registered connection with a validated user.
	StateAuthenticated
	// StateDisconnected is terminal.
	StateDisconnected
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

var errNotConnecting = errors.New("connection is not awaiting identification")

// Connection is one live transport of a user as seen by the core layer.
// The transport drains Events and exits once Done is closed.
type Connection struct {
	mu     sync.Mutex
	id     uint64
	userID string
	state  ConnState

	events    chan *Event
	done      chan struct{}
	closeOnce sync.Once
}

// NewConnection constructs a connection in the Connecting state.
func NewConnection(buffer int) *Connection {
	if buffer <= 0 {
		buffer = 1
	}
	return &Connection{
		state:  StateConnecting,
		events: make(chan *Event, buffer),
		done:   make(chan struct{}),
	}
}

// ID returns the registry-assigned identifier, or 0 before registration.
func (c *Connection) ID() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

// UserID returns the authenticated user, or "" before registration.
func (c *Connection) UserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

// State returns the current lifecycle state.
func (c *Connection) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Events returns the outbound queue.
func (c *Connection) Events() <-chan *Event {
	return c.events
}

// Done is closed when the connection is disconnected.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// Send enqueues an event without blocking. A full queue closes the
// connection; the client reconnects and reconciles through the read path.
func (c *Connection) Send(ev *Event) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.events <- ev:
		return true
	case <-c.done:
		return false
	default:
		c.Close()
		return false
	}
}

// Close moves the connection to Disconnected. Safe to call more than once.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.state = StateDisconnected
		c.mu.Unlock()
		close(c.done)
	})
}

// authenticate binds the identity assigned by the registry.
func (c *Connection) authenticate(id uint64, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateConnecting {
		return errNotConnecting
	}
	c.id = id
	c.userID = userID
	c.state = StateAuthenticated
	return nil
}
